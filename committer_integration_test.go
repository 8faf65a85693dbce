package paxoscommit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// End-to-end smoke test across the whole wired stack: Options ->
// NewCommitter -> Committer -> PaxosLoop -> MemoryCommitContext ->
// SMRegistry, the way cmd/election exercises it, but asserted with
// testify instead of printed to stdout.
func TestNewCommitterSubmitThroughMasterSM(t *testing.T) {
	c, reg, shutdown, err := NewCommitter(
		WithTimeout(1000),
		WithPeers(3),
		WithWaitLockSeed(7),
	)
	require.NoError(t, err)
	defer shutdown()

	reg.Master().SetLease(1000)

	instanceID, err := c.SubmitWithCtx([]byte("node-a"), &SMContext{SMID: MasterStateMachineID})
	require.NoError(t, err)
	require.Equal(t, uint64(0), instanceID)

	time.Sleep(10 * time.Millisecond)

	require.True(t, reg.Master().IsMaster("node-a"))
	holder, version := reg.Master().CurrentMaster()
	require.Equal(t, "node-a", holder)
	require.Equal(t, uint64(1), version)
}

func TestNewCommitterRejectsInvalidPeers(t *testing.T) {
	_, _, _, err := NewCommitter(WithPeers(0))
	require.Error(t, err)
}

// A plain Submit/SubmitWithID (no SMContext at all) must never be
// dispatched to the master-lease state machine.
func TestSubmitWithoutSMContextLeavesMasterLeaseUntouched(t *testing.T) {
	c, reg, shutdown, err := NewCommitter(
		WithTimeout(1000),
		WithPeers(3),
		WithWaitLockSeed(11),
	)
	require.NoError(t, err)
	defer shutdown()

	reg.Master().SetLease(1000)

	_, err = c.SubmitWithID([]byte("node-a"))
	require.NoError(t, err)

	err = c.Submit([]byte("node-b"))
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)

	holder, version := reg.Master().CurrentMaster()
	require.Equal(t, "", holder)
	require.Equal(t, uint64(0), version)
	require.False(t, reg.Master().IsMaster("node-a"))
	require.False(t, reg.Master().IsMaster("node-b"))
}
