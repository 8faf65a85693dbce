package smfac

import (
	"testing"
	"time"

	"gopkg.in/check.v1"

	"github.com/bdeggleston/paxoscommit/internal/paxoscore"
)

func Test(t *testing.T) { check.TestingT(t) }

type RegistrySuite struct{}

var _ = check.Suite(&RegistrySuite{})

func (s *RegistrySuite) TestPackUnpackRoundTrip(c *check.C) {
	r := New()
	packed := r.PackValue([]byte("hello"), 42)

	smID, value := Unpack(packed)
	c.Assert(smID, check.Equals, int32(42))
	c.Assert(value, check.DeepEquals, []byte("hello"))
}

type recordingSM struct {
	instanceID uint64
	value      []byte
	cookie     interface{}
	calls      int
}

func (r *recordingSM) Apply(instanceID uint64, value []byte, cookie interface{}) {
	r.instanceID = instanceID
	r.value = value
	r.cookie = cookie
	r.calls++
}

func (s *RegistrySuite) TestApplyDispatchesToRegisteredSM(c *check.C) {
	r := New()
	sm := &recordingSM{}
	ok := r.Register(7, sm)
	c.Assert(ok, check.Equals, true)

	packed := r.PackValue([]byte("v"), 7)
	r.Apply(3, packed, "cookie")

	c.Assert(sm.calls, check.Equals, 1)
	c.Assert(sm.instanceID, check.Equals, uint64(3))
	c.Assert(sm.value, check.DeepEquals, []byte("v"))
	c.Assert(sm.cookie, check.Equals, "cookie")
}

func (s *RegistrySuite) TestApplyDropsNoStateMachineIDSilently(c *check.C) {
	r := New()
	packed := r.PackValue([]byte("v"), paxoscore.NoStateMachineID)

	// Must not panic, must not touch the master lease, and must not
	// require anything registered at NoStateMachineID.
	r.Apply(1, packed, nil)

	holder, version := r.Master().CurrentMaster()
	c.Assert(holder, check.Equals, "")
	c.Assert(version, check.Equals, uint64(0))
}

func (s *RegistrySuite) TestApplyDropsUnknownSMID(c *check.C) {
	r := New()
	packed := r.PackValue([]byte("v"), 99)

	// No state machine registered at 99; Apply must log and return
	// rather than panic.
	r.Apply(1, packed, nil)
}

func (s *RegistrySuite) TestRegisterRejectsReservedIDs(c *check.C) {
	r := New()
	sm := &recordingSM{}

	ok := r.Register(paxoscore.MasterStateMachineID, sm)
	c.Assert(ok, check.Equals, false)

	ok = r.Register(paxoscore.NoStateMachineID, sm)
	c.Assert(ok, check.Equals, false)

	ok = r.Register(5, sm)
	c.Assert(ok, check.Equals, true)
}

func (s *RegistrySuite) TestMasterApplyUpdatesLeaseHolderAndVersion(c *check.C) {
	r := New()
	packed := r.PackValue([]byte("node-a"), paxoscore.MasterStateMachineID)

	r.Apply(0, packed, nil)

	holder, version := r.Master().CurrentMaster()
	c.Assert(holder, check.Equals, "node-a")
	c.Assert(version, check.Equals, uint64(1))

	var gotHolder string
	var gotVersion uint64
	r.Master().OnChange(func(holder string, version uint64) {
		gotHolder = holder
		gotVersion = version
	})

	packed2 := r.PackValue([]byte("node-b"), paxoscore.MasterStateMachineID)
	r.Apply(1, packed2, nil)

	c.Assert(gotHolder, check.Equals, "node-b")
	c.Assert(gotVersion, check.Equals, uint64(2))
}

func (s *RegistrySuite) TestIsMasterBeforeAndAfterLeaseExpiry(c *check.C) {
	m := newMasterStateMachine()
	m.Apply(0, []byte("node-a"), nil)

	// No lease set: holder match alone is sufficient.
	c.Assert(m.IsMaster("node-a"), check.Equals, true)
	c.Assert(m.IsMaster("node-b"), check.Equals, false)

	m.SetLease(30)
	c.Assert(m.IsMaster("node-a"), check.Equals, true)

	time.Sleep(50 * time.Millisecond)
	c.Assert(m.IsMaster("node-a"), check.Equals, false)
}

func (s *RegistrySuite) TestSetLeaseNonPositiveClearsImmediately(c *check.C) {
	m := newMasterStateMachine()
	m.Apply(0, []byte("node-a"), nil)
	m.SetLease(1000)
	c.Assert(m.IsMaster("node-a"), check.Equals, true)

	m.SetLease(0)
	c.Assert(m.IsMaster("node-a"), check.Equals, false)
}
