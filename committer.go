package paxoscommit

import (
	"github.com/bdeggleston/paxoscommit/internal/commitctx"
	"github.com/bdeggleston/paxoscommit/internal/committer"
	"github.com/bdeggleston/paxoscommit/internal/paxoscore"
	"github.com/bdeggleston/paxoscommit/internal/paxosloop"
	"github.com/bdeggleston/paxoscommit/internal/smfac"
)

// Committer is the client-facing handle returned by NewCommitter. It is
// the internal/committer.Committer type, re-exported at the module root
// so callers never import an internal package directly.
type Committer = committer.Committer

// ResultCode and CommitError are re-exported for the same reason.
type ResultCode = paxoscore.ResultCode
type CommitError = paxoscore.CommitError
type SMContext = paxoscore.SMContext

const (
	OK                    = paxoscore.OK
	Conflict              = paxoscore.Conflict
	Timeout               = paxoscore.Timeout
	TooManyThreadsWaiting = paxoscore.TooManyThreadsWaiting
	Internal              = paxoscore.Internal
)

// MasterStateMachineID identifies the built-in leader-lease state
// machine; submits addressed to it are never retried on Conflict.
const MasterStateMachineID = paxoscore.MasterStateMachineID

// NewCommitter wires SerialLock (via internal/admission's WaitLock) ->
// MemoryCommitContext -> SMRegistry -> PaxosLoop -> Committer, starts the
// loop goroutine, and returns the Committer, the registered state
// machine registry (for callers that want to register their own state
// machines or read the master lease), and a shutdown func that stops the
// loop. Mirrors how PhxElection::RunPaxos wires phxpaxos::Node in the
// original sample program.
func NewCommitter(options ...Option) (*Committer, *smfac.Registry, func(), error) {
	opts := defaultOptions()
	for _, opt := range options {
		if err := opt(&opts); err != nil {
			return nil, nil, nil, err
		}
	}

	ctx := commitctx.New()
	reg := smfac.New()

	acceptors := make([]paxosloop.Acceptor, opts.Peers)
	for i := range acceptors {
		acceptors[i] = paxosloop.NewMemoryAcceptor()
	}
	loop := paxosloop.New(ctx, reg, acceptors)

	c := committer.New(ctx, loop, reg, opts.Telemetry, opts.WaitLockSeed)
	c.SetTimeout(opts.TimeoutMS)
	c.SetMaxHoldThreads(opts.MaxHoldThreads)
	c.SetProposeWaitThreshold(opts.ProposeWaitThresholdMS)

	loop.Start()

	shutdown := func() {
		loop.Stop()
	}

	return c, reg, shutdown, nil
}
