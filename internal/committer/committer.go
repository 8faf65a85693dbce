// Package committer implements Committer, the coordinator that turns a
// caller's submit into a bounded, retried, timeout-respecting interaction
// with the single-writer Paxos I/O loop.
package committer

import (
	"sync/atomic"
	"time"

	logging "github.com/op/go-logging"

	"github.com/bdeggleston/paxoscommit/internal/admission"
	"github.com/bdeggleston/paxoscommit/internal/paxoscore"
)

var logger = logging.MustGetLogger("committer")

// maxAttempts bounds how many times a single submit re-enters admission
// control before giving up on a run of Conflict outcomes.
const maxAttempts = 3

// deadlineFloorMS is the minimum time left for a Paxos round to have any
// real chance of completing; below it the Committer aborts with Timeout
// rather than publishing a doomed attempt.
const deadlineFloorMS = 200

// Committer is one per Paxos group. It owns its WaitLock exclusively;
// CommitContext, IOLoop, StateMachineRegistry, and Telemetry are shared
// collaborators whose lifetime must outlive the Committer.
type Committer struct {
	waitLock *admission.WaitLock

	commitCtx paxoscore.CommitContext
	ioLoop    paxoscore.IOLoop
	smReg     paxoscore.StateMachineRegistry
	telemetry paxoscore.Telemetry

	timeoutMS       atomic.Int64
	lastStatusLogMS atomic.Int64
}

// New wires a Committer over the given collaborators. waitLockSeed seeds
// the owned WaitLock's RNG (see internal/admission.New).
func New(commitCtx paxoscore.CommitContext, ioLoop paxoscore.IOLoop, smReg paxoscore.StateMachineRegistry, telemetry paxoscore.Telemetry, waitLockSeed int64) *Committer {
	if telemetry == nil {
		panic("committer: telemetry must not be nil; pass a Nop sink instead")
	}
	c := &Committer{
		waitLock:  admission.New(waitLockSeed),
		commitCtx: commitCtx,
		ioLoop:    ioLoop,
		smReg:     smReg,
		telemetry: telemetry,
	}
	c.timeoutMS.Store(-1)
	c.lastStatusLogMS.Store(nowMS())
	return c
}

func nowMS() int64 { return time.Now().UnixMilli() }

// SetTimeout sets the overall per-call deadline. ms = -1 waits forever.
func (c *Committer) SetTimeout(ms int) {
	c.timeoutMS.Store(int64(ms))
}

// SetMaxHoldThreads caps the number of parked WaitLock waiters. n = -1
// removes the cap.
func (c *Committer) SetMaxHoldThreads(n int) {
	c.waitLock.SetMaxWaiting(n)
}

// SetProposeWaitThreshold enables adaptive load shedding in the owned
// WaitLock once the rolling average acquisition time exceeds ms.
// ms = -1 disables it.
func (c *Committer) SetProposeWaitThreshold(ms int) {
	c.waitLock.SetWaitThreshold(ms)
}

// Submit drives value through a single Paxos instance and discards the
// assigned instance id, returning only the terminal error (nil on OK).
func (c *Committer) Submit(value []byte) error {
	_, err := c.SubmitWithID(value)
	return err
}

// SubmitWithID drives value through a single Paxos instance under the
// default (unidentified) state machine and returns the chosen instance id.
func (c *Committer) SubmitWithID(value []byte) (uint64, error) {
	return c.SubmitWithCtx(value, nil)
}

// SubmitWithCtx drives value through a single Paxos instance addressed to
// the state machine identified by smCtx, making up to 3 attempts in total
// while the outcome is Conflict -- except when smCtx.SMID is paxoscore.MasterStateMachineID,
// which is never retried, since thrashing a master election on conflict
// would be worse than failing the one caller.
func (c *Committer) SubmitWithCtx(value []byte, smCtx *paxoscore.SMContext) (uint64, error) {
	c.telemetry.Submitted()

	noRetry := smCtx != nil && smCtx.SMID == paxoscore.MasterStateMachineID

	var instanceID uint64
	var code paxoscore.ResultCode
	for attempt := 0; attempt < maxAttempts; attempt++ {
		start := time.Now()
		instanceID, code = c.attempt(value, smCtx)

		if code == paxoscore.OK {
			c.telemetry.CommitOK(time.Since(start))
			return instanceID, nil
		}
		if code != paxoscore.Conflict {
			c.telemetry.CommitFail()
			return 0, paxoscore.NewCommitError(code, "")
		}

		c.telemetry.Conflict()
		if noRetry {
			break
		}
	}

	c.telemetry.CommitFail()
	return 0, paxoscore.NewCommitError(paxoscore.Conflict, "retry limit exceeded")
}

// attempt runs the single-attempt algorithm of design §4.3: log status,
// acquire admission, compute the remaining deadline, pack and publish the
// value, notify the loop, and await the result -- releasing the WaitLock
// on every exit path.
func (c *Committer) attempt(value []byte, smCtx *paxoscore.SMContext) (uint64, paxoscore.ResultCode) {
	c.logStatus()

	timeoutMS := int(c.timeoutMS.Load())
	var timeout time.Duration
	if timeoutMS < 0 {
		timeout = -1
	} else {
		timeout = time.Duration(timeoutMS) * time.Millisecond
	}

	ok, waitSpent := c.waitLock.Acquire(timeout)
	if !ok {
		if waitSpent == 0 {
			c.telemetry.LockReject()
			logger.Warning("try get lock, but too many threads waiting, reject")
			return 0, paxoscore.TooManyThreadsWaiting
		}
		c.telemetry.LockTimeout()
		logger.Warning("try get lock, but timeout, lock use time %v", waitSpent)
		return 0, paxoscore.Timeout
	}
	defer c.waitLock.Release()

	c.telemetry.LockOK(waitSpent)

	// Preserves the source's asymmetry: the floor is only enforced when
	// timeout_ms > 0. A configured timeout of exactly 0 falls through
	// with left = -1, same as an unbounded call -- an open question in
	// the design (see §9(a)) inherited unchanged from the original.
	leftMS := -1
	if timeoutMS > 0 {
		waitMS := int(waitSpent.Milliseconds())
		leftMS = timeoutMS - waitMS
		if leftMS < 0 {
			leftMS = 0
		}
		if leftMS < deadlineFloorMS {
			c.telemetry.LockTimeout()
			logger.Warning("get lock ok, but lock use time %dms too long, left timeout %dms", waitMS, leftMS)
			return 0, paxoscore.Timeout
		}
	}

	smID := paxoscore.NoStateMachineID
	if smCtx != nil {
		smID = smCtx.SMID
	}
	packed := c.smReg.PackValue(value, smID)

	c.commitCtx.Publish(packed, smCtx, leftMS)
	c.ioLoop.Notify()

	return c.commitCtx.AwaitResult()
}

// logStatus emits a periodic status line of the WaitLock's current
// waiter count, rolling average wait time, and reject rate, at most once
// per second. It is best-effort: it runs at the start of every attempt,
// before admission, and whichever submitting goroutine first observes the
// elapsed interval (and wins the CompareAndSwap) does the logging; it is
// skipped entirely while no submits arrive.
func (c *Committer) logStatus() {
	now := nowMS()
	last := c.lastStatusLogMS.Load()
	if now-last <= 1000 {
		return
	}
	if !c.lastStatusLogMS.CompareAndSwap(last, now) {
		return
	}
	waiting, avgMS, rejectRate := c.waitLock.Stats()
	logger.Info("wait threads %d avg thread wait ms %d reject rate %d", waiting, avgMS, rejectRate)
}
