// Package paxoscore holds the types and collaborator contracts shared
// between the commit coordinator and its external collaborators: the
// Paxos I/O loop, the state-machine registry, the commit context, and
// telemetry. Keeping them in a leaf package lets each collaborator's
// concrete implementation satisfy the interfaces structurally, without
// importing the coordinator package itself.
package paxoscore

import "time"

// MasterStateMachineID identifies the built-in leader-lease state
// machine. The Committer's retry policy never retries a conflicting
// submit addressed to it -- thrashing a master election is worse than
// giving up and letting the caller resubmit.
const MasterStateMachineID = int32(0)

// NoStateMachineID is the SM-id a Committer packs when a caller submits
// through Submit/SubmitWithID without an SMContext. It must never equal
// MasterStateMachineID (or any other registered id) -- a plain submit
// with no state machine in mind must not be silently dispatched to one.
const NoStateMachineID = int32(-1)

// ResultCode is the closed taxonomy of terminal outcomes a commit attempt
// can produce.
type ResultCode int

const (
	// OK means Paxos chose the submitted value; InstanceID is valid.
	OK ResultCode = iota
	// Conflict means another value was chosen for the target instance.
	// Retryable, up to the Committer's cap, except for MasterStateMachineID.
	Conflict
	// Timeout means the configured deadline elapsed, either while parked
	// in WaitLock or while the Paxos round was in flight. Not retried
	// automatically; the caller may resubmit.
	Timeout
	// TooManyThreadsWaiting means admission was denied by the waiter cap
	// or the adaptive shedder. Not retried automatically.
	TooManyThreadsWaiting
	// Internal means the I/O loop reported an outcome outside the known
	// taxonomy; it is propagated unchanged and never retried.
	Internal
)

func (c ResultCode) String() string {
	switch c {
	case OK:
		return "OK"
	case Conflict:
		return "Conflict"
	case Timeout:
		return "Timeout"
	case TooManyThreadsWaiting:
		return "TooManyThreadsWaiting"
	case Internal:
		return "Internal"
	default:
		return "Unknown"
	}
}

// CommitError reports a non-OK ResultCode back to the caller of submit.
// It carries the first non-Conflict terminal code observed, or Conflict
// when every permitted attempt ended in Conflict.
type CommitError struct {
	Code   ResultCode
	Reason string
}

func NewCommitError(code ResultCode, reason string) *CommitError {
	return &CommitError{Code: code, Reason: reason}
}

func (e *CommitError) Error() string {
	if e.Reason == "" {
		return e.Code.String()
	}
	return e.Code.String() + ": " + e.Reason
}

// SMContext carries the identifier of the state machine that should
// consume a submitted value, plus an opaque per-call cookie returned to
// that state machine on apply.
type SMContext struct {
	SMID   int32
	Cookie interface{}
}

// PendingCommit is the payload an IOLoop pulls out of a CommitContext's
// single slot once notified. Generation identifies which publish this
// attempt belongs to, so a Resolve for an attempt the caller has since
// abandoned (and replaced with a fresh Publish) can be told apart from
// the current one and discarded instead of corrupting it.
type PendingCommit struct {
	Generation uint64
	Value      []byte
	SMCtx      *SMContext
	Deadline   time.Time
}

// CommitContext is the Committer-facing half of the single-slot handoff
// between a caller thread and the I/O loop. publish/await_result must be
// called with the WaitLock held, and between Publish and AwaitResult
// returning, the calling Committer is the exclusive user of this context.
type CommitContext interface {
	// Publish stores packed/smCtx/timeout into the single slot, discarding
	// any stale unread result left behind by an abandoned attempt.
	Publish(packed []byte, smCtx *SMContext, timeoutMS int)
	// AwaitResult blocks until the I/O loop reports a terminal code for
	// the most recently published attempt, or an internal watchdog fires.
	AwaitResult() (instanceID uint64, code ResultCode)
}

// LoopContext is the I/O-loop-facing half of the same single-slot
// rendezvous. It is implemented by the same concrete type as
// CommitContext; the split exists because the Committer and the IOLoop
// consume the slot from opposite ends.
type LoopContext interface {
	// Pending returns the currently published commit, if any.
	Pending() (*PendingCommit, bool)
	// Resolve writes a terminal result for the attempt identified by
	// generation, waking any goroutine blocked in AwaitResult for it. A
	// generation that no longer matches the currently published attempt
	// is silently discarded as a late result from an abandoned round.
	Resolve(generation uint64, instanceID uint64, code ResultCode)
}

// IOLoop is the single-threaded event loop that runs proposer logic. The
// Committer only notifies it; notification is non-blocking, idempotent,
// and may be coalesced by the loop.
type IOLoop interface {
	Notify()
}

// StateMachineRegistry packs a state-machine identifier into the value
// prefix before Paxos sees it. Framing is opaque to the Committer; the
// registry owns the on-wire format.
type StateMachineRegistry interface {
	PackValue(value []byte, smID int32) []byte
}

// Telemetry receives best-effort counters from the commit path. A
// missing sink must never alter behavior, so callers should default to a
// no-op implementation rather than a nil interface.
type Telemetry interface {
	Submitted()
	CommitOK(latency time.Duration)
	CommitFail()
	Conflict()
	LockTimeout()
	LockReject()
	LockOK(wait time.Duration)
}
