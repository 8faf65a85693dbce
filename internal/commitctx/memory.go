// Package commitctx implements the concrete CommitContext/LoopContext
// collaborator: a single-slot rendezvous between a caller thread and the
// Paxos I/O loop for one commit attempt.
package commitctx

import (
	"sync"
	"time"

	"github.com/bdeggleston/paxoscommit/internal/paxoscore"
)

// MemoryCommitContext is an in-process CommitContext/LoopContext backed
// by a sync.Cond, following the condvar-gated handoff shape of
// ilock.Mutex: one mutex, one condition, and a small packed state word
// (here, a generation counter) that lets a late write from an abandoned
// round be told apart from the result of the current one.
type MemoryCommitContext struct {
	mu sync.Mutex
	c  *sync.Cond

	generation uint64
	pending    *paxoscore.PendingCommit

	resultReady bool
	resultGen   uint64
	instanceID  uint64
	code        paxoscore.ResultCode
}

// New returns an empty MemoryCommitContext.
func New() *MemoryCommitContext {
	ctx := &MemoryCommitContext{}
	ctx.c = sync.NewCond(&ctx.mu)
	return ctx
}

// Publish stores the given attempt into the single slot. It must be
// called with the Committer's WaitLock held, which is what guarantees at
// most one attempt is ever published at a time. Any stale, unread result
// left latched by a previously abandoned attempt is discarded here --
// the source never explicitly drains late results, so the mandate is
// enforced at the point a fresh attempt starts.
func (c *MemoryCommitContext) Publish(packed []byte, smCtx *paxoscore.SMContext, timeoutMS int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.generation++
	c.pending = &paxoscore.PendingCommit{
		Generation: c.generation,
		Value:      packed,
		SMCtx:      smCtx,
	}
	if timeoutMS >= 0 {
		c.pending.Deadline = time.Now().Add(time.Duration(timeoutMS) * time.Millisecond)
	}
	c.resultReady = false
	c.resultGen = 0
	c.instanceID = 0
	c.code = 0

	c.c.Broadcast()
}

// AwaitResult blocks the caller until the I/O loop resolves the
// generation most recently published, then returns its outcome. A
// result written for an earlier, abandoned generation is never observed
// by a later AwaitResult call.
//
// If the published attempt carried a deadline, an internal watchdog
// resolves it to Timeout should the I/O loop never respond -- the loop
// may be wedged or may have silently dropped the notification, and the
// caller must not be left blocked forever.
func (c *MemoryCommitContext) AwaitResult() (uint64, paxoscore.ResultCode) {
	c.mu.Lock()
	gen := c.generation
	deadline := c.pending.Deadline
	c.mu.Unlock()

	if !deadline.IsZero() {
		remaining := time.Until(deadline)
		if remaining < 0 {
			remaining = 0
		}
		timer := time.AfterFunc(remaining, func() {
			c.mu.Lock()
			if c.generation == gen && !c.resultReady {
				c.resultReady = true
				c.resultGen = gen
				c.code = paxoscore.Timeout
				c.c.Broadcast()
			}
			c.mu.Unlock()
		})
		defer timer.Stop()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for !(c.resultReady && c.resultGen == gen) {
		c.c.Wait()
	}
	return c.instanceID, c.code
}

// Pending returns the currently published attempt, if one is latched and
// not yet resolved.
func (c *MemoryCommitContext) Pending() (*paxoscore.PendingCommit, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pending == nil || (c.resultReady && c.resultGen == c.generation) {
		return nil, false
	}
	return c.pending, true
}

// Resolve writes a terminal result for the attempt identified by
// generation and wakes any goroutine blocked in AwaitResult for it. A
// generation that no longer matches the currently published attempt, or
// a generation that has already been resolved, is silently discarded --
// it is a late result from a round the caller has since abandoned.
func (c *MemoryCommitContext) Resolve(generation uint64, instanceID uint64, code paxoscore.ResultCode) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if generation != c.generation || (c.resultReady && c.resultGen == c.generation) {
		return
	}

	c.resultReady = true
	c.resultGen = generation
	c.instanceID = instanceID
	c.code = code

	c.c.Broadcast()
}
