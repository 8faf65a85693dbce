// Package paxosloop implements a concrete paxoscore.IOLoop: a
// single-threaded proposer that drains the CommitContext's one slot and
// drives each pending value through a single-instance, ballot-numbered
// Paxos round against an in-process acceptor quorum.
//
// It is demonstration-grade, not a durable replication engine: instances
// live in memory only, there is no log compaction, and the acceptor set
// is fixed at construction. The ballot/quorum/retry shape follows the
// scope/accept/commit phases of a classic multi-Paxos scope, generalized
// from per-key consensus to a single shared instance stream.
package paxosloop

import (
	"sync"
	"time"

	logging "github.com/op/go-logging"

	"github.com/bdeggleston/paxoscommit/internal/paxoscore"
	"github.com/bdeggleston/paxoscommit/internal/smfac"
)

var logger = logging.MustGetLogger("paxosloop")

// ballotFailureRetries bounds how many ballots a round tries in total
// (the first proposal plus re-proposals after lost ballot races) before
// giving up with Conflict.
const ballotFailureRetries = 4

// phaseTimeout bounds how long a single prepare/accept broadcast waits
// for a quorum of acceptor responses.
const phaseTimeout = 500 * time.Millisecond

// Acceptor is one member of the quorum a Loop proposes to. A real
// deployment would back this with a network stub; the in-process
// implementation in this package backs it with a local promise/accept
// ledger guarded by its own lock.
type Acceptor interface {
	Prepare(instanceID uint64, ballot uint64) (promised bool, acceptedBallot uint64, acceptedValue []byte)
	Accept(instanceID uint64, ballot uint64, value []byte) (accepted bool)
	Commit(instanceID uint64, value []byte)
}

// Loop is the single-threaded proposer. Notify wakes it to drain and
// process whatever the CommitContext is currently holding; it never
// blocks the caller and may coalesce back-to-back notifications into one
// pass, matching the notify-only contract the Committer relies on.
type Loop struct {
	ctx       paxoscore.LoopContext
	acceptors []Acceptor
	apply     func(instanceID uint64, packed []byte, cookie interface{})

	notifyCh chan struct{}
	stopCh   chan struct{}
	wg       sync.WaitGroup

	mu       sync.Mutex
	nextInst uint64
	ballot   uint64
}

// New returns a Loop proposing against acceptors, applying chosen values
// through reg. The loop is idle until Start is called.
func New(ctx paxoscore.LoopContext, reg *smfac.Registry, acceptors []Acceptor) *Loop {
	return &Loop{
		ctx:       ctx,
		acceptors: acceptors,
		apply:     reg.Apply,
		notifyCh:  make(chan struct{}, 1),
		stopCh:    make(chan struct{}),
	}
}

// Start launches the loop goroutine. Safe to call once.
func (l *Loop) Start() {
	l.wg.Add(1)
	go l.run()
}

// Stop signals the loop goroutine to exit and waits for it.
func (l *Loop) Stop() {
	close(l.stopCh)
	l.wg.Wait()
}

// Notify wakes the loop to drain the CommitContext's slot. Non-blocking:
// a pending, undelivered notification is sufficient to guarantee the
// next drain observes the latest publish, so redundant notifications are
// dropped rather than queued.
func (l *Loop) Notify() {
	select {
	case l.notifyCh <- struct{}{}:
	default:
	}
}

func (l *Loop) run() {
	defer l.wg.Done()
	for {
		select {
		case <-l.stopCh:
			return
		case <-l.notifyCh:
			l.drain()
		}
	}
}

// drain repeatedly pulls and resolves the current pending commit until
// the slot is empty, so a value published while the previous one was
// being processed is not left for a notification that already fired.
func (l *Loop) drain() {
	for {
		pending, ok := l.ctx.Pending()
		if !ok {
			return
		}
		select {
		case <-l.stopCh:
			return
		default:
		}
		instanceID, code := l.run1(pending)
		l.ctx.Resolve(pending.Generation, instanceID, code)
	}
}

// run1 executes one ballot-numbered Paxos round for pending.Value,
// re-proposing with a higher ballot if an acceptor quorum reports a
// higher ballot already in flight, for at most ballotFailureRetries
// ballots in total.
func (l *Loop) run1(pending *paxoscore.PendingCommit) (uint64, paxoscore.ResultCode) {
	l.mu.Lock()
	instanceID := l.nextInst
	l.nextInst++
	l.mu.Unlock()

	value := pending.Value

	for attempt := 0; attempt < ballotFailureRetries; attempt++ {
		if !pending.Deadline.IsZero() && time.Now().After(pending.Deadline) {
			return 0, paxoscore.Timeout
		}

		l.mu.Lock()
		l.ballot++
		ballot := l.ballot
		l.mu.Unlock()

		promised, highestSeen, proposed, ok := l.preparePhase(instanceID, ballot, pending.Deadline)
		if !ok {
			return 0, paxoscore.Timeout
		}
		if !promised {
			l.bumpBallot(highestSeen)
			continue
		}
		if proposed != nil {
			value = proposed
		}

		accepted, ok := l.acceptPhase(instanceID, ballot, value, pending.Deadline)
		if !ok {
			return 0, paxoscore.Timeout
		}
		if !accepted {
			continue
		}

		for _, a := range l.acceptors {
			a.Commit(instanceID, value)
		}
		var cookie interface{}
		if pending.SMCtx != nil {
			cookie = pending.SMCtx.Cookie
		}
		l.apply(instanceID, value, cookie)

		if proposed != nil {
			return instanceID, paxoscore.Conflict
		}
		return instanceID, paxoscore.OK
	}

	return 0, paxoscore.Conflict
}

func (l *Loop) bumpBallot(seen uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if seen > l.ballot {
		l.ballot = seen
	}
}

// preparePhase broadcasts Prepare(instanceID, ballot) and waits for a
// quorum. It returns the highest already-accepted value among quorum
// responses, if any -- a prepared proposer must adopt it rather than its
// own value, per Paxos safety.
func (l *Loop) preparePhase(instanceID, ballot uint64, deadline time.Time) (promised bool, highestBallot uint64, adopted []byte, ok bool) {
	type result struct {
		promised       bool
		acceptedBallot uint64
		acceptedValue  []byte
	}

	recvCh := make(chan result, len(l.acceptors))
	for _, a := range l.acceptors {
		a := a
		go func() {
			p, ab, av := a.Prepare(instanceID, ballot)
			recvCh <- result{p, ab, av}
		}()
	}

	timeout := boundedTimeout(phaseTimeout, deadline)
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	quorum := len(l.acceptors)/2 + 1
	received := 0
	promises := 0
	var bestBallot uint64
	var bestValue []byte

	for received < len(l.acceptors) {
		select {
		case r := <-recvCh:
			received++
			if r.promised {
				promises++
				if r.acceptedBallot > bestBallot {
					bestBallot = r.acceptedBallot
					bestValue = r.acceptedValue
				}
			} else if r.acceptedBallot > highestBallot {
				highestBallot = r.acceptedBallot
			}
			if promises >= quorum {
				return true, highestBallot, bestValue, true
			}
		case <-timer.C:
			return false, highestBallot, nil, promises >= quorum
		}
	}

	return promises >= quorum, highestBallot, bestValue, true
}

// acceptPhase broadcasts Accept(instanceID, ballot, value) and waits for
// a quorum to agree.
func (l *Loop) acceptPhase(instanceID, ballot uint64, value []byte, deadline time.Time) (accepted bool, ok bool) {
	recvCh := make(chan bool, len(l.acceptors))
	for _, a := range l.acceptors {
		a := a
		go func() {
			recvCh <- a.Accept(instanceID, ballot, value)
		}()
	}

	timeout := boundedTimeout(phaseTimeout, deadline)
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	quorum := len(l.acceptors)/2 + 1
	received := 0
	accepts := 0

	for received < len(l.acceptors) {
		select {
		case a := <-recvCh:
			received++
			if a {
				accepts++
				if accepts >= quorum {
					return true, true
				}
			}
		case <-timer.C:
			return accepts >= quorum, accepts >= quorum
		}
	}

	return accepts >= quorum, true
}

func boundedTimeout(base time.Duration, deadline time.Time) time.Duration {
	if deadline.IsZero() {
		return base
	}
	if remaining := time.Until(deadline); remaining < base {
		if remaining < 0 {
			return 0
		}
		return remaining
	}
	return base
}
