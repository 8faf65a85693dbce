// Package admission implements WaitLock, the bounded-concurrency mutual
// exclusion primitive with adaptive overload rejection that guards the
// commit path's single commit slot.
package admission

import (
	"math/rand"
	"time"

	logging "github.com/op/go-logging"

	"github.com/bdeggleston/paxoscommit/internal/corelock"
)

var logger = logging.MustGetLogger("admission")

// WINDOW is the number of acquisitions averaged before the reject rate is
// re-evaluated. Recommended value from the design: 250.
const WINDOW = 250

const maxRejectRate = 98

// WaitLock is an admission gate protecting a single logical resource. It
// caps the number of parked waiters and, once enabled, randomly rejects a
// fraction of admissions when the rolling average acquisition latency
// exceeds a configured threshold.
//
// WaitLock is exclusively owned by a single Committer; it is not meant to
// be shared across unrelated callers.
type WaitLock struct {
	lock *corelock.SerialLock
	rng  *rand.Rand

	holding bool
	waiting int

	maxWaiting      int
	waitThresholdMS int
	rejectRate      int

	sumMS   int
	count   int
	avgMS   int
}

// New returns a WaitLock with admission disabled (max_waiting = -1,
// wait_threshold_ms = -1) and a per-instance RNG seeded from seed, so
// shedding decisions are reproducible in tests without relying on any
// global pseudorandom state.
func New(seed int64) *WaitLock {
	return &WaitLock{
		lock:            corelock.New(),
		rng:             rand.New(rand.NewSource(seed)),
		maxWaiting:      -1,
		waitThresholdMS: -1,
	}
}

// SetMaxWaiting caps the number of parked waiters. n = -1 removes the cap.
// Safe to call concurrently with Acquire; the new value is observed on the
// next admission check.
func (w *WaitLock) SetMaxWaiting(n int) {
	w.lock.Enter()
	w.maxWaiting = n
	w.lock.Leave()
}

// SetWaitThreshold enables adaptive shedding once the rolling average
// acquisition time exceeds ms. ms = -1 disables shedding and holds
// reject_rate at its last value until re-enabled.
func (w *WaitLock) SetWaitThreshold(ms int) {
	w.lock.Enter()
	w.waitThresholdMS = ms
	w.lock.Leave()
}

// canAdmitLocked is the admission check of design §4.2. Must be called
// while holding the lock.
func (w *WaitLock) canAdmitLocked() bool {
	if w.maxWaiting != -1 && w.waiting >= w.maxWaiting {
		return false
	}
	if w.waitThresholdMS == -1 {
		return true
	}
	return w.rng.Intn(100) >= w.rejectRate
}

// refreshRejectRateLocked feeds one observed wait time into the rolling
// window and, on window close, nudges reject_rate toward the target
// latency. Must be called while holding the lock.
func (w *WaitLock) refreshRejectRateLocked(waitMS int) {
	if w.waitThresholdMS == -1 {
		return
	}

	w.sumMS += waitMS
	w.count++
	if w.count < WINDOW {
		return
	}

	w.avgMS = w.sumMS / w.count
	w.sumMS = 0
	w.count = 0

	if w.avgMS > w.waitThresholdMS {
		if w.rejectRate != maxRejectRate {
			w.rejectRate = min(w.rejectRate+3, maxRejectRate)
		}
	} else if w.rejectRate != 0 {
		w.rejectRate = max(w.rejectRate-3, 0)
	}
}

// Acquire parks the caller until the resource becomes available or
// timeout elapses. timeout < 0 waits indefinitely (re-parking in <=1s
// slices so shutdown stays responsive). It returns ok=true with
// waitMS = time spent parked on success; ok=false with waitMS=0 if
// admission was rejected outright (distinguishable from a timeout, whose
// waitMS is > 0 except in the degenerate case the clock does not advance).
func (w *WaitLock) Acquire(timeout time.Duration) (ok bool, waitMS time.Duration) {
	begin := time.Now()

	w.lock.Enter()
	if !w.canAdmitLocked() {
		w.lock.Leave()
		logger.Debug("reject, reject rate %d", w.rejectRate)
		return false, 0
	}

	w.waiting++
	got := true
	for w.holding {
		if timeout < 0 {
			w.lock.Wait(time.Second)
			continue
		}
		remaining := timeout - time.Since(begin)
		if remaining <= 0 {
			got = false
			break
		}
		if !w.lock.Wait(remaining) {
			if time.Since(begin) >= timeout {
				got = false
				break
			}
		}
	}
	w.waiting--

	elapsed := time.Since(begin)
	if elapsed < 0 {
		elapsed = 0
	}
	w.refreshRejectRateLocked(int(elapsed.Milliseconds()))

	if got {
		w.holding = true
	}
	w.lock.Leave()

	return got, elapsed
}

// Release clears holding and wakes every parked waiter; exactly one of
// them will win the next admitted loop iteration, the rest re-park. This
// is the only operation permitted to clear holding.
func (w *WaitLock) Release() {
	w.lock.Enter()
	w.holding = false
	w.lock.WakeAll()
	w.lock.Leave()
}

// Stats is a best-effort telemetry read of the current waiter count,
// rolling average wait time, and reject rate.
func (w *WaitLock) Stats() (waiting, avgMS, rejectRate int) {
	w.lock.Enter()
	defer w.lock.Leave()
	return w.waiting, w.avgMS, w.rejectRate
}
