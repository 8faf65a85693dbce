package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus is a Telemetry backed by github.com/prometheus/client_golang,
// registering one counter per named event in spec.md §6 plus two
// histograms for lock wait time and commit latency.
type Prometheus struct {
	submitted   prometheus.Counter
	commitOK    prometheus.Counter
	commitFail  prometheus.Counter
	conflict    prometheus.Counter
	lockTimeout prometheus.Counter
	lockReject  prometheus.Counter
	lockWait    prometheus.Histogram
	commitLat   prometheus.Histogram
}

// NewPrometheus registers its metrics against reg and returns the sink.
// Pass prometheus.DefaultRegisterer for process-global metrics.
func NewPrometheus(reg prometheus.Registerer) *Prometheus {
	p := &Prometheus{
		submitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "paxoscommit_submitted_total",
			Help: "Total number of submit calls accepted by the committer.",
		}),
		commitOK: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "paxoscommit_commit_ok_total",
			Help: "Total number of submits that reached a chosen value.",
		}),
		commitFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "paxoscommit_commit_fail_total",
			Help: "Total number of submits that returned a terminal, non-OK code.",
		}),
		conflict: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "paxoscommit_conflict_total",
			Help: "Total number of Conflict outcomes observed across all attempts.",
		}),
		lockTimeout: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "paxoscommit_lock_timeout_total",
			Help: "Total number of WaitLock acquisitions that timed out.",
		}),
		lockReject: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "paxoscommit_lock_reject_total",
			Help: "Total number of WaitLock admissions rejected outright.",
		}),
		lockWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "paxoscommit_lock_wait_seconds",
			Help:    "Time spent parked in WaitLock before acquiring.",
			Buckets: prometheus.DefBuckets,
		}),
		commitLat: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "paxoscommit_commit_latency_seconds",
			Help:    "Latency of the final, successful attempt of submits that returned OK.",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		p.submitted, p.commitOK, p.commitFail, p.conflict,
		p.lockTimeout, p.lockReject, p.lockWait, p.commitLat,
	)

	return p
}

func (p *Prometheus) Submitted() { p.submitted.Inc() }

func (p *Prometheus) CommitOK(latency time.Duration) {
	p.commitOK.Inc()
	p.commitLat.Observe(latency.Seconds())
}

func (p *Prometheus) CommitFail() { p.commitFail.Inc() }

func (p *Prometheus) Conflict() { p.conflict.Inc() }

func (p *Prometheus) LockTimeout() { p.lockTimeout.Inc() }

func (p *Prometheus) LockReject() { p.lockReject.Inc() }

func (p *Prometheus) LockOK(wait time.Duration) { p.lockWait.Observe(wait.Seconds()) }
