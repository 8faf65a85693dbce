// Package paxoscommit wires SerialLock, WaitLock, MemoryCommitContext,
// SMRegistry, PaxosLoop, and Committer into a runnable commit path, and
// exposes the Options surface used to configure it.
package paxoscommit

import (
	"errors"

	"github.com/BurntSushi/toml"

	"github.com/bdeggleston/paxoscommit/internal/paxoscore"
	"github.com/bdeggleston/paxoscommit/internal/telemetry"
)

// Options configures a Committer's admission and retry behavior, its
// peer count for the built-in PaxosLoop, and its telemetry sink. It is
// built with functional options, following the Options-struct convention
// PhxPaxos itself uses for process configuration.
type Options struct {
	// TimeoutMS is the per-call deadline handed to Committer.SetTimeout.
	// -1 waits forever.
	TimeoutMS int
	// MaxHoldThreads caps parked WaitLock waiters. -1 removes the cap.
	MaxHoldThreads int
	// ProposeWaitThresholdMS enables adaptive load shedding once the
	// rolling average wait time exceeds this many milliseconds. -1
	// disables it.
	ProposeWaitThresholdMS int
	// Peers is the number of in-memory acceptors PaxosLoop proposes to.
	// Must be at least 1.
	Peers int
	// WaitLockSeed seeds the owned WaitLock's RNG. Two Committers built
	// with the same seed reject in lockstep under identical load, which
	// is useful for deterministic tests; production callers should pass
	// a value that varies per process.
	WaitLockSeed int64
	// Telemetry receives best-effort counters. It defaults to a no-op
	// sink and must not be nil (WithTelemetry rejects nil); behavior is
	// identical with the no-op sink or a real one.
	Telemetry paxoscore.Telemetry
}

// Option mutates an Options being built. An Option returning a non-nil
// error aborts NewCommitter before anything is constructed.
type Option func(*Options) error

func defaultOptions() Options {
	return Options{
		TimeoutMS:              -1,
		MaxHoldThreads:         -1,
		ProposeWaitThresholdMS: -1,
		Peers:                  3,
		WaitLockSeed:           1,
		Telemetry:              telemetry.Nop{},
	}
}

// WithTimeout sets the per-call deadline in milliseconds. -1 waits forever.
func WithTimeout(ms int) Option {
	return func(o *Options) error {
		o.TimeoutMS = ms
		return nil
	}
}

// WithMaxHoldThreads caps parked WaitLock waiters. -1 removes the cap.
func WithMaxHoldThreads(n int) Option {
	return func(o *Options) error {
		o.MaxHoldThreads = n
		return nil
	}
}

// WithProposeWaitThreshold enables adaptive load shedding once the
// rolling average wait time exceeds ms milliseconds. -1 disables it.
func WithProposeWaitThreshold(ms int) Option {
	return func(o *Options) error {
		o.ProposeWaitThresholdMS = ms
		return nil
	}
}

// WithPeers sets the number of in-memory acceptors PaxosLoop proposes to.
func WithPeers(n int) Option {
	return func(o *Options) error {
		if n < 1 {
			return errors.New("paxoscommit: peers must be at least 1")
		}
		o.Peers = n
		return nil
	}
}

// WithWaitLockSeed seeds the owned WaitLock's RNG.
func WithWaitLockSeed(seed int64) Option {
	return func(o *Options) error {
		o.WaitLockSeed = seed
		return nil
	}
}

// WithTelemetry installs a telemetry sink. Passing nil is rejected; use
// WithTelemetry(telemetry.Nop{}) (the default) to explicitly disable it.
func WithTelemetry(t paxoscore.Telemetry) Option {
	return func(o *Options) error {
		if t == nil {
			return errors.New("paxoscommit: telemetry must not be nil")
		}
		o.Telemetry = t
		return nil
	}
}

// fileOptions is the TOML-decodable shape of on-disk configuration; it
// omits Telemetry, which has no file representation.
type fileOptions struct {
	TimeoutMS              *int   `toml:"timeout_ms"`
	MaxHoldThreads         *int   `toml:"max_hold_threads"`
	ProposeWaitThresholdMS *int   `toml:"propose_wait_threshold_ms"`
	Peers                  *int   `toml:"peers"`
	WaitLockSeed           *int64 `toml:"wait_lock_seed"`
}

// LoadOptions decodes a TOML file at path into an Option that overrides
// only the fields present in the file, leaving unset fields at whatever
// the defaults or earlier options already established. Unknown keys in
// the file are rejected.
func LoadOptions(path string) (Option, error) {
	var fo fileOptions
	meta, err := toml.DecodeFile(path, &fo)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, errors.New("paxoscommit: unknown key in config file: " + undecoded[0].String())
	}

	return func(o *Options) error {
		if fo.TimeoutMS != nil {
			o.TimeoutMS = *fo.TimeoutMS
		}
		if fo.MaxHoldThreads != nil {
			o.MaxHoldThreads = *fo.MaxHoldThreads
		}
		if fo.ProposeWaitThresholdMS != nil {
			o.ProposeWaitThresholdMS = *fo.ProposeWaitThresholdMS
		}
		if fo.Peers != nil {
			if *fo.Peers < 1 {
				return errors.New("paxoscommit: peers must be at least 1")
			}
			o.Peers = *fo.Peers
		}
		if fo.WaitLockSeed != nil {
			o.WaitLockSeed = *fo.WaitLockSeed
		}
		return nil
	}, nil
}
