// Package telemetry implements the concrete Telemetry sinks used by the
// commit path: a no-op default and a Prometheus-backed collector.
package telemetry

import "time"

// Nop is the default Telemetry: every call is a no-op, satisfying the
// requirement that a missing telemetry sink never alter behavior.
type Nop struct{}

func (Nop) Submitted()             {}
func (Nop) CommitOK(time.Duration) {}
func (Nop) CommitFail()            {}
func (Nop) Conflict()              {}
func (Nop) LockTimeout()           {}
func (Nop) LockReject()            {}
func (Nop) LockOK(time.Duration)   {}
