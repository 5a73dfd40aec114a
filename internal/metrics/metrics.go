// Package metrics provides the Recorder interface, a noop implementation,
// and a Prometheus-backed recorder.
package metrics

import "time"

// Recorder is the interface for recording operational metrics.
type Recorder interface {
	RecordHit(tier string)
	RecordMiss(tier string)
	RecordLatency(component, op string, d time.Duration)
	RecordError(component, op string)
	RecordBreakerState(state string)
}

// Noop is a Recorder that discards all data.
type Noop struct{}

func (Noop) RecordHit(tier string)                             {}
func (Noop) RecordMiss(tier string)                            {}
func (Noop) RecordLatency(component, op string, d time.Duration) {}
func (Noop) RecordError(component, op string)                  {}
func (Noop) RecordBreakerState(state string)                   {}
