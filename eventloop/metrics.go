// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package eventloop

import (
	"sync/atomic"
)

// Metrics holds runtime counters for a Loop, enabled via WithMetrics.
// All fields are updated atomically and may be read from any goroutine.
type Metrics struct {
	Ticks      atomic.Uint64
	Tasks      atomic.Uint64
	Microtasks atomic.Uint64
	Timers     atomic.Uint64
	Frames     atomic.Uint64
	Panics     atomic.Uint64
}

// MetricsSnapshot is a point-in-time copy of [Metrics].
type MetricsSnapshot struct {
	Ticks      uint64
	Tasks      uint64
	Microtasks uint64
	Timers     uint64
	Frames     uint64
	Panics     uint64
}

// Metrics returns a snapshot of the loop's counters, or false if metrics
// were not enabled.
func (l *Loop) Metrics() (MetricsSnapshot, bool) {
	if l.metrics == nil {
		return MetricsSnapshot{}, false
	}
	return MetricsSnapshot{
		Ticks:      l.metrics.Ticks.Load(),
		Tasks:      l.metrics.Tasks.Load(),
		Microtasks: l.metrics.Microtasks.Load(),
		Timers:     l.metrics.Timers.Load(),
		Frames:     l.metrics.Frames.Load(),
		Panics:     l.metrics.Panics.Load(),
	}, true
}
