// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package daemon

import (
	"time"
)

// Metrics is a snapshot of a [Daemon]'s counters and per-tick statistics.
// Durations and weights are streaming estimates, over all ticks that ran at
// least one task.
type Metrics struct {
	// Ticks is the number of drains that ran at least one task.
	Ticks uint64
	// Executed is the number of tasks run.
	Executed uint64
	// Removed is the number of tasks dequeued without running.
	Removed uint64
	// Exhausted is the number of drains that stopped with tasks remaining,
	// due to the budget.
	Exhausted uint64
	// Panics is the number of tasks that panicked.
	Panics uint64

	DrainP50  time.Duration
	DrainP90  time.Duration
	DrainP99  time.Duration
	DrainMax  time.Duration
	DrainMean time.Duration

	WeightP50  float64
	WeightP90  float64
	WeightMax  float64
	WeightMean float64
}

type metrics struct {
	drain     *summary
	weight    *summary
	ticks     uint64
	executed  uint64
	removed   uint64
	exhausted uint64
	panics    uint64
}

func newMetrics() *metrics {
	return &metrics{
		drain:  newSummary(0.5, 0.9, 0.99),
		weight: newSummary(0.5, 0.9),
	}
}

func (m *metrics) observe(elapsed time.Duration, weight, executed int, exhausted bool) {
	if exhausted {
		m.exhausted++
	}
	if executed == 0 {
		return
	}
	m.ticks++
	m.executed += uint64(executed)
	m.drain.observe(float64(elapsed))
	m.weight.observe(float64(weight))
}

// Metrics returns a snapshot of the daemon's metrics.
func (d *Daemon) Metrics() Metrics {
	d.mu.Lock()
	defer d.mu.Unlock()
	m := d.metrics
	return Metrics{
		Ticks:      m.ticks,
		Executed:   m.executed,
		Removed:    m.removed,
		Exhausted:  m.exhausted,
		Panics:     m.panics,
		DrainP50:   time.Duration(m.drain.quantile(0)),
		DrainP90:   time.Duration(m.drain.quantile(1)),
		DrainP99:   time.Duration(m.drain.quantile(2)),
		DrainMax:   time.Duration(m.drain.maximum()),
		DrainMean:  time.Duration(m.drain.mean()),
		WeightP50:  m.weight.quantile(0),
		WeightP90:  m.weight.quantile(1),
		WeightMax:  m.weight.maximum(),
		WeightMean: m.weight.mean(),
	}
}
