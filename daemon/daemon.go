// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package daemon

import (
	"container/list"
	"sync"
	"time"

	"github.com/joeycumines/go-asyncrender/eventloop"
	"github.com/joeycumines/logiface"
)

// Host is the subset of [*eventloop.Loop] a [Daemon] schedules drains on.
type Host interface {
	eventloop.Scheduler
	SetTimeout(fn func(), delay time.Duration) (eventloop.TimerID, error)
	RequestAnimationFrame(fn eventloop.FrameFunc) (eventloop.FrameID, error)
}

var _ Host = (*eventloop.Loop)(nil)

// Task is a unit of work, identified by pointer. Tasks with a non-positive
// Weight are free.
type Task struct {
	// Fn performs the work, returning false if it finishes asynchronously,
	// in which case the task's weight stays charged, against every tick,
	// until [Daemon.Release].
	Fn     func() bool
	Weight int
}

func (t *Task) weight() int {
	return max(t.Weight, 0)
}

// Daemon executes queued tasks in FIFO order, a bounded total weight per
// tick, yielding to the host between ticks. A single task heavier than the
// budget runs alone, once nothing else is charged.
//
// The queue is a set: a task is queued at most once, and removal is by
// identity. Enqueue and Remove may be called at any time, including from
// within a running task; the drain re-reads the front of the queue after
// every task. Methods are safe to call from any goroutine, though tasks
// always run on the host.
type Daemon struct {
	host      Host
	logger    *logiface.Logger[logiface.Event]
	queue     *list.List
	index     map[*Task]*list.Element
	inflight  map[*Task]int
	metrics   *metrics
	mu        sync.Mutex
	charged   int
	budget    int
	mode      TickMode
	scheduled bool
	deferred  bool
	draining  bool
}

// New constructs a Daemon, scheduling drains on host.
func New(host Host, opts ...Option) (*Daemon, error) {
	if host == nil {
		panic(`daemon: nil host`)
	}
	cfg, err := resolveOptions(opts)
	if err != nil {
		return nil, err
	}
	logger := cfg.logger
	if logger == nil {
		if h, ok := host.(interface {
			Logger() *logiface.Logger[logiface.Event]
		}); ok {
			logger = h.Logger()
		}
	}
	return &Daemon{
		host:     host,
		logger:   logger.Clone().Str("component", "daemon").Logger(),
		queue:    list.New(),
		index:    make(map[*Task]*list.Element),
		inflight: make(map[*Task]int),
		metrics:  newMetrics(),
		budget:   cfg.budget,
		mode:     cfg.mode,
	}, nil
}

// Budget returns the total task weight executed per tick.
func (d *Daemon) Budget() int {
	return d.budget
}

// Enqueue appends t to the queue, scheduling a drain. It returns false if t
// is nil, or already queued.
func (d *Daemon) Enqueue(t *Task) bool {
	if t == nil || t.Fn == nil {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.index[t]; ok {
		return false
	}
	d.index[t] = d.queue.PushBack(t)
	d.scheduleLocked()
	return true
}

// Remove dequeues t, which then never runs. It returns false if t was not
// queued (it may have already run).
func (d *Daemon) Remove(t *Task) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	elem, ok := d.index[t]
	if !ok {
		return false
	}
	d.queue.Remove(elem)
	delete(d.index, t)
	d.metrics.removed++
	return true
}

// Queued reports whether t is waiting to run.
func (d *Daemon) Queued(t *Task) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.index[t]
	return ok
}

// Release uncharges the weight of a task that finished asynchronously. It
// returns false if t was not charged.
func (d *Daemon) Release(t *Task) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	w, ok := d.inflight[t]
	if !ok {
		return false
	}
	delete(d.inflight, t)
	d.charged -= w
	if d.queue.Len() != 0 {
		d.scheduleLocked()
	}
	return true
}

// Len returns the number of queued tasks.
func (d *Daemon) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.queue.Len()
}

// InFlight returns the total weight of tasks that have yet to be released.
func (d *Daemon) InFlight() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.charged
}

// RestartNow drains immediately, on the calling goroutine, which should be
// the host's. Called from within a drain (i.e. from a task), it behaves
// like [Daemon.RestartDeferred].
func (d *Daemon) RestartNow() {
	d.mu.Lock()
	draining := d.draining
	d.mu.Unlock()
	if draining {
		d.RestartDeferred()
		return
	}
	d.drain()
}

// RestartDeferred drains on the next microtask. Calls made before it runs
// are coalesced.
func (d *Daemon) RestartDeferred() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.deferred {
		return
	}
	if err := d.host.QueueMicrotask(func() {
		d.mu.Lock()
		d.deferred = false
		d.mu.Unlock()
		d.drain()
	}); err != nil {
		d.logger.Warning().Err(err).Log("daemon: failed to schedule deferred drain")
		return
	}
	d.deferred = true
}

// scheduleLocked schedules a drain on the next tick, per the tick mode,
// unless one is already scheduled.
func (d *Daemon) scheduleLocked() {
	if d.scheduled {
		return
	}
	var err error
	switch d.mode {
	case TickTimeout:
		_, err = d.host.SetTimeout(d.tick, 0)
	case TickMicrotask:
		err = d.host.QueueMicrotask(d.tick)
	default:
		_, err = d.host.RequestAnimationFrame(func(time.Time) { d.tick() })
	}
	if err != nil {
		d.logger.Warning().
			Err(err).
			Stringer("mode", d.mode).
			Log("daemon: failed to schedule tick")
		return
	}
	d.scheduled = true
}

func (d *Daemon) tick() {
	d.mu.Lock()
	d.scheduled = false
	d.mu.Unlock()
	d.drain()
}

// drain runs tasks from the front of the queue until it is empty, or the
// next task does not fit the budget. Only the first task of a tick may
// exceed it, and only if no weight is in flight, in which case it runs
// alone.
func (d *Daemon) drain() {
	d.mu.Lock()
	if d.draining {
		d.mu.Unlock()
		return
	}
	d.draining = true
	started := time.Now()
	var (
		spent    int // synchronous weight, this tick
		weight   int
		executed int
		blocked  bool
	)
	for {
		front := d.queue.Front()
		if front == nil {
			break
		}
		t := front.Value.(*Task)
		w := t.weight()
		if alone := executed == 0 && d.charged == 0; !alone && d.charged+spent+w > d.budget {
			blocked = true
			break
		}
		d.queue.Remove(front)
		delete(d.index, t)
		spent += w
		weight += w
		d.mu.Unlock()

		done := d.run(t)

		d.mu.Lock()
		executed++
		if !done && w != 0 {
			d.inflight[t] = w
			d.charged += w
			spent -= w
		}
	}
	d.draining = false
	d.metrics.observe(time.Since(started), weight, executed, blocked)
	remaining := d.queue.Len()
	// a tick that ran nothing is waiting on Release
	if blocked && executed != 0 {
		d.scheduleLocked()
	}
	d.mu.Unlock()

	if executed != 0 {
		d.logger.Trace().
			Int("executed", executed).
			Int("weight", weight).
			Int("remaining", remaining).
			Log("daemon: drained")
	}
}

// run calls t.Fn, treating a panic as completion.
func (d *Daemon) run(t *Task) (done bool) {
	defer func() {
		if r := recover(); r != nil {
			d.mu.Lock()
			d.metrics.panics++
			d.mu.Unlock()
			d.logger.Err().
				Err(eventloop.PanicError{Value: r}).
				Int("weight", t.Weight).
				Log("daemon: task panicked")
			done = true
		}
	}()
	return t.Fn()
}
