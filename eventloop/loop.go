// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package eventloop

import (
	"container/heap"
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/joeycumines/logiface"
)

// TimerID identifies a timer scheduled with [Loop.SetTimeout].
type TimerID uint64

// FrameID identifies a callback scheduled with [Loop.RequestAnimationFrame].
type FrameID uint64

// FrameFunc is an animation frame callback, receiving the frame timestamp.
type FrameFunc func(frameTime time.Time)

const (
	// taskBudget bounds the macrotasks run per tick, so timers and frames
	// are not starved by a flood of submissions.
	taskBudget = 1024

	// microtaskBudget bounds a single microtask drain; any remainder runs
	// after the next macrotask phase of the same tick.
	microtaskBudget = 1024

	// maxSleep caps a single idle wait.
	maxSleep = 10 * time.Second
)

// Loop is a single goroutine, cooperative event loop.
//
// All callbacks (tasks, microtasks, timers, animation frames, promise
// reactions) run on the goroutine that called [Loop.Run], one at a time.
// Scheduling methods are safe to call from any goroutine.
type Loop struct { // betteralign:ignore
	// Prevent copying
	_ [0]func()

	logger  *logiface.Logger[logiface.Event]
	metrics *Metrics
	state   *FastState

	// guarded by mu
	mu         sync.Mutex
	external   *ChunkedIngress
	microtasks *ChunkedIngress
	timers     timerHeap
	timerIndex map[TimerID]*timer
	frames     []*frame
	frameIndex map[FrameID]*frame
	nextTimer  TimerID
	nextFrame  FrameID
	lastFrame  time.Time

	frameInterval           time.Duration
	strictMicrotaskOrdering bool

	// wake has capacity 1, a pending value means "re-check the queues"
	wake     chan struct{}
	loopDone chan struct{}
	stopOnce sync.Once

	promisifyMu sync.Mutex
	promisifyWg sync.WaitGroup

	loopGoroutineID atomic.Uint64
	tickCount       uint64
	id              uint64

	batchBuf [taskBudget]func()
}

// timer represents a scheduled callback.
type timer struct {
	when  time.Time
	fn    func()
	id    TimerID
	index int
}

// timerHeap is a min-heap of timers, ordered by deadline then ID.
type timerHeap []*timer

func (h timerHeap) Len() int { return len(h) }
func (h timerHeap) Less(i, j int) bool {
	if h[i].when.Equal(h[j].when) {
		return h[i].id < h[j].id
	}
	return h[i].when.Before(h[j].when)
}
func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *timerHeap) Push(x any) {
	t := x.(*timer)
	t.index = len(*h)
	*h = append(*h, t)
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*h = old[:n-1]
	return t
}

type frame struct {
	fn        FrameFunc
	id        FrameID
	cancelled bool
}

var loopIDCounter atomic.Uint64

// New creates a new event loop. It does not start it, see [Loop.Run].
func New(opts ...LoopOption) (*Loop, error) {
	cfg, err := resolveLoopOptions(opts)
	if err != nil {
		return nil, err
	}

	l := &Loop{
		id:                      loopIDCounter.Add(1),
		logger:                  cfg.logger,
		state:                   NewFastState(),
		external:                NewChunkedIngress(),
		microtasks:              NewChunkedIngress(),
		timerIndex:              make(map[TimerID]*timer),
		frameIndex:              make(map[FrameID]*frame),
		frameInterval:           cfg.frameInterval,
		strictMicrotaskOrdering: cfg.strictMicrotaskOrdering,
		wake:                    make(chan struct{}, 1),
		loopDone:                make(chan struct{}),
	}
	if cfg.metricsEnabled {
		l.metrics = &Metrics{}
	}

	return l, nil
}

// Run runs the event loop on the calling goroutine, and blocks until it
// stops (via Shutdown(), Close(), or ctx cancellation).
func (l *Loop) Run(ctx context.Context) error {
	if l.isLoopThread() {
		return ErrReentrantRun
	}

	if !l.state.TryTransition(StateAwake, StateRunning) {
		if l.state.Load() == StateTerminated {
			return ErrLoopTerminated
		}
		return ErrLoopAlreadyRunning
	}

	defer close(l.loopDone)

	l.loopGoroutineID.Store(getGoroutineID())
	defer l.loopGoroutineID.Store(0)

	l.mu.Lock()
	l.lastFrame = time.Now()
	l.mu.Unlock()

	l.logState("eventloop: running")

	for {
		if err := ctx.Err(); err != nil {
			l.beginTermination()
			l.shutdown()
			return err
		}

		if l.state.IsStopping() {
			l.shutdown()
			return nil
		}

		l.tick()
		l.sleep(ctx)
	}
}

// Shutdown gracefully shuts down the event loop, waiting for queued tasks
// and microtasks to drain. Pending timers and animation frames are dropped.
func (l *Loop) Shutdown(ctx context.Context) error {
	var result error
	l.stopOnce.Do(func() {
		result = l.shutdownImpl(ctx)
	})
	if result == nil && l.state.Load() != StateTerminated {
		return ErrLoopTerminated
	}
	return result
}

func (l *Loop) shutdownImpl(ctx context.Context) error {
	if l.state.TryTransition(StateAwake, StateTerminated) {
		return nil
	}
	if !l.beginTermination() {
		return ErrLoopTerminated
	}

	select {
	case <-l.loopDone:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close immediately requests termination, without waiting.
func (l *Loop) Close() error {
	if l.state.TryTransition(StateAwake, StateTerminated) {
		return nil
	}
	if !l.beginTermination() {
		return ErrLoopTerminated
	}
	return nil
}

// Done returns a channel that is closed once Run has returned.
func (l *Loop) Done() <-chan struct{} {
	return l.loopDone
}

// beginTermination moves a running or sleeping loop to StateTerminating,
// returning false if it was already stopping.
func (l *Loop) beginTermination() bool {
	for {
		current := l.state.Load()
		if current == StateTerminating || current == StateTerminated {
			return false
		}
		if l.state.TryTransition(current, StateTerminating) {
			l.signal()
			return true
		}
	}
}

// shutdown drains remaining work, then marks the loop terminated.
func (l *Loop) shutdown() {
	// bounded wait for Promisify goroutines, so their settlements land
	// (the state is already stopping, so no further Add calls happen)
	l.promisifyMu.Lock()
	l.promisifyMu.Unlock() //nolint:staticcheck // barrier
	promisifyDone := make(chan struct{})
	go func() {
		l.promisifyWg.Wait()
		close(promisifyDone)
	}()
	select {
	case <-promisifyDone:
	case <-time.After(100 * time.Millisecond):
	}

	for l.drainForShutdown() {
	}

	l.mu.Lock()
	l.state.Store(StateTerminated)
	l.timers = nil
	clear(l.timerIndex)
	l.frames = nil
	clear(l.frameIndex)
	l.mu.Unlock()

	// anything that raced in before the state store still runs
	for l.drainForShutdown() {
	}

	l.logState("eventloop: terminated")
}

func (l *Loop) drainForShutdown() bool {
	drained := false
	for {
		l.mu.Lock()
		fn, ok := l.external.Pop()
		if !ok {
			fn, ok = l.microtasks.Pop()
		}
		l.mu.Unlock()
		if !ok {
			return drained
		}
		l.safeExecute("shutdown", fn)
		drained = true
	}
}

// tick is a single iteration of the event loop.
func (l *Loop) tick() {
	l.tickCount++
	if l.metrics != nil {
		l.metrics.Ticks.Add(1)
	}

	now := time.Now()

	l.runTimers(now)
	l.runFrames(now)
	l.processExternal()
	l.drainMicrotasks()
}

// runTimers executes all timers due at now, in deadline order.
func (l *Loop) runTimers(now time.Time) {
	for {
		l.mu.Lock()
		if len(l.timers) == 0 || l.timers[0].when.After(now) {
			l.mu.Unlock()
			return
		}
		t := heap.Pop(&l.timers).(*timer)
		delete(l.timerIndex, t.id)
		l.mu.Unlock()

		if l.metrics != nil {
			l.metrics.Timers.Add(1)
		}
		l.safeExecute("timer", t.fn)
		if l.strictMicrotaskOrdering {
			l.drainMicrotasks()
		}
	}
}

// runFrames runs the batch of animation frame callbacks that were pending
// when the frame started, if the frame interval has elapsed. Callbacks
// requested from within a frame run in the next frame.
func (l *Loop) runFrames(now time.Time) {
	l.mu.Lock()
	if len(l.frames) == 0 || now.Sub(l.lastFrame) < l.frameInterval {
		l.mu.Unlock()
		return
	}
	batch := l.frames
	l.frames = nil
	l.lastFrame = now
	for _, f := range batch {
		delete(l.frameIndex, f.id)
	}
	l.mu.Unlock()

	for _, f := range batch {
		l.mu.Lock()
		cancelled := f.cancelled
		l.mu.Unlock()
		if cancelled {
			continue
		}
		if l.metrics != nil {
			l.metrics.Frames.Add(1)
		}
		fn := f.fn
		l.safeExecute("frame", func() { fn(now) })
		if l.strictMicrotaskOrdering {
			l.drainMicrotasks()
		}
	}
}

// processExternal runs up to taskBudget submitted tasks.
func (l *Loop) processExternal() {
	l.mu.Lock()
	n := l.external.PopBatch(l.batchBuf[:])
	l.mu.Unlock()

	for i := 0; i < n; i++ {
		fn := l.batchBuf[i]
		l.batchBuf[i] = nil
		if l.metrics != nil {
			l.metrics.Tasks.Add(1)
		}
		l.safeExecute("task", fn)
		if l.strictMicrotaskOrdering {
			l.drainMicrotasks()
		}
	}
}

// drainMicrotasks runs queued microtasks, including those queued while
// draining, up to microtaskBudget.
func (l *Loop) drainMicrotasks() {
	for i := 0; i < microtaskBudget; i++ {
		l.mu.Lock()
		fn, ok := l.microtasks.Pop()
		l.mu.Unlock()
		if !ok {
			return
		}
		if l.metrics != nil {
			l.metrics.Microtasks.Add(1)
		}
		l.safeExecute("microtask", fn)
	}
}

// sleep blocks until there is work to do, the next deadline, or ctx is done.
func (l *Loop) sleep(ctx context.Context) {
	if !l.state.TryTransition(StateRunning, StateSleeping) {
		return
	}
	defer l.state.TryTransition(StateSleeping, StateRunning)

	l.mu.Lock()
	if l.external.Length() > 0 || l.microtasks.Length() > 0 {
		l.mu.Unlock()
		return
	}
	timeout := l.calculateTimeout(time.Now())
	l.mu.Unlock()

	if timeout <= 0 {
		return
	}

	t := time.NewTimer(timeout)
	defer t.Stop()

	select {
	case <-l.wake:
	case <-t.C:
	case <-ctx.Done():
	}
}

// calculateTimeout determines how long to idle. Caller must hold mu.
func (l *Loop) calculateTimeout(now time.Time) time.Duration {
	timeout := maxSleep
	if len(l.timers) > 0 {
		timeout = min(timeout, l.timers[0].when.Sub(now))
	}
	if len(l.frames) > 0 {
		timeout = min(timeout, l.lastFrame.Add(l.frameInterval).Sub(now))
	}
	return timeout
}

// signal wakes the loop if it is (or is about to be) idle.
func (l *Loop) signal() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Submit queues a task (macrotask), to run on the loop goroutine.
func (l *Loop) Submit(fn func()) error {
	if fn == nil {
		return nil
	}
	l.mu.Lock()
	if l.state.Load() == StateTerminated {
		l.mu.Unlock()
		return ErrLoopTerminated
	}
	l.external.Push(fn)
	l.mu.Unlock()
	l.signal()
	return nil
}

// QueueMicrotask queues fn to run after the current callback, before any
// further task, timer or frame callback.
func (l *Loop) QueueMicrotask(fn func()) error {
	if fn == nil {
		return nil
	}
	l.mu.Lock()
	if l.state.Load() == StateTerminated {
		l.mu.Unlock()
		return ErrLoopTerminated
	}
	l.microtasks.Push(fn)
	l.mu.Unlock()
	l.signal()
	return nil
}

// SetTimeout schedules fn to run once, after delay. Negative delays are
// treated as zero, in which case fn runs on the next tick.
func (l *Loop) SetTimeout(fn func(), delay time.Duration) (TimerID, error) {
	if fn == nil {
		return 0, nil
	}
	if delay < 0 {
		delay = 0
	}

	l.mu.Lock()
	if l.state.Load() == StateTerminated {
		l.mu.Unlock()
		return 0, ErrLoopTerminated
	}
	l.nextTimer++
	t := &timer{
		id:   l.nextTimer,
		when: time.Now().Add(delay),
		fn:   fn,
	}
	heap.Push(&l.timers, t)
	l.timerIndex[t.id] = t
	l.mu.Unlock()

	l.signal()
	return t.id, nil
}

// ClearTimeout cancels a timer, returning [ErrTimerNotFound] if it already
// fired or was cancelled.
func (l *Loop) ClearTimeout(id TimerID) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	t, ok := l.timerIndex[id]
	if !ok {
		return ErrTimerNotFound
	}
	delete(l.timerIndex, id)
	if t.index >= 0 {
		heap.Remove(&l.timers, t.index)
	}
	return nil
}

// RequestAnimationFrame schedules fn to run in the next animation frame.
// Frames are batched: all callbacks pending at the start of a frame run
// together, with the same timestamp.
func (l *Loop) RequestAnimationFrame(fn FrameFunc) (FrameID, error) {
	if fn == nil {
		return 0, nil
	}
	l.mu.Lock()
	if l.state.Load() == StateTerminated {
		l.mu.Unlock()
		return 0, ErrLoopTerminated
	}
	l.nextFrame++
	f := &frame{id: l.nextFrame, fn: fn}
	l.frames = append(l.frames, f)
	l.frameIndex[f.id] = f
	l.mu.Unlock()

	l.signal()
	return f.id, nil
}

// CancelAnimationFrame cancels a pending animation frame callback.
func (l *Loop) CancelAnimationFrame(id FrameID) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	f, ok := l.frameIndex[id]
	if !ok {
		return ErrFrameNotFound
	}
	delete(l.frameIndex, id)
	f.cancelled = true
	for i, pending := range l.frames {
		if pending == f {
			l.frames = append(l.frames[:i], l.frames[i+1:]...)
			break
		}
	}
	return nil
}

// State returns the current loop state.
func (l *Loop) State() LoopState {
	return l.state.Load()
}

// ID returns the process-unique identifier of the loop.
func (l *Loop) ID() uint64 {
	return l.id
}

// IsLoopThread reports whether the caller is running on the loop goroutine.
func (l *Loop) IsLoopThread() bool {
	return l.isLoopThread()
}

// safeExecute executes fn with panic recovery.
func (l *Loop) safeExecute(category string, fn func()) {
	if fn == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			if l.metrics != nil {
				l.metrics.Panics.Add(1)
			}
			l.logPanic(category, r)
		}
	}()
	fn()
}

func (l *Loop) isLoopThread() bool {
	loopID := l.loopGoroutineID.Load()
	if loopID == 0 {
		return false
	}
	return getGoroutineID() == loopID
}

// getGoroutineID returns the current goroutine's ID.
func getGoroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	var id uint64
	for i := len("goroutine "); i < n; i++ {
		if buf[i] >= '0' && buf[i] <= '9' {
			id = id*10 + uint64(buf[i]-'0')
		} else {
			break
		}
	}
	return id
}
