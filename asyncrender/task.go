// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package asyncrender

import (
	"sync/atomic"
	"time"

	"github.com/joeycumines/go-asyncrender/async"
	"github.com/joeycumines/go-asyncrender/daemon"
	"github.com/joeycumines/go-asyncrender/eventloop"
	"github.com/joeycumines/go-asyncrender/iterable"
)

// TaskState is the state of a [Task]. Every task ends in exactly one of
// the terminal states, [TaskResolved], [TaskCancelled], or [TaskFailed].
type TaskState int32

const (
	TaskQueued TaskState = iota
	TaskRunning
	TaskResolved
	TaskCancelled
	TaskFailed
)

// String returns the state name.
func (s TaskState) String() string {
	switch s {
	case TaskQueued:
		return "queued"
	case TaskRunning:
		return "running"
	case TaskResolved:
		return "resolved"
	case TaskCancelled:
		return "cancelled"
	case TaskFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Task renders one chunk, as a daemon task. It runs at most once, and never
// after its group is cancelled.
type Task struct {
	r       *Renderer
	opts    *iterateOptions
	render  RenderFunc
	handle  *async.Handle
	promise *eventloop.Promise
	resolve eventloop.ResolveFunc
	reject  eventloop.RejectFunc
	work    daemon.Task
	nodes   []Node
	chunk   iterable.Chunk
	group   async.Group
	step    int
	state   atomic.Int32
}

func (r *Renderer) newTask(opts *iterateOptions, render RenderFunc, chunk iterable.Chunk, step int) *Task {
	group := opts.group
	if opts.groupFunc != nil {
		group = opts.groupFunc(chunk)
	}
	t := &Task{
		r:      r,
		opts:   opts,
		render: render,
		chunk:  chunk,
		group:  group,
		step:   step,
	}
	t.promise, t.resolve, t.reject = eventloop.NewPromise(r.async.Host())
	t.work = daemon.Task{Weight: opts.weight, Fn: t.run}
	t.handle = r.async.Track(group, t.clear)
	return t
}

// State returns the current state.
func (t *Task) State() TaskState { return TaskState(t.state.Load()) }

// Group returns the cancellation group.
func (t *Task) Group() async.Group { return t.group }

// Chunk returns the chunk the task renders.
func (t *Task) Chunk() iterable.Chunk { return t.chunk }

// Promise returns the promise settled by the task, fulfilling with a
// *[Fragment].
func (t *Task) Promise() *eventloop.Promise { return t.promise }

// run is the daemon entry point, reporting whether the task finished
// synchronously.
func (t *Task) run() bool {
	if !t.state.CompareAndSwap(int32(TaskQueued), int32(TaskRunning)) {
		return true
	}

	nodes, err := t.safeRender()
	if err != nil {
		t.state.Store(int32(TaskFailed))
		t.handle.Done()
		t.fail(err)
		return true
	}
	t.nodes = nodes

	if !t.opts.useRAF {
		t.insert()
		return true
	}

	// insertion waits for a frame, cancelled with the group
	t.r.async.AnimationFrame(t.group).Then(
		func(eventloop.Result) (eventloop.Result, error) {
			t.insert()
			t.r.daemon.Release(&t.work)
			return nil, nil
		},
		func(err error) (eventloop.Result, error) {
			t.state.Store(int32(TaskCancelled))
			t.reject(err)
			t.r.daemon.Release(&t.work)
			return nil, nil
		},
	)
	return false
}

func (t *Task) safeRender() (nodes []Node, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = eventloop.PanicError{Value: r}
		}
	}()
	return t.render(t.chunk)
}

func (t *Task) fail(err error) {
	renderErr := &RenderError{Group: t.group, Step: t.step, Err: err}
	t.r.logLimited(t.group, func() {
		t.r.logger.Err().
			Str("group", string(t.group)).
			Int("step", t.step).
			Err(err).
			Log("asyncrender: render failed")
	})
	t.reject(renderErr)
}

// insert materializes the rendered nodes. The task's handle stays live,
// tracking them for cancellation.
func (t *Task) insert() {
	if !t.handle.Active() {
		// cleared between the frame and now
		t.state.Store(int32(TaskCancelled))
		t.reject(&async.CancelledError{Group: t.group})
		return
	}
	if t.opts.target != nil && len(t.nodes) != 0 {
		t.opts.target.Append(t.nodes...)
	}
	t.r.addRef(t.opts.ref, t.nodes)
	t.state.Store(int32(TaskResolved))
	t.resolve(&Fragment{
		Nodes: t.nodes,
		Group: t.group,
		Chunk: t.chunk,
		Step:  t.step,
	})
}

// clear handles cancellation of the task's group.
func (t *Task) clear(reason error) {
	if t.state.CompareAndSwap(int32(TaskQueued), int32(TaskCancelled)) {
		t.r.daemon.Remove(&t.work)
		t.reject(reason)
		return
	}
	if t.State() == TaskResolved {
		t.r.destroy(t.group, t.opts.destructor, t.nodes)
	}
}

func (r *Renderer) destroy(group async.Group, destructor Destructor, nodes []Node) {
	started := time.Now()
	for _, node := range nodes {
		if destructor != nil {
			handled, err := safeDestruct(destructor, node)
			if err != nil {
				err = &DestructorError{Group: group, Node: node, Err: err}
				r.logLimited(group, func() {
					r.logger.Err().
						Str("group", string(group)).
						Err(err).
						Log("asyncrender: destructor failed")
				})
			} else if handled {
				continue
			}
		}
		node.Detach()
	}
	r.logger.Trace().
		Str("group", string(group)).
		Int("nodes", len(nodes)).
		Dur("elapsed", time.Since(started)).
		Log("asyncrender: nodes destroyed")
}

func safeDestruct(destructor Destructor, node Node) (handled bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = eventloop.PanicError{Value: r}
		}
	}()
	return destructor(node, node.Children())
}
