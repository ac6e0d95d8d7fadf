// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package iterable

import (
	"github.com/joeycumines/go-asyncrender/eventloop"
)

// State is the state of a [Descriptor].
type State int

const (
	// StateIdle indicates the descriptor is between pulls.
	StateIdle State = iota
	// StatePullingSync indicates a synchronous pull is in progress.
	StatePullingSync
	// StateAwaitingAsync indicates the descriptor is waiting on a promise
	// (a pending source, an async pull, or a pending filter result).
	StateAwaitingAsync
	// StateDone indicates the source is exhausted (or failed).
	StateDone
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePullingSync:
		return "pulling"
	case StateAwaitingAsync:
		return "awaiting"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// Chunk is the result of one pull.
type Chunk struct {
	// Elements are the accepted elements, in source order.
	Elements []any
	// Index is the ordinal of the chunk, within the session.
	Index int
	// ReadIndex is the cursor position in the original (unfiltered)
	// sequence, after this pull, counting skipped elements.
	ReadIndex int
	// ReadTotal is len(Elements).
	ReadTotal int
	// Done indicates the source is exhausted. A done chunk may be short, or
	// empty.
	Done bool
}

// DescriptorOption configures a [Descriptor].
type DescriptorOption interface {
	applyDescriptor(*descriptorOptions)
}

type descriptorOptions struct {
	sched    eventloop.Scheduler
	filter   Filter
	start    int
	perChunk int
}

type descriptorOptionFunc func(*descriptorOptions)

func (f descriptorOptionFunc) applyDescriptor(opts *descriptorOptions) { f(opts) }

// WithStart skips the first n elements, without filtering them.
func WithStart(n int) DescriptorOption {
	return descriptorOptionFunc(func(opts *descriptorOptions) {
		opts.start = max(n, 0)
	})
}

// WithPerChunk sets the maximum number of elements per chunk, default 1.
// Values less than 1 are treated as 1.
func WithPerChunk(n int) DescriptorOption {
	return descriptorOptionFunc(func(opts *descriptorOptions) {
		opts.perChunk = n
	})
}

// WithFilter sets the filter.
func WithFilter(f Filter) DescriptorOption {
	return descriptorOptionFunc(func(opts *descriptorOptions) {
		opts.filter = f
	})
}

// WithScheduler sets the scheduler that promises created by the descriptor
// (and async pulls) settle on. Without one, reactions run synchronously.
func WithScheduler(sched eventloop.Scheduler) DescriptorOption {
	return descriptorOptionFunc(func(opts *descriptorOptions) {
		opts.sched = sched
	})
}

type pendingElement struct {
	value  any
	result *eventloop.Promise
	index  int
}

// Descriptor is a stateful cursor over a [Source], reading up to a fixed
// number of (filtered) elements per pull. It is not safe for concurrent use.
//
// Elements whose filter result is pending are held in a FIFO buffer, and
// replayed before any newer element, so no element is skipped or
// duplicated. A pending result always ends the current chunk, so chunks
// never reorder elements.
type Descriptor struct {
	src       Source
	sched     eventloop.Scheduler
	filter    Filter
	it        Iterator
	ait       AsyncIterator
	resolving *eventloop.Promise
	step      *eventloop.Promise
	discarded []pendingElement
	carry     []any
	last      Chunk
	start     int
	perChunk  int
	readIndex int
	total     int
	chunks    int
	state     State
	isAsync   bool
	started   bool
}

// NewDescriptor returns a descriptor, starting a new iteration session over
// src.
func NewDescriptor(src Source, opts ...DescriptorOption) *Descriptor {
	cfg := descriptorOptions{perChunk: 1}
	for _, opt := range opts {
		if opt != nil {
			opt.applyDescriptor(&cfg)
		}
	}
	return &Descriptor{
		src:      src,
		sched:    cfg.sched,
		filter:   cfg.filter,
		start:    cfg.start,
		perChunk: max(cfg.perChunk, 1),
		isAsync:  src.IsAsync(),
	}
}

// State returns the current state.
func (d *Descriptor) State() State { return d.state }

// IsAsync reports whether the source was asynchronous, when the session
// started.
func (d *Descriptor) IsAsync() bool { return d.isAsync }

// ReadIndex returns the cursor position in the original sequence.
func (d *Descriptor) ReadIndex() int { return d.readIndex }

// ReadTotal returns the number of elements accepted by the last pull.
func (d *Descriptor) ReadTotal() int { return d.last.ReadTotal }

// ReadElements returns the elements accepted by the last pull.
func (d *Descriptor) ReadElements() []any { return d.last.Elements }

// Poll performs one step. It returns exactly one of: a completed chunk; a
// non-nil promise, which always fulfills, and must settle before polling
// again; or an error, which fails the current pull only.
//
// Errors are [*FilterError] (no chunk is returned, but elements accepted
// before the failure are delivered by the next pull), [*FilterRejection]
// (the element is dropped), and [*SourceError] (the descriptor is done).
//
// Once done, Poll returns empty done chunks.
func (d *Descriptor) Poll() (Chunk, *eventloop.Promise, error) {
	for {
		switch {
		case d.state == StateDone:
			return Chunk{Index: d.chunks, ReadIndex: d.readIndex, Done: true}, nil, nil
		case d.src.Kind() == KindPendingSource:
			wait, err := d.pollPending()
			if wait != nil || err != nil {
				return Chunk{}, wait, err
			}
			// resolved, d.src was replaced
		case d.src.Kind() == KindNativeAsyncIterable:
			return d.pollAsync()
		default:
			return d.pollSync()
		}
	}
}

// Pull returns a promise for the next chunk, polling (and waiting) as
// necessary.
func (d *Descriptor) Pull() *eventloop.Promise {
	p, resolve, reject := eventloop.NewPromise(d.sched)
	d.pull(resolve, reject)
	return p
}

func (d *Descriptor) pull(resolve eventloop.ResolveFunc, reject eventloop.RejectFunc) {
	chunk, wait, err := d.Poll()
	switch {
	case err != nil:
		reject(err)
	case wait != nil:
		wait.Then(func(eventloop.Result) (eventloop.Result, error) {
			d.pull(resolve, reject)
			return nil, nil
		}, nil)
	default:
		resolve(chunk)
	}
}

// Stop ends the session, releasing the underlying cursor.
func (d *Descriptor) Stop() {
	if d.state == StateDone {
		return
	}
	d.state = StateDone
	d.release()
}

func (d *Descriptor) release() {
	if d.it != nil {
		d.it.Stop()
	}
	if d.ait != nil {
		d.ait.Stop()
	}
}

func (d *Descriptor) pollPending() (*eventloop.Promise, error) {
	if d.resolving == nil {
		d.resolving = d.src.Promise()
	}
	switch d.resolving.State() {
	case eventloop.Pending:
		d.state = StateAwaitingAsync
		return settled(d.resolving), nil
	case eventloop.Rejected:
		d.state = StateDone
		return nil, &SourceError{Err: d.resolving.Reason()}
	}
	src, err := Normalize(d.resolving.Value(), d.filter != nil)
	d.resolving = nil
	if err != nil {
		d.state = StateDone
		return nil, &SourceError{Err: err}
	}
	d.src = src
	d.state = StateIdle
	return nil, nil
}

func (d *Descriptor) pollSync() (Chunk, *eventloop.Promise, error) {
	if !d.started {
		d.started = true
		d.it = d.src.Iterator()
		for d.readIndex < d.start {
			if _, ok := d.it.Next(); !ok {
				return d.finish(nil)
			}
			d.readIndex++
		}
	}

	for {
		d.state = StatePullingSync
		elements, wait, ended, err := d.replay()
		switch {
		case err != nil:
			return Chunk{}, nil, err
		case wait != nil:
			return Chunk{}, wait, nil
		case ended:
			return d.finish(elements)
		}

		for len(elements) < d.perChunk && len(d.discarded) == 0 {
			v, ok := d.it.Next()
			if !ok {
				return d.finish(elements)
			}
			index := d.readIndex
			d.readIndex++

			var accept, end bool
			accept, end, err = d.apply(v, index)
			switch {
			case err != nil:
				d.carry = elements
				d.state = StateIdle
				return Chunk{}, nil, err
			case accept:
				elements = append(elements, v)
			case end:
				return d.finish(elements)
			}
		}

		// a pending result at the head of an otherwise empty chunk is
		// waited on, rather than emitting nothing
		if len(elements) != 0 || len(d.discarded) == 0 {
			return d.emit(elements, false), nil, nil
		}
	}
}

func (d *Descriptor) pollAsync() (Chunk, *eventloop.Promise, error) {
	if d.ait == nil {
		d.ait = d.src.AsyncIterator()
	}

	for {
		elements, wait, _, err := d.replay()
		switch {
		case err != nil:
			return Chunk{}, nil, err
		case wait != nil:
			return Chunk{}, wait, nil
		case len(elements) > 0:
			return d.emit(elements, false), nil, nil
		}

		if d.step == nil {
			d.step = d.ait.Next(d.sched)
		}
		switch d.step.State() {
		case eventloop.Pending:
			d.state = StateAwaitingAsync
			return Chunk{}, settled(d.step), nil
		case eventloop.Rejected:
			reason := d.step.Reason()
			d.step = nil
			d.state = StateDone
			d.release()
			return Chunk{}, nil, &SourceError{Err: reason}
		}

		result := d.step.Value()
		d.step = nil
		step, ok := result.(Step)
		if !ok {
			step = Step{Value: result}
		}
		if step.Done {
			return d.finish(nil)
		}

		index := d.readIndex
		d.readIndex++
		if index < d.start {
			continue
		}

		accept, _, err := d.apply(step.Value, index)
		switch {
		case err != nil:
			d.state = StateIdle
			return Chunk{}, nil, err
		case accept:
			return d.emit([]any{step.Value}, false), nil, nil
		}
		// rejected, or pending (replayed by the next iteration)
	}
}

// replay moves settled results from the head of the discarded buffer into
// the chunk, starting with any carried elements. It stops at a head that is
// still pending, returning a promise to wait on, unless elements were
// already collected, in which case the chunk ends there.
func (d *Descriptor) replay() (elements []any, wait *eventloop.Promise, ended bool, err error) {
	elements, d.carry = d.carry, nil
	for len(d.discarded) > 0 && len(elements) < d.perChunk {
		head := d.discarded[0]
		switch head.result.State() {
		case eventloop.Pending:
			if len(elements) > 0 {
				return elements, nil, false, nil
			}
			d.state = StateAwaitingAsync
			return nil, settled(head.result), false, nil

		case eventloop.Rejected:
			d.discarded = d.discarded[1:]
			d.carry = elements
			d.state = StateIdle
			return nil, nil, false, &FilterRejection{Value: head.value, Index: head.index, Err: head.result.Reason()}
		}

		d.discarded = d.discarded[1:]
		if Truthy(head.result.Value()) {
			elements = append(elements, head.value)
			d.total++
		} else if d.src.Kind() == KindUnboundedRange {
			return elements, nil, true, nil
		}
	}
	return elements, nil, false, nil
}

// apply runs the filter, returning whether to accept the element, and
// whether the session ends (a rejection within an unbounded range).
// Pending results are buffered.
func (d *Descriptor) apply(v any, index int) (accept, end bool, err error) {
	if d.filter == nil {
		d.total++
		return true, false, nil
	}
	res, err := callFilter(d.filter, v, index, FilterContext{Source: d.src, Total: d.total})
	if err != nil {
		return false, false, &FilterError{Value: v, Index: index, Err: err}
	}
	switch res.kind {
	case resultPending:
		d.discarded = append(d.discarded, pendingElement{value: v, index: index, result: res.pending})
		return false, false, nil
	case resultReject:
		return false, d.src.Kind() == KindUnboundedRange, nil
	default:
		d.total++
		return true, false, nil
	}
}

func (d *Descriptor) finish(elements []any) (Chunk, *eventloop.Promise, error) {
	chunk := d.emit(elements, true)
	d.state = StateDone
	d.release()
	return chunk, nil, nil
}

func (d *Descriptor) emit(elements []any, done bool) Chunk {
	chunk := Chunk{
		Elements:  elements,
		Index:     d.chunks,
		ReadIndex: d.readIndex,
		ReadTotal: len(elements),
		Done:      done,
	}
	d.chunks++
	d.last = chunk
	if !done {
		d.state = StateIdle
	}
	return chunk
}

// settled returns a promise that fulfills (with nil) once p settles.
func settled(p *eventloop.Promise) *eventloop.Promise {
	return p.Then(
		func(eventloop.Result) (eventloop.Result, error) { return nil, nil },
		func(error) (eventloop.Result, error) { return nil, nil },
	)
}
