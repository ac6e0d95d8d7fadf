// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package eventloop

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// Result represents the value of a fulfilled promise.
type Result = any

// PromiseState represents the lifecycle state of a [Promise].
// State transitions are irreversible.
type PromiseState int32

const (
	// Pending indicates the promise has not settled.
	Pending PromiseState = iota
	// Fulfilled indicates the promise completed successfully with a value.
	Fulfilled
	// Rejected indicates the promise failed with a reason.
	Rejected
)

// String returns a human-readable representation of the state.
func (s PromiseState) String() string {
	switch s {
	case Pending:
		return "pending"
	case Fulfilled:
		return "fulfilled"
	case Rejected:
		return "rejected"
	default:
		return "unknown"
	}
}

var (
	// ErrPromiseCycle rejects a promise that was resolved with itself.
	ErrPromiseCycle = errors.New("eventloop: chaining cycle detected for promise")

	// ErrNilReason replaces a nil rejection reason.
	ErrNilReason = errors.New("eventloop: promise rejected with nil reason")
)

// Scheduler queues promise reactions. [*Loop] implements it.
type Scheduler interface {
	QueueMicrotask(fn func()) error
}

// ResolveFunc fulfills a promise (or adopts the state of a *Promise value).
// Only the first call to either ResolveFunc or RejectFunc has an effect.
// Safe to call from any goroutine.
type ResolveFunc func(Result)

// RejectFunc rejects a promise. Safe to call from any goroutine.
type RejectFunc func(error)

// Promise is a Promise/A+ style future, whose reactions run as microtasks
// on its [Scheduler].
//
// A promise created with a nil Scheduler runs its reactions synchronously,
// at settlement (or registration, if already settled).
type Promise struct {
	sched    Scheduler
	value    Result
	reason   error
	handlers []handler
	done     chan struct{}
	mu       sync.Mutex
	state    atomic.Int32
}

// handler represents a reaction to promise settlement.
type handler struct {
	onFulfilled func(Result) (Result, error)
	onRejected  func(error) (Result, error)
	target      *Promise
}

// NewPromise creates a pending promise, along with its resolve and reject
// functions.
func NewPromise(sched Scheduler) (*Promise, ResolveFunc, RejectFunc) {
	p := newPromise(sched)
	return p, p.resolve, p.reject
}

// Resolved returns a promise already fulfilled with value (or adopting it,
// if value is a *Promise).
func Resolved(sched Scheduler, value Result) *Promise {
	p := newPromise(sched)
	p.resolve(value)
	return p
}

// RejectedPromise returns a promise already rejected with reason.
func RejectedPromise(sched Scheduler, reason error) *Promise {
	p := newPromise(sched)
	p.reject(reason)
	return p
}

func newPromise(sched Scheduler) *Promise {
	return &Promise{
		sched: sched,
		done:  make(chan struct{}),
	}
}

// State returns the current [PromiseState].
func (p *Promise) State() PromiseState {
	return PromiseState(p.state.Load())
}

// Value returns the fulfillment value, or nil if not fulfilled.
func (p *Promise) Value() Result {
	if p.State() != Fulfilled {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.value
}

// Reason returns the rejection reason, or nil if not rejected.
func (p *Promise) Reason() error {
	if p.State() != Rejected {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reason
}

// Done returns a channel that is closed once the promise settles.
func (p *Promise) Done() <-chan struct{} {
	return p.done
}

// Await blocks until the promise settles or ctx is done.
//
// WARNING: Await must not be called from the loop goroutine, as the loop
// could then never settle the promise.
func (p *Promise) Await(ctx context.Context) (Result, error) {
	select {
	case <-p.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if PromiseState(p.state.Load()) == Rejected {
		return nil, p.reason
	}
	return p.value, nil
}

// Then registers reactions, returning a promise settled by their result.
// A nil reaction passes the settlement through. A reaction returning a
// non-nil error (or panicking) rejects the returned promise.
func (p *Promise) Then(onFulfilled func(Result) (Result, error), onRejected func(error) (Result, error)) *Promise {
	child := newPromise(p.sched)
	p.addHandler(handler{
		onFulfilled: onFulfilled,
		onRejected:  onRejected,
		target:      child,
	})
	return child
}

// Catch is shorthand for Then(nil, onRejected).
func (p *Promise) Catch(onRejected func(error) (Result, error)) *Promise {
	return p.Then(nil, onRejected)
}

// Finally runs fn on settlement, passing the original settlement through.
func (p *Promise) Finally(fn func()) *Promise {
	return p.Then(
		func(v Result) (Result, error) {
			if fn != nil {
				fn()
			}
			return v, nil
		},
		func(err error) (Result, error) {
			if fn != nil {
				fn()
			}
			return nil, err
		},
	)
}

func (p *Promise) addHandler(h handler) {
	p.mu.Lock()
	state := PromiseState(p.state.Load())
	if state == Pending {
		p.handlers = append(p.handlers, h)
		p.mu.Unlock()
		return
	}
	value, reason := p.value, p.reason
	p.mu.Unlock()
	p.scheduleHandler(h, state, value, reason)
}

func (p *Promise) scheduleHandler(h handler, state PromiseState, value Result, reason error) {
	if p.sched != nil {
		if err := p.sched.QueueMicrotask(func() {
			executeHandler(h, state, value, reason)
		}); err == nil {
			return
		}
	}
	// no scheduler, or it has terminated
	executeHandler(h, state, value, reason)
}

func executeHandler(h handler, state PromiseState, value Result, reason error) {
	if state == Fulfilled && h.onFulfilled == nil {
		if h.target != nil {
			h.target.resolve(value)
		}
		return
	}
	if state == Rejected && h.onRejected == nil {
		if h.target != nil {
			h.target.reject(reason)
		}
		return
	}

	defer func() {
		if r := recover(); r != nil && h.target != nil {
			h.target.reject(PanicError{Value: r})
		}
	}()

	var (
		res Result
		err error
	)
	if state == Fulfilled {
		res, err = h.onFulfilled(value)
	} else {
		res, err = h.onRejected(reason)
	}
	if h.target == nil {
		return
	}
	if err != nil {
		h.target.reject(err)
		return
	}
	h.target.resolve(res)
}

func (p *Promise) resolve(value Result) {
	if other, ok := value.(*Promise); ok && other != nil {
		if other == p {
			p.reject(ErrPromiseCycle)
			return
		}
		other.addHandler(handler{target: p})
		return
	}
	p.settle(Fulfilled, value, nil)
}

func (p *Promise) reject(reason error) {
	if reason == nil {
		reason = ErrNilReason
	}
	p.settle(Rejected, nil, reason)
}

func (p *Promise) settle(state PromiseState, value Result, reason error) {
	p.mu.Lock()
	if PromiseState(p.state.Load()) != Pending {
		p.mu.Unlock()
		return
	}
	p.value = value
	p.reason = reason
	handlers := p.handlers
	p.handlers = nil
	p.state.Store(int32(state))
	close(p.done)
	p.mu.Unlock()

	for _, h := range handlers {
		p.scheduleHandler(h, state, value, reason)
	}
}
