// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package async

import (
	"cmp"
	"slices"
	"sync"
	"time"

	"github.com/joeycumines/go-asyncrender/eventloop"
	"github.com/joeycumines/logiface"
)

// Host is the subset of [*eventloop.Loop] used by [Async].
type Host interface {
	eventloop.Scheduler
	SetTimeout(fn func(), delay time.Duration) (eventloop.TimerID, error)
	ClearTimeout(id eventloop.TimerID) error
	RequestAnimationFrame(fn eventloop.FrameFunc) (eventloop.FrameID, error)
	CancelAnimationFrame(id eventloop.FrameID) error
}

var _ Host = (*eventloop.Loop)(nil)

// Async tracks timers, animation frames, promises, and arbitrary resources,
// each registered under a [Group], so that they may be cancelled together
// via [Async.ClearAll].
//
// The registry is keyed by group: each group owns an
// [eventloop.AbortController], which is aborted (and the group forgotten)
// when the group is cleared. Operations registered afterward, under the same
// name, belong to a fresh group.
//
// Methods are safe to call from any goroutine. Callbacks run on the host,
// except clear notifications, which run synchronously within ClearAll.
type Async struct {
	host   Host
	logger *logiface.Logger[logiface.Event]
	groups map[Group]*groupEntry
	mu     sync.Mutex
}

type groupEntry struct {
	controller *eventloop.AbortController
	group      Group
	live       int
	cleared    int
}

// New constructs an Async, scheduling on host.
func New(host Host, opts ...Option) *Async {
	if host == nil {
		panic(`async: nil host`)
	}
	cfg := resolveOptions(opts)
	return &Async{
		host:   host,
		logger: cfg.logger,
		groups: make(map[Group]*groupEntry),
	}
}

// Host returns the host the instance schedules on.
func (a *Async) Host() Host {
	return a.host
}

// Track registers a generic resource under group. The onClear callback (if
// any) is called once, if the group is cleared before [Handle.Done].
func (a *Async) Track(group Group, onClear func(reason error)) *Handle {
	return a.register(group, onClear)
}

// ProxyOptions configures [Async.Proxy].
type ProxyOptions struct {
	// OnClear is called once, if the group is cleared while the proxy is
	// still live.
	OnClear func(reason error)
	Group   Group
	// Single makes the proxy one-shot: the first call consumes it.
	Single bool
}

// Proxy wraps a function, such that it may be called safely after its
// group has been cleared (it will simply not run).
type Proxy struct {
	fn     func()
	handle *Handle
	single bool
}

// Proxy registers fn under opts.Group, returning the wrapper.
func (a *Async) Proxy(fn func(), opts ProxyOptions) *Proxy {
	if fn == nil {
		panic(`async: nil proxy function`)
	}
	return &Proxy{
		fn:     fn,
		handle: a.register(opts.Group, opts.OnClear),
		single: opts.Single,
	}
}

// Call runs the wrapped function, unless the group was cleared (or the
// single proxy already ran), reporting whether it ran.
func (p *Proxy) Call() bool {
	if p.single {
		if !p.handle.Done() {
			return false
		}
	} else if !p.handle.Active() {
		return false
	}
	p.fn()
	return true
}

// Handle returns the registration, which may be used to release a
// multi-call proxy via [Handle.Done].
func (p *Proxy) Handle() *Handle {
	return p.handle
}

// AnimationFrame returns a promise that resolves with the timestamp of the
// next animation frame, or rejects with a [*CancelledError] if the group is
// cleared first.
func (a *Async) AnimationFrame(group Group) *eventloop.Promise {
	p, resolve, reject := eventloop.NewPromise(a.host)
	h := a.register(group, func(reason error) { reject(reason) })
	id, err := a.host.RequestAnimationFrame(func(ts time.Time) {
		if h.Done() {
			resolve(ts)
		}
	})
	if err != nil {
		if h.Done() {
			reject(err)
		}
		return p
	}
	h.setCancel(func() { _ = a.host.CancelAnimationFrame(id) })
	return p
}

// SetTimeout schedules fn to run after delay, unless the group is cleared
// first.
func (a *Async) SetTimeout(fn func(), delay time.Duration, group Group) (*Handle, error) {
	if fn == nil {
		panic(`async: nil timeout function`)
	}
	h := a.register(group, nil)
	id, err := a.host.SetTimeout(func() {
		if h.Done() {
			fn()
		}
	}, delay)
	if err != nil {
		h.Done()
		return nil, err
	}
	h.setCancel(func() { _ = a.host.ClearTimeout(id) })
	return h, nil
}

// Promise returns a promise that follows src, unless the group is cleared
// before src settles, in which case it rejects with a [*CancelledError].
func (a *Async) Promise(src *eventloop.Promise, group Group) *eventloop.Promise {
	p, resolve, reject := eventloop.NewPromise(a.host)
	h := a.register(group, func(reason error) { reject(reason) })
	src.Then(
		func(v eventloop.Result) (eventloop.Result, error) {
			if h.Done() {
				resolve(v)
			}
			return nil, nil
		},
		func(err error) (eventloop.Result, error) {
			if h.Done() {
				reject(err)
			}
			return nil, nil
		},
	)
	return p
}

// ClearAll clears every registered group matched by sel, returning the
// number of live operations cancelled. Clear notifications are delivered
// before it returns, in group name order, then registration order.
func (a *Async) ClearAll(sel Selector) int {
	return a.ClearAllCause(sel, nil)
}

// ClearAllCause is [Async.ClearAll], with a cause attached to the
// [*CancelledError] reasons.
func (a *Async) ClearAllCause(sel Selector, cause error) int {
	if sel == nil {
		return 0
	}

	a.mu.Lock()
	var entries []*groupEntry
	for group, e := range a.groups {
		if sel.Match(group) {
			entries = append(entries, e)
			delete(a.groups, group)
		}
	}
	a.mu.Unlock()

	slices.SortFunc(entries, func(x, y *groupEntry) int { return cmp.Compare(x.group, y.group) })

	var total int
	for _, e := range entries {
		e.controller.Abort(&CancelledError{Group: e.group, Cause: cause})
		a.mu.Lock()
		n := e.cleared
		a.mu.Unlock()
		total += n
		a.logger.Debug().
			Str("group", string(e.group)).
			Int("cleared", n).
			Log("async: group cleared")
	}
	return total
}

// Groups returns the names of the groups with live operations, sorted.
func (a *Async) Groups() []Group {
	a.mu.Lock()
	defer a.mu.Unlock()
	groups := make([]Group, 0, len(a.groups))
	for group := range a.groups {
		groups = append(groups, group)
	}
	slices.Sort(groups)
	return groups
}

// Len returns the number of live operations registered under group.
func (a *Async) Len(group Group) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	if e := a.groups[group]; e != nil {
		return e.live
	}
	return 0
}

func (a *Async) register(group Group, onClear func(reason error)) *Handle {
	a.mu.Lock()
	e := a.groups[group]
	if e == nil {
		e = &groupEntry{
			group:      group,
			controller: eventloop.NewAbortController(),
		}
		a.groups[group] = e
	}
	e.live++
	a.mu.Unlock()

	h := &Handle{
		async:   a,
		entry:   e,
		onClear: onClear,
	}
	h.remove = e.controller.Signal().OnAbort(h.clear)
	return h
}

// release accounts for a handle leaving the live state, forgetting the
// group once it has no live operations.
func (a *Async) release(e *groupEntry, cleared bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	e.live--
	if cleared {
		e.cleared++
	}
	if e.live == 0 && a.groups[e.group] == e {
		delete(a.groups, e.group)
	}
}
