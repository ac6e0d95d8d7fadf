// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package asyncrender

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/joeycumines/go-asyncrender/async"
	"github.com/joeycumines/go-asyncrender/daemon"
	"github.com/joeycumines/go-asyncrender/eventloop"
	"github.com/joeycumines/go-asyncrender/iterable"
	"github.com/joeycumines/go-catrate"
	"github.com/joeycumines/logiface"
)

// DefaultGroup is the group tasks are registered under unless configured
// otherwise, and the group cleared by [Renderer.ForceRender].
const DefaultGroup async.Group = "asyncComponents"

// Renderer renders iterable sources incrementally, one chunk per daemon
// task, with group-based cancellation.
//
// A Renderer and everything it creates must be used from the host's
// goroutine, as must the nodes it renders. Use one renderer per
// application root.
type Renderer struct {
	async      *async.Async
	daemon     *daemon.Daemon
	logger     *logiface.Logger[logiface.Event]
	limiter    *catrate.Limiter
	refs       map[string][]Node
	waits      map[*eventloop.Promise]*async.Handle
	mu         sync.Mutex
	suppressed atomic.Uint64
}

// New constructs a Renderer on host, typically an [*eventloop.Loop].
func New(host async.Host, opts ...Option) (*Renderer, error) {
	if host == nil {
		panic(`asyncrender: nil host`)
	}
	cfg, err := resolveRendererOptions(opts)
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

	r := &Renderer{
		async:  cfg.async,
		daemon: cfg.daemon,
		logger: logger.Clone().Str("component", "asyncrender").Logger(),
		refs:   make(map[string][]Node),
		waits:  make(map[*eventloop.Promise]*async.Handle),
	}
	if len(cfg.rates) != 0 {
		if r.limiter, err = newLimiter(cfg.rates); err != nil {
			return nil, err
		}
	}
	if r.async == nil {
		r.async = async.New(host, async.WithLogger(logger))
	}
	if r.daemon == nil {
		r.daemon, err = daemon.New(host, append([]daemon.Option{daemon.WithLogger(logger)}, cfg.daemonOptions...)...)
		if err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Async returns the resource tracker.
func (r *Renderer) Async() *async.Async { return r.async }

// Daemon returns the task daemon.
func (r *Renderer) Daemon() *daemon.Daemon { return r.daemon }

// Suppressed returns the number of error logs dropped by rate limiting.
func (r *Renderer) Suppressed() uint64 { return r.suppressed.Load() }

// Iterate starts a session rendering source, perChunk elements per task.
// The source is normalized immediately, see [iterable.Normalize], and an
// unsupported source is the only error. No work happens until
// [Session.Next] or [Session.Run].
func (r *Renderer) Iterate(source any, perChunk int, render RenderFunc, opts ...IterateOption) (*Session, error) {
	if render == nil {
		panic(`asyncrender: nil render func`)
	}
	cfg := &iterateOptions{group: DefaultGroup, weight: 1}
	for _, opt := range opts {
		if opt != nil {
			opt.applyIterate(cfg)
		}
	}
	src, err := iterable.Normalize(source, cfg.filter != nil)
	if err != nil {
		return nil, err
	}
	s := &Session{
		r:        r,
		src:      src,
		opts:     cfg,
		render:   render,
		perChunk: perChunk,
	}
	s.desc = s.newDescriptor()
	return s, nil
}

// Cancel clears every group matched by sel: queued tasks never run, and
// their promises reject with an [*async.CancelledError]; nodes already
// rendered are destroyed. It returns the number of operations cancelled.
func (r *Renderer) Cancel(sel async.Selector) int {
	return r.async.ClearAll(sel)
}

// ForceRender clears [DefaultGroup], releasing filters created by
// [Renderer.WaitForceRender], then drains the daemon immediately. It must
// not be called from within a task, see [Renderer.DeferForceRender].
func (r *Renderer) ForceRender() {
	n := r.async.ClearAllCause(async.Label(string(DefaultGroup)), ErrForceRender)
	r.logger.Debug().
		Int("cleared", n).
		Log("asyncrender: force render")
	r.daemon.RestartNow()
}

// DeferForceRender calls [Renderer.ForceRender] on the next microtask.
func (r *Renderer) DeferForceRender() error {
	return r.async.Host().QueueMicrotask(r.ForceRender)
}

// WaitForceRender returns a filter accepting its first element
// immediately, and each later element once the next force render happens.
// If elementToDrop is non-empty, nodes rendered by sessions using
// [Ref](elementToDrop) are detached first.
//
// Paired with an unbounded source, it re-renders once per force render:
//
//	r.Iterate(true, 1, render, Filter(r.WaitForceRender("")))
//
// Each wait is registered under [DefaultGroup] until the next force render,
// or until the session waiting on it is stopped or restarted.
func (r *Renderer) WaitForceRender(elementToDrop string) iterable.Filter {
	var started bool
	return func(any, int, iterable.FilterContext) (iterable.FilterResult, error) {
		if !started {
			started = true
			return iterable.Accept(), nil
		}
		p, resolve, _ := eventloop.NewPromise(r.async.Host())
		h := r.async.Track(DefaultGroup, func(error) {
			r.forgetWait(p)
			if elementToDrop != "" {
				r.dropRef(elementToDrop)
			}
			resolve(true)
		})
		r.mu.Lock()
		r.waits[p] = h
		r.mu.Unlock()
		return iterable.Await(p), nil
	}
}

func (r *Renderer) forgetWait(p *eventloop.Promise) *async.Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	h := r.waits[p]
	delete(r.waits, p)
	return h
}

// releaseWait unregisters the wait behind a pending filter result, if it
// was created by [Renderer.WaitForceRender]. The promise never settles.
func (r *Renderer) releaseWait(p *eventloop.Promise) {
	if h := r.forgetWait(p); h != nil {
		h.Done()
	}
}

func (r *Renderer) addRef(name string, nodes []Node) {
	if name == "" || len(nodes) == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refs[name] = append(r.refs[name], nodes...)
}

func (r *Renderer) dropRef(name string) {
	r.mu.Lock()
	nodes := r.refs[name]
	delete(r.refs, name)
	r.mu.Unlock()
	for _, node := range nodes {
		node.Detach()
	}
}

// newLimiter converts the panic catrate raises for invalid rates.
func newLimiter(rates map[time.Duration]int) (limiter *catrate.Limiter, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("asyncrender: invalid error rate limits: %v", r)
		}
	}()
	return catrate.NewLimiter(rates), nil
}

// logLimited calls log unless the group's error rate is exceeded.
func (r *Renderer) logLimited(group async.Group, log func()) {
	if _, ok := r.limiter.Allow(group); !ok {
		r.suppressed.Add(1)
		return
	}
	log()
}
