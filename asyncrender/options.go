// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package asyncrender

import (
	"errors"
	"time"

	"github.com/joeycumines/go-asyncrender/async"
	"github.com/joeycumines/go-asyncrender/daemon"
	"github.com/joeycumines/go-asyncrender/iterable"
	"github.com/joeycumines/logiface"
)

// DefaultErrorRateLimits bound the render and destructor errors logged per
// group. Suppressed errors are counted, see [Renderer.Suppressed].
var DefaultErrorRateLimits = map[time.Duration]int{
	time.Second: 5,
	time.Minute: 60,
}

type rendererOptions struct {
	logger        *logiface.Logger[logiface.Event]
	async         *async.Async
	daemon        *daemon.Daemon
	daemonOptions []daemon.Option
	rates         map[time.Duration]int
}

// Option configures a [Renderer].
type Option interface {
	applyRenderer(*rendererOptions) error
}

type rendererOptionImpl struct {
	applyRendererFunc func(*rendererOptions) error
}

func (o *rendererOptionImpl) applyRenderer(opts *rendererOptions) error {
	return o.applyRendererFunc(opts)
}

// WithLogger sets the logger. If unset, the host's logger is used, if it
// has one.
func WithLogger(logger *logiface.Logger[logiface.Event]) Option {
	return &rendererOptionImpl{func(opts *rendererOptions) error {
		opts.logger = logger
		return nil
	}}
}

// WithAsync shares an existing resource tracker, which must use the same
// host. By default, the renderer creates its own.
func WithAsync(a *async.Async) Option {
	return &rendererOptionImpl{func(opts *rendererOptions) error {
		if a == nil {
			return errors.New("asyncrender: nil async")
		}
		opts.async = a
		return nil
	}}
}

// WithDaemon shares an existing daemon, which must use the same host. By
// default, the renderer creates its own.
func WithDaemon(d *daemon.Daemon) Option {
	return &rendererOptionImpl{func(opts *rendererOptions) error {
		if d == nil {
			return errors.New("asyncrender: nil daemon")
		}
		opts.daemon = d
		return nil
	}}
}

// WithDaemonOptions configures the daemon the renderer creates. It is
// ignored if [WithDaemon] is used.
func WithDaemonOptions(options ...daemon.Option) Option {
	return &rendererOptionImpl{func(opts *rendererOptions) error {
		opts.daemonOptions = append(opts.daemonOptions, options...)
		return nil
	}}
}

// WithErrorRateLimits replaces [DefaultErrorRateLimits]. Empty rates
// disable limiting.
func WithErrorRateLimits(rates map[time.Duration]int) Option {
	return &rendererOptionImpl{func(opts *rendererOptions) error {
		opts.rates = rates
		return nil
	}}
}

func resolveRendererOptions(opts []Option) (*rendererOptions, error) {
	cfg := &rendererOptions{rates: DefaultErrorRateLimits}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyRenderer(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

type iterateOptions struct {
	filter     iterable.Filter
	groupFunc  func(chunk iterable.Chunk) async.Group
	destructor Destructor
	target     Target
	group      async.Group
	ref        string
	start      int
	weight     int
	useRAF     bool
}

// IterateOption configures [Renderer.Iterate].
type IterateOption interface {
	applyIterate(*iterateOptions)
}

type iterateOptionFunc func(*iterateOptions)

func (f iterateOptionFunc) applyIterate(opts *iterateOptions) { f(opts) }

// Start skips the first n elements of the source.
func Start(n int) IterateOption {
	return iterateOptionFunc(func(opts *iterateOptions) {
		opts.start = n
	})
}

// Filter sets the element filter. Note that a source of true or false
// (an unbounded range) is empty without one.
func Filter(f iterable.Filter) IterateOption {
	return iterateOptionFunc(func(opts *iterateOptions) {
		opts.filter = f
	})
}

// Weight sets the daemon weight of each chunk's task, default 1.
func Weight(w int) IterateOption {
	return iterateOptionFunc(func(opts *iterateOptions) {
		opts.weight = w
	})
}

// UseRAF defers inserting each chunk into the target until the next
// animation frame. The task's weight stays charged until then.
func UseRAF() IterateOption {
	return iterateOptionFunc(func(opts *iterateOptions) {
		opts.useRAF = true
	})
}

// Group sets the cancellation group of every task, default
// [DefaultGroup].
func Group(g async.Group) IterateOption {
	return iterateOptionFunc(func(opts *iterateOptions) {
		opts.group = g
		opts.groupFunc = nil
	})
}

// GroupFunc derives the cancellation group per chunk, so chunks of one
// session may be cancelled independently.
func GroupFunc(fn func(chunk iterable.Chunk) async.Group) IterateOption {
	return iterateOptionFunc(func(opts *iterateOptions) {
		opts.groupFunc = fn
	})
}

// WithDestructor sets the destructor run for materialized nodes, on
// cancellation.
func WithDestructor(fn Destructor) IterateOption {
	return iterateOptionFunc(func(opts *iterateOptions) {
		opts.destructor = fn
	})
}

// WithTarget sets where rendered nodes are appended. Without one, nodes are
// only delivered via [Fragment].
func WithTarget(t Target) IterateOption {
	return iterateOptionFunc(func(opts *iterateOptions) {
		opts.target = t
	})
}

// Ref names the session's rendered nodes, for
// [Renderer.WaitForceRender].
func Ref(name string) IterateOption {
	return iterateOptionFunc(func(opts *iterateOptions) {
		opts.ref = name
	})
}
