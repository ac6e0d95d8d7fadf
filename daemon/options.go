// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package daemon

import (
	"fmt"

	"github.com/joeycumines/logiface"
)

// DefaultBudget is the default total task weight executed per tick.
const DefaultBudget = 10

// TickMode selects the scheduling opportunity a drain runs on.
type TickMode int

const (
	// TickAnimationFrame drains on the host's next animation frame.
	TickAnimationFrame TickMode = iota
	// TickTimeout drains on a zero delay timer, i.e. the next loop tick.
	TickTimeout
	// TickMicrotask drains on the next microtask checkpoint.
	TickMicrotask
)

// String returns the mode name.
func (m TickMode) String() string {
	switch m {
	case TickAnimationFrame:
		return "frame"
	case TickTimeout:
		return "timeout"
	case TickMicrotask:
		return "microtask"
	default:
		return fmt.Sprintf("TickMode(%d)", int(m))
	}
}

type daemonOptions struct {
	logger *logiface.Logger[logiface.Event]
	budget int
	mode   TickMode
}

// Option configures a [Daemon].
type Option interface {
	applyDaemon(*daemonOptions) error
}

type optionImpl struct {
	applyDaemonFunc func(*daemonOptions) error
}

func (o *optionImpl) applyDaemon(opts *daemonOptions) error {
	return o.applyDaemonFunc(opts)
}

// WithBudget sets the total task weight executed per tick, see
// [DefaultBudget]. It must be positive.
func WithBudget(budget int) Option {
	return &optionImpl{func(opts *daemonOptions) error {
		if budget <= 0 {
			return fmt.Errorf("daemon: invalid budget: %d", budget)
		}
		opts.budget = budget
		return nil
	}}
}

// WithTickMode sets the scheduling opportunity drains run on, the default
// being [TickAnimationFrame].
func WithTickMode(mode TickMode) Option {
	return &optionImpl{func(opts *daemonOptions) error {
		switch mode {
		case TickAnimationFrame, TickTimeout, TickMicrotask:
		default:
			return fmt.Errorf("daemon: invalid tick mode: %s", mode)
		}
		opts.mode = mode
		return nil
	}}
}

// WithLogger sets the logger. If unset, the host's logger is used, if it
// has one (see [eventloop.Loop.Logger]).
func WithLogger(logger *logiface.Logger[logiface.Event]) Option {
	return &optionImpl{func(opts *daemonOptions) error {
		opts.logger = logger
		return nil
	}}
}

func resolveOptions(opts []Option) (*daemonOptions, error) {
	cfg := &daemonOptions{budget: DefaultBudget}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyDaemon(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}
