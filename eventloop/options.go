// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package eventloop

import (
	"fmt"
	"time"

	"github.com/joeycumines/logiface"
)

// DefaultFrameInterval is the default period between animation frames,
// approximating a 60Hz display.
const DefaultFrameInterval = 16 * time.Millisecond

// loopOptions holds configuration options for Loop creation.
type loopOptions struct {
	logger                  *logiface.Logger[logiface.Event]
	frameInterval           time.Duration
	strictMicrotaskOrdering bool
	metricsEnabled          bool
}

// LoopOption configures a Loop instance.
type LoopOption interface {
	applyLoop(*loopOptions) error
}

// loopOptionImpl implements LoopOption.
type loopOptionImpl struct {
	applyLoopFunc func(*loopOptions) error
}

func (l *loopOptionImpl) applyLoop(opts *loopOptions) error {
	return l.applyLoopFunc(opts)
}

// WithLogger attaches a structured logger, used to report recovered panics
// and loop lifecycle events. A nil logger disables logging.
func WithLogger(logger *logiface.Logger[logiface.Event]) LoopOption {
	return &loopOptionImpl{func(opts *loopOptions) error {
		opts.logger = logger
		return nil
	}}
}

// WithFrameInterval sets the minimum period between animation frame
// callback batches. It must be positive.
func WithFrameInterval(interval time.Duration) LoopOption {
	return &loopOptionImpl{func(opts *loopOptions) error {
		if interval <= 0 {
			return fmt.Errorf("eventloop: invalid frame interval: %s", interval)
		}
		opts.frameInterval = interval
		return nil
	}}
}

// WithStrictMicrotaskOrdering sets whether microtasks should be drained
// after each task, timer and frame callback, rather than once per tick.
func WithStrictMicrotaskOrdering(enabled bool) LoopOption {
	return &loopOptionImpl{func(opts *loopOptions) error {
		opts.strictMicrotaskOrdering = enabled
		return nil
	}}
}

// WithMetrics enables runtime counters, accessible via Loop.Metrics().
func WithMetrics(enabled bool) LoopOption {
	return &loopOptionImpl{func(opts *loopOptions) error {
		opts.metricsEnabled = enabled
		return nil
	}}
}

// resolveLoopOptions applies LoopOption instances to loopOptions.
func resolveLoopOptions(opts []LoopOption) (*loopOptions, error) {
	cfg := &loopOptions{
		frameInterval: DefaultFrameInterval,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyLoop(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}
