// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package async

import (
	"github.com/joeycumines/logiface"
)

// Option configures an [Async] instance.
type Option interface {
	applyAsync(*asyncOptions)
}

type asyncOptions struct {
	logger *logiface.Logger[logiface.Event]
}

type optionFunc func(*asyncOptions)

func (f optionFunc) applyAsync(opts *asyncOptions) { f(opts) }

// WithLogger sets the logger, used to report clears and callback panics.
func WithLogger(logger *logiface.Logger[logiface.Event]) Option {
	return optionFunc(func(opts *asyncOptions) {
		opts.logger = logger
	})
}

func resolveOptions(opts []Option) *asyncOptions {
	cfg := &asyncOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt.applyAsync(cfg)
		}
	}
	return cfg
}
