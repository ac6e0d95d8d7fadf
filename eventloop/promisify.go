// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package eventloop

import (
	"context"
	"errors"
)

// ErrGoexit rejects a promisified call whose goroutine exited via
// runtime.Goexit.
var ErrGoexit = errors.New("eventloop: goroutine exited via runtime.Goexit")

// Promisify runs fn in a new goroutine, returning a promise settled (on the
// loop goroutine) with its result.
//
// The promise always settles: panics reject with [PanicError], Goexit
// rejects with [ErrGoexit], and if the loop has stopped, settlement happens
// directly on the calling goroutine instead.
func (l *Loop) Promisify(ctx context.Context, fn func(ctx context.Context) (Result, error)) *Promise {
	p, resolve, reject := NewPromise(l)

	l.promisifyMu.Lock()
	if l.state.IsStopping() {
		l.promisifyMu.Unlock()
		reject(ErrLoopTerminated)
		return p
	}
	l.promisifyWg.Add(1)
	l.promisifyMu.Unlock()

	settle := func(res Result, err error) {
		apply := func() {
			if err != nil {
				reject(err)
			} else {
				resolve(res)
			}
		}
		if l.Submit(apply) != nil {
			apply()
		}
	}

	go func() {
		defer l.promisifyWg.Done()

		if err := ctx.Err(); err != nil {
			settle(nil, err)
			return
		}

		completed := false
		defer func() {
			if r := recover(); r != nil {
				settle(nil, PanicError{Value: r})
			} else if !completed {
				settle(nil, ErrGoexit)
			}
		}()

		res, err := fn(ctx)
		completed = true
		settle(res, err)
	}()

	return p
}
