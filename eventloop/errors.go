// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package eventloop

import (
	"errors"
	"fmt"
)

// Standard errors.
var (
	// ErrLoopAlreadyRunning is returned when Run() is called on a loop that is already running.
	ErrLoopAlreadyRunning = errors.New("eventloop: loop is already running")

	// ErrLoopTerminated is returned when operations are attempted on a terminated loop.
	ErrLoopTerminated = errors.New("eventloop: loop has been terminated")

	// ErrReentrantRun is returned when Run() is called from within the loop itself.
	ErrReentrantRun = errors.New("eventloop: cannot call Run() from within the loop")

	// ErrTimerNotFound is returned when cancelling a timer that has fired or never existed.
	ErrTimerNotFound = errors.New("eventloop: timer not found")

	// ErrFrameNotFound is returned when cancelling an animation frame that has run or never existed.
	ErrFrameNotFound = errors.New("eventloop: animation frame not found")
)

// PanicError wraps a value recovered from a panicking callback.
type PanicError struct {
	Value any
}

// Error implements the error interface.
func (e PanicError) Error() string {
	return fmt.Sprintf("eventloop: callback panicked: %v", e.Value)
}

// Unwrap returns the underlying error if the panic value is an error type,
// enabling [errors.Is] and [errors.As] through the recovered value.
func (e PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// AbortError is the default reason used by [AbortController.Abort] when no
// reason is provided.
type AbortError struct {
	Message string
}

// Error implements the error interface.
func (e *AbortError) Error() string {
	if e.Message == "" {
		return "eventloop: operation aborted"
	}
	return e.Message
}
