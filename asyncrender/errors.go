// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package asyncrender

import (
	"errors"
	"fmt"

	"github.com/joeycumines/go-asyncrender/async"
)

var (
	// ErrSessionBusy is returned by [Session.Next] while a previous step is
	// still pulling its chunk.
	ErrSessionBusy = errors.New("asyncrender: session step in progress")

	// ErrForceRender is the cause attached to operations cancelled by
	// [Renderer.ForceRender].
	ErrForceRender = errors.New("asyncrender: force render")
)

// RenderError is the rejection reason of a task whose [RenderFunc] failed.
type RenderError struct {
	Err   error
	Group async.Group
	// Step is the ordinal of the task within its session.
	Step int
}

// Error implements the error interface.
func (e *RenderError) Error() string {
	return fmt.Sprintf("asyncrender: render failed: group %q: step %d: %v", string(e.Group), e.Step, e.Err)
}

// Unwrap returns the underlying error.
func (e *RenderError) Unwrap() error {
	return e.Err
}

// DestructorError reports a [Destructor] that failed during cancellation.
// It is only logged, as cleanup continues regardless.
type DestructorError struct {
	Err   error
	Node  Node
	Group async.Group
}

// Error implements the error interface.
func (e *DestructorError) Error() string {
	return fmt.Sprintf("asyncrender: destructor failed: group %q: %v", string(e.Group), e.Err)
}

// Unwrap returns the underlying error.
func (e *DestructorError) Unwrap() error {
	return e.Err
}
