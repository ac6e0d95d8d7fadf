// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package iterable

import (
	"errors"
	"fmt"
	"reflect"
)

// ErrStopped rejects outstanding async pulls, after the iterator is stopped.
var ErrStopped = errors.New("iterable: iterator stopped")

// UnsupportedSourceError indicates a value that cannot be normalized.
type UnsupportedSourceError struct {
	Type reflect.Type
}

// Error implements the error interface.
func (e *UnsupportedSourceError) Error() string {
	return fmt.Sprintf("iterable: unsupported source type: %v", e.Type)
}

// FilterError wraps an error returned (or panic raised) by a filter, which
// aborted the pull that called it.
type FilterError struct {
	Value any
	Err   error
	Index int
}

// Error implements the error interface.
func (e *FilterError) Error() string {
	return fmt.Sprintf("iterable: filter failed at index %d: %v", e.Index, e.Err)
}

// Unwrap returns the underlying error.
func (e *FilterError) Unwrap() error {
	return e.Err
}

// FilterRejection indicates that a pending filter result rejected. The
// element is dropped.
type FilterRejection struct {
	Value any
	Err   error
	Index int
}

// Error implements the error interface.
func (e *FilterRejection) Error() string {
	return fmt.Sprintf("iterable: pending filter rejected at index %d: %v", e.Index, e.Err)
}

// Unwrap returns the rejection reason.
func (e *FilterRejection) Unwrap() error {
	return e.Err
}

// SourceError indicates that a pending source, or an async iterator, failed.
// The descriptor is done after reporting it.
type SourceError struct {
	Err error
}

// Error implements the error interface.
func (e *SourceError) Error() string {
	return fmt.Sprintf("iterable: source failed: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *SourceError) Unwrap() error {
	return e.Err
}
