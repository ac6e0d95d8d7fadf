// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package async

import (
	"errors"
	"fmt"
)

// ErrCancelled is matched (via [errors.Is]) by every [*CancelledError].
var ErrCancelled = errors.New("async: cancelled")

// CancelledError is the reason delivered to operations registered under a
// group that was cleared before they ran.
type CancelledError struct {
	// Cause is the reason passed to [Async.ClearAllCause], if any.
	Cause error
	Group Group
}

// Error implements the error interface.
func (e *CancelledError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("async: group %q: cleared: %v", string(e.Group), e.Cause)
	}
	return fmt.Sprintf("async: group %q: cleared", string(e.Group))
}

// Is reports true for [ErrCancelled].
func (e *CancelledError) Is(target error) bool {
	return target == ErrCancelled
}

// Unwrap returns the cause, if any.
func (e *CancelledError) Unwrap() error {
	return e.Cause
}
