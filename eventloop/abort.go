// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package eventloop

import (
	"sync"
)

// AbortSignal communicates cancellation of a set of operations, following
// the shape of the DOM AbortSignal.
//
// Thread Safety: safe for concurrent access. Handlers run on the goroutine
// that calls [AbortController.Abort].
type AbortSignal struct { //nolint:govet // betteralign:ignore
	handlers map[uint64]func(reason error)
	order    []uint64
	reason   error
	nextID   uint64
	mu       sync.Mutex
	aborted  bool
}

func newAbortSignal() *AbortSignal {
	return &AbortSignal{
		handlers: make(map[uint64]func(reason error)),
	}
}

// Aborted returns true if the signal has been aborted.
func (s *AbortSignal) Aborted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.aborted
}

// Reason returns the abort reason, or nil if not aborted.
func (s *AbortSignal) Reason() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reason
}

// OnAbort registers handler, to be called once with the abort reason.
// If the signal is already aborted, handler is called immediately.
//
// The returned function unregisters the handler; it is a no-op once the
// handler has run.
func (s *AbortSignal) OnAbort(handler func(reason error)) (remove func()) {
	if handler == nil {
		return func() {}
	}

	s.mu.Lock()
	if s.aborted {
		reason := s.reason
		s.mu.Unlock()
		handler(reason)
		return func() {}
	}
	s.nextID++
	id := s.nextID
	s.handlers[id] = handler
	s.order = append(s.order, id)
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.handlers, id)
		s.mu.Unlock()
	}
}

// ThrowIfAborted returns the abort reason if the signal has been aborted.
func (s *AbortSignal) ThrowIfAborted() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.aborted {
		return s.reason
	}
	return nil
}

// abort marks the signal aborted, then runs the registered handlers in
// registration order. Returns false if it was already aborted.
func (s *AbortSignal) abort(reason error) bool {
	s.mu.Lock()
	if s.aborted {
		s.mu.Unlock()
		return false
	}
	s.aborted = true
	s.reason = reason
	order := s.order
	handlers := s.handlers
	s.order = nil
	s.handlers = nil
	s.mu.Unlock()

	for _, id := range order {
		if h, ok := handlers[id]; ok {
			h(reason)
		}
	}
	return true
}

// AbortController owns an [AbortSignal], and is the only way to abort it.
type AbortController struct {
	signal *AbortSignal
}

// NewAbortController creates a controller with a fresh, un-aborted signal.
func NewAbortController() *AbortController {
	return &AbortController{signal: newAbortSignal()}
}

// Signal returns the controller's signal.
func (c *AbortController) Signal() *AbortSignal {
	return c.signal
}

// Abort aborts the signal with reason (an [*AbortError] if nil). Only the
// first call has an effect, and it reports true.
func (c *AbortController) Abort(reason error) bool {
	if reason == nil {
		reason = &AbortError{}
	}
	return c.signal.abort(reason)
}
