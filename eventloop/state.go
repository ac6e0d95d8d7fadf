// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package eventloop

import (
	"sync/atomic"
)

// LoopState represents the current state of the event loop.
//
// State Machine:
//
//	StateAwake → StateRunning            [Run()]
//	StateRunning → StateSleeping         [idle, via CAS]
//	StateSleeping → StateRunning         [wake, via CAS]
//	StateRunning → StateTerminating      [Shutdown(), Close(), ctx done]
//	StateSleeping → StateTerminating     [Shutdown(), Close(), ctx done]
//	StateAwake → StateTerminated         [Shutdown() before Run()]
//	StateTerminating → StateTerminated   [queues drained]
//
// Use TryTransition (CAS) for the temporary states (Running, Sleeping), and
// Store only for the irreversible StateTerminated.
type LoopState uint64

const (
	// StateAwake indicates the loop has been created but not started.
	StateAwake LoopState = iota
	// StateRunning indicates the loop is actively processing a tick.
	StateRunning
	// StateSleeping indicates the loop is idle, waiting for work or a deadline.
	StateSleeping
	// StateTerminating indicates shutdown has been requested but not completed.
	StateTerminating
	// StateTerminated indicates the loop has stopped and rejects new work.
	StateTerminated
)

// String returns a human-readable representation of the state.
func (s LoopState) String() string {
	switch s {
	case StateAwake:
		return "Awake"
	case StateRunning:
		return "Running"
	case StateSleeping:
		return "Sleeping"
	case StateTerminating:
		return "Terminating"
	case StateTerminated:
		return "Terminated"
	default:
		return "Unknown"
	}
}

// FastState is a lock-free state machine with cache-line padding.
type FastState struct { // betteralign:ignore
	_ [64]byte      //nolint:unused
	v atomic.Uint64 // State value
	_ [56]byte      //nolint:unused
}

// NewFastState creates a new state machine in the Awake state.
func NewFastState() *FastState {
	s := &FastState{}
	s.v.Store(uint64(StateAwake))
	return s
}

// Load returns the current state atomically.
func (s *FastState) Load() LoopState {
	return LoopState(s.v.Load())
}

// Store atomically stores a new state, without transition validation.
func (s *FastState) Store(state LoopState) {
	s.v.Store(uint64(state))
}

// TryTransition attempts to atomically transition from one state to another.
func (s *FastState) TryTransition(from, to LoopState) bool {
	return s.v.CompareAndSwap(uint64(from), uint64(to))
}

// IsTerminal returns true if the loop has fully stopped.
func (s *FastState) IsTerminal() bool {
	return s.Load() == StateTerminated
}

// IsStopping returns true once shutdown has been requested.
func (s *FastState) IsStopping() bool {
	state := s.Load()
	return state == StateTerminating || state == StateTerminated
}

// CanAcceptWork returns true if the loop can accept new work.
func (s *FastState) CanAcceptWork() bool {
	return s.Load() != StateTerminated
}
