// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package async

import (
	"sync"
	"sync/atomic"

	"github.com/joeycumines/go-asyncrender/eventloop"
)

const (
	handleLive int32 = iota
	handleDone
	handleCleared
)

// Handle is a single registration, within a group. It is live until either
// [Handle.Done] is called, or its group is cleared, whichever happens first.
type Handle struct {
	async   *Async
	entry   *groupEntry
	onClear func(reason error)
	remove  func()
	cancel  func()
	mu      sync.Mutex
	state   atomic.Int32
}

// Group returns the group the handle was registered under.
func (h *Handle) Group() Group {
	return h.entry.group
}

// Active reports whether the handle is still live.
func (h *Handle) Active() bool {
	return h.state.Load() == handleLive
}

// Cleared reports whether the handle's group was cleared while it was live.
func (h *Handle) Cleared() bool {
	return h.state.Load() == handleCleared
}

// Done marks the operation complete, reporting false if it was not live
// (already done, or cleared). Exactly one of Done (returning true) and the
// clear notification happens per handle.
func (h *Handle) Done() bool {
	if !h.state.CompareAndSwap(handleLive, handleDone) {
		return false
	}
	h.mu.Lock()
	remove := h.remove
	h.cancel = nil
	h.mu.Unlock()
	if remove != nil {
		remove()
	}
	h.async.release(h.entry, false)
	return true
}

// setCancel attaches the function that cancels the underlying host
// operation, running it immediately if the handle was already cleared.
func (h *Handle) setCancel(fn func()) {
	h.mu.Lock()
	if h.state.Load() == handleCleared {
		h.mu.Unlock()
		fn()
		return
	}
	if h.state.Load() == handleLive {
		h.cancel = fn
	}
	h.mu.Unlock()
}

func (h *Handle) clear(reason error) {
	if !h.state.CompareAndSwap(handleLive, handleCleared) {
		return
	}
	h.mu.Lock()
	cancel := h.cancel
	h.cancel = nil
	h.mu.Unlock()

	h.async.release(h.entry, true)

	if cancel != nil {
		cancel()
	}
	if h.onClear != nil {
		h.safeNotify(reason)
	}
}

func (h *Handle) safeNotify(reason error) {
	defer func() {
		if r := recover(); r != nil {
			h.async.logger.Err().
				Str("group", string(h.entry.group)).
				Err(eventloop.PanicError{Value: r}).
				Log("async: clear callback panicked")
		}
	}()
	h.onClear(reason)
}
