// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Package hosttest provides a manually driven host, implementing the subset
// of [eventloop.Loop] used by the scheduling packages, for deterministic
// tests.
package hosttest

import (
	"slices"
	"sync"
	"time"

	"github.com/joeycumines/go-asyncrender/eventloop"
)

// Host records scheduled callbacks, which run only when the test calls one
// of the Run* methods. It is safe for concurrent use, though callbacks always
// run on the goroutine driving it.
type Host struct {
	now        time.Time
	microtasks []func()
	timers     []*timer
	frames     []*frame
	nextTimer  eventloop.TimerID
	nextFrame  eventloop.FrameID
	mu         sync.Mutex
}

type timer struct {
	when time.Time
	fn   func()
	id   eventloop.TimerID
}

type frame struct {
	fn eventloop.FrameFunc
	id eventloop.FrameID
}

// New returns a Host, with its clock at an arbitrary fixed point.
func New() *Host {
	return &Host{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

// QueueMicrotask implements [eventloop.Scheduler].
func (h *Host) QueueMicrotask(fn func()) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.microtasks = append(h.microtasks, fn)
	return nil
}

// SetTimeout records a timer, due at the host clock plus delay.
func (h *Host) SetTimeout(fn func(), delay time.Duration) (eventloop.TimerID, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextTimer++
	h.timers = append(h.timers, &timer{id: h.nextTimer, when: h.now.Add(max(delay, 0)), fn: fn})
	return h.nextTimer, nil
}

// ClearTimeout removes a recorded timer.
func (h *Host) ClearTimeout(id eventloop.TimerID) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, t := range h.timers {
		if t.id == id {
			h.timers = slices.Delete(h.timers, i, i+1)
			return nil
		}
	}
	return eventloop.ErrTimerNotFound
}

// RequestAnimationFrame records a frame callback.
func (h *Host) RequestAnimationFrame(fn eventloop.FrameFunc) (eventloop.FrameID, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextFrame++
	h.frames = append(h.frames, &frame{id: h.nextFrame, fn: fn})
	return h.nextFrame, nil
}

// CancelAnimationFrame removes a recorded frame callback.
func (h *Host) CancelAnimationFrame(id eventloop.FrameID) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, f := range h.frames {
		if f.id == id {
			h.frames = slices.Delete(h.frames, i, i+1)
			return nil
		}
	}
	return eventloop.ErrFrameNotFound
}

// RunMicrotasks runs queued microtasks, including any queued while
// running, returning the number run.
func (h *Host) RunMicrotasks() int {
	var n int
	for {
		h.mu.Lock()
		if len(h.microtasks) == 0 {
			h.mu.Unlock()
			return n
		}
		fn := h.microtasks[0]
		h.microtasks = h.microtasks[1:]
		h.mu.Unlock()
		fn()
		n++
	}
}

// RunFrame runs the frame callbacks pending when it was called, then drains
// microtasks, returning the number of frame callbacks run.
func (h *Host) RunFrame() int {
	h.mu.Lock()
	h.now = h.now.Add(eventloop.DefaultFrameInterval)
	now := h.now
	batch := h.frames
	h.frames = nil
	h.mu.Unlock()

	for _, f := range batch {
		f.fn(now)
		h.RunMicrotasks()
	}
	return len(batch)
}

// Advance moves the host clock forward by d, running due timers in
// deadline order (then microtasks after each), returning the number of
// timers run.
func (h *Host) Advance(d time.Duration) int {
	h.mu.Lock()
	deadline := h.now.Add(d)
	h.mu.Unlock()

	var n int
	for {
		h.mu.Lock()
		idx := -1
		for i, t := range h.timers {
			if !t.when.After(deadline) && (idx == -1 || t.when.Before(h.timers[idx].when)) {
				idx = i
			}
		}
		if idx == -1 {
			h.now = deadline
			h.mu.Unlock()
			return n
		}
		t := h.timers[idx]
		h.timers = slices.Delete(h.timers, idx, idx+1)
		if t.when.After(h.now) {
			h.now = t.when
		}
		h.mu.Unlock()

		t.fn()
		h.RunMicrotasks()
		n++
	}
}

// Settle repeatedly runs microtasks, zero-delay timers, and frames, until
// nothing is pending, returning the number of frames run. It gives up after
// maxFrames frames, to bound runaway rescheduling.
func (h *Host) Settle(maxFrames int) int {
	var frames int
	for {
		h.RunMicrotasks()
		h.Advance(0)
		if h.PendingFrames() == 0 {
			if h.PendingMicrotasks() == 0 {
				return frames
			}
			continue
		}
		if frames >= maxFrames {
			return frames
		}
		h.RunFrame()
		frames++
	}
}

// PendingMicrotasks returns the number of queued microtasks.
func (h *Host) PendingMicrotasks() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.microtasks)
}

// PendingFrames returns the number of pending frame callbacks.
func (h *Host) PendingFrames() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.frames)
}

// PendingTimers returns the number of pending timers.
func (h *Host) PendingTimers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.timers)
}

// Now returns the host clock.
func (h *Host) Now() time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.now
}
