// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package async

import (
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/joeycumines/go-asyncrender/eventloop"
	"github.com/joeycumines/go-asyncrender/internal/hosttest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProxy_Single(t *testing.T) {
	a := New(hosttest.New())

	var calls, clears int
	p := a.Proxy(func() { calls++ }, ProxyOptions{
		Group:   "g",
		Single:  true,
		OnClear: func(error) { clears++ },
	})
	assert.Equal(t, 1, a.Len("g"))

	assert.True(t, p.Call())
	assert.False(t, p.Call())
	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, a.Len("g"))

	assert.Equal(t, 0, a.ClearAll(Label("g")))
	assert.Equal(t, 0, clears)
}

func TestProxy_MultiUntilCleared(t *testing.T) {
	a := New(hosttest.New())

	var (
		calls  int
		reason error
	)
	p := a.Proxy(func() { calls++ }, ProxyOptions{
		Group:   "g",
		OnClear: func(err error) { reason = err },
	})
	assert.True(t, p.Call())
	assert.True(t, p.Call())

	assert.Equal(t, 1, a.ClearAll(Label("g")))
	assert.False(t, p.Call())
	assert.Equal(t, 2, calls)

	var ce *CancelledError
	require.ErrorAs(t, reason, &ce)
	assert.Equal(t, Group("g"), ce.Group)
	assert.ErrorIs(t, reason, ErrCancelled)
	assert.True(t, p.Handle().Cleared())
}

func TestProxy_OnClearExactlyOnce(t *testing.T) {
	a := New(hosttest.New())

	var clears int
	a.Proxy(func() {}, ProxyOptions{Group: "g", OnClear: func(error) { clears++ }})
	a.ClearAll(Label("g"))
	a.ClearAll(Label("g"))
	a.ClearAll(All())
	assert.Equal(t, 1, clears)
}

func TestAnimationFrame(t *testing.T) {
	host := hosttest.New()
	a := New(host)

	p := a.AnimationFrame("frames")
	assert.Equal(t, eventloop.Pending, p.State())
	host.RunFrame()
	host.RunMicrotasks()

	require.Equal(t, eventloop.Fulfilled, p.State())
	assert.Equal(t, host.Now(), p.Value().(time.Time))
	assert.Empty(t, a.Groups())
}

func TestAnimationFrame_Cleared(t *testing.T) {
	host := hosttest.New()
	a := New(host)

	p := a.AnimationFrame("frames")
	assert.Equal(t, 1, a.ClearAll(Label("frames")))
	assert.Equal(t, 0, host.PendingFrames())

	require.Equal(t, eventloop.Rejected, p.State())
	assert.ErrorIs(t, p.Reason(), ErrCancelled)
}

func TestSetTimeout(t *testing.T) {
	host := hosttest.New()
	a := New(host)

	var fired []string
	_, err := a.SetTimeout(func() { fired = append(fired, "a") }, 10*time.Millisecond, "a")
	require.NoError(t, err)
	_, err = a.SetTimeout(func() { fired = append(fired, "b") }, 10*time.Millisecond, "b")
	require.NoError(t, err)

	assert.Equal(t, 1, a.ClearAll(Label("b")))
	assert.Equal(t, 1, host.PendingTimers())
	host.Advance(10 * time.Millisecond)
	assert.Equal(t, []string{"a"}, fired)
}

func TestPromise_FollowsSource(t *testing.T) {
	host := hosttest.New()
	a := New(host)

	src, resolve, _ := eventloop.NewPromise(host)
	p := a.Promise(src, "g")
	resolve("v")
	host.RunMicrotasks()

	require.Equal(t, eventloop.Fulfilled, p.State())
	assert.Equal(t, "v", p.Value())
	assert.Equal(t, 0, a.Len("g"))
}

func TestPromise_ClearedBeforeSettle(t *testing.T) {
	host := hosttest.New()
	a := New(host)

	src, resolve, _ := eventloop.NewPromise(host)
	p := a.Promise(src, "g")
	a.ClearAll(Label("g"))
	resolve("late")
	host.RunMicrotasks()

	require.Equal(t, eventloop.Rejected, p.State())
	assert.ErrorIs(t, p.Reason(), ErrCancelled)
}

func TestClearAll_Pattern(t *testing.T) {
	a := New(hosttest.New())

	var cleared []Group
	for _, g := range []Group{"render:0", "render:1", "renderer", "other"} {
		g := g
		a.Track(g, func(error) { cleared = append(cleared, g) })
	}

	n := a.ClearAll(Pattern(regexp.MustCompile(`^render:\d+$`)))
	assert.Equal(t, 2, n)
	assert.Equal(t, []Group{"render:0", "render:1"}, cleared)
	assert.Equal(t, []Group{"other", "renderer"}, a.Groups())
}

func TestClearAll_RegistrationOrderWithinGroup(t *testing.T) {
	a := New(hosttest.New())

	var order []int
	for i := 0; i < 5; i++ {
		i := i
		a.Track("g", func(error) { order = append(order, i) })
	}
	done := a.Track("g", func(error) { order = append(order, -1) })
	require.True(t, done.Done())
	require.False(t, done.Done())

	assert.Equal(t, 5, a.ClearAll(Label("g")))
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestClearAll_NewRegistrationsAfterClear(t *testing.T) {
	a := New(hosttest.New())

	a.Track("g", nil)
	a.ClearAll(Label("g"))

	h := a.Track("g", nil)
	assert.True(t, h.Active())
	assert.Equal(t, 1, a.Len("g"))
}

func TestClearAll_Cause(t *testing.T) {
	a := New(hosttest.New())

	cause := errors.New("teardown")
	var reason error
	a.Track("g", func(err error) { reason = err })
	a.ClearAllCause(Label("g"), cause)

	assert.ErrorIs(t, reason, cause)
	assert.ErrorIs(t, reason, ErrCancelled)
	assert.Contains(t, reason.Error(), "teardown")
}

func TestClearAll_OnClearPanicRecovered(t *testing.T) {
	a := New(hosttest.New())

	var second bool
	a.Track("g", func(error) { panic("boom") })
	a.Track("g", func(error) { second = true })

	assert.NotPanics(t, func() { a.ClearAll(Label("g")) })
	assert.True(t, second)
}

func TestClearAll_ReentrantRegistration(t *testing.T) {
	a := New(hosttest.New())

	var inner *Handle
	a.Track("g", func(error) {
		inner = a.Track("g", nil)
	})
	a.ClearAll(Label("g"))

	require.NotNil(t, inner)
	assert.True(t, inner.Active())
	assert.Equal(t, 1, a.Len("g"))
}
