// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package asyncrender_test

import (
	"errors"
	"testing"
	"time"

	"github.com/joeycumines/go-asyncrender/asyncrender"
	"github.com/joeycumines/go-asyncrender/eventloop"
	"github.com/joeycumines/go-asyncrender/internal/fragment"
	"github.com/joeycumines/go-asyncrender/internal/hosttest"
	"github.com/joeycumines/go-asyncrender/iterable"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSession_pendingSourceBusy(t *testing.T) {
	host := hosttest.New()
	r := newRenderer(t, host)
	src, resolve, _ := eventloop.NewPromise(host)
	var c counter
	s, err := r.Iterate(src, 2, c.render)
	require.NoError(t, err)
	assert.Equal(t, iterable.KindPendingSource, s.Source().Kind())

	p, err := s.Next()
	require.NoError(t, err)
	assert.Equal(t, eventloop.Pending, p.State())
	assert.Nil(t, s.Current(), "no task until a chunk is available")

	_, err = s.Next()
	assert.ErrorIs(t, err, asyncrender.ErrSessionBusy)

	resolve([]string{"a", "b", "c"})
	host.Settle(10)
	require.Equal(t, eventloop.Fulfilled, p.State())
	assert.Equal(t, []any{"a", "b"}, p.Value().(*asyncrender.Fragment).Chunk.Elements)

	p, err = s.Next()
	require.NoError(t, err)
	host.Settle(10)
	assert.Equal(t, []any{"c"}, p.Value().(*asyncrender.Fragment).Chunk.Elements)
	assert.True(t, s.Done())
}

func TestSession_pendingSourceRejected(t *testing.T) {
	host := hosttest.New()
	r := newRenderer(t, host)
	src, _, reject := eventloop.NewPromise(host)
	var c counter
	s, err := r.Iterate(src, 2, c.render)
	require.NoError(t, err)
	p, err := s.Next()
	require.NoError(t, err)

	reject(errors.New("unavailable"))
	host.Settle(10)
	require.Equal(t, eventloop.Rejected, p.State())
	var se *iterable.SourceError
	assert.ErrorAs(t, p.Reason(), &se)
	assert.True(t, s.Done())
	assert.Empty(t, c.calls)
}

func TestSession_Restart(t *testing.T) {
	host := hosttest.New()
	r := newRenderer(t, host)
	src, resolve, _ := eventloop.NewPromise(host)
	var c counter
	s, err := r.Iterate(src, 2, c.render)
	require.NoError(t, err)

	stale, err := s.Next()
	require.NoError(t, err)
	s.Restart()
	p, err := s.Next()
	require.NoError(t, err, "restart clears the busy state")

	resolve([]int{1, 2, 3})
	host.Settle(10)
	require.Equal(t, eventloop.Fulfilled, stale.State())
	assert.Nil(t, stale.Value(), "the previous iteration ends")
	require.Equal(t, eventloop.Fulfilled, p.State())
	assert.Equal(t, []any{1, 2}, p.Value().(*asyncrender.Fragment).Chunk.Elements)

	// restarting from the middle rewinds, reusing the resolved source
	s.Restart()
	done := s.Run(nil)
	host.Settle(10)
	assert.Equal(t, 2, done.Value())
	assert.Equal(t, map[int]int{0: 2, 1: 1}, c.calls)
}

func TestSession_filterErrorReturned(t *testing.T) {
	host := hosttest.New()
	r := newRenderer(t, host)
	boom := errors.New("boom")
	var failed bool
	var c counter
	s, err := r.Iterate([]int{0, 1, 2, 3, 4}, 5, c.render, asyncrender.Filter(func(el any, index int, ctx iterable.FilterContext) (iterable.FilterResult, error) {
		if index == 2 && !failed {
			failed = true
			return iterable.FilterResult{}, boom
		}
		return iterable.Accept(), nil
	}))
	require.NoError(t, err)

	p, err := s.Next()
	assert.Nil(t, p)
	var fe *iterable.FilterError
	require.ErrorAs(t, err, &fe)
	assert.ErrorIs(t, err, boom)
	assert.Nil(t, s.Current())

	p, err = s.Next()
	require.NoError(t, err)
	host.Settle(10)
	require.Equal(t, eventloop.Fulfilled, p.State())
	elements := p.Value().(*asyncrender.Fragment).Chunk.Elements
	require.GreaterOrEqual(t, len(elements), 2)
	assert.Equal(t, []any{0, 1}, elements[:2], "accepted elements carry over")
}

func TestSession_filterRejectionSkipped(t *testing.T) {
	host := hosttest.New()
	r := newRenderer(t, host)
	root := fragment.New("ul")
	var c counter
	s, err := r.Iterate([]int{1, 2, 3}, 1, c.render, asyncrender.WithTarget(root), asyncrender.Filter(func(el any, _ int, _ iterable.FilterContext) (iterable.FilterResult, error) {
		if el == 2 {
			return iterable.Await(eventloop.RejectedPromise(host, errors.New("nope"))), nil
		}
		return iterable.Accept(), nil
	}))
	require.NoError(t, err)

	var failures []error
	done := s.Run(func(f *asyncrender.Fragment, err error) {
		if err != nil {
			failures = append(failures, err)
		}
	})
	host.Settle(20)
	require.Equal(t, eventloop.Fulfilled, done.State())
	assert.Equal(t, 2, done.Value())
	assert.Equal(t, "<ul><li>1</li><li>3</li></ul>", root.Render())
	require.Len(t, failures, 1)
	var fr *iterable.FilterRejection
	assert.ErrorAs(t, failures[0], &fr)
}

func TestSession_Run_busy(t *testing.T) {
	host := hosttest.New()
	r := newRenderer(t, host)
	src, _, _ := eventloop.NewPromise(host)
	var c counter
	s, err := r.Iterate(src, 1, c.render)
	require.NoError(t, err)
	_, err = s.Next()
	require.NoError(t, err)

	done := s.Run(nil)
	require.Equal(t, eventloop.Rejected, done.State())
	assert.ErrorIs(t, done.Reason(), asyncrender.ErrSessionBusy)
}

func TestSession_Stop(t *testing.T) {
	host := hosttest.New()
	r := newRenderer(t, host)
	var c counter
	s, err := r.Iterate(true, 2, c.render, asyncrender.Filter(func(any, int, iterable.FilterContext) (iterable.FilterResult, error) {
		return iterable.Accept(), nil
	}))
	require.NoError(t, err)
	p, err := s.Next()
	require.NoError(t, err)
	s.Stop()
	assert.True(t, s.Done())

	host.Settle(10)
	require.Equal(t, eventloop.Fulfilled, p.State(), "dispatched steps are unaffected")
	assert.Equal(t, []any{0, 1}, p.Value().(*asyncrender.Fragment).Chunk.Elements)

	p, err = s.Next()
	require.NoError(t, err)
	assert.Nil(t, p.Value())
}

func TestSession_channelSource(t *testing.T) {
	host := hosttest.New()
	r := newRenderer(t, host)
	ch := make(chan string, 3)
	ch <- "x"
	ch <- "y"
	close(ch)
	root := fragment.New("ul")
	var c counter
	s, err := r.Iterate(ch, 5, c.render, asyncrender.WithTarget(root))
	require.NoError(t, err)
	assert.Equal(t, iterable.KindNativeAsyncIterable, s.Source().Kind())

	done := s.Run(nil)
	require.Eventually(t, func() bool {
		host.Settle(10)
		return done.State() != eventloop.Pending
	}, 5*time.Second, time.Millisecond)
	require.Equal(t, eventloop.Fulfilled, done.State())
	assert.Equal(t, "<ul><li>x</li><li>y</li></ul>", root.Render())
}
