// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package daemon

import (
	"bytes"
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/joeycumines/go-asyncrender/eventloop"
	"github.com/joeycumines/go-asyncrender/internal/hosttest"
	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder builds tasks that append their label to a shared log when run.
type recorder struct {
	ran []string
}

func (r *recorder) task(label string, weight int) *Task {
	return &Task{Weight: weight, Fn: func() bool {
		r.ran = append(r.ran, label)
		return true
	}}
}

func newDaemon(t *testing.T, host Host, opts ...Option) *Daemon {
	t.Helper()
	d, err := New(host, opts...)
	require.NoError(t, err)
	return d
}

func newTestLogger(buf *bytes.Buffer) *logiface.Logger[logiface.Event] {
	return stumpy.L.New(
		stumpy.L.WithStumpy(stumpy.WithWriter(buf), stumpy.WithTimeField(``)),
		stumpy.L.WithLevel(logiface.LevelTrace),
	).Logger()
}

func TestDaemon_budgetDefersOverflow(t *testing.T) {
	host := hosttest.New()
	d := newDaemon(t, host)
	var r recorder
	for _, label := range []string{"a", "b", "c"} {
		require.True(t, d.Enqueue(r.task(label, 4)))
	}
	assert.Equal(t, 3, d.Len())
	assert.Equal(t, 1, host.PendingFrames(), "enqueues share one scheduled tick")
	assert.Empty(t, r.ran, "nothing runs before the tick")

	require.Equal(t, 1, host.RunFrame())
	assert.Equal(t, []string{"a", "b"}, r.ran)
	assert.Equal(t, 1, d.Len())
	assert.Equal(t, 1, host.PendingFrames(), "overflow is rescheduled")

	host.RunFrame()
	assert.Equal(t, []string{"a", "b", "c"}, r.ran)
	assert.Zero(t, d.Len())
	assert.Zero(t, host.PendingFrames())

	m := d.Metrics()
	assert.EqualValues(t, 2, m.Ticks)
	assert.EqualValues(t, 3, m.Executed)
	assert.EqualValues(t, 1, m.Exhausted)
	assert.Equal(t, 8.0, m.WeightMax)
}

func TestDaemon_budgetRespected(t *testing.T) {
	for seed := uint64(0); seed < 30; seed++ {
		rng := rand.New(rand.NewPCG(seed, 7))
		budget := 1 + rng.IntN(12)
		host := hosttest.New()
		d := newDaemon(t, host, WithBudget(budget))

		var (
			tickWeight int
			tickTasks  int
			total      int
		)
		n := 1 + rng.IntN(60)
		for i := 0; i < n; i++ {
			w := rng.IntN(budget + 4)
			d.Enqueue(&Task{Weight: w, Fn: func() bool {
				tickWeight += w
				tickTasks++
				total++
				return true
			}})
		}

		for frames := 0; host.PendingFrames() != 0; frames++ {
			require.Less(t, frames, n+1, "seed %d: too many ticks", seed)
			tickWeight, tickTasks = 0, 0
			host.RunFrame()
			if tickWeight > budget {
				assert.Equal(t, 1, tickTasks, "seed %d: budget %d exceeded by %d tasks (weight %d)", seed, budget, tickTasks, tickWeight)
			}
		}
		assert.Equal(t, n, total, "seed %d", seed)
	}
}

func TestDaemon_oversizedTaskRunsAlone(t *testing.T) {
	host := hosttest.New()
	d := newDaemon(t, host)
	var r recorder
	d.Enqueue(r.task("small", 1))
	d.Enqueue(r.task("huge", 15))
	d.Enqueue(r.task("tiny", 0))

	host.RunFrame()
	assert.Equal(t, []string{"small"}, r.ran)
	host.RunFrame()
	assert.Equal(t, []string{"small", "huge"}, r.ran)
	host.RunFrame()
	assert.Equal(t, []string{"small", "huge", "tiny"}, r.ran)
}

func TestDaemon_zeroWeightFitsFullTick(t *testing.T) {
	host := hosttest.New()
	d := newDaemon(t, host, WithBudget(2))
	var r recorder
	d.Enqueue(r.task("a", 2))
	d.Enqueue(r.task("free", -3))
	d.Enqueue(r.task("b", 1))
	host.RunFrame()
	assert.Equal(t, []string{"a", "free"}, r.ran)
}

func TestDaemon_Remove(t *testing.T) {
	host := hosttest.New()
	d := newDaemon(t, host)
	var r recorder
	a, b, c := r.task("a", 1), r.task("b", 1), r.task("c", 1)
	d.Enqueue(a)
	d.Enqueue(b)
	d.Enqueue(c)

	assert.True(t, d.Remove(b))
	assert.False(t, d.Remove(b))
	assert.False(t, d.Queued(b))
	assert.True(t, d.Queued(c))

	host.RunFrame()
	assert.Equal(t, []string{"a", "c"}, r.ran)
	assert.False(t, d.Remove(a), "already ran")
	assert.EqualValues(t, 1, d.Metrics().Removed)
}

func TestDaemon_removeDuringDrain(t *testing.T) {
	host := hosttest.New()
	d := newDaemon(t, host)
	var r recorder
	victim := r.task("victim", 1)
	d.Enqueue(&Task{Weight: 1, Fn: func() bool {
		r.ran = append(r.ran, "killer")
		d.Remove(victim)
		d.Enqueue(r.task("late", 1))
		return true
	}})
	d.Enqueue(victim)

	host.RunFrame()
	assert.Equal(t, []string{"killer", "late"}, r.ran)
}

func TestDaemon_Enqueue_invalid(t *testing.T) {
	d := newDaemon(t, hosttest.New())
	assert.False(t, d.Enqueue(nil))
	assert.False(t, d.Enqueue(&Task{Weight: 1}))

	task := &Task{Fn: func() bool { return true }}
	assert.True(t, d.Enqueue(task))
	assert.False(t, d.Enqueue(task), "a task is queued at most once")
	assert.Equal(t, 1, d.Len())
}

func TestDaemon_Release(t *testing.T) {
	host := hosttest.New()
	d := newDaemon(t, host)
	var r recorder
	slow := &Task{Weight: 6, Fn: func() bool {
		r.ran = append(r.ran, "slow")
		return false
	}}
	d.Enqueue(slow)
	d.Enqueue(r.task("next", 6))

	host.RunFrame()
	assert.Equal(t, []string{"slow"}, r.ran)
	assert.Equal(t, 6, d.InFlight())

	host.RunFrame()
	assert.Equal(t, []string{"slow"}, r.ran, "in flight weight is charged against later ticks")
	assert.Zero(t, host.PendingFrames(), "blocked on Release, not polling")

	assert.True(t, d.Release(slow))
	assert.False(t, d.Release(slow))
	assert.Zero(t, d.InFlight())
	require.Equal(t, 1, host.PendingFrames())
	host.RunFrame()
	assert.Equal(t, []string{"slow", "next"}, r.ran)
}

func TestDaemon_RestartNow(t *testing.T) {
	host := hosttest.New()
	d := newDaemon(t, host)
	var r recorder
	d.Enqueue(r.task("a", 1))
	d.RestartNow()
	assert.Equal(t, []string{"a"}, r.ran)

	host.RunFrame()
	assert.Equal(t, []string{"a"}, r.ran)
}

func TestDaemon_RestartNow_reentrant(t *testing.T) {
	host := hosttest.New()
	d := newDaemon(t, host)
	var r recorder
	d.Enqueue(&Task{Weight: 10, Fn: func() bool {
		r.ran = append(r.ran, "first")
		d.Enqueue(r.task("second", 1))
		d.RestartNow()
		assert.Equal(t, []string{"first"}, r.ran, "no nested drain")
		return true
	}})

	host.RunFrame()
	assert.Equal(t, []string{"first", "second"}, r.ran, "deferred drain ran in the same frame's microtasks")
	assert.EqualValues(t, 2, d.Metrics().Ticks)
}

func TestDaemon_RestartDeferred(t *testing.T) {
	host := hosttest.New()
	d := newDaemon(t, host)
	var r recorder
	d.Enqueue(r.task("a", 1))
	d.RestartDeferred()
	d.RestartDeferred()
	assert.Equal(t, 1, host.PendingMicrotasks(), "coalesced")
	assert.Empty(t, r.ran)

	host.RunMicrotasks()
	assert.Equal(t, []string{"a"}, r.ran)
}

func TestDaemon_tickModes(t *testing.T) {
	t.Run("timeout", func(t *testing.T) {
		host := hosttest.New()
		d := newDaemon(t, host, WithTickMode(TickTimeout))
		var r recorder
		d.Enqueue(r.task("a", 1))
		assert.Equal(t, 1, host.PendingTimers())
		host.Advance(0)
		assert.Equal(t, []string{"a"}, r.ran)
	})

	t.Run("microtask", func(t *testing.T) {
		host := hosttest.New()
		d := newDaemon(t, host, WithTickMode(TickMicrotask))
		var r recorder
		for _, label := range []string{"a", "b", "c"} {
			d.Enqueue(r.task(label, 5))
		}
		host.RunMicrotasks()
		assert.Equal(t, []string{"a", "b", "c"}, r.ran, "overflow ticks run in the same checkpoint")
		assert.EqualValues(t, 2, d.Metrics().Ticks)
	})
}

func TestDaemon_panicRecovered(t *testing.T) {
	var buf bytes.Buffer
	host := hosttest.New()
	d := newDaemon(t, host, WithLogger(newTestLogger(&buf)))
	var r recorder
	d.Enqueue(&Task{Weight: 1, Fn: func() bool { panic("kaboom") }})
	d.Enqueue(r.task("after", 1))

	host.RunFrame()
	assert.Equal(t, []string{"after"}, r.ran)
	assert.EqualValues(t, 1, d.Metrics().Panics)
	assert.Contains(t, buf.String(), `"lvl":"err"`)
	assert.Contains(t, buf.String(), `"component":"daemon"`)
	assert.Contains(t, buf.String(), `kaboom`)
	assert.Contains(t, buf.String(), `daemon: task panicked`)
}

func TestNew_options(t *testing.T) {
	_, err := New(hosttest.New(), WithBudget(0))
	assert.ErrorContains(t, err, "invalid budget")

	_, err = New(hosttest.New(), WithTickMode(TickMode(9)))
	assert.ErrorContains(t, err, "invalid tick mode")

	d, err := New(hosttest.New(), nil, WithBudget(3))
	require.NoError(t, err)
	assert.Equal(t, 3, d.Budget())

	assert.Panics(t, func() { _, _ = New(nil) })
}

func TestDaemon_eventloop(t *testing.T) {
	var buf bytes.Buffer
	var mu sync.Mutex
	loop, err := eventloop.New(eventloop.WithLogger(newTestLogger(&buf)))
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runErr := make(chan error, 1)
	go func() { runErr <- loop.Run(ctx) }()
	defer func() {
		require.NoError(t, loop.Close())
		select {
		case err := <-runErr:
			if err != nil && !errors.Is(err, context.Canceled) {
				t.Errorf("Run() returned unexpected error: %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Error("timed out waiting for Run() to return")
		}
	}()

	d := newDaemon(t, loop, WithBudget(6))
	const n = 12
	var (
		ran  []int
		done = make(chan struct{})
	)
	require.NoError(t, loop.Submit(func() {
		for i := 0; i < n; i++ {
			d.Enqueue(&Task{Weight: 3, Fn: func() bool {
				mu.Lock()
				ran = append(ran, i)
				finished := len(ran) == n
				mu.Unlock()
				if finished {
					close(done)
				}
				return true
			}})
		}
	}))

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for tasks")
	}
	mu.Lock()
	defer mu.Unlock()
	for i, v := range ran {
		assert.Equal(t, i, v)
	}
	m := d.Metrics()
	assert.EqualValues(t, n/2, m.Ticks)
	assert.Equal(t, 6.0, m.WeightMax)
}
