// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package eventloop

import (
	"context"
	"errors"
	"testing"
	"time"
)

// startLoop runs a new loop in a background goroutine, stopping it (and
// waiting for Run to return) on test cleanup.
func startLoop(t *testing.T, opts ...LoopOption) *Loop {
	t.Helper()

	loop, err := New(opts...)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() { runErr <- loop.Run(ctx) }()

	t.Cleanup(func() {
		_ = loop.Close()
		cancel()
		select {
		case err := <-runErr:
			if err != nil && !errors.Is(err, context.Canceled) {
				t.Errorf("Run() returned unexpected error: %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Error("timed out waiting for Run() to return")
		}
	})

	return loop
}

// onLoop runs fn on the loop goroutine and waits for it to complete.
func onLoop(t *testing.T, loop *Loop, fn func()) {
	t.Helper()
	done := make(chan struct{})
	if err := loop.Submit(func() {
		defer close(done)
		fn()
	}); err != nil {
		t.Fatalf("Submit() failed: %v", err)
	}
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for loop task")
	}
}

// await waits for p to settle, failing the test after a timeout.
func await(t *testing.T, p *Promise) (Result, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	v, err := p.Await(ctx)
	if errors.Is(err, context.DeadlineExceeded) && p.State() == Pending {
		t.Fatal("timed out waiting for promise")
	}
	return v, err
}
