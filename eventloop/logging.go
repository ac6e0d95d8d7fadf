// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package eventloop

import (
	"github.com/joeycumines/logiface"
)

// Logger returns the logger configured via WithLogger, or nil.
//
// Collaborators built on top of the loop (e.g. the async and daemon
// packages) default to this logger, so one option configures the whole
// stack.
func (l *Loop) Logger() *logiface.Logger[logiface.Event] {
	return l.logger
}

// logPanic reports a recovered callback panic. Categories match the queue
// the callback came from: "task", "microtask", "timer", "frame".
func (l *Loop) logPanic(category string, r any) {
	l.logger.Err().
		Uint64("loop_id", l.id).
		Str("category", category).
		Err(PanicError{Value: r}).
		Log("eventloop: callback panicked")
}

func (l *Loop) logState(msg string) {
	l.logger.Debug().
		Uint64("loop_id", l.id).
		Stringer("state", l.state.Load()).
		Log(msg)
}
