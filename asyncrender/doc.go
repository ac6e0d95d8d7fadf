// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Package asyncrender renders iterable sources incrementally, on an
// [eventloop.Loop].
//
// A [Renderer] combines three collaborators: an [iterable.Descriptor] per
// session, pulling bounded chunks from a normalized source; a
// [daemon.Daemon], executing one render task per chunk, within a per-tick
// weight budget; and an [async.Async], tracking every task (and every
// rendered node) under a cancellation group.
//
// Each step of a [Session] pulls a chunk, wraps its render in a [Task], and
// enqueues the task. The task's promise fulfills with the rendered
// [Fragment], or rejects if the task was cancelled or its render failed.
// Failures are confined to their step: the session, and the daemon, carry
// on.
//
// Cancelling a group (see [Renderer.Cancel]) removes its queued tasks from
// the daemon, rejecting them, and destroys the nodes its completed tasks
// rendered, calling the [Destructor], if any, before detaching them.
package asyncrender
