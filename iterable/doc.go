// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Package iterable turns arbitrary values into a uniform, pull-based,
// chunked iteration protocol.
//
// [Normalize] converts a value into a [Source], a tagged union over ranges,
// sequences, grapheme clusters, entries, native (sync and async) iterables,
// and pending promises. A [Descriptor] then reads a source in chunks of up
// to N elements per pull, applying an optional (possibly asynchronous)
// [Filter], via an explicit state machine driven by [Descriptor.Poll].
package iterable
