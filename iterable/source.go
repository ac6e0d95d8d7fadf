// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package iterable

import (
	"iter"
	"reflect"
	"strconv"

	"github.com/joeycumines/go-asyncrender/eventloop"
	"github.com/rivo/uniseg"
)

// Kind identifies the variant of a [Source].
type Kind int

const (
	KindEmpty Kind = iota
	KindBoundedRange
	KindUnboundedRange
	KindSequence
	KindCharacters
	KindEntries
	KindNativeIterable
	KindNativeAsyncIterable
	KindPendingSource
)

var kindNames = [...]string{
	KindEmpty:               "Empty",
	KindBoundedRange:        "BoundedRange",
	KindUnboundedRange:      "UnboundedRange",
	KindSequence:            "Sequence",
	KindCharacters:          "Characters",
	KindEntries:             "Entries",
	KindNativeIterable:      "NativeIterable",
	KindNativeAsyncIterable: "NativeAsyncIterable",
	KindPendingSource:       "PendingSource",
}

// String returns the variant name.
func (k Kind) String() string {
	if k >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "Kind(" + strconv.Itoa(int(k)) + ")"
}

// Entry is a key/value pair, the element type of [KindEntries] sources.
type Entry struct {
	Key   any
	Value any
}

// Iterable may be implemented by values that provide their own
// (synchronous) iteration. Each call to All must start a new iteration.
type Iterable interface {
	All() iter.Seq[any]
}

// Step is the fulfilment value of [AsyncIterator.Next].
type Step struct {
	Value any
	Done  bool
}

// AsyncIterator is a cursor over an asynchronous sequence.
type AsyncIterator interface {
	// Next requests the next element, returning a promise that fulfills
	// with a [Step], settling on sched.
	Next(sched eventloop.Scheduler) *eventloop.Promise
	// Stop releases the cursor. Pending pulls may reject with
	// [ErrStopped].
	Stop()
}

// AsyncIterable may be implemented by values that provide asynchronous
// iteration. Each call to AsyncIterator must start a new iteration.
type AsyncIterable interface {
	AsyncIterator() AsyncIterator
}

// Iterator is a cursor over a synchronous sequence.
type Iterator interface {
	// Next returns the next element, or false once exhausted.
	Next() (any, bool)
	// Stop releases the cursor.
	Stop()
}

// Source is a normalized iterable value, see [Normalize]. The zero value is
// an empty source.
//
// Sources are immutable, and never consumed: each iteration obtains a new
// cursor. The exception is channel-backed async sources, as receiving from
// a channel is inherently destructive.
type Source struct {
	seq       reflect.Value
	native    iter.Seq[any]
	async     AsyncIterable
	pending   *eventloop.Promise
	str       string
	entries   []Entry
	start     int
	end       int
	direction int
	kind      Kind
}

// Empty returns an empty source.
func Empty() Source { return Source{} }

// BoundedRange returns a source yielding start, start+1, ..., end-1.
func BoundedRange(start, end int) Source {
	if end < start {
		end = start
	}
	return Source{kind: KindBoundedRange, start: start, end: end}
}

// UnboundedRange returns an infinite source, yielding 0, then stepping by
// direction (normalized to +1 or -1).
func UnboundedRange(direction int) Source {
	if direction < 0 {
		direction = -1
	} else {
		direction = 1
	}
	return Source{kind: KindUnboundedRange, direction: direction}
}

// Sequence returns a source over the elements of a slice or array.
func Sequence[E any](elements []E) Source {
	return Source{kind: KindSequence, seq: reflect.ValueOf(elements)}
}

// Characters returns a source over the grapheme clusters of s.
func Characters(s string) Source {
	return Source{kind: KindCharacters, str: s}
}

// Entries returns a source over the given key/value pairs, in order.
func Entries(entries ...Entry) Source {
	return Source{kind: KindEntries, entries: entries}
}

// Native returns a source over a (restartable) sequence.
func Native(seq iter.Seq[any]) Source {
	if seq == nil {
		return Empty()
	}
	return Source{kind: KindNativeIterable, native: seq}
}

// NativeAsync returns a source over an asynchronous iterable.
func NativeAsync(it AsyncIterable) Source {
	if it == nil {
		return Empty()
	}
	return Source{kind: KindNativeAsyncIterable, async: it}
}

// Pending returns a source whose value is the (normalized) fulfilment
// value of p.
func Pending(p *eventloop.Promise) Source {
	if p == nil {
		return Empty()
	}
	return Source{kind: KindPendingSource, pending: p}
}

// Kind returns the variant.
func (s Source) Kind() Kind { return s.kind }

// IsAsync reports whether iterating requires waiting on promises.
func (s Source) IsAsync() bool {
	return s.kind == KindNativeAsyncIterable || s.kind == KindPendingSource
}

// Len returns the number of elements, or -1 if it is not known without
// iterating.
func (s Source) Len() int {
	switch s.kind {
	case KindEmpty:
		return 0
	case KindBoundedRange:
		return s.end - s.start
	case KindSequence:
		return s.seq.Len()
	case KindCharacters:
		return uniseg.GraphemeClusterCount(s.str)
	case KindEntries:
		return len(s.entries)
	default:
		return -1
	}
}

// Bounds returns the range of a [KindBoundedRange] source.
func (s Source) Bounds() (start, end int) { return s.start, s.end }

// Direction returns the step of a [KindUnboundedRange] source.
func (s Source) Direction() int { return s.direction }

// Promise returns the promise of a [KindPendingSource] source.
func (s Source) Promise() *eventloop.Promise { return s.pending }

// Iterator returns a new cursor, for synchronous sources. It returns nil
// for async sources.
func (s Source) Iterator() Iterator {
	switch s.kind {
	case KindEmpty:
		return &rangeIterator{}
	case KindBoundedRange:
		return &rangeIterator{next: s.start, end: s.end, step: 1, bounded: true}
	case KindUnboundedRange:
		return &rangeIterator{step: s.direction}
	case KindSequence:
		if values, ok := s.seq.Interface().([]any); ok {
			return &sliceIterator{values: values}
		}
		return &reflectIterator{seq: s.seq}
	case KindCharacters:
		return &characterIterator{g: uniseg.NewGraphemes(s.str)}
	case KindEntries:
		return &entryIterator{entries: s.entries}
	case KindNativeIterable:
		next, stop := iter.Pull(s.native)
		return &pullIterator{next: next, stop: stop}
	default:
		return nil
	}
}

// AsyncIterator returns a new cursor, for [KindNativeAsyncIterable]
// sources. It returns nil otherwise.
func (s Source) AsyncIterator() AsyncIterator {
	if s.kind != KindNativeAsyncIterable {
		return nil
	}
	return s.async.AsyncIterator()
}

// All returns the elements of a synchronous source as a sequence.
func (s Source) All() iter.Seq[any] {
	return func(yield func(any) bool) {
		it := s.Iterator()
		if it == nil {
			return
		}
		defer it.Stop()
		for {
			v, ok := it.Next()
			if !ok || !yield(v) {
				return
			}
		}
	}
}
