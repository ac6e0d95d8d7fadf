// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package iterable

import (
	"reflect"

	"github.com/joeycumines/go-asyncrender/eventloop"
)

// FilterContext is passed to each [Filter] call.
type FilterContext struct {
	Source Source
	// Total is the number of elements accepted so far, in the session.
	Total int
}

// Filter decides whether an element is included. The index is the
// element's position in the original (unfiltered, unskipped) sequence.
//
// A non-nil error (or a panic) aborts the pull, see [FilterError].
type Filter func(el any, index int, ctx FilterContext) (FilterResult, error)

type resultKind uint8

const (
	resultAccept resultKind = iota
	resultReject
	resultPending
)

// FilterResult is the outcome of a [Filter] call. The zero value accepts.
type FilterResult struct {
	pending *eventloop.Promise
	kind    resultKind
}

// Accept includes the element.
func Accept() FilterResult { return FilterResult{kind: resultAccept} }

// Reject excludes the element.
func Reject() FilterResult { return FilterResult{kind: resultReject} }

// Bool accepts if ok is true, and rejects otherwise.
func Bool(ok bool) FilterResult {
	if ok {
		return Accept()
	}
	return Reject()
}

// Await defers the decision to p, see [Truthy] for how its fulfilment
// value is interpreted. A rejection of p is reported as a
// [*FilterRejection], dropping the element. A nil p accepts.
func Await(p *eventloop.Promise) FilterResult {
	if p == nil {
		return Accept()
	}
	return FilterResult{kind: resultPending, pending: p}
}

// IsPending reports whether the result is deferred.
func (r FilterResult) IsPending() bool { return r.kind == resultPending }

// Accepted reports whether the result accepts the element, which is false
// for pending results.
func (r FilterResult) Accepted() bool { return r.kind == resultAccept }

// Promise returns the promise of a pending result.
func (r FilterResult) Promise() *eventloop.Promise { return r.pending }

// Truthy interprets the fulfilment value of a pending filter result. A nil
// value passes, so a filter that merely waits (e.g. on a signal) accepts.
// Booleans are taken as-is; numbers, strings, and collections pass if they
// are non-zero or non-empty; everything else passes.
func Truthy(v any) bool {
	switch v := v.(type) {
	case nil:
		return true
	case bool:
		return v
	case FilterResult:
		return v.kind != resultReject
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Bool:
		return rv.Bool()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int() != 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return rv.Uint() != 0
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		return f != 0 && f == f
	case reflect.String:
		return rv.Len() != 0
	}
	return true
}

// callFilter invokes f, converting a panic into an error.
func callFilter(f Filter, el any, index int, ctx FilterContext) (res FilterResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = eventloop.PanicError{Value: r}
		}
	}()
	return f(el, index, ctx)
}
