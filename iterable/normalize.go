// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package iterable

import (
	"cmp"
	"fmt"
	"iter"
	"math"
	"reflect"
	"slices"

	"github.com/joeycumines/go-asyncrender/eventloop"
)

var boolType = reflect.TypeFor[bool]()

// Normalize converts value into a [Source]. It is pure: it never consumes
// value, and the same input always yields an equivalent source.
//
// Conversion rules, by shape:
//   - nil (including nil pointers, slices, maps, channels, funcs): empty
//   - [Source]: itself
//   - bool: an unbounded range, counting up (true) or down (false), but
//     only if hasFilter, as the filter is the only way it may terminate;
//     otherwise empty
//   - integers and floats n: the range [0, n), floats are truncated, and
//     negative or NaN values are empty (+Inf follows the bool true rule)
//   - slices and arrays: a sequence of their elements
//   - strings: their grapheme clusters
//   - *[eventloop.Promise]: a pending source, re-normalized on fulfilment
//   - [AsyncIterable], receivable channels: an async source
//   - [Iterable], funcs shaped like [iter.Seq]: a native iterable
//   - funcs shaped like [iter.Seq2]: a native iterable of [Entry]
//   - []Entry: entries, in order
//   - structs (and pointers to them): exported fields as entries, in
//     declaration order
//   - maps: entries, in sorted key order
//   - any other scalar: a single element sequence
//
// Only shapes that cannot be iterated in any sense (send-only channels,
// other funcs, unsafe pointers) are rejected, with an
// [*UnsupportedSourceError].
func Normalize(value any, hasFilter bool) (Source, error) {
	switch v := value.(type) {
	case nil:
		return Empty(), nil
	case Source:
		return v, nil
	case *Source:
		if v == nil {
			return Empty(), nil
		}
		return *v, nil
	case bool:
		return unbounded(v, hasFilter), nil
	case *eventloop.Promise:
		return Pending(v), nil
	case string:
		return Characters(v), nil
	case []Entry:
		if v == nil {
			return Empty(), nil
		}
		return Entries(v...), nil
	case []any:
		if v == nil {
			return Empty(), nil
		}
		return Sequence(v), nil
	case AsyncIterable:
		if isNilValue(v) {
			return Empty(), nil
		}
		return NativeAsync(v), nil
	case Iterable:
		if isNilValue(v) {
			return Empty(), nil
		}
		return Native(v.All()), nil
	case iter.Seq[any]:
		return Native(v), nil
	case iter.Seq2[any, any]:
		return Native(entrySeq(v)), nil
	}
	return normalizeReflect(reflect.ValueOf(value), hasFilter)
}

func normalizeReflect(rv reflect.Value, hasFilter bool) (Source, error) {
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return BoundedRange(0, clampInt(rv.Int())), nil

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		n := rv.Uint()
		if n > math.MaxInt {
			n = math.MaxInt
		}
		return BoundedRange(0, int(n)), nil

	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		switch {
		case math.IsNaN(f) || f <= 0:
			return Empty(), nil
		case math.IsInf(f, 1):
			return unbounded(true, hasFilter), nil
		case f >= math.MaxInt:
			return BoundedRange(0, math.MaxInt), nil
		default:
			return BoundedRange(0, int(f)), nil
		}

	case reflect.Bool:
		return unbounded(rv.Bool(), hasFilter), nil

	case reflect.String:
		return Characters(rv.String()), nil

	case reflect.Slice:
		if rv.IsNil() {
			return Empty(), nil
		}
		if rv.Type().Elem() == reflect.TypeFor[Entry]() {
			return Entries(rv.Convert(reflect.TypeFor[[]Entry]()).Interface().([]Entry)...), nil
		}
		return Source{kind: KindSequence, seq: rv}, nil

	case reflect.Array:
		return Source{kind: KindSequence, seq: rv}, nil

	case reflect.Map:
		if rv.IsNil() {
			return Empty(), nil
		}
		return Entries(mapEntries(rv)...), nil

	case reflect.Struct:
		return Entries(structEntries(rv)...), nil

	case reflect.Pointer:
		if rv.IsNil() {
			return Empty(), nil
		}
		switch rv.Elem().Kind() {
		case reflect.Struct, reflect.Array:
			return normalizeReflect(rv.Elem(), hasFilter)
		}
		return Sequence([]any{rv.Interface()}), nil

	case reflect.Chan:
		if rv.Type().ChanDir()&reflect.RecvDir == 0 {
			return Source{}, &UnsupportedSourceError{Type: rv.Type()}
		}
		if rv.IsNil() {
			return Empty(), nil
		}
		return NativeAsync(channelIterable{ch: rv}), nil

	case reflect.Func:
		if rv.IsNil() {
			return Empty(), nil
		}
		if seq, ok := reflectSeq(rv); ok {
			return Native(seq), nil
		}
		return Source{}, &UnsupportedSourceError{Type: rv.Type()}

	case reflect.UnsafePointer:
		return Source{}, &UnsupportedSourceError{Type: rv.Type()}

	case reflect.Invalid:
		return Empty(), nil

	default:
		// complex numbers, interfaces holding scalars, etc
		return Sequence([]any{rv.Interface()}), nil
	}
}

// MustNormalize is like [Normalize], but panics on error.
func MustNormalize(value any, hasFilter bool) Source {
	src, err := Normalize(value, hasFilter)
	if err != nil {
		panic(err)
	}
	return src
}

func unbounded(up, hasFilter bool) Source {
	if !hasFilter {
		return Empty()
	}
	if up {
		return UnboundedRange(1)
	}
	return UnboundedRange(-1)
}

func clampInt(n int64) int {
	if n > math.MaxInt {
		return math.MaxInt
	}
	if n < 0 {
		return 0
	}
	return int(n)
}

func isNilValue(v any) bool {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		return rv.IsNil()
	}
	return false
}

func entrySeq(seq iter.Seq2[any, any]) iter.Seq[any] {
	return func(yield func(any) bool) {
		for k, v := range seq {
			if !yield(Entry{Key: k, Value: v}) {
				return
			}
		}
	}
}

// reflectSeq adapts funcs shaped like iter.Seq[T] or iter.Seq2[K, V].
func reflectSeq(rv reflect.Value) (iter.Seq[any], bool) {
	t := rv.Type()
	if t.NumIn() != 1 || t.NumOut() != 0 {
		return nil, false
	}
	yieldType := t.In(0)
	if yieldType.Kind() != reflect.Func || yieldType.NumOut() != 1 || yieldType.Out(0) != boolType {
		return nil, false
	}

	switch yieldType.NumIn() {
	case 1:
		return func(yield func(any) bool) {
			rv.Call([]reflect.Value{reflect.MakeFunc(yieldType, func(args []reflect.Value) []reflect.Value {
				return []reflect.Value{reflect.ValueOf(yield(args[0].Interface()))}
			})})
		}, true

	case 2:
		return func(yield func(any) bool) {
			rv.Call([]reflect.Value{reflect.MakeFunc(yieldType, func(args []reflect.Value) []reflect.Value {
				return []reflect.Value{reflect.ValueOf(yield(Entry{Key: args[0].Interface(), Value: args[1].Interface()}))}
			})})
		}, true

	default:
		return nil, false
	}
}

func structEntries(rv reflect.Value) []Entry {
	t := rv.Type()
	entries := make([]Entry, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		entries = append(entries, Entry{Key: field.Name, Value: rv.Field(i).Interface()})
	}
	return entries
}

func mapEntries(rv reflect.Value) []Entry {
	keys := rv.MapKeys()
	slices.SortFunc(keys, compareKeys)
	entries := make([]Entry, len(keys))
	for i, k := range keys {
		entries[i] = Entry{Key: k.Interface(), Value: rv.MapIndex(k).Interface()}
	}
	return entries
}

// compareKeys orders map keys of the same kind naturally, falling back to
// their formatted representation.
func compareKeys(a, b reflect.Value) int {
	if a.Kind() == reflect.Interface {
		a = a.Elem()
	}
	if b.Kind() == reflect.Interface {
		b = b.Elem()
	}
	if a.Kind() == b.Kind() {
		switch a.Kind() {
		case reflect.String:
			return cmp.Compare(a.String(), b.String())
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			return cmp.Compare(a.Int(), b.Int())
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
			return cmp.Compare(a.Uint(), b.Uint())
		case reflect.Float32, reflect.Float64:
			return cmp.Compare(a.Float(), b.Float())
		case reflect.Bool:
			return cmp.Compare(boolInt(a.Bool()), boolInt(b.Bool()))
		}
	}
	return cmp.Compare(fmt.Sprint(valueInterface(a)), fmt.Sprint(valueInterface(b)))
}

func valueInterface(v reflect.Value) any {
	if !v.IsValid() {
		return nil
	}
	return v.Interface()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
