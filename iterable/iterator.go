// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package iterable

import (
	"reflect"
	"sync"

	"github.com/joeycumines/go-asyncrender/eventloop"
	"github.com/rivo/uniseg"
)

type rangeIterator struct {
	next    int
	end     int
	step    int
	bounded bool
}

func (x *rangeIterator) Next() (any, bool) {
	if x.step == 0 || (x.bounded && x.next >= x.end) {
		return nil, false
	}
	v := x.next
	x.next += x.step
	return v, true
}

func (x *rangeIterator) Stop() { x.step = 0 }

type sliceIterator struct {
	values []any
	i      int
}

func (x *sliceIterator) Next() (any, bool) {
	if x.i >= len(x.values) {
		return nil, false
	}
	v := x.values[x.i]
	x.i++
	return v, true
}

func (x *sliceIterator) Stop() { x.i = len(x.values) }

type reflectIterator struct {
	seq reflect.Value
	i   int
}

func (x *reflectIterator) Next() (any, bool) {
	if x.i >= x.seq.Len() {
		return nil, false
	}
	v := x.seq.Index(x.i).Interface()
	x.i++
	return v, true
}

func (x *reflectIterator) Stop() { x.i = x.seq.Len() }

type characterIterator struct {
	g *uniseg.Graphemes
}

func (x *characterIterator) Next() (any, bool) {
	if x.g == nil || !x.g.Next() {
		return nil, false
	}
	return x.g.Str(), true
}

func (x *characterIterator) Stop() { x.g = nil }

type entryIterator struct {
	entries []Entry
	i       int
}

func (x *entryIterator) Next() (any, bool) {
	if x.i >= len(x.entries) {
		return nil, false
	}
	v := x.entries[x.i]
	x.i++
	return v, true
}

func (x *entryIterator) Stop() { x.i = len(x.entries) }

type pullIterator struct {
	next func() (any, bool)
	stop func()
}

func (x *pullIterator) Next() (any, bool) { return x.next() }

func (x *pullIterator) Stop() { x.stop() }

// channelIterable adapts a receivable channel (of any element type).
type channelIterable struct {
	ch reflect.Value
}

func (x channelIterable) AsyncIterator() AsyncIterator {
	return &channelIterator{ch: x.ch, stop: make(chan struct{})}
}

type channelIterator struct {
	ch   reflect.Value
	stop chan struct{}
	once sync.Once
}

func (x *channelIterator) Next(sched eventloop.Scheduler) *eventloop.Promise {
	select {
	case <-x.stop:
		return eventloop.RejectedPromise(sched, ErrStopped)
	default:
	}

	if v, ok := x.ch.TryRecv(); v.IsValid() {
		if !ok {
			return eventloop.Resolved(sched, Step{Done: true})
		}
		return eventloop.Resolved(sched, Step{Value: v.Interface()})
	}

	p, resolve, reject := eventloop.NewPromise(sched)
	go func() {
		chosen, v, ok := reflect.Select([]reflect.SelectCase{
			{Dir: reflect.SelectRecv, Chan: x.ch},
			{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(x.stop)},
		})
		switch {
		case chosen == 1:
			reject(ErrStopped)
		case !ok:
			resolve(Step{Done: true})
		default:
			resolve(Step{Value: v.Interface()})
		}
	}()
	return p
}

func (x *channelIterator) Stop() {
	x.once.Do(func() { close(x.stop) })
}

// Channel returns an async source receiving from ch, until it is closed.
func Channel[T any](ch <-chan T) Source {
	if ch == nil {
		return Empty()
	}
	return NativeAsync(channelIterable{ch: reflect.ValueOf(ch)})
}
