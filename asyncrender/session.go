// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package asyncrender

import (
	"errors"

	"github.com/joeycumines/go-asyncrender/eventloop"
	"github.com/joeycumines/go-asyncrender/iterable"
)

// Session is one iteration over a source, see [Renderer.Iterate]. It is
// consumed one step at a time, each step pulling a chunk and rendering it
// as a daemon task. Chunks are delivered in source order.
type Session struct {
	r        *Renderer
	src      iterable.Source
	opts     *iterateOptions
	render   RenderFunc
	desc     *iterable.Descriptor
	current  *Task
	filters  map[*eventloop.Promise]struct{}
	abandon  func()
	perChunk int
	steps    int
	gen      int
	busy     bool
}

func (s *Session) newDescriptor() *iterable.Descriptor {
	filter := s.opts.filter
	if filter != nil {
		filter = s.watchFilter(filter)
	}
	return iterable.NewDescriptor(
		s.src,
		iterable.WithStart(s.opts.start),
		iterable.WithPerChunk(s.perChunk),
		iterable.WithFilter(filter),
		iterable.WithScheduler(s.r.async.Host()),
	)
}

// watchFilter records the pending results of f until they settle, so they
// can be released by [Session.Stop].
func (s *Session) watchFilter(f iterable.Filter) iterable.Filter {
	return func(el any, index int, ctx iterable.FilterContext) (iterable.FilterResult, error) {
		res, err := f(el, index, ctx)
		if p := res.Promise(); err == nil && p != nil {
			if s.filters == nil {
				s.filters = make(map[*eventloop.Promise]struct{})
			}
			s.filters[p] = struct{}{}
			p.Then(
				func(eventloop.Result) (eventloop.Result, error) {
					delete(s.filters, p)
					return nil, nil
				},
				func(error) (eventloop.Result, error) {
					delete(s.filters, p)
					return nil, nil
				},
			)
		}
		return res, err
	}
}

// Source returns the normalized source.
func (s *Session) Source() iterable.Source { return s.src }

// Current returns the most recently created task, or nil.
func (s *Session) Current() *Task { return s.current }

// Done reports whether the source is exhausted.
func (s *Session) Done() bool {
	return !s.busy && s.desc.State() == iterable.StateDone
}

// Next performs one step, returning a promise that fulfills with the
// rendered *[Fragment], or nil once the session is done.
//
// The promise rejects if the step's chunk could not be pulled (see
// [iterable.FilterRejection] and [iterable.SourceError]), if its task was
// cancelled (see [async.CancelledError]), or if rendering failed (see
// [RenderError]). None of these end the session, except a
// [iterable.SourceError].
//
// A filter error (see [iterable.FilterError]) raised while pulling
// synchronously is returned directly, as is [ErrSessionBusy].
func (s *Session) Next() (*eventloop.Promise, error) {
	if s.busy {
		return nil, ErrSessionBusy
	}
	host := s.r.async.Host()
	desc := s.desc
	chunk, wait, err := poll(desc)
	switch {
	case err != nil:
		var filterErr *iterable.FilterError
		if errors.As(err, &filterErr) {
			return nil, err
		}
		return eventloop.RejectedPromise(host, err), nil
	case wait == nil:
		return s.dispatch(chunk), nil
	}

	p, resolve, reject := eventloop.NewPromise(host)
	s.busy = true
	s.abandon = func() { resolve(nil) }
	s.await(desc, s.gen, wait, resolve, reject)
	return p, nil
}

func (s *Session) await(desc *iterable.Descriptor, gen int, wait *eventloop.Promise, resolve eventloop.ResolveFunc, reject eventloop.RejectFunc) {
	wait.Then(func(eventloop.Result) (eventloop.Result, error) {
		chunk, next, err := poll(desc)
		if next != nil {
			s.await(desc, gen, next, resolve, reject)
			return nil, nil
		}
		if gen == s.gen {
			s.busy = false
			s.abandon = nil
		}
		if err != nil {
			reject(err)
		} else {
			resolve(s.dispatch(chunk))
		}
		return nil, nil
	}, nil)
}

// poll skips empty chunks, except the final one.
func poll(desc *iterable.Descriptor) (iterable.Chunk, *eventloop.Promise, error) {
	for {
		chunk, wait, err := desc.Poll()
		if err != nil || wait != nil || chunk.Done || len(chunk.Elements) != 0 {
			return chunk, wait, err
		}
	}
}

// dispatch enqueues the task rendering chunk, returning its promise.
func (s *Session) dispatch(chunk iterable.Chunk) *eventloop.Promise {
	if len(chunk.Elements) == 0 {
		return eventloop.Resolved(s.r.async.Host(), nil)
	}
	t := s.r.newTask(s.opts, s.render, chunk, s.steps)
	s.steps++
	s.current = t
	s.r.daemon.Enqueue(&t.work)
	return t.promise
}

// Run steps through the session until it is done, passing each fragment,
// or the reason a step failed, to onFragment (which may be nil). Failed
// steps are skipped. The returned promise fulfills with the number of
// fragments rendered.
func (s *Session) Run(onFragment func(*Fragment, error)) *eventloop.Promise {
	p, resolve, reject := eventloop.NewPromise(s.r.async.Host())
	report := func(f *Fragment, err error) {
		if onFragment != nil {
			onFragment(f, err)
		}
	}
	var (
		rendered int
		step     func()
	)
	step = func() {
		for {
			next, err := s.Next()
			if errors.Is(err, ErrSessionBusy) {
				reject(err)
				return
			}
			if err != nil {
				report(nil, err)
				continue
			}
			next.Then(
				func(v eventloop.Result) (eventloop.Result, error) {
					if v == nil {
						resolve(rendered)
						return nil, nil
					}
					rendered++
					report(v.(*Fragment), nil)
					step()
					return nil, nil
				},
				func(err error) (eventloop.Result, error) {
					report(nil, err)
					step()
					return nil, nil
				},
			)
			return
		}
	}
	step()
	return p
}

// Restart begins a new iteration over the same source. A pending source is
// not resolved again. Steps already dispatched are unaffected, and a step
// still pulling from the previous iteration fulfills with nil.
func (s *Session) Restart() {
	s.desc.Stop()
	s.release()
	s.desc = s.newDescriptor()
}

// Stop ends the session, releasing the source along with any wait created
// by [Renderer.WaitForceRender]. A step still pulling fulfills with nil.
// Steps already dispatched are unaffected, see [Renderer.Cancel].
func (s *Session) Stop() {
	s.desc.Stop()
	s.release()
}

func (s *Session) release() {
	for p := range s.filters {
		s.r.releaseWait(p)
	}
	clear(s.filters)
	if s.abandon != nil {
		s.abandon()
		s.abandon = nil
	}
	s.busy = false
	s.gen++
}
