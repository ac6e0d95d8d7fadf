// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package eventloop

import (
	"sync"
)

// chunkSize is the number of callbacks held by each node of a ChunkedIngress.
const chunkSize = 128

// ChunkedIngress is a FIFO queue of callbacks, stored as a linked list of
// fixed-size chunks, so pushes never move existing entries.
//
// It is not safe for concurrent use; the Loop guards each instance with its
// mutex.
type ChunkedIngress struct { // betteralign:ignore
	head   *chunk
	tail   *chunk
	length int
}

var chunkPool = sync.Pool{
	New: func() any {
		return &chunk{}
	},
}

type chunk struct {
	tasks   [chunkSize]func()
	next    *chunk
	readPos int
	pos     int
}

func newChunk() *chunk {
	c := chunkPool.Get().(*chunk)
	c.pos = 0
	c.readPos = 0
	c.next = nil
	return c
}

// returnChunk recycles an exhausted chunk, dropping closure references first.
func returnChunk(c *chunk) {
	for i := 0; i < c.pos; i++ {
		c.tasks[i] = nil
	}
	c.pos = 0
	c.readPos = 0
	c.next = nil
	chunkPool.Put(c)
}

// NewChunkedIngress creates a new, empty queue.
func NewChunkedIngress() *ChunkedIngress {
	return &ChunkedIngress{}
}

// Push appends fn to the queue.
func (q *ChunkedIngress) Push(fn func()) {
	if q.tail == nil {
		q.tail = newChunk()
		q.head = q.tail
	}
	if q.tail.pos == len(q.tail.tasks) {
		next := newChunk()
		q.tail.next = next
		q.tail = next
	}
	q.tail.tasks[q.tail.pos] = fn
	q.tail.pos++
	q.length++
}

// Pop removes and returns the oldest callback, or false if the queue is empty.
func (q *ChunkedIngress) Pop() (func(), bool) {
	if q.head == nil || q.length == 0 {
		return nil, false
	}
	if q.head.readPos >= q.head.pos {
		// only reachable when head is exhausted but a later chunk is not
		old := q.head
		q.head = q.head.next
		returnChunk(old)
	}

	fn := q.head.tasks[q.head.readPos]
	q.head.tasks[q.head.readPos] = nil
	q.head.readPos++
	q.length--

	if q.head.readPos >= q.head.pos {
		if q.head == q.tail {
			q.head.pos = 0
			q.head.readPos = 0
		} else {
			old := q.head
			q.head = q.head.next
			returnChunk(old)
		}
	}

	return fn, true
}

// PopBatch moves up to len(buf) callbacks into buf, returning the count.
func (q *ChunkedIngress) PopBatch(buf []func()) int {
	n := 0
	for n < len(buf) {
		fn, ok := q.Pop()
		if !ok {
			break
		}
		buf[n] = fn
		n++
	}
	return n
}

// Length returns the number of queued callbacks.
func (q *ChunkedIngress) Length() int {
	return q.length
}
