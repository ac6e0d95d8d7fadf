// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Package sink writes rendered fragments as JSON lines.
package sink

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/joeycumines/go-asyncrender/asyncrender"
	"github.com/joeycumines/go-utilpkg/jsonenc"
)

// Writer encodes one JSON object per line, for each fragment (or failed
// step) it observes. The first write error is sticky. It is safe for
// concurrent use.
type Writer struct {
	w     io.Writer
	buf   []byte
	err   error
	lines int
	mu    sync.Mutex
}

// New returns a Writer, writing to w.
func New(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Observe writes f, or err if non-nil. It has the signature expected by
// [asyncrender.Session.Run].
func (x *Writer) Observe(f *asyncrender.Fragment, err error) {
	if err != nil {
		_ = x.Error(err)
		return
	}
	_ = x.Fragment(f)
}

// Fragment writes a line describing f.
func (x *Writer) Fragment(f *asyncrender.Fragment) error {
	if f == nil {
		return nil
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	b := x.buf[:0]
	b = append(b, `{"step":`...)
	b = strconv.AppendInt(b, int64(f.Step), 10)
	b = append(b, `,"index":`...)
	b = strconv.AppendInt(b, int64(f.Chunk.Index), 10)
	b = append(b, `,"group":`...)
	b = jsonenc.AppendString(b, string(f.Group))
	b = append(b, `,"readIndex":`...)
	b = strconv.AppendInt(b, int64(f.Chunk.ReadIndex), 10)
	b = append(b, `,"done":`...)
	b = strconv.AppendBool(b, f.Chunk.Done)
	b = append(b, `,"elements":[`...)
	for i, el := range f.Chunk.Elements {
		if i != 0 {
			b = append(b, ',')
		}
		b = appendElement(b, el)
	}
	b = append(b, `],"html":`...)
	b = jsonenc.AppendString(b, markup(f.Nodes))
	b = append(b, "}\n"...)
	return x.writeLocked(b)
}

// Error writes a line describing a failed step.
func (x *Writer) Error(err error) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	b := x.buf[:0]
	b = append(b, `{"error":`...)
	b = jsonenc.AppendString(b, err.Error())
	b = append(b, "}\n"...)
	return x.writeLocked(b)
}

func (x *Writer) writeLocked(b []byte) error {
	x.buf = b
	if x.err != nil {
		return x.err
	}
	if _, err := x.w.Write(b); err != nil {
		x.err = err
		return err
	}
	x.lines++
	return nil
}

// Err returns the first write error.
func (x *Writer) Err() error {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.err
}

// Lines returns the number of lines written.
func (x *Writer) Lines() int {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.lines
}

func appendElement(b []byte, el any) []byte {
	switch v := el.(type) {
	case nil:
		return append(b, "null"...)
	case bool:
		return strconv.AppendBool(b, v)
	case int:
		return strconv.AppendInt(b, int64(v), 10)
	case int64:
		return strconv.AppendInt(b, v, 10)
	case uint64:
		return strconv.AppendUint(b, v, 10)
	case float32:
		return jsonenc.AppendFloat32(b, v)
	case float64:
		return jsonenc.AppendFloat64(b, v)
	case string:
		return jsonenc.AppendString(b, v)
	default:
		return jsonenc.AppendString(b, fmt.Sprint(v))
	}
}

func markup(nodes []asyncrender.Node) string {
	var sb strings.Builder
	for _, node := range nodes {
		if s, ok := node.(fmt.Stringer); ok {
			sb.WriteString(s.String())
		}
	}
	return sb.String()
}
