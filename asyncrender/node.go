// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package asyncrender

import (
	"github.com/joeycumines/go-asyncrender/async"
	"github.com/joeycumines/go-asyncrender/iterable"
)

// Node is a rendered element, which may be attached to a [Target].
type Node interface {
	// Detach removes the node from its parent, if any.
	Detach()
	// Children returns the node's child elements, passed to a [Destructor].
	Children() []Node
}

// Target receives rendered nodes, in chunk order.
type Target interface {
	Append(nodes ...Node)
}

// RenderFunc renders the elements of one chunk. It runs as a daemon task,
// on the host goroutine. A returned error (or panic) fails only this chunk,
// see [RenderError].
type RenderFunc func(chunk iterable.Chunk) ([]Node, error)

// Destructor is called for each materialized node, when its group is
// cancelled, before the node is detached. Returning true indicates the
// destructor detached the node itself.
type Destructor func(node Node, children []Node) (handled bool, err error)

// Fragment is the fulfilment value of a successful step, see
// [Session.Next].
type Fragment struct {
	// Nodes are the rendered nodes, already appended to the target, if any.
	Nodes []Node
	Group async.Group
	Chunk iterable.Chunk
	// Step is the ordinal of the task within its session.
	Step int
}
