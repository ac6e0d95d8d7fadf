// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Package fragment implements a minimal in-memory node tree, as a render
// target for [asyncrender].
package fragment

import (
	"fmt"
	"html"
	"slices"
	"strings"

	"github.com/joeycumines/go-asyncrender/asyncrender"
)

// Element is a node in the tree. An element with an empty Name is a text
// node. It is not safe for concurrent use.
type Element struct {
	Name     string
	Text     string
	parent   *Element
	children []*Element
}

var (
	_ asyncrender.Node   = (*Element)(nil)
	_ asyncrender.Target = (*Element)(nil)
)

// New returns an element, with the given children.
func New(name string, children ...*Element) *Element {
	e := &Element{Name: name}
	for _, child := range children {
		e.appendElement(child)
	}
	return e
}

// Text returns a text node.
func Text(s string) *Element {
	return &Element{Text: s}
}

// Append attaches nodes as the last children, detaching each from any
// previous parent. Nodes must be elements.
func (e *Element) Append(nodes ...asyncrender.Node) {
	for _, node := range nodes {
		child, ok := node.(*Element)
		if !ok {
			panic(fmt.Sprintf("fragment: unsupported node type %T", node))
		}
		e.appendElement(child)
	}
}

func (e *Element) appendElement(child *Element) {
	if child == nil {
		return
	}
	child.Detach()
	child.parent = e
	e.children = append(e.children, child)
}

// Detach removes the element from its parent.
func (e *Element) Detach() {
	if e.parent == nil {
		return
	}
	siblings := e.parent.children
	if i := slices.Index(siblings, e); i >= 0 {
		e.parent.children = slices.Delete(siblings, i, i+1)
	}
	e.parent = nil
}

// Children returns the child elements, excluding text nodes.
func (e *Element) Children() []asyncrender.Node {
	var nodes []asyncrender.Node
	for _, child := range e.children {
		if child.Name != "" {
			nodes = append(nodes, child)
		}
	}
	return nodes
}

// Parent returns the parent element, or nil.
func (e *Element) Parent() *Element {
	return e.parent
}

// Len returns the number of children, including text nodes.
func (e *Element) Len() int {
	return len(e.children)
}

// Render returns the markup of the element, and its descendants.
func (e *Element) Render() string {
	var b strings.Builder
	e.render(&b)
	return b.String()
}

func (e *Element) render(b *strings.Builder) {
	if e.Name == "" {
		b.WriteString(html.EscapeString(e.Text))
		return
	}
	b.WriteByte('<')
	b.WriteString(e.Name)
	b.WriteByte('>')
	b.WriteString(html.EscapeString(e.Text))
	for _, child := range e.children {
		child.render(b)
	}
	b.WriteString("</")
	b.WriteString(e.Name)
	b.WriteByte('>')
}

// String implements fmt.Stringer, see [Element.Render].
func (e *Element) String() string {
	return e.Render()
}
