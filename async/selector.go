// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package async

import (
	"regexp"
)

// Group labels a set of related operations, so they may be cleared
// together.
type Group string

// Selector selects the registered groups cleared by [Async.ClearAll].
type Selector interface {
	// Match reports whether the group is selected.
	Match(group Group) bool
}

// SelectorFunc adapts a function to [Selector].
type SelectorFunc func(group Group) bool

// Match implements [Selector].
func (f SelectorFunc) Match(group Group) bool { return f(group) }

type labelSelector Group

func (s labelSelector) Match(group Group) bool { return Group(s) == group }

// Label selects exactly one group.
func Label(name string) Selector { return labelSelector(name) }

type patternSelector struct{ re *regexp.Regexp }

func (s patternSelector) Match(group Group) bool { return s.re.MatchString(string(group)) }

// Pattern selects every registered group whose name matches re. Note that
// re is unanchored, as with [regexp.Regexp.MatchString].
func Pattern(re *regexp.Regexp) Selector {
	if re == nil {
		panic(`async: nil pattern`)
	}
	return patternSelector{re}
}

// All selects every registered group.
func All() Selector {
	return SelectorFunc(func(Group) bool { return true })
}
