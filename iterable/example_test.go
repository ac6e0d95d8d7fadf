// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package iterable_test

import (
	"fmt"

	"github.com/joeycumines/go-asyncrender/iterable"
)

func ExampleNormalize() {
	for _, value := range []any{3, "añb", map[string]int{"b": 2, "a": 1}, nil} {
		src := iterable.MustNormalize(value, false)
		var elements []any
		for el := range src.All() {
			elements = append(elements, el)
		}
		fmt.Println(src.Kind(), elements)
	}
	//output:
	// BoundedRange [0 1 2]
	// Characters [a ñ b]
	// Entries [{a 1} {b 2}]
	// Empty []
}

func ExampleDescriptor_Poll() {
	d := iterable.NewDescriptor(
		iterable.MustNormalize(true, true),
		iterable.WithStart(2),
		iterable.WithPerChunk(3),
		iterable.WithFilter(func(el any, _ int, _ iterable.FilterContext) (iterable.FilterResult, error) {
			// the first rejection ends an unbounded range
			return iterable.Bool(el.(int) < 7), nil
		}),
	)
	for {
		chunk, _, err := d.Poll()
		if err != nil {
			panic(err)
		}
		fmt.Println(chunk.Index, chunk.Elements, chunk.Done)
		if chunk.Done {
			break
		}
	}
	//output:
	// 0 [2 3 4] false
	// 1 [5 6] true
}
