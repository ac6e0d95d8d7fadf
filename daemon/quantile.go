// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package daemon

import (
	"math"
	"slices"
)

// quantile estimates a single quantile of a stream, in constant space, using
// the P² algorithm (Jain and Chlamtac, 1985). Five markers track the
// minimum, the target quantile, the maximum, and the midpoints between.
//
// It is not safe for concurrent use.
type quantile struct {
	heights  [5]float64
	pos      [5]int
	desired  [5]float64
	step     [5]float64
	seed     [5]float64
	p        float64
	observed int
}

func newQuantile(p float64) *quantile {
	p = min(max(p, 0), 1)
	return &quantile{
		p:    p,
		step: [5]float64{0, p / 2, p, (1 + p) / 2, 1},
	}
}

func (x *quantile) observe(v float64) {
	x.observed++
	if x.observed <= len(x.seed) {
		x.seed[x.observed-1] = v
		if x.observed == len(x.seed) {
			x.start()
		}
		return
	}

	var cell int
	switch {
	case v < x.heights[0]:
		x.heights[0] = v
	case v >= x.heights[4]:
		x.heights[4] = v
		cell = 3
	default:
		for cell = 0; cell < 3; cell++ {
			if v < x.heights[cell+1] {
				break
			}
		}
	}

	for i := cell + 1; i < 5; i++ {
		x.pos[i]++
	}
	for i := range x.desired {
		x.desired[i] += x.step[i]
	}

	for i := 1; i < 4; i++ {
		delta := x.desired[i] - float64(x.pos[i])
		if !(delta >= 1 && x.pos[i+1]-x.pos[i] > 1) && !(delta <= -1 && x.pos[i-1]-x.pos[i] < -1) {
			continue
		}
		dir := 1
		if delta < 0 {
			dir = -1
		}
		if h := x.parabolic(i, dir); x.heights[i-1] < h && h < x.heights[i+1] {
			x.heights[i] = h
		} else {
			x.heights[i] = x.linear(i, dir)
		}
		x.pos[i] += dir
	}
}

func (x *quantile) start() {
	slices.Sort(x.seed[:])
	x.heights = x.seed
	for i := range x.pos {
		x.pos[i] = i
	}
	x.desired = [5]float64{0, 2 * x.p, 4 * x.p, 2 + 2*x.p, 4}
}

func (x *quantile) parabolic(i, dir int) float64 {
	d := float64(dir)
	n, lo, hi := float64(x.pos[i]), float64(x.pos[i-1]), float64(x.pos[i+1])
	return x.heights[i] + d/(hi-lo)*
		((n-lo+d)*(x.heights[i+1]-x.heights[i])/(hi-n)+
			(hi-n-d)*(x.heights[i]-x.heights[i-1])/(n-lo))
}

func (x *quantile) linear(i, dir int) float64 {
	j := i + dir
	return x.heights[i] + float64(dir)*(x.heights[j]-x.heights[i])/float64(x.pos[j]-x.pos[i])
}

// value returns the current estimate. With fewer than five observations, it
// is the nearest-rank quantile of those seen.
func (x *quantile) value() float64 {
	switch {
	case x.observed == 0:
		return 0
	case x.observed < len(x.seed):
		seen := slices.Clone(x.seed[:x.observed])
		slices.Sort(seen)
		return seen[int(float64(len(seen)-1)*x.p)]
	default:
		return x.heights[2]
	}
}

// summary tracks the mean, maximum, and a fixed set of quantiles.
type summary struct {
	quantiles []*quantile
	sum       float64
	max       float64
	count     int
}

func newSummary(ps ...float64) *summary {
	s := &summary{max: math.Inf(-1)}
	for _, p := range ps {
		s.quantiles = append(s.quantiles, newQuantile(p))
	}
	return s
}

func (s *summary) observe(v float64) {
	s.count++
	s.sum += v
	s.max = max(s.max, v)
	for _, q := range s.quantiles {
		q.observe(v)
	}
}

func (s *summary) quantile(i int) float64 {
	if i < 0 || i >= len(s.quantiles) {
		return 0
	}
	return s.quantiles[i].value()
}

func (s *summary) mean() float64 {
	if s.count == 0 {
		return 0
	}
	return s.sum / float64(s.count)
}

func (s *summary) maximum() float64 {
	if s.count == 0 {
		return 0
	}
	return s.max
}
