// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package vqm

import "gonum.org/v1/gonum/stat"

// Window is a fixed capacity sliding window of values, oldest value is evicted
// on overflow.
type Window struct {
	values []float64
	next   int
	full   bool
}

// NewWindow creates Window holding at most capacity values (minimum 1).
func NewWindow(capacity int) *Window {
	if capacity < 1 {
		capacity = 1
	}
	return &Window{values: make([]float64, 0, capacity)}
}

// Push adds v, evicting the oldest value when full.
func (w *Window) Push(v float64) {
	if !w.full {
		w.values = append(w.values, v)
		w.full = len(w.values) == cap(w.values)
		return
	}
	w.values[w.next] = v
	w.next = (w.next + 1) % len(w.values)
}

// Len returns count of values held.
func (w *Window) Len() int {
	return len(w.values)
}

// Cap returns window capacity.
func (w *Window) Cap() int {
	return cap(w.values)
}

// Values returns copy of held values, oldest first.
func (w *Window) Values() []float64 {
	out := make([]float64, 0, len(w.values))
	if !w.full {
		return append(out, w.values...)
	}
	out = append(out, w.values[w.next:]...)
	return append(out, w.values[:w.next]...)
}

// Mean returns arithmetic mean of held values, 0 for empty window.
func (w *Window) Mean() float64 {
	if len(w.values) == 0 {
		return 0
	}
	return stat.Mean(w.values, nil)
}
