// Copyright 2016 The Gofem Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package grid

import "github.com/cpmech/gosl/chk"

// Array3d is a dense, bounds-checked I x J x K array of float64, stored in
// i + I*(j + J*k) order.
type Array3d struct {
	isize, jsize, ksize int
	data                []float64
}

// NewArray3d allocates a grid filled with fillValue.
func NewArray3d(isize, jsize, ksize int, fillValue float64) *Array3d {
	a := &Array3d{isize: isize, jsize: jsize, ksize: ksize, data: make([]float64, isize*jsize*ksize)}
	a.Fill(fillValue)
	return a
}

// Dims returns the grid's dimensions.
func (a *Array3d) Dims() (int, int, int) { return a.isize, a.jsize, a.ksize }

func (a *Array3d) flatIndex(i, j, k int) int { return i + a.isize*(j+a.jsize*k) }

// InBounds reports whether (i,j,k) addresses a valid cell.
func (a *Array3d) InBounds(i, j, k int) bool {
	return i >= 0 && j >= 0 && k >= 0 && i < a.isize && j < a.jsize && k < a.ksize
}

// Get returns the value at (i,j,k).
func (a *Array3d) Get(i, j, k int) float64 {
	if !a.InBounds(i, j, k) {
		chk.Panic("Array3d.Get: index (%d,%d,%d) out of bounds (%d,%d,%d)", i, j, k, a.isize, a.jsize, a.ksize)
	}
	return a.data[a.flatIndex(i, j, k)]
}

// GetIndex is a convenience wrapper taking a grid.Index.
func (a *Array3d) GetIndex(g Index) float64 { return a.Get(g.I, g.J, g.K) }

// GetOr returns the value at (i,j,k), or fallback if out of bounds.
func (a *Array3d) GetOr(i, j, k int, fallback float64) float64 {
	if !a.InBounds(i, j, k) {
		return fallback
	}
	return a.data[a.flatIndex(i, j, k)]
}

// Set assigns the value at (i,j,k).
func (a *Array3d) Set(i, j, k int, v float64) {
	if !a.InBounds(i, j, k) {
		chk.Panic("Array3d.Set: index (%d,%d,%d) out of bounds (%d,%d,%d)", i, j, k, a.isize, a.jsize, a.ksize)
	}
	a.data[a.flatIndex(i, j, k)] = v
}

// SetIndex is a convenience wrapper taking a grid.Index.
func (a *Array3d) SetIndex(g Index, v float64) { a.Set(g.I, g.J, g.K, v) }

// Add accumulates v into the cell at (i,j,k).
func (a *Array3d) Add(i, j, k int, v float64) {
	if !a.InBounds(i, j, k) {
		chk.Panic("Array3d.Add: index (%d,%d,%d) out of bounds (%d,%d,%d)", i, j, k, a.isize, a.jsize, a.ksize)
	}
	a.data[a.flatIndex(i, j, k)] += v
}

// Fill overwrites every element with v.
func (a *Array3d) Fill(v float64) {
	for i := range a.data {
		a.data[i] = v
	}
}

// Raw exposes the backing slice (read/write) for bulk operations such as
// gonum/floats reductions; callers must respect flatIndex ordering.
func (a *Array3d) Raw() []float64 { return a.data }

// Clone returns a deep copy.
func (a *Array3d) Clone() *Array3d {
	out := &Array3d{isize: a.isize, jsize: a.jsize, ksize: a.ksize, data: make([]float64, len(a.data))}
	copy(out.data, a.data)
	return out
}

type layerStatus int8

const (
	statusUnknown layerStatus = iota
	statusWaiting
	statusKnown
	statusDone
)

// Extrapolate runs the layered face-to-face/cell-to-cell extrapolation of
// §4.2: for `layers` passes, every cell adjacent (6-neighbour) to a known
// cell is set to the average of its known neighbours and promoted to
// known. Domain-border cells are pre-marked done so extrapolation cannot
// propagate across the boundary.
func Extrapolate(field *Array3d, valid *BoolArray3d, layers int) {
	isize, jsize, ksize := field.Dims()
	status := make([]layerStatus, isize*jsize*ksize)
	flat := func(i, j, k int) int { return i + isize*(j+jsize*k) }

	for k := 0; k < ksize; k++ {
		for j := 0; j < jsize; j++ {
			for i := 0; i < isize; i++ {
				if valid.Get(i, j, k) {
					status[flat(i, j, k)] = statusKnown
				}
				if i == 0 || j == 0 || k == 0 || i == isize-1 || j == jsize-1 || k == ksize-1 {
					if status[flat(i, j, k)] != statusKnown {
						status[flat(i, j, k)] = statusDone
					}
				}
			}
		}
	}

	neighbors6 := func(i, j, k int) [6][3]int {
		return [6][3]int{
			{i - 1, j, k}, {i + 1, j, k},
			{i, j - 1, k}, {i, j + 1, k},
			{i, j, k - 1}, {i, j, k + 1},
		}
	}

	for layer := 0; layer < layers; layer++ {
		var waiting [][3]int
		for k := 0; k < ksize; k++ {
			for j := 0; j < jsize; j++ {
				for i := 0; i < isize; i++ {
					if status[flat(i, j, k)] != statusKnown {
						continue
					}
					for _, n := range neighbors6(i, j, k) {
						if n[0] < 0 || n[1] < 0 || n[2] < 0 || n[0] >= isize || n[1] >= jsize || n[2] >= ksize {
							continue
						}
						idx := flat(n[0], n[1], n[2])
						if status[idx] == statusUnknown {
							status[idx] = statusWaiting
							waiting = append(waiting, n)
						}
					}
				}
			}
		}
		if len(waiting) == 0 {
			break
		}
		for _, w := range waiting {
			i, j, k := w[0], w[1], w[2]
			var sum float64
			var count int
			for _, n := range neighbors6(i, j, k) {
				if n[0] < 0 || n[1] < 0 || n[2] < 0 || n[0] >= isize || n[1] >= jsize || n[2] >= ksize {
					continue
				}
				if status[flat(n[0], n[1], n[2])] == statusKnown {
					sum += field.Get(n[0], n[1], n[2])
					count++
				}
			}
			if count > 0 {
				field.Set(i, j, k, sum/float64(count))
			}
			status[flat(i, j, k)] = statusKnown
		}
	}
}
