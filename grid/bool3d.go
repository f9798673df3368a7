// Copyright 2016 The Gofem Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package grid

// BoolArray3d is a dense I x J x K boolean grid, used for validity masks,
// near-solid flags, and occupancy bitmasks.
type BoolArray3d struct {
	isize, jsize, ksize int
	data                []bool
}

// NewBoolArray3d allocates a grid filled with fillValue.
func NewBoolArray3d(isize, jsize, ksize int, fillValue bool) *BoolArray3d {
	a := &BoolArray3d{isize: isize, jsize: jsize, ksize: ksize, data: make([]bool, isize*jsize*ksize)}
	a.Fill(fillValue)
	return a
}

// Dims returns the grid's dimensions.
func (a *BoolArray3d) Dims() (int, int, int) { return a.isize, a.jsize, a.ksize }

func (a *BoolArray3d) flatIndex(i, j, k int) int { return i + a.isize*(j+a.jsize*k) }

// InBounds reports whether (i,j,k) addresses a valid cell.
func (a *BoolArray3d) InBounds(i, j, k int) bool {
	return i >= 0 && j >= 0 && k >= 0 && i < a.isize && j < a.jsize && k < a.ksize
}

// Get returns the value at (i,j,k), false if out of bounds.
func (a *BoolArray3d) Get(i, j, k int) bool {
	if !a.InBounds(i, j, k) {
		return false
	}
	return a.data[a.flatIndex(i, j, k)]
}

// Set assigns the value at (i,j,k). Out-of-bounds writes are ignored.
func (a *BoolArray3d) Set(i, j, k int, v bool) {
	if !a.InBounds(i, j, k) {
		return
	}
	a.data[a.flatIndex(i, j, k)] = v
}

// Fill overwrites every element with v.
func (a *BoolArray3d) Fill(v bool) {
	for i := range a.data {
		a.data[i] = v
	}
}

// Clone returns a deep copy.
func (a *BoolArray3d) Clone() *BoolArray3d {
	out := &BoolArray3d{isize: a.isize, jsize: a.jsize, ksize: a.ksize, data: make([]bool, len(a.data))}
	copy(out.data, a.data)
	return out
}
