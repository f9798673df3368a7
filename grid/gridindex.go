// Copyright 2016 The Gofem Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package grid implements the dense 3-D array, grid-index bookkeeping, and
// trilinear interpolation primitives shared by the level-set, velocity,
// and solver packages.
package grid

// Index identifies a cell or node of a regular I x J x K grid.
type Index struct {
	I, J, K int
}

// New builds an Index.
func New(i, j, k int) Index { return Index{i, j, k} }

// Add returns the component-wise sum of two indices.
func (g Index) Add(o Index) Index { return Index{g.I + o.I, g.J + o.J, g.K + o.K} }

// Equals reports whether g and o refer to the same cell.
func (g Index) Equals(o Index) bool { return g.I == o.I && g.J == o.J && g.K == o.K }

// FaceNeighbors6 returns the six axis-aligned neighbours of g.
func (g Index) FaceNeighbors6() [6]Index {
	return [6]Index{
		{g.I - 1, g.J, g.K}, {g.I + 1, g.J, g.K},
		{g.I, g.J - 1, g.K}, {g.I, g.J + 1, g.K},
		{g.I, g.J, g.K - 1}, {g.I, g.J, g.K + 1},
	}
}

// IndexVector is an append-only, order-preserving collection of grid
// indices, used to enumerate sparse subsets of a grid (e.g. pressure
// cells, BFS fronts) without re-scanning the full I*J*K volume.
type IndexVector struct {
	indices []Index
}

// NewIndexVector creates an empty vector, optionally reserving capacity.
func NewIndexVector(capacity int) *IndexVector {
	return &IndexVector{indices: make([]Index, 0, capacity)}
}

// Push appends g.
func (v *IndexVector) Push(g Index) { v.indices = append(v.indices, g) }

// Len returns the number of stored indices.
func (v *IndexVector) Len() int { return len(v.indices) }

// At returns the i-th stored index.
func (v *IndexVector) At(i int) Index { return v.indices[i] }

// All returns the underlying slice (read-only use expected).
func (v *IndexVector) All() []Index { return v.indices }

// KeyMap maps grid indices to a dense row/column number, used to build the
// sparse-matrix row ordering for the pressure and viscosity solves.
type KeyMap struct {
	isize, jsize int
	table        map[int]int
}

// NewKeyMap creates an empty map over a grid of the given cell dimensions.
func NewKeyMap(isize, jsize, ksize int) *KeyMap {
	return &KeyMap{isize: isize, jsize: jsize, table: make(map[int]int)}
}

func (m *KeyMap) flatten(g Index) int {
	return g.I + m.isize*(g.J+m.jsize*g.K)
}

// Insert assigns g the next unused row index, returning it. Re-inserting
// an existing index is a no-op and returns its existing row.
func (m *KeyMap) Insert(g Index) int {
	key := m.flatten(g)
	if row, ok := m.table[key]; ok {
		return row
	}
	row := len(m.table)
	m.table[key] = row
	return row
}

// Find returns the row assigned to g, or -1 if g was never inserted.
func (m *KeyMap) Find(g Index) int {
	if row, ok := m.table[m.flatten(g)]; ok {
		return row
	}
	return -1
}

// Len returns the number of distinct indices inserted.
func (m *KeyMap) Len() int { return len(m.table) }
