// Copyright 2016 The Gofem Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package linsolve implements the symmetric row-indexed sparse matrix and
// modified-incomplete-Cholesky(0) preconditioned conjugate-gradient solver
// shared by the pressure and viscosity systems, per spec §4.5.
package linsolve

// SparseMatrix is a symmetric positive (semi-)definite matrix of size n,
// stored per-row as parallel slices of column index and value. Only the
// entries a caller has added are present; add/set perform a linear scan of
// the row (rows are short -- at most 7 entries for the pressure system, a
// few dozen for viscosity -- so this beats the bookkeeping of a sorted or
// hashed row).
type SparseMatrix struct {
	n    int
	cols [][]int
	vals [][]float64
}

// NewSparseMatrix allocates an empty n x n matrix.
func NewSparseMatrix(n int) *SparseMatrix {
	return &SparseMatrix{n: n, cols: make([][]int, n), vals: make([][]float64, n)}
}

// N returns the matrix dimension.
func (m *SparseMatrix) N() int { return m.n }

func (m *SparseMatrix) find(i, j int) int {
	for idx, c := range m.cols[i] {
		if c == j {
			return idx
		}
	}
	return -1
}

// Add accumulates v into entry (i,j), appending a new column slot if (i,j)
// is not yet present.
func (m *SparseMatrix) Add(i, j int, v float64) {
	if idx := m.find(i, j); idx >= 0 {
		m.vals[i][idx] += v
		return
	}
	m.cols[i] = append(m.cols[i], j)
	m.vals[i] = append(m.vals[i], v)
}

// Set overwrites entry (i,j) with v, appending if not yet present.
func (m *SparseMatrix) Set(i, j int, v float64) {
	if idx := m.find(i, j); idx >= 0 {
		m.vals[i][idx] = v
		return
	}
	m.cols[i] = append(m.cols[i], j)
	m.vals[i] = append(m.vals[i], v)
}

// Get returns entry (i,j), or 0 if absent.
func (m *SparseMatrix) Get(i, j int) float64 {
	if idx := m.find(i, j); idx >= 0 {
		return m.vals[i][idx]
	}
	return 0
}

// Row calls fn once per stored (column,value) pair in row i.
func (m *SparseMatrix) Row(i int, fn func(j int, v float64)) {
	cols, vals := m.cols[i], m.vals[i]
	for idx, j := range cols {
		fn(j, vals[idx])
	}
}

// Multiply computes y = A*x.
func (m *SparseMatrix) Multiply(x, y []float64) {
	for i := 0; i < m.n; i++ {
		var sum float64
		cols, vals := m.cols[i], m.vals[i]
		for idx, j := range cols {
			sum += vals[idx] * x[j]
		}
		y[i] = sum
	}
}
