// Copyright 2016 The Gofem Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package weights derives the solid-open-fraction weight grids consumed by
// the pressure and viscosity solvers from the solid signed-distance field,
// per spec §4.14.
package weights

import (
	"github.com/flip3d-sim/flip3d/grid"
	"github.com/flip3d-sim/flip3d/levelset"
	"github.com/flip3d-sim/flip3d/threading"
)

// Grid holds the four weight fields over an I x J x K cell grid: Center is
// cell-centred, U/V/W are staggered face-centred, each value in [0,1]
// giving the fraction of that cell or face that is open (not solid).
type Grid struct {
	Center *grid.Array3d
	U, V, W *grid.Array3d
}

// New allocates a zero-filled weight grid shaped to match the cell grid.
func New(isize, jsize, ksize int) *Grid {
	return &Grid{
		Center: grid.NewArray3d(isize, jsize, ksize, 0),
		U:      grid.NewArray3d(isize+1, jsize, ksize, 0),
		V:      grid.NewArray3d(isize, jsize+1, ksize, 0),
		W:      grid.NewArray3d(isize, jsize, ksize+1, 0),
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Update recomputes every weight from solidSDF, in parallel across each
// component.
func (g *Grid) Update(solidSDF *levelset.MeshLevelSet) {
	ui, uj, uk := g.U.Dims()
	vi, vj, vk := g.V.Dims()
	wi, wj, wk := g.W.Dims()
	ci, cj, ck := g.Center.Dims()

	threading.ParallelFor(ui*uj*uk, func(start, end int) {
		for idx := start; idx < end; idx++ {
			k := idx / (ui * uj)
			rem := idx % (ui * uj)
			j := rem / ui
			i := rem % ui
			g.U.Set(i, j, k, clamp01(1-solidSDF.FaceWeightU(i, j, k)))
		}
	})
	threading.ParallelFor(vi*vj*vk, func(start, end int) {
		for idx := start; idx < end; idx++ {
			k := idx / (vi * vj)
			rem := idx % (vi * vj)
			j := rem / vi
			i := rem % vi
			g.V.Set(i, j, k, clamp01(1-solidSDF.FaceWeightV(i, j, k)))
		}
	})
	threading.ParallelFor(wi*wj*wk, func(start, end int) {
		for idx := start; idx < end; idx++ {
			k := idx / (wi * wj)
			rem := idx % (wi * wj)
			j := rem / wi
			i := rem % wi
			g.W.Set(i, j, k, clamp01(1-solidSDF.FaceWeightW(i, j, k)))
		}
	})
	threading.ParallelFor(ci*cj*ck, func(start, end int) {
		for idx := start; idx < end; idx++ {
			k := idx / (ci * cj)
			rem := idx % (ci * cj)
			j := rem / ci
			i := rem % ci
			g.Center.Set(i, j, k, clamp01(1-solidSDF.CellWeight(i, j, k)))
		}
	})
}
