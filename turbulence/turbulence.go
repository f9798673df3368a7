// Copyright 2016 The Gofem Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package turbulence computes the per-cell incoherence measure used to
// seed whitewater emission, per spec §4.12.
package turbulence

import (
	"math"

	"github.com/flip3d-sim/flip3d/grid"
	"github.com/flip3d-sim/flip3d/macgrid"
	"github.com/flip3d-sim/flip3d/threading"
	"github.com/flip3d-sim/flip3d/vecmath"
)

// Field holds the cell-centred turbulence scalar t_i, per §4.12.
type Field struct {
	Isize, Jsize, Ksize int
	data                *grid.Array3d
}

// New allocates a zero-filled turbulence field.
func New(isize, jsize, ksize int) *Field {
	return &Field{Isize: isize, Jsize: jsize, Ksize: ksize, data: grid.NewArray3d(isize, jsize, ksize, 0)}
}

// Get returns t(i,j,k).
func (f *Field) Get(i, j, k int) float64 { return f.data.Get(i, j, k) }

// velocityGrid resamples the staggered field onto cell centres, in
// parallel, matching the source material's _getVelocityGrid/
// _getVelocityGridThread split.
func velocityGrid(mac *macgrid.Field) []vecmath.Vec3 {
	isize, jsize, ksize := mac.Isize, mac.Jsize, mac.Ksize
	h := mac.H
	out := make([]vecmath.Vec3, isize*jsize*ksize)
	flat := func(i, j, k int) int { return i + isize*(j+jsize*k) }

	threading.ParallelFor(isize*jsize*ksize, func(start, end int) {
		for idx := start; idx < end; idx++ {
			k := idx / (isize * jsize)
			rem := idx % (isize * jsize)
			j := rem / isize
			i := rem % isize
			p := vecmath.Vec3{X: (float64(i) + 0.5) * h, Y: (float64(j) + 0.5) * h, Z: (float64(k) + 0.5) * h}
			out[flat(i, j, k)] = mac.EvaluateVelocityAtPosition(p)
		}
	})
	return out
}

// Calculate recomputes the field from the current velocity field, per
// §4.12: for every cell i, sum over its 5x5x5 neighbourhood (excluding
// itself) of
//
//	|v_i - v_j| * (1 - vhat_ij . xhat_ij) * (1 - |x_i-x_j|/R)
//
// clamped to non-negative distance weight, with R = sqrt(3)*2h.
func (f *Field) Calculate(mac *macgrid.Field) {
	isize, jsize, ksize := f.Isize, f.Jsize, f.Ksize
	h := mac.H
	vel := velocityGrid(mac)
	flat := func(i, j, k int) int { return i + isize*(j+jsize*k) }
	radius := math.Sqrt(3) * 2 * h

	threading.ParallelFor(isize*jsize*ksize, func(start, end int) {
		for idx := start; idx < end; idx++ {
			k := idx / (isize * jsize)
			rem := idx % (isize * jsize)
			j := rem / isize
			i := rem % isize

			vi := vel[flat(i, j, k)]
			xi := vecmath.Vec3{X: (float64(i) + 0.5) * h, Y: (float64(j) + 0.5) * h, Z: (float64(k) + 0.5) * h}

			var total float64
			for dk := -2; dk <= 2; dk++ {
				for dj := -2; dj <= 2; dj++ {
					for di := -2; di <= 2; di++ {
						if di == 0 && dj == 0 && dk == 0 {
							continue
						}
						ni, nj, nk := i+di, j+dj, k+dk
						if ni < 0 || nj < 0 || nk < 0 || ni >= isize || nj >= jsize || nk >= ksize {
							continue
						}
						vj := vel[flat(ni, nj, nk)]
						xj := vecmath.Vec3{X: (float64(ni) + 0.5) * h, Y: (float64(nj) + 0.5) * h, Z: (float64(nk) + 0.5) * h}

						dv := vi.Sub(vj)
						speed := dv.Length()
						if speed < 1e-9 {
							continue
						}
						dist := xi.Distance(xj)
						distWeight := 1 - dist/radius
						if distWeight <= 0 {
							continue
						}
						dirAlignment := 1.0
						dvHat := dv.Normalize()
						dxHat := xi.Sub(xj).Normalize()
						dirAlignment -= dvHat.Dot(dxHat)

						total += speed * dirAlignment * distWeight
					}
				}
			}
			f.data.Set(i, j, k, total)
		}
	})
}
