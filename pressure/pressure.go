// Copyright 2016 The Gofem Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package pressure implements the variational pressure projection of spec
// §4.6: solid-pocket conditioning, sparse-system assembly, a MIC(0)-PCG
// solve, and application of the resulting gradient back onto the MAC
// velocity field.
package pressure

import (
	"math"

	"github.com/cpmech/gosl/io"

	"github.com/flip3d-sim/flip3d/grid"
	"github.com/flip3d-sim/flip3d/levelset"
	"github.com/flip3d-sim/flip3d/linsolve"
	"github.com/flip3d-sim/flip3d/macgrid"
	"github.com/flip3d-sim/flip3d/weights"
)

const minFraction = 0.01

// SurfaceTension carries the optional surface-tension term of §4.6: a
// non-negative coefficient and a node-centred curvature grid, both of
// which must be set together to take effect.
type SurfaceTension struct {
	Coefficient float64
	Curvature   *grid.Array3d
}

// Params bundles a single solve's inputs.
type Params struct {
	Velocity  *macgrid.Field
	LiquidSDF *levelset.ParticleLevelSet
	SolidSDF  *levelset.MeshLevelSet
	Weights   *weights.Grid
	H         float64
	DeltaTime float64
	CFL       float64

	Tolerance           float64
	AcceptableTolerance float64
	MaxIterations       int

	SurfaceTension *SurfaceTension
}

// Status reports the outcome of a solve, mirroring the solver-status
// string surfaced in per-frame stats (§4.6, §5 "Solver non-convergence").
type Status struct {
	Converged  bool
	Acceptable bool
	Residual   float64
	Iterations int
}

// Solve runs one full pressure-projection step: conditions the solid
// velocity field around isolated fluid pockets, assembles and solves the
// PCG system, and applies the resulting gradient to Velocity in place.
func Solve(p Params) Status {
	isize, jsize, ksize := p.LiquidSDF.Isize, p.LiquidSDF.Jsize, p.LiquidSDF.Ksize

	conditionSolidVelocityField(p.LiquidSDF, p.SolidSDF, p.Weights)

	cells := grid.NewIndexVector(isize * jsize * ksize)
	keymap := grid.NewKeyMap(isize, jsize, ksize)
	for k := 1; k < ksize-1; k++ {
		for j := 1; j < jsize-1; j++ {
			for i := 1; i < isize-1; i++ {
				if p.LiquidSDF.Get(i, j, k) < 0 {
					g := grid.New(i, j, k)
					cells.Push(g)
					keymap.Insert(g)
				}
			}
		}
	}

	n := cells.Len()
	rhs := make([]float64, n)
	calculateRHS(p, cells, rhs)

	var maxAbs float64
	for _, v := range rhs {
		if a := math.Abs(v); a > maxAbs {
			maxAbs = a
		}
	}
	if maxAbs < p.Tolerance {
		return Status{Converged: true}
	}

	matrix := linsolve.NewSparseMatrix(n)
	calculateMatrix(p, cells, keymap, matrix)

	soln, res := linsolve.Solve(matrix, rhs, p.Tolerance, p.AcceptableTolerance, p.MaxIterations)

	status := Status{Converged: res.Converged || res.Acceptable, Acceptable: res.Acceptable, Residual: res.Residual, Iterations: res.Iterations}
	if !status.Converged {
		io.Pfred("pressure solve FAILED: %d iterations, residual %g\n", res.Iterations, res.Residual)
	}

	pressureGrid := grid.NewArray3d(isize, jsize, ksize, 0)
	for idx := 0; idx < n; idx++ {
		g := cells.At(idx)
		pressureGrid.Set(g.I, g.J, g.K, soln[idx])
	}

	applyPressureGradient(p, pressureGrid)

	layers := int(math.Ceil(p.CFL)) + 2
	p.Velocity.ExtrapolateLayers(layers)

	return status
}

// conditionSolidVelocityField implements §4.6's "solid conditioning":
// flood-fills fluid cells through faces with nonzero solid-open weight; a
// pocket with no cell bordering air has its six surrounding solid face
// velocities zeroed so the linear system stays consistent.
func conditionSolidVelocityField(liquidSDF *levelset.ParticleLevelSet, solidSDF *levelset.MeshLevelSet, w *weights.Grid) {
	isize, jsize, ksize := liquidSDF.Isize, liquidSDF.Jsize, liquidSDF.Ksize
	const eps = 1e-6

	bordersAir := grid.NewBoolArray3d(isize, jsize, ksize, false)
	for k := 1; k < ksize-1; k++ {
		for j := 1; j < jsize-1; j++ {
			for i := 1; i < isize-1; i++ {
				if (w.U.Get(i, j, k) >= eps && liquidSDF.Get(i-1, j, k) >= 0) ||
					(w.U.Get(i+1, j, k) >= eps && liquidSDF.Get(i+1, j, k) >= 0) ||
					(w.V.Get(i, j, k) >= eps && liquidSDF.Get(i, j-1, k) >= 0) ||
					(w.V.Get(i, j+1, k) >= eps && liquidSDF.Get(i, j+1, k) >= 0) ||
					(w.W.Get(i, j, k) >= eps && liquidSDF.Get(i, j, k-1) >= 0) ||
					(w.W.Get(i, j, k+1) >= eps && liquidSDF.Get(i, j, k+1) >= 0) {
					bordersAir.Set(i, j, k, true)
				}
			}
		}
	}

	processed := grid.NewBoolArray3d(isize, jsize, ksize, false)
	var queue [][3]int
	for k := 1; k < ksize-1; k++ {
		for j := 1; j < jsize-1; j++ {
			for i := 1; i < isize-1; i++ {
				if liquidSDF.Get(i, j, k) >= 0 {
					processed.Set(i, j, k, true)
					continue
				}
				if processed.Get(i, j, k) {
					continue
				}

				queue = queue[:0]
				queue = append(queue, [3]int{i, j, k})
				processed.Set(i, j, k, true)

				var group [][3]int
				for len(queue) > 0 {
					c := queue[len(queue)-1]
					queue = queue[:len(queue)-1]
					ci, cj, ck := c[0], c[1], c[2]

					tryPush := func(ni, nj, nk int, weight float64) {
						if ni < 0 || nj < 0 || nk < 0 || ni >= isize || nj >= jsize || nk >= ksize {
							return
						}
						if !processed.Get(ni, nj, nk) && liquidSDF.Get(ni, nj, nk) < 0 && weight >= eps {
							queue = append(queue, [3]int{ni, nj, nk})
							processed.Set(ni, nj, nk, true)
						}
					}
					tryPush(ci-1, cj, ck, w.U.Get(ci, cj, ck))
					tryPush(ci+1, cj, ck, w.U.Get(ci+1, cj, ck))
					tryPush(ci, cj-1, ck, w.V.Get(ci, cj, ck))
					tryPush(ci, cj+1, ck, w.V.Get(ci, cj+1, ck))
					tryPush(ci, cj, ck-1, w.W.Get(ci, cj, ck))
					tryPush(ci, cj, ck+1, w.W.Get(ci, cj, ck+1))

					group = append(group, c)
				}

				if len(group) == 1 {
					continue
				}
				isolated := true
				for _, g := range group {
					if bordersAir.Get(g[0], g[1], g[2]) {
						isolated = false
						break
					}
				}
				if !isolated {
					continue
				}
				for _, g := range group {
					gi, gj, gk := g[0], g[1], g[2]
					solidSDF.FaceVelocityU().Set(gi, gj, gk, 0)
					solidSDF.FaceVelocityU().Set(gi+1, gj, gk, 0)
					solidSDF.FaceVelocityV().Set(gi, gj, gk, 0)
					solidSDF.FaceVelocityV().Set(gi, gj+1, gk, 0)
					solidSDF.FaceVelocityW().Set(gi, gj, gk, 0)
					solidSDF.FaceVelocityW().Set(gi, gj, gk+1, 0)
				}
			}
		}
	}
}

func calculateRHS(p Params, cells *grid.IndexVector, rhs []float64) {
	h := p.H
	w := p.Weights
	vel := p.Velocity
	solid := p.SolidSDF

	for idx := 0; idx < cells.Len(); idx++ {
		g := cells.At(idx)
		i, j, k := g.I, g.J, g.K

		var div float64
		div -= w.U.Get(i+1, j, k) * vel.U.Get(i+1, j, k)
		div += w.U.Get(i, j, k) * vel.U.Get(i, j, k)
		div -= w.V.Get(i, j+1, k) * vel.V.Get(i, j+1, k)
		div += w.V.Get(i, j, k) * vel.V.Get(i, j, k)
		div -= w.W.Get(i, j, k+1) * vel.W.Get(i, j, k+1)
		div += w.W.Get(i, j, k) * vel.W.Get(i, j, k)

		vol := w.Center.Get(i, j, k)
		div += (w.U.Get(i+1, j, k) - vol) * solid.FaceVelocityU().Get(i+1, j, k)
		div -= (w.U.Get(i, j, k) - vol) * solid.FaceVelocityU().Get(i, j, k)
		div += (w.V.Get(i, j+1, k) - vol) * solid.FaceVelocityV().Get(i, j+1, k)
		div -= (w.V.Get(i, j, k) - vol) * solid.FaceVelocityV().Get(i, j, k)
		div += (w.W.Get(i, j, k+1) - vol) * solid.FaceVelocityW().Get(i, j, k+1)
		div -= (w.W.Get(i, j, k) - vol) * solid.FaceVelocityW().Get(i, j, k)

		div /= h

		if st := p.SurfaceTension; st != nil && st.Coefficient > 0 && st.Curvature != nil {
			div += surfaceTensionRHSContribution(p, st, i, j, k)
		}

		rhs[idx] = div
	}
}

// surfaceTensionRHSContribution adds the air-side surface-tension forcing
// of §4.6: s*W*sigma*kappa/max(theta,thetamin) for each of the six faces
// bordering air.
func surfaceTensionRHSContribution(p Params, st *SurfaceTension, i, j, k int) float64 {
	h := p.H
	s := p.DeltaTime / (h * h)
	w := p.Weights
	liquid := p.LiquidSDF
	sigma := st.Coefficient

	var sum float64
	add := func(term, theta, kappaNear, kappaFar float64) {
		t := math.Max(theta, minFraction)
		sum += term * sigma * 0.5 * (kappaNear + kappaFar) / t
	}
	curvAt := func(i, j, k int) float64 { return st.Curvature.GetOr(i, j, k, 0) }

	if liquid.Get(i+1, j, k) >= 0 {
		add(w.U.Get(i+1, j, k)*s, liquid.FaceWeightU(i+1, j, k), curvAt(i, j, k), curvAt(i+1, j, k))
	}
	if liquid.Get(i-1, j, k) >= 0 {
		add(w.U.Get(i, j, k)*s, liquid.FaceWeightU(i, j, k), curvAt(i, j, k), curvAt(i-1, j, k))
	}
	if liquid.Get(i, j+1, k) >= 0 {
		add(w.V.Get(i, j+1, k)*s, liquid.FaceWeightV(i, j+1, k), curvAt(i, j, k), curvAt(i, j+1, k))
	}
	if liquid.Get(i, j-1, k) >= 0 {
		add(w.V.Get(i, j, k)*s, liquid.FaceWeightV(i, j, k), curvAt(i, j, k), curvAt(i, j-1, k))
	}
	if liquid.Get(i, j, k+1) >= 0 {
		add(w.W.Get(i, j, k+1)*s, liquid.FaceWeightW(i, j, k+1), curvAt(i, j, k), curvAt(i, j, k+1))
	}
	if liquid.Get(i, j, k-1) >= 0 {
		add(w.W.Get(i, j, k)*s, liquid.FaceWeightW(i, j, k), curvAt(i, j, k), curvAt(i, j, k-1))
	}
	return sum
}

func calculateMatrix(p Params, cells *grid.IndexVector, keymap *grid.KeyMap, matrix *linsolve.SparseMatrix) {
	h := p.H
	scale := p.DeltaTime / (h * h)
	w := p.Weights
	liquid := p.LiquidSDF

	type neighbor struct {
		di, dj, dk int
		term       func(i, j, k int) float64
		faceWeight func(i, j, k int) float64
	}
	neighbors := []neighbor{
		{1, 0, 0, func(i, j, k int) float64 { return w.U.Get(i+1, j, k) * scale }, func(i, j, k int) float64 { return liquid.FaceWeightU(i+1, j, k) }},
		{-1, 0, 0, func(i, j, k int) float64 { return w.U.Get(i, j, k) * scale }, func(i, j, k int) float64 { return liquid.FaceWeightU(i, j, k) }},
		{0, 1, 0, func(i, j, k int) float64 { return w.V.Get(i, j+1, k) * scale }, func(i, j, k int) float64 { return liquid.FaceWeightV(i, j+1, k) }},
		{0, -1, 0, func(i, j, k int) float64 { return w.V.Get(i, j, k) * scale }, func(i, j, k int) float64 { return liquid.FaceWeightV(i, j, k) }},
		{0, 0, 1, func(i, j, k int) float64 { return w.W.Get(i, j, k+1) * scale }, func(i, j, k int) float64 { return liquid.FaceWeightW(i, j, k+1) }},
		{0, 0, -1, func(i, j, k int) float64 { return w.W.Get(i, j, k) * scale }, func(i, j, k int) float64 { return liquid.FaceWeightW(i, j, k) }},
	}

	for idx := 0; idx < cells.Len(); idx++ {
		g := cells.At(idx)
		i, j, k := g.I, g.J, g.K

		var diag float64
		for _, n := range neighbors {
			term := n.term(i, j, k)
			ni, nj, nk := i+n.di, j+n.dj, k+n.dk
			if liquid.Get(ni, nj, nk) < 0 {
				diag += term
				if row := keymap.Find(grid.New(ni, nj, nk)); row >= 0 {
					matrix.Add(idx, row, -term)
				}
			} else {
				theta := math.Max(n.faceWeight(i, j, k), minFraction)
				diag += term / theta
			}
		}
		matrix.Set(idx, idx, diag)
	}
}

// applyPressureGradient writes the pressure-gradient correction back onto
// Velocity's faces, for faces lying between two fluid cells or between a
// fluid and an air cell; solid-weighted faces (W==0) are left untouched.
func applyPressureGradient(p Params, pg *grid.Array3d) {
	h := p.H
	scale := p.DeltaTime / h
	liquid := p.LiquidSDF
	w := p.Weights
	isize, jsize, ksize := p.LiquidSDF.Isize, p.LiquidSDF.Jsize, p.LiquidSDF.Ksize

	for k := 1; k < ksize-1; k++ {
		for j := 1; j < jsize-1; j++ {
			for i := 1; i < isize-1; i++ {
				phiC := liquid.Get(i, j, k)

				if i > 0 {
					phiL := liquid.Get(i-1, j, k)
					if (phiC < 0 || phiL < 0) && w.U.Get(i, j, k) > 0 {
						p.Velocity.SetU(i, j, k, p.Velocity.U.Get(i, j, k)-scale*(pg.Get(i, j, k)-pg.Get(i-1, j, k)))
					}
				}
				if j > 0 {
					phiD := liquid.Get(i, j-1, k)
					if (phiC < 0 || phiD < 0) && w.V.Get(i, j, k) > 0 {
						p.Velocity.SetV(i, j, k, p.Velocity.V.Get(i, j, k)-scale*(pg.Get(i, j, k)-pg.Get(i, j-1, k)))
					}
				}
				if k > 0 {
					phiB := liquid.Get(i, j, k-1)
					if (phiC < 0 || phiB < 0) && w.W.Get(i, j, k) > 0 {
						p.Velocity.SetW(i, j, k, p.Velocity.W.Get(i, j, k)-scale*(pg.Get(i, j, k)-pg.Get(i, j, k-1)))
					}
				}
			}
		}
	}
}
