// Copyright 2016 The Gofem Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package viscosity implements the variational viscosity solve of §4.7:
// one unknown per fluid face (U, V, W), seven sub-cell "viscosity volume"
// arrays capturing how much of each face/cell/edge lies inside the
// liquid, and a sparse system whose rows mix direct 6-neighbour diffusion
// terms with cross-axis shear terms between adjacent face components.
package viscosity

import (
	"github.com/cpmech/gosl/io"

	"github.com/flip3d-sim/flip3d/grid"
	"github.com/flip3d-sim/flip3d/levelset"
	"github.com/flip3d-sim/flip3d/linsolve"
	"github.com/flip3d-sim/flip3d/macgrid"
	"github.com/flip3d-sim/flip3d/threading"
	"github.com/flip3d-sim/flip3d/vecmath"
)

// Params bundles a single solve's inputs.
type Params struct {
	Velocity  *macgrid.Field
	LiquidSDF *levelset.ParticleLevelSet
	SolidSDF  *levelset.MeshLevelSet
	Viscosity *grid.Array3d // cell-centred, Isize x Jsize x Ksize

	H         float64
	DeltaTime float64

	Tolerance           float64
	AcceptableTolerance float64
	MaxIterations       int
}

// Status reports the outcome of a solve.
type Status struct {
	Converged  bool
	Acceptable bool
	Residual   float64
	Iterations int
}

// faceState classifies a single MAC face for the purposes of the
// viscosity system: fluid faces carry an unknown, solid faces carry a
// known (usually zero) Dirichlet value, and air faces carry neither a
// row nor a boundary contribution.
type faceState int8

const (
	faceAir faceState = iota
	faceFluid
	faceSolid
)

// stateGrid holds a faceState per U/V/W face, sized like macgrid.Field.
type stateGrid struct {
	isize, jsize, ksize int
	u, v, w             []faceState
}

func newStateGrid(isize, jsize, ksize int) *stateGrid {
	return &stateGrid{
		isize: isize, jsize: jsize, ksize: ksize,
		u: make([]faceState, (isize+1)*jsize*ksize),
		v: make([]faceState, isize*(jsize+1)*ksize),
		w: make([]faceState, isize*jsize*(ksize+1)),
	}
}

func (s *stateGrid) uIdx(i, j, k int) int { return i + (s.isize+1)*(j+s.jsize*k) }
func (s *stateGrid) vIdx(i, j, k int) int { return i + s.isize*(j+(s.jsize+1)*k) }
func (s *stateGrid) wIdx(i, j, k int) int { return i + s.isize*(j+s.jsize*k) }

// U, V and W report faceSolid for a face outside the grid, matching the
// solid classification of the domain border.
func (s *stateGrid) U(i, j, k int) faceState {
	if i < 0 || j < 0 || k < 0 || i > s.isize || j >= s.jsize || k >= s.ksize {
		return faceSolid
	}
	return s.u[s.uIdx(i, j, k)]
}
func (s *stateGrid) V(i, j, k int) faceState {
	if i < 0 || j < 0 || k < 0 || i >= s.isize || j > s.jsize || k >= s.ksize {
		return faceSolid
	}
	return s.v[s.vIdx(i, j, k)]
}
func (s *stateGrid) W(i, j, k int) faceState {
	if i < 0 || j < 0 || k < 0 || i >= s.isize || j >= s.jsize || k > s.ksize {
		return faceSolid
	}
	return s.w[s.wIdx(i, j, k)]
}

// volumeGrid holds the seven sub-cell liquid-volume fractions of §4.7:
// one cell-centred, three face-centred (aligned with U/V/W), and three
// edge-centred (aligned with the axis each omits).
type volumeGrid struct {
	center                  *grid.Array3d
	u, v, w                 *grid.Array3d
	edgeU, edgeV, edgeW     *grid.Array3d
}

func newVolumeGrid(isize, jsize, ksize int) *volumeGrid {
	return &volumeGrid{
		center: grid.NewArray3d(isize, jsize, ksize, 0),
		u:      grid.NewArray3d(isize+1, jsize, ksize, 0),
		v:      grid.NewArray3d(isize, jsize+1, ksize, 0),
		w:      grid.NewArray3d(isize, jsize, ksize+1, 0),
		edgeU:  grid.NewArray3d(isize, jsize+1, ksize+1, 0),
		edgeV:  grid.NewArray3d(isize+1, jsize, ksize+1, 0),
		edgeW:  grid.NewArray3d(isize+1, jsize+1, ksize, 0),
	}
}

// faceIndexer flattens a U/V/W face coordinate into one contiguous index
// space, used to build the grid-to-matrix-row lookup table.
type faceIndexer struct {
	isize, jsize, ksize int
	voffset, woffset    int
}

func newFaceIndexer(isize, jsize, ksize int) faceIndexer {
	voffset := (isize + 1) * jsize * ksize
	woffset := voffset + isize*(jsize+1)*ksize
	return faceIndexer{isize: isize, jsize: jsize, ksize: ksize, voffset: voffset, woffset: woffset}
}

func (f faceIndexer) dim() int { return f.woffset + f.isize*f.jsize*(f.ksize+1) }

func (f faceIndexer) U(i, j, k int) int { return i + (f.isize+1)*(j+f.jsize*k) }
func (f faceIndexer) V(i, j, k int) int { return f.voffset + i + f.isize*(j+(f.jsize+1)*k) }
func (f faceIndexer) W(i, j, k int) int { return f.woffset + i + f.isize*(j+f.jsize*k) }

// matrixIndexer maps a fluid face to its row in the sparse system, or -1
// if that face never entered the matrix (isolated from any non-zero
// liquid volume).
type matrixIndexer struct {
	faceIndexer
	table []int
	size  int
}

func (m matrixIndexer) U(i, j, k int) int { return m.table[m.faceIndexer.U(i, j, k)] }
func (m matrixIndexer) V(i, j, k int) int { return m.table[m.faceIndexer.V(i, j, k)] }
func (m matrixIndexer) W(i, j, k int) int { return m.table[m.faceIndexer.W(i, j, k)] }

// Solve applies one viscosity step to p.Velocity in place, per §4.7.
func Solve(p Params) Status {
	if isZero(p.Viscosity) {
		// matches the source's early-exit when the viscosity field is
		// entirely zero: the system would be singular (no diffusion term
		// anywhere) rather than merely trivial.
		return Status{Converged: true}
	}

	isize, jsize, ksize := p.LiquidSDF.Isize, p.LiquidSDF.Jsize, p.LiquidSDF.Ksize
	h := p.H

	state := computeFaceStateGrid(isize, jsize, ksize, p.SolidSDF)
	volumes := computeVolumeGrid(isize, jsize, ksize, h, p.LiquidSDF)
	midx := computeMatrixIndexTable(isize, jsize, ksize, state, volumes)

	if midx.size == 0 {
		return Status{Converged: true}
	}

	matrix := linsolve.NewSparseMatrix(midx.size)
	rhs := make([]float64, midx.size)
	initializeLinearSystemU(p, state, volumes, midx, matrix, rhs)
	initializeLinearSystemV(p, state, volumes, midx, matrix, rhs)
	initializeLinearSystemW(p, state, volumes, midx, matrix, rhs)

	soln, res := linsolve.Solve(matrix, rhs, p.Tolerance, p.AcceptableTolerance, p.MaxIterations)
	status := Status{Converged: res.Converged || res.Acceptable, Acceptable: res.Acceptable, Residual: res.Residual, Iterations: res.Iterations}
	if !status.Converged {
		io.Pfred("viscosity solve FAILED: %d iterations, residual %g\n", res.Iterations, res.Residual)
		return status
	}

	applySolutionToVelocityField(p.Velocity, midx, soln)
	return status
}

// isZero reports whether every sample in a is exactly zero. A nil a (the
// Params.Viscosity zero value) counts as all-zero.
func isZero(a *grid.Array3d) bool {
	if a == nil {
		return true
	}
	for _, v := range a.Raw() {
		if v != 0 {
			return false
		}
	}
	return true
}

// computeFaceStateGrid classifies every U/V/W face as solid (the domain
// border, or a face whose two bracketing solid-centre distances sum
// non-positive -- i.e. the solid distance linearly interpolated to the
// face centre is <= 0) or
// fluid otherwise. Air faces never arise here: any face that ultimately
// carries no liquid volume simply never enters the matrix.
func computeFaceStateGrid(isize, jsize, ksize int, solidSDF *levelset.MeshLevelSet) *stateGrid {
	solidCenterPhi := grid.NewArray3d(isize, jsize, ksize, 0)
	threading.ParallelFor(isize*jsize*ksize, func(start, end int) {
		for idx := start; idx < end; idx++ {
			i, j, k := unflatten(idx, isize, jsize)
			solidCenterPhi.Set(i, j, k, solidSDF.DistanceAtCellCenter(i, j, k))
		}
	})

	s := newStateGrid(isize, jsize, ksize)
	for k := 0; k < ksize; k++ {
		for j := 0; j < jsize; j++ {
			for i := 0; i <= isize; i++ {
				isEdge := i == 0 || i == isize
				solid := isEdge || solidCenterPhi.GetOr(i-1, j, k, 0)+solidCenterPhi.GetOr(i, j, k, 0) <= 0
				st := faceFluid
				if solid {
					st = faceSolid
				}
				s.u[s.uIdx(i, j, k)] = st
			}
		}
	}
	for k := 0; k < ksize; k++ {
		for j := 0; j <= jsize; j++ {
			for i := 0; i < isize; i++ {
				isEdge := j == 0 || j == jsize
				solid := isEdge || solidCenterPhi.GetOr(i, j-1, k, 0)+solidCenterPhi.GetOr(i, j, k, 0) <= 0
				st := faceFluid
				if solid {
					st = faceSolid
				}
				s.v[s.vIdx(i, j, k)] = st
			}
		}
	}
	for k := 0; k <= ksize; k++ {
		for j := 0; j < jsize; j++ {
			for i := 0; i < isize; i++ {
				isEdge := k == 0 || k == ksize
				solid := isEdge || solidCenterPhi.GetOr(i, j, k-1, 0)+solidCenterPhi.GetOr(i, j, k, 0) <= 0
				st := faceFluid
				if solid {
					st = faceSolid
				}
				s.w[s.wIdx(i, j, k)] = st
			}
		}
	}
	return s
}

func unflatten(idx, isize, jsize int) (i, j, k int) {
	k = idx / (isize * jsize)
	rem := idx % (isize * jsize)
	j = rem / isize
	i = rem % isize
	return
}

// computeVolumeGrid builds the seven viscosity-volume arrays of §4.7: a
// dilated liquid-interior mask limits the (relatively expensive)
// sub-cell sampling to cells near the surface, each cell is split into 8
// half-width sub-cubes, each sub-cube's volume fraction is estimated from
// its 8 trilinearly-sampled corner liquid distances, and the 7 arrays are
// each the mean of the 8 sub-cube volumes falling inside their support.
func computeVolumeGrid(isize, jsize, ksize int, h float64, liquidSDF *levelset.ParticleLevelSet) *volumeGrid {
	validCells := grid.NewBoolArray3d(isize+1, jsize+1, ksize+1, false)
	for k := 0; k < ksize; k++ {
		for j := 0; j < jsize; j++ {
			for i := 0; i < isize; i++ {
				if liquidSDF.Get(i, j, k) < 0 {
					validCells.Set(i, j, k, true)
				}
			}
		}
	}
	dilateValidCells(validCells, 2)

	subcell := grid.NewArray3d(2*isize, 2*jsize, 2*ksize, 0)
	estimateSubcellVolumes(subcell, validCells, h, liquidSDF)

	v := newVolumeGrid(isize, jsize, ksize)
	accumulateVolume(v.center, subcell, validCells, isize, jsize, ksize, 0, 0, 0)
	accumulateVolume(v.u, subcell, validCells, isize, jsize, ksize, -1, 0, 0)
	accumulateVolume(v.v, subcell, validCells, isize, jsize, ksize, 0, -1, 0)
	accumulateVolume(v.w, subcell, validCells, isize, jsize, ksize, 0, 0, -1)
	accumulateVolume(v.edgeU, subcell, validCells, isize, jsize, ksize, 0, -1, -1)
	accumulateVolume(v.edgeV, subcell, validCells, isize, jsize, ksize, -1, 0, -1)
	accumulateVolume(v.edgeW, subcell, validCells, isize, jsize, ksize, -1, -1, 0)
	return v
}

func dilateValidCells(valid *grid.BoolArray3d, layers int) {
	isize, jsize, ksize := valid.Dims()
	neighbors6 := func(i, j, k int) [6][3]int {
		return [6][3]int{
			{i - 1, j, k}, {i + 1, j, k},
			{i, j - 1, k}, {i, j + 1, k},
			{i, j, k - 1}, {i, j, k + 1},
		}
	}
	for l := 0; l < layers; l++ {
		next := valid.Clone()
		for k := 0; k < ksize; k++ {
			for j := 0; j < jsize; j++ {
				for i := 0; i < isize; i++ {
					if !valid.Get(i, j, k) {
						continue
					}
					for _, n := range neighbors6(i, j, k) {
						if next.InBounds(n[0], n[1], n[2]) {
							next.Set(n[0], n[1], n[2], true)
						}
					}
				}
			}
		}
		*valid = *next
	}
}

// estimateSubcellVolumes fills subcell (2I x 2J x 2K) with the liquid
// volume fraction of each half-width sub-cube, skipping sub-cubes whose
// parent cell never entered the dilated liquid-interior mask.
func estimateSubcellVolumes(subcell *grid.Array3d, validCells *grid.BoolArray3d, h float64, liquidSDF *levelset.ParticleLevelSet) {
	isize, jsize, ksize := subcell.Dims()
	dx := 0.5 * h
	hdx := 0.25 * h
	centerStart := vecmath.Vec3{X: 0.25 * h, Y: 0.25 * h, Z: 0.25 * h}

	threading.ParallelFor(isize*jsize*ksize, func(start, end int) {
		for idx := start; idx < end; idx++ {
			i, j, k := unflatten(idx, isize, jsize)
			if !validCells.Get(i/2, j/2, k/2) {
				continue
			}
			center := centerStart.Add(vecmath.Vec3{X: float64(i) * dx, Y: float64(j) * dx, Z: float64(k) * dx})
			corner := func(dx2, dy2, dz2 float64) float64 {
				p := center.Add(vecmath.Vec3{X: dx2, Y: dy2, Z: dz2})
				return grid.InterpolateCellCentered(liquidSDF.Phi, p.X, p.Y, p.Z, h)
			}
			phi := [8]float64{
				corner(-hdx, -hdx, -hdx), corner(+hdx, -hdx, -hdx),
				corner(-hdx, +hdx, -hdx), corner(+hdx, +hdx, -hdx),
				corner(-hdx, -hdx, +hdx), corner(+hdx, -hdx, +hdx),
				corner(-hdx, +hdx, +hdx), corner(+hdx, +hdx, +hdx),
			}
			subcell.Set(i, j, k, levelset.VolumeFraction8(phi))
		}
	})
}

// accumulateVolume fills dst(i,j,k) for i in [1,isize-1] (the source's
// interior-only convention, leaving a zero border), as the mean of the 8
// sub-cube volumes under (2i+offI .. +1, 2j+offJ.. +1, 2k+offK.. +1).
func accumulateVolume(dst, subcell *grid.Array3d, validCells *grid.BoolArray3d, isize, jsize, ksize, offI, offJ, offK int) {
	for k := 1; k < ksize; k++ {
		for j := 1; j < jsize; j++ {
			for i := 1; i < isize; i++ {
				if !validCells.Get(i, j, k) {
					continue
				}
				baseI, baseJ, baseK := 2*i+offI, 2*j+offJ, 2*k+offK
				var sum float64
				for dk := 0; dk < 2; dk++ {
					for dj := 0; dj < 2; dj++ {
						for di := 0; di < 2; di++ {
							sum += subcell.GetOr(baseI+di, baseJ+dj, baseK+dk, 0)
						}
					}
				}
				dst.Set(i, j, k, 0.125*sum)
			}
		}
	}
}

// computeMatrixIndexTable assigns a dense row number to every fluid face
// that borders at least one non-zero viscosity volume (its own face
// volume, the two cell volumes either side, or the four surrounding edge
// volumes); faces with no surrounding liquid volume never enter the
// system and keep index -1.
func computeMatrixIndexTable(isize, jsize, ksize int, state *stateGrid, v *volumeGrid) matrixIndexer {
	fidx := newFaceIndexer(isize, jsize, ksize)
	inMatrix := make([]bool, fidx.dim())

	for k := 1; k < ksize; k++ {
		for j := 1; j < jsize; j++ {
			for i := 1; i < isize; i++ {
				if state.U(i, j, k) == faceFluid {
					if v.u.Get(i, j, k) > 0 || v.center.Get(i, j, k) > 0 || v.center.Get(i-1, j, k) > 0 ||
						v.edgeW.Get(i, j+1, k) > 0 || v.edgeW.Get(i, j, k) > 0 ||
						v.edgeV.Get(i, j, k+1) > 0 || v.edgeV.Get(i, j, k) > 0 {
						inMatrix[fidx.U(i, j, k)] = true
					}
				}
				if state.V(i, j, k) == faceFluid {
					if v.v.Get(i, j, k) > 0 || v.edgeW.Get(i+1, j, k) > 0 || v.edgeW.Get(i, j, k) > 0 ||
						v.center.Get(i, j, k) > 0 || v.center.Get(i, j-1, k) > 0 ||
						v.edgeU.Get(i, j, k+1) > 0 || v.edgeU.Get(i, j, k) > 0 {
						inMatrix[fidx.V(i, j, k)] = true
					}
				}
				if state.W(i, j, k) == faceFluid {
					if v.w.Get(i, j, k) > 0 || v.edgeV.Get(i+1, j, k) > 0 || v.edgeV.Get(i, j, k) > 0 ||
						v.edgeU.Get(i, j+1, k) > 0 || v.edgeU.Get(i, j, k) > 0 ||
						v.center.Get(i, j, k) > 0 || v.center.Get(i, j, k-1) > 0 {
						inMatrix[fidx.W(i, j, k)] = true
					}
				}
			}
		}
	}

	table := make([]int, len(inMatrix))
	row := 0
	for idx, present := range inMatrix {
		if present {
			table[idx] = row
			row++
		} else {
			table[idx] = -1
		}
	}
	return matrixIndexer{faceIndexer: fidx, table: table, size: row}
}

func viscAt(visc *grid.Array3d, i, j, k int) float64 { return visc.GetOr(i, j, k, 0) }

// initializeLinearSystemU builds every U-face row: a 6-neighbour diagonal
// diffusion term (2x weighted along U's own axis, 1x across the other
// two, §4.7) plus cross-axis shear couplings to the 8 adjacent V and W
// faces, with solid neighbours folded into the right-hand side instead of
// the matrix.
func initializeLinearSystemU(p Params, state *stateGrid, v *volumeGrid, mj matrixIndexer, matrix *linsolve.SparseMatrix, rhs []float64) {
	isize, jsize, ksize := p.LiquidSDF.Isize, p.LiquidSDF.Jsize, p.LiquidSDF.Ksize
	invdx := 1 / p.H
	factor := p.DeltaTime * invdx * invdx
	visc := p.Viscosity
	vel := p.Velocity

	for k := 1; k < ksize; k++ {
		for j := 1; j < jsize; j++ {
			for i := 1; i < isize; i++ {
				if state.U(i, j, k) != faceFluid {
					continue
				}
				row := mj.U(i, j, k)
				if row == -1 {
					continue
				}

				viscRight := viscAt(visc, i, j, k)
				viscLeft := viscAt(visc, i-1, j, k)
				viscTop := 0.25 * (viscAt(visc, i-1, j+1, k) + viscAt(visc, i-1, j, k) + viscAt(visc, i, j+1, k) + viscAt(visc, i, j, k))
				viscBottom := 0.25 * (viscAt(visc, i-1, j, k) + viscAt(visc, i-1, j-1, k) + viscAt(visc, i, j, k) + viscAt(visc, i, j-1, k))
				viscFront := 0.25 * (viscAt(visc, i-1, j, k+1) + viscAt(visc, i-1, j, k) + viscAt(visc, i, j, k+1) + viscAt(visc, i, j, k))
				viscBack := 0.25 * (viscAt(visc, i-1, j, k) + viscAt(visc, i-1, j, k-1) + viscAt(visc, i, j, k) + viscAt(visc, i, j, k-1))

				volRight := v.center.Get(i, j, k)
				volLeft := v.center.Get(i-1, j, k)
				volTop := v.edgeW.Get(i, j+1, k)
				volBottom := v.edgeW.Get(i, j, k)
				volFront := v.edgeV.Get(i, j, k+1)
				volBack := v.edgeV.Get(i, j, k)

				fRight := 2 * factor * viscRight * volRight
				fLeft := 2 * factor * viscLeft * volLeft
				fTop := factor * viscTop * volTop
				fBottom := factor * viscBottom * volBottom
				fFront := factor * viscFront * volFront
				fBack := factor * viscBack * volBack

				diag := v.u.Get(i, j, k) + fRight + fLeft + fTop + fBottom + fFront + fBack
				matrix.Set(row, row, diag)

				addIfFluid(matrix, state.U, mj.U, row, i+1, j, k, -fRight)
				addIfFluid(matrix, state.U, mj.U, row, i-1, j, k, -fLeft)
				addIfFluid(matrix, state.U, mj.U, row, i, j+1, k, -fTop)
				addIfFluid(matrix, state.U, mj.U, row, i, j-1, k, -fBottom)
				addIfFluid(matrix, state.U, mj.U, row, i, j, k+1, -fFront)
				addIfFluid(matrix, state.U, mj.U, row, i, j, k-1, -fBack)

				addIfFluid(matrix, state.V, mj.V, row, i, j+1, k, -fTop)
				addIfFluid(matrix, state.V, mj.V, row, i-1, j+1, k, fTop)
				addIfFluid(matrix, state.V, mj.V, row, i, j, k, fBottom)
				addIfFluid(matrix, state.V, mj.V, row, i-1, j, k, -fBottom)

				addIfFluid(matrix, state.W, mj.W, row, i, j, k+1, -fFront)
				addIfFluid(matrix, state.W, mj.W, row, i-1, j, k+1, fFront)
				addIfFluid(matrix, state.W, mj.W, row, i, j, k, fBack)
				addIfFluid(matrix, state.W, mj.W, row, i-1, j, k, -fBack)

				rval := v.u.Get(i, j, k) * vel.U.Get(i, j, k)
				rval -= solidContribution(state.U, -fRight, i+1, j, k, vel.U)
				rval -= solidContribution(state.U, -fLeft, i-1, j, k, vel.U)
				rval -= solidContribution(state.U, -fTop, i, j+1, k, vel.U)
				rval -= solidContribution(state.U, -fBottom, i, j-1, k, vel.U)
				rval -= solidContribution(state.U, -fFront, i, j, k+1, vel.U)
				rval -= solidContribution(state.U, -fBack, i, j, k-1, vel.U)

				rval -= solidContribution(state.V, -fTop, i, j+1, k, vel.V)
				rval -= solidContribution(state.V, fTop, i-1, j+1, k, vel.V)
				rval -= solidContribution(state.V, fBottom, i, j, k, vel.V)
				rval -= solidContribution(state.V, -fBottom, i-1, j, k, vel.V)

				rval -= solidContribution(state.W, -fFront, i, j, k+1, vel.W)
				rval -= solidContribution(state.W, fFront, i-1, j, k+1, vel.W)
				rval -= solidContribution(state.W, fBack, i, j, k, vel.W)
				rval -= solidContribution(state.W, -fBack, i-1, j, k, vel.W)

				rhs[row] = rval
			}
		}
	}
}

func initializeLinearSystemV(p Params, state *stateGrid, v *volumeGrid, mj matrixIndexer, matrix *linsolve.SparseMatrix, rhs []float64) {
	isize, jsize, ksize := p.LiquidSDF.Isize, p.LiquidSDF.Jsize, p.LiquidSDF.Ksize
	invdx := 1 / p.H
	factor := p.DeltaTime * invdx * invdx
	visc := p.Viscosity
	vel := p.Velocity

	for k := 1; k < ksize; k++ {
		for j := 1; j < jsize; j++ {
			for i := 1; i < isize; i++ {
				if state.V(i, j, k) != faceFluid {
					continue
				}
				row := mj.V(i, j, k)
				if row == -1 {
					continue
				}

				viscRight := 0.25 * (viscAt(visc, i, j-1, k) + viscAt(visc, i+1, j-1, k) + viscAt(visc, i, j, k) + viscAt(visc, i+1, j, k))
				viscLeft := 0.25 * (viscAt(visc, i, j-1, k) + viscAt(visc, i-1, j-1, k) + viscAt(visc, i, j, k) + viscAt(visc, i-1, j, k))
				viscTop := viscAt(visc, i, j, k)
				viscBottom := viscAt(visc, i, j-1, k)
				viscFront := 0.25 * (viscAt(visc, i, j-1, k) + viscAt(visc, i, j-1, k+1) + viscAt(visc, i, j, k) + viscAt(visc, i, j, k+1))
				viscBack := 0.25 * (viscAt(visc, i, j-1, k) + viscAt(visc, i, j-1, k-1) + viscAt(visc, i, j, k) + viscAt(visc, i, j, k-1))

				volRight := v.edgeW.Get(i+1, j, k)
				volLeft := v.edgeW.Get(i, j, k)
				volTop := v.center.Get(i, j, k)
				volBottom := v.center.Get(i, j-1, k)
				volFront := v.edgeU.Get(i, j, k+1)
				volBack := v.edgeU.Get(i, j, k)

				fRight := factor * viscRight * volRight
				fLeft := factor * viscLeft * volLeft
				fTop := 2 * factor * viscTop * volTop
				fBottom := 2 * factor * viscBottom * volBottom
				fFront := factor * viscFront * volFront
				fBack := factor * viscBack * volBack

				diag := v.v.Get(i, j, k) + fRight + fLeft + fTop + fBottom + fFront + fBack
				matrix.Set(row, row, diag)

				addIfFluid(matrix, state.V, mj.V, row, i+1, j, k, -fRight)
				addIfFluid(matrix, state.V, mj.V, row, i-1, j, k, -fLeft)
				addIfFluid(matrix, state.V, mj.V, row, i, j+1, k, -fTop)
				addIfFluid(matrix, state.V, mj.V, row, i, j-1, k, -fBottom)
				addIfFluid(matrix, state.V, mj.V, row, i, j, k+1, -fFront)
				addIfFluid(matrix, state.V, mj.V, row, i, j, k-1, -fBack)

				addIfFluid(matrix, state.U, mj.U, row, i+1, j, k, -fRight)
				addIfFluid(matrix, state.U, mj.U, row, i+1, j-1, k, fRight)
				addIfFluid(matrix, state.U, mj.U, row, i, j, k, fLeft)
				addIfFluid(matrix, state.U, mj.U, row, i, j-1, k, -fLeft)

				addIfFluid(matrix, state.W, mj.W, row, i, j, k+1, -fFront)
				addIfFluid(matrix, state.W, mj.W, row, i, j-1, k+1, fFront)
				addIfFluid(matrix, state.W, mj.W, row, i, j, k, fBack)
				addIfFluid(matrix, state.W, mj.W, row, i, j-1, k, -fBack)

				rval := v.v.Get(i, j, k) * vel.V.Get(i, j, k)
				rval -= solidContribution(state.V, -fRight, i+1, j, k, vel.V)
				rval -= solidContribution(state.V, -fLeft, i-1, j, k, vel.V)
				rval -= solidContribution(state.V, -fTop, i, j+1, k, vel.V)
				rval -= solidContribution(state.V, -fBottom, i, j-1, k, vel.V)
				rval -= solidContribution(state.V, -fFront, i, j, k+1, vel.V)
				rval -= solidContribution(state.V, -fBack, i, j, k-1, vel.V)

				rval -= solidContribution(state.U, -fRight, i+1, j, k, vel.U)
				rval -= solidContribution(state.U, fRight, i+1, j-1, k, vel.U)
				rval -= solidContribution(state.U, fLeft, i, j, k, vel.U)
				rval -= solidContribution(state.U, -fLeft, i, j-1, k, vel.U)

				rval -= solidContribution(state.W, -fFront, i, j, k+1, vel.W)
				rval -= solidContribution(state.W, fFront, i, j-1, k+1, vel.W)
				rval -= solidContribution(state.W, fBack, i, j, k, vel.W)
				rval -= solidContribution(state.W, -fBack, i, j-1, k, vel.W)

				rhs[row] = rval
			}
		}
	}
}

func initializeLinearSystemW(p Params, state *stateGrid, v *volumeGrid, mj matrixIndexer, matrix *linsolve.SparseMatrix, rhs []float64) {
	isize, jsize, ksize := p.LiquidSDF.Isize, p.LiquidSDF.Jsize, p.LiquidSDF.Ksize
	invdx := 1 / p.H
	factor := p.DeltaTime * invdx * invdx
	visc := p.Viscosity
	vel := p.Velocity

	for k := 1; k < ksize; k++ {
		for j := 1; j < jsize; j++ {
			for i := 1; i < isize; i++ {
				if state.W(i, j, k) != faceFluid {
					continue
				}
				row := mj.W(i, j, k)
				if row == -1 {
					continue
				}

				viscRight := 0.25 * (viscAt(visc, i, j, k) + viscAt(visc, i, j, k-1) + viscAt(visc, i+1, j, k) + viscAt(visc, i+1, j, k-1))
				viscLeft := 0.25 * (viscAt(visc, i, j, k) + viscAt(visc, i, j, k-1) + viscAt(visc, i-1, j, k) + viscAt(visc, i-1, j, k-1))
				viscTop := 0.25 * (viscAt(visc, i, j, k) + viscAt(visc, i, j, k-1) + viscAt(visc, i, j+1, k) + viscAt(visc, i, j+1, k-1))
				viscBottom := 0.25 * (viscAt(visc, i, j, k) + viscAt(visc, i, j, k-1) + viscAt(visc, i, j-1, k) + viscAt(visc, i, j-1, k-1))
				viscFront := viscAt(visc, i, j, k)
				viscBack := viscAt(visc, i, j, k-1)

				volRight := v.edgeV.Get(i+1, j, k)
				volLeft := v.edgeV.Get(i, j, k)
				volTop := v.edgeU.Get(i, j+1, k)
				volBottom := v.edgeU.Get(i, j, k)
				volFront := v.center.Get(i, j, k)
				volBack := v.center.Get(i, j, k-1)

				fRight := factor * viscRight * volRight
				fLeft := factor * viscLeft * volLeft
				fTop := factor * viscTop * volTop
				fBottom := factor * viscBottom * volBottom
				fFront := 2 * factor * viscFront * volFront
				fBack := 2 * factor * viscBack * volBack

				diag := v.w.Get(i, j, k) + fRight + fLeft + fTop + fBottom + fFront + fBack
				matrix.Set(row, row, diag)

				addIfFluid(matrix, state.W, mj.W, row, i+1, j, k, -fRight)
				addIfFluid(matrix, state.W, mj.W, row, i-1, j, k, -fLeft)
				addIfFluid(matrix, state.W, mj.W, row, i, j+1, k, -fTop)
				addIfFluid(matrix, state.W, mj.W, row, i, j-1, k, -fBottom)
				addIfFluid(matrix, state.W, mj.W, row, i, j, k+1, -fFront)
				addIfFluid(matrix, state.W, mj.W, row, i, j, k-1, -fBack)

				addIfFluid(matrix, state.U, mj.U, row, i+1, j, k, -fRight)
				addIfFluid(matrix, state.U, mj.U, row, i+1, j, k-1, fRight)
				addIfFluid(matrix, state.U, mj.U, row, i, j, k, fLeft)
				addIfFluid(matrix, state.U, mj.U, row, i, j, k-1, -fLeft)

				addIfFluid(matrix, state.V, mj.V, row, i, j+1, k, -fTop)
				addIfFluid(matrix, state.V, mj.V, row, i, j+1, k-1, fTop)
				addIfFluid(matrix, state.V, mj.V, row, i, j, k, fBottom)
				addIfFluid(matrix, state.V, mj.V, row, i, j, k-1, -fBottom)

				rval := v.w.Get(i, j, k) * vel.W.Get(i, j, k)
				rval -= solidContribution(state.W, -fRight, i+1, j, k, vel.W)
				rval -= solidContribution(state.W, -fLeft, i-1, j, k, vel.W)
				rval -= solidContribution(state.W, -fTop, i, j+1, k, vel.W)
				rval -= solidContribution(state.W, -fBottom, i, j-1, k, vel.W)
				rval -= solidContribution(state.W, -fFront, i, j, k+1, vel.W)
				rval -= solidContribution(state.W, -fBack, i, j, k-1, vel.W)

				rval -= solidContribution(state.U, -fRight, i+1, j, k, vel.U)
				rval -= solidContribution(state.U, fRight, i+1, j, k-1, vel.U)
				rval -= solidContribution(state.U, fLeft, i, j, k, vel.U)
				rval -= solidContribution(state.U, -fLeft, i, j, k-1, vel.U)

				rval -= solidContribution(state.V, -fTop, i, j+1, k, vel.V)
				rval -= solidContribution(state.V, fTop, i, j+1, k-1, vel.V)
				rval -= solidContribution(state.V, fBottom, i, j, k, vel.V)
				rval -= solidContribution(state.V, -fBottom, i, j, k-1, vel.V)

				rhs[row] = rval
			}
		}
	}
}

// addIfFluid adds coeff into matrix row `row` at the column indexed by
// faceIdx(i,j,k), but only when that neighbour face is itself a fluid
// unknown; solid-neighbour contributions move to the right-hand side via
// solidContribution instead.
func addIfFluid(matrix *linsolve.SparseMatrix, stateAt func(i, j, k int) faceState, faceIdx func(i, j, k int) int, row, i, j, k int, coeff float64) {
	if stateAt(i, j, k) != faceFluid {
		return
	}
	col := faceIdx(i, j, k)
	if col == -1 {
		return
	}
	matrix.Add(row, col, coeff)
}

// solidContribution returns the boundary term to subtract from the
// right-hand side when a neighbour face is a solid Dirichlet boundary:
// coeff carries the sign the corresponding matrix entry would have had.
func solidContribution(stateAt func(i, j, k int) faceState, coeff float64, i, j, k int, field *grid.Array3d) float64 {
	if stateAt(i, j, k) != faceSolid {
		return 0
	}
	return coeff * field.GetOr(i, j, k, 0)
}

// applySolutionToVelocityField writes the solved unknowns back onto
// Velocity, leaving every face without a matrix row (solid or air)
// untouched.
func applySolutionToVelocityField(vel *macgrid.Field, mj matrixIndexer, soln []float64) {
	isize, jsize, ksize := mj.isize, mj.jsize, mj.ksize
	for k := 0; k < ksize; k++ {
		for j := 0; j < jsize; j++ {
			for i := 0; i <= isize; i++ {
				if row := mj.U(i, j, k); row != -1 {
					vel.SetU(i, j, k, soln[row])
				}
			}
		}
	}
	for k := 0; k < ksize; k++ {
		for j := 0; j <= jsize; j++ {
			for i := 0; i < isize; i++ {
				if row := mj.V(i, j, k); row != -1 {
					vel.SetV(i, j, k, soln[row])
				}
			}
		}
	}
	for k := 0; k <= ksize; k++ {
		for j := 0; j < jsize; j++ {
			for i := 0; i < isize; i++ {
				if row := mj.W(i, j, k); row != -1 {
					vel.SetW(i, j, k, soln[row])
				}
			}
		}
	}
}
