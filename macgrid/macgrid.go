// Copyright 2016 The Gofem Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package macgrid implements the staggered (Marker-and-Cell) velocity
// field: three cell-face-centred scalar grids holding the normal velocity
// component at each U, V, and W face, per spec §3/§4.2.
package macgrid

import (
	"math"

	"github.com/flip3d-sim/flip3d/grid"
	"github.com/flip3d-sim/flip3d/vecmath"
)

// Field is the staggered velocity field over an I x J x K cell grid of
// cell width H.
type Field struct {
	Isize, Jsize, Ksize int
	H                    float64

	U, V, W *grid.Array3d

	validU, validV, validW *grid.BoolArray3d
}

// New allocates a zero-filled staggered field.
func New(isize, jsize, ksize int, h float64) *Field {
	return &Field{
		Isize: isize, Jsize: jsize, Ksize: ksize, H: h,
		U: grid.NewArray3d(isize+1, jsize, ksize, 0),
		V: grid.NewArray3d(isize, jsize+1, ksize, 0),
		W: grid.NewArray3d(isize, jsize, ksize+1, 0),

		validU: grid.NewBoolArray3d(isize+1, jsize, ksize, false),
		validV: grid.NewBoolArray3d(isize, jsize+1, ksize, false),
		validW: grid.NewBoolArray3d(isize, jsize, ksize+1, false),
	}
}

// Clear resets U, V, W (but not the validity masks) to zero.
func (f *Field) Clear() {
	f.U.Fill(0)
	f.V.Fill(0)
	f.W.Fill(0)
}

// ClearValidity marks every face as not-yet-received-a-direct-transfer.
func (f *Field) ClearValidity() {
	f.validU.Fill(false)
	f.validV.Fill(false)
	f.validW.Fill(false)
}

// Clone returns a deep copy of the field, used to save a pre-forces /
// pre-pressure snapshot for the FLIP velocity-delta computation.
func (f *Field) Clone() *Field {
	return &Field{
		Isize: f.Isize, Jsize: f.Jsize, Ksize: f.Ksize, H: f.H,
		U: f.U.Clone(), V: f.V.Clone(), W: f.W.Clone(),
		validU: f.validU.Clone(), validV: f.validV.Clone(), validW: f.validW.Clone(),
	}
}

// Valid returns the validity mask for the given axis (0=U,1=V,2=W).
func (f *Field) Valid(axis int) *grid.BoolArray3d {
	switch axis {
	case 0:
		return f.validU
	case 1:
		return f.validV
	default:
		return f.validW
	}
}

// Component returns the face grid for the given axis.
func (f *Field) Component(axis int) *grid.Array3d {
	switch axis {
	case 0:
		return f.U
	case 1:
		return f.V
	default:
		return f.W
	}
}

// faceOffset returns the half-cell offset applied before interpolating a
// cell-centred sample for the given axis' face position: the face lies at
// the cell's lower corner along its own axis, and the cell centre along
// the perpendicular axes.
func faceOffset(axis int, h float64) vecmath.Vec3 {
	half := h / 2
	switch axis {
	case 0:
		return vecmath.Vec3{X: 0, Y: half, Z: half}
	case 1:
		return vecmath.Vec3{X: half, Y: 0, Z: half}
	default:
		return vecmath.Vec3{X: half, Y: half, Z: 0}
	}
}

// interpAxis interpolates the axis-th component field at world position p.
func (f *Field) interpAxis(axis int, p vecmath.Vec3) float64 {
	offset := faceOffset(axis, f.H)
	q := p.Sub(offset)
	return grid.TrilinearScalar(f.Component(axis), q.X/f.H, q.Y/f.H, q.Z/f.H)
}

// EvaluateVelocityAtPosition samples all three components at world
// position p, per §4.2.
func (f *Field) EvaluateVelocityAtPosition(p vecmath.Vec3) vecmath.Vec3 {
	return vecmath.Vec3{
		X: f.interpAxis(0, p),
		Y: f.interpAxis(1, p),
		Z: f.interpAxis(2, p),
	}
}

// SetU, SetV, SetW assign a face value and mark it valid.
func (f *Field) SetU(i, j, k int, v float64) { f.U.Set(i, j, k, v); f.validU.Set(i, j, k, true) }
func (f *Field) SetV(i, j, k int, v float64) { f.V.Set(i, j, k, v); f.validV.Set(i, j, k, true) }
func (f *Field) SetW(i, j, k int, v float64) { f.W.Set(i, j, k, v); f.validW.Set(i, j, k, true) }

// AddU, AddV, AddW accumulate into a face value without altering validity
// (used during splatting, where validity is derived from the weight sum).
func (f *Field) AddU(i, j, k int, v float64) { f.U.Add(i, j, k, v) }
func (f *Field) AddV(i, j, k int, v float64) { f.V.Add(i, j, k, v) }
func (f *Field) AddW(i, j, k int, v float64) { f.W.Add(i, j, k, v) }

// Extrapolate runs the layered extrapolation on all three components for
// CFL-derived layer count L = ceil(cfl) + 2, per §4.2.
func (f *Field) Extrapolate(cfl float64) {
	layers := int(math.Ceil(cfl)) + 2
	grid.Extrapolate(f.U, f.validU, layers)
	grid.Extrapolate(f.V, f.validV, layers)
	grid.Extrapolate(f.W, f.validW, layers)
}

// ExtrapolateLayers runs the layered extrapolation with an explicit layer
// count, used by callers (pressure/viscosity solves) that already derived
// L = ceil(CFL)+2 once per sub-step.
func (f *Field) ExtrapolateLayers(layers int) {
	grid.Extrapolate(f.U, f.validU, layers)
	grid.Extrapolate(f.V, f.validV, layers)
	grid.Extrapolate(f.W, f.validW, layers)
}
