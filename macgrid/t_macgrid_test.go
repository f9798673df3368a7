// Copyright 2016 The Gofem Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package macgrid

import (
	"testing"

	"github.com/cpmech/gosl/chk"

	"github.com/flip3d-sim/flip3d/vecmath"
)

// Test_macgrid01 checks that a uniform face-velocity field interpolates
// back to the same constant anywhere strictly inside the grid.
func Test_macgrid01(tst *testing.T) {
	chk.PrintTitle("macgrid01")

	const isize, jsize, ksize = 4, 4, 4
	const h = 0.1

	f := New(isize, jsize, ksize, h)
	for k := 0; k < ksize; k++ {
		for j := 0; j < jsize; j++ {
			for i := 0; i <= isize; i++ {
				f.SetU(i, j, k, 2)
			}
		}
	}
	for k := 0; k < ksize; k++ {
		for j := 0; j <= jsize; j++ {
			for i := 0; i < isize; i++ {
				f.SetV(i, j, k, -1)
			}
		}
	}
	for k := 0; k <= ksize; k++ {
		for j := 0; j < jsize; j++ {
			for i := 0; i < isize; i++ {
				f.SetW(i, j, k, 0.5)
			}
		}
	}

	v := f.EvaluateVelocityAtPosition(vecmath.Vec3{X: 2 * h, Y: 2 * h, Z: 2 * h})
	chk.Scalar(tst, "vx", 1e-9, v.X, 2)
	chk.Scalar(tst, "vy", 1e-9, v.Y, -1)
	chk.Scalar(tst, "vz", 1e-9, v.Z, 0.5)
}

// Test_macgrid02 checks that Clear zeroes every component without
// touching validity, and that ClearValidity resets the masks Clear
// leaves alone.
func Test_macgrid02(tst *testing.T) {
	chk.PrintTitle("macgrid02")

	const isize, jsize, ksize = 3, 3, 3
	const h = 0.1

	f := New(isize, jsize, ksize, h)
	f.SetU(1, 1, 1, 5)
	f.Clear()

	chk.Scalar(tst, "u", 1e-12, f.U.Get(1, 1, 1), 0)
	if !f.Valid(0).Get(1, 1, 1) {
		tst.Fatal("expected Clear to leave validity untouched")
	}

	f.ClearValidity()
	if f.Valid(0).Get(1, 1, 1) {
		tst.Fatal("expected ClearValidity to reset the validity mask")
	}
}
