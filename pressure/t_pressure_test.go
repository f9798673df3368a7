// Copyright 2016 The Gofem Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pressure

import (
	"testing"

	"github.com/cpmech/gosl/chk"

	"github.com/flip3d-sim/flip3d/levelset"
	"github.com/flip3d-sim/flip3d/macgrid"
	"github.com/flip3d-sim/flip3d/weights"
)

// Test_pressure01 is the "still pool" scenario: a fully liquid, fully
// open (no solid) domain at rest has zero divergence everywhere, so the
// solve should report convergence without needing to iterate and must
// leave the (already zero) velocity field unchanged.
func Test_pressure01(tst *testing.T) {
	chk.PrintTitle("pressure01")

	const isize, jsize, ksize = 6, 6, 6
	const h = 0.1

	vel := macgrid.New(isize, jsize, ksize, h)

	liquidSDF := levelset.NewParticleLevelSet(isize, jsize, ksize, h)
	liquidSDF.Phi.Fill(-h)

	solidSDF := levelset.NewMeshLevelSet(isize, jsize, ksize, h)

	w := weights.New(isize, jsize, ksize)
	w.Update(solidSDF)

	status := Solve(Params{
		Velocity:            vel,
		LiquidSDF:           liquidSDF,
		SolidSDF:            solidSDF,
		Weights:             w,
		H:                   h,
		DeltaTime:           0.01,
		CFL:                 5,
		Tolerance:           1e-6,
		AcceptableTolerance: 1e-3,
		MaxIterations:       200,
	})

	if !status.Converged {
		tst.Fatalf("expected the zero-divergence still pool to converge trivially, got %+v", status)
	}
	if status.Iterations != 0 {
		tst.Fatalf("expected zero PCG iterations for a zero-RHS system, got %d", status.Iterations)
	}

	for k := 0; k < ksize; k++ {
		for j := 0; j < jsize; j++ {
			for i := 0; i <= isize; i++ {
				chk.Scalar(tst, "u", 1e-12, vel.U.Get(i, j, k), 0)
			}
		}
	}
}
