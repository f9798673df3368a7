// Copyright 2016 The Gofem Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sheet

import (
	"testing"

	"github.com/cpmech/gosl/chk"

	"github.com/flip3d-sim/flip3d/grid"
	"github.com/flip3d-sim/flip3d/vecmath"
)

// Test_sheet01 checks that an empty marker-particle set produces no
// sheet seeds: there is nothing to identify as a thinning sheet.
func Test_sheet01(tst *testing.T) {
	chk.PrintTitle("sheet01")

	const isize, jsize, ksize = 8, 8, 8
	const h = 0.1

	surfaceSDF := grid.NewArray3d(isize, jsize, ksize, 3*h)

	seeds := Generate(Params{
		Positions: nil,
		SurfaceSDF: surfaceSDF,
		Isize:      isize,
		Jsize:      jsize,
		Ksize:      ksize,
		H:          h,
	})
	if len(seeds) != 0 {
		tst.Fatalf("expected no seeds from an empty particle set, got %d", len(seeds))
	}
}

// Test_sheet02 checks that a fill above the per-cell density cap yields
// no seeds: every candidate is skipped as already dense enough, so
// there is no thinning sheet for the pipeline to find.
func Test_sheet02(tst *testing.T) {
	chk.PrintTitle("sheet02")

	const isize, jsize, ksize = 8, 8, 8
	const h = 0.1

	surfaceSDF := grid.NewArray3d(isize, jsize, ksize, 0)

	var positions []vecmath.Vec3
	for k := 0; k < ksize; k++ {
		for j := 0; j < jsize; j++ {
			for i := 0; i < isize; i++ {
				center := vecmath.Vec3{X: (float64(i) + 0.5) * h, Y: (float64(j) + 0.5) * h, Z: (float64(k) + 0.5) * h}
				for n := 0; n < 8; n++ {
					positions = append(positions, center)
				}
			}
		}
	}

	seeds := Generate(Params{
		Positions:  positions,
		SurfaceSDF: surfaceSDF,
		Isize:      isize,
		Jsize:      jsize,
		Ksize:      ksize,
		H:          h,
	})
	if len(seeds) != 0 {
		tst.Fatalf("expected no seeds from a fully-dense interior fill, got %d", len(seeds))
	}
}
