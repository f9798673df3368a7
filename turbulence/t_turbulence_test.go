// Copyright 2016 The Gofem Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package turbulence

import (
	"testing"

	"github.com/cpmech/gosl/chk"

	"github.com/flip3d-sim/flip3d/macgrid"
)

// Test_turbulence01 checks that a uniform velocity field (every
// neighbour pair has zero relative speed) yields zero turbulence
// everywhere.
func Test_turbulence01(tst *testing.T) {
	chk.PrintTitle("turbulence01")

	const isize, jsize, ksize = 5, 5, 5
	const h = 0.1

	mac := macgrid.New(isize, jsize, ksize, h)
	for k := 0; k < ksize; k++ {
		for j := 0; j < jsize; j++ {
			for i := 0; i <= isize; i++ {
				mac.SetU(i, j, k, 1.5)
			}
		}
	}

	f := New(isize, jsize, ksize)
	f.Calculate(mac)

	for k := 0; k < ksize; k++ {
		for j := 0; j < jsize; j++ {
			for i := 0; i < isize; i++ {
				chk.Scalar(tst, "t", 1e-9, f.Get(i, j, k), 0)
			}
		}
	}
}

// Test_turbulence02 checks that introducing a single opposing-velocity
// cell makes its neighbourhood's turbulence strictly positive.
func Test_turbulence02(tst *testing.T) {
	chk.PrintTitle("turbulence02")

	const isize, jsize, ksize = 5, 5, 5
	const h = 0.1

	mac := macgrid.New(isize, jsize, ksize, h)
	for k := 0; k < ksize; k++ {
		for j := 0; j < jsize; j++ {
			for i := 0; i <= isize; i++ {
				mac.SetU(i, j, k, 1.0)
			}
		}
	}
	// reverse the flow on the faces bounding the centre cell
	mac.SetU(2, 2, 2, -1.0)
	mac.SetU(3, 2, 2, -1.0)

	f := New(isize, jsize, ksize)
	f.Calculate(mac)

	if f.Get(2, 2, 2) <= 0 {
		tst.Fatalf("expected positive turbulence near the velocity reversal, got %v", f.Get(2, 2, 2))
	}
}
