// Copyright 2016 The Gofem Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package weights

import (
	"testing"

	"github.com/cpmech/gosl/chk"

	"github.com/flip3d-sim/flip3d/levelset"
	"github.com/flip3d-sim/flip3d/vecmath"
)

// boxMesh builds a closed, outward-facing triangulated box enclosing the
// whole test grid, used to drive every weight fully closed.
func boxMesh(min, max vecmath.Vec3) *levelset.TriangleMesh {
	v := [8]vecmath.Vec3{
		{X: min.X, Y: min.Y, Z: min.Z}, {X: max.X, Y: min.Y, Z: min.Z},
		{X: max.X, Y: max.Y, Z: min.Z}, {X: min.X, Y: max.Y, Z: min.Z},
		{X: min.X, Y: min.Y, Z: max.Z}, {X: max.X, Y: min.Y, Z: max.Z},
		{X: max.X, Y: max.Y, Z: max.Z}, {X: min.X, Y: max.Y, Z: max.Z},
	}
	faces := [6][4]int{
		{0, 1, 2, 3}, {5, 4, 7, 6}, {4, 0, 3, 7}, {1, 5, 6, 2}, {4, 5, 1, 0}, {3, 2, 6, 7},
	}
	mesh := &levelset.TriangleMesh{Vertices: v[:]}
	for _, f := range faces {
		mesh.Triangles = append(mesh.Triangles, [3]int{f[0], f[1], f[2]}, [3]int{f[0], f[2], f[3]})
	}
	return mesh
}

// Test_weights01 checks that a solid-free domain (the default, all-
// outside MeshLevelSet) leaves every weight fully open.
func Test_weights01(tst *testing.T) {
	chk.PrintTitle("weights01")

	const isize, jsize, ksize = 4, 4, 4
	const h = 0.1

	solidSDF := levelset.NewMeshLevelSet(isize, jsize, ksize, h)

	g := New(isize, jsize, ksize)
	g.Update(solidSDF)

	for k := 0; k < ksize; k++ {
		for j := 0; j < jsize; j++ {
			for i := 0; i < isize; i++ {
				chk.Scalar(tst, "center", 1e-9, g.Center.Get(i, j, k), 1)
			}
		}
	}
	for k := 0; k < ksize; k++ {
		for j := 0; j < jsize; j++ {
			for i := 0; i <= isize; i++ {
				chk.Scalar(tst, "u", 1e-9, g.U.Get(i, j, k), 1)
			}
		}
	}
}

// Test_weights02 checks that a domain entirely inside a solid box closes
// every weight to zero.
func Test_weights02(tst *testing.T) {
	chk.PrintTitle("weights02")

	const isize, jsize, ksize = 4, 4, 4
	const h = 0.1

	mesh := boxMesh(vecmath.Vec3{X: -1, Y: -1, Z: -1}, vecmath.Vec3{X: 1, Y: 1, Z: 1})
	solidSDF := levelset.NewMeshLevelSet(isize, jsize, ksize, h)
	solidSDF.CalculateSignedDistanceField(mesh, 3, 0)

	g := New(isize, jsize, ksize)
	g.Update(solidSDF)

	chk.Scalar(tst, "center", 1e-9, g.Center.Get(2, 2, 2), 0)
}
