// Copyright 2016 The Gofem Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package levelset

import (
	"testing"

	"github.com/cpmech/gosl/chk"

	"github.com/flip3d-sim/flip3d/vecmath"
)

// boxMesh builds a closed, outward-facing triangulated box, the same
// shape an obstacle or seed region rasterises from in the scene builder.
func boxMesh(min, max vecmath.Vec3) *TriangleMesh {
	v := [8]vecmath.Vec3{
		{X: min.X, Y: min.Y, Z: min.Z}, {X: max.X, Y: min.Y, Z: min.Z},
		{X: max.X, Y: max.Y, Z: min.Z}, {X: min.X, Y: max.Y, Z: min.Z},
		{X: min.X, Y: min.Y, Z: max.Z}, {X: max.X, Y: min.Y, Z: max.Z},
		{X: max.X, Y: max.Y, Z: max.Z}, {X: min.X, Y: max.Y, Z: max.Z},
	}
	faces := [6][4]int{
		{0, 1, 2, 3}, // -z
		{5, 4, 7, 6}, // +z
		{4, 0, 3, 7}, // -x
		{1, 5, 6, 2}, // +x
		{4, 5, 1, 0}, // -y
		{3, 2, 6, 7}, // +y
	}
	mesh := &TriangleMesh{Vertices: v[:]}
	for _, f := range faces {
		mesh.Triangles = append(mesh.Triangles, [3]int{f[0], f[1], f[2]}, [3]int{f[0], f[2], f[3]})
	}
	return mesh
}

// Test_levelset01 checks the basic inside/outside sign convention of a
// rasterised mesh level set: a node at the centre of a solid box reads
// negative, and a node well outside the box reads positive.
func Test_levelset01(tst *testing.T) {
	chk.PrintTitle("levelset01")

	const isize, jsize, ksize = 10, 10, 10
	const h = 0.1

	mesh := boxMesh(vecmath.Vec3{X: 0.3, Y: 0.3, Z: 0.3}, vecmath.Vec3{X: 0.7, Y: 0.7, Z: 0.7})

	m := NewMeshLevelSet(isize, jsize, ksize, h)
	m.CalculateSignedDistanceField(mesh, 3, 0)

	centre := m.Phi.Get(5, 5, 5) // node at (0.5,0.5,0.5), deep inside the box
	if centre >= 0 {
		tst.Fatalf("expected a negative phi inside the solid box, got %v", centre)
	}

	corner := m.Phi.Get(0, 0, 0) // node at the origin, well outside the box
	if corner <= 0 {
		tst.Fatalf("expected a positive phi outside the solid box, got %v", corner)
	}
}

// Test_levelset02 checks that Union keeps the more-negative (more-inside)
// phi of the two fields, so combining two non-overlapping solids does not
// erase either one's interior.
func Test_levelset02(tst *testing.T) {
	chk.PrintTitle("levelset02")

	const isize, jsize, ksize = 10, 10, 10
	const h = 0.1

	a := NewMeshLevelSet(isize, jsize, ksize, h)
	a.CalculateSignedDistanceField(boxMesh(vecmath.Vec3{X: 0.1, Y: 0.1, Z: 0.1}, vecmath.Vec3{X: 0.3, Y: 0.3, Z: 0.3}), 3, 0)

	b := NewMeshLevelSet(isize, jsize, ksize, h)
	b.CalculateSignedDistanceField(boxMesh(vecmath.Vec3{X: 0.7, Y: 0.7, Z: 0.7}, vecmath.Vec3{X: 0.9, Y: 0.9, Z: 0.9}), 3, 1)

	a.Union(b)

	if a.Phi.Get(2, 2, 2) >= 0 {
		tst.Fatalf("expected the union to keep box a's interior negative, got %v", a.Phi.Get(2, 2, 2))
	}
	if a.Phi.Get(8, 8, 8) >= 0 {
		tst.Fatalf("expected the union to absorb box b's interior as negative, got %v", a.Phi.Get(8, 8, 8))
	}
}

// Test_levelset03 checks the particle level set's §4.4 stamping rule: a
// single particle at a cell centre drives that cell's phi to -radius, and
// a cell far outside the 3-cell stamping cube is left at the default +3h.
func Test_levelset03(tst *testing.T) {
	chk.PrintTitle("levelset03")

	const isize, jsize, ksize = 10, 10, 10
	const h = 0.1
	const radius = 0.05

	p := NewParticleLevelSet(isize, jsize, ksize, h)
	centre := vecmath.Vec3{X: 0.55, Y: 0.55, Z: 0.55} // centre of cell (5,5,5)
	p.CalculateSignedDistanceField([]vecmath.Vec3{centre}, radius)

	chk.Scalar(tst, "phi_at_particle_cell", 1e-9, p.Get(5, 5, 5), -radius)

	if p.Get(0, 0, 0) != 3*p.H {
		tst.Fatalf("expected a cell untouched by the stamp to keep the default +3h, got %v", p.Get(0, 0, 0))
	}
}
