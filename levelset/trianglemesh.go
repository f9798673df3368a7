// Copyright 2016 The Gofem Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package levelset

import "github.com/flip3d-sim/flip3d/vecmath"

// TriangleMesh is the input consumed from the mesh-authoring collaborator
// (§1, out of scope): vertex positions, triangle index triples, and
// optional per-vertex velocities used to derive a solid's face-velocity
// grid (§4.3 step 4).
type TriangleMesh struct {
	Vertices         []vecmath.Vec3
	Triangles        [][3]int
	VertexVelocities []vecmath.Vec3 // len 0 if the mesh carries no velocity
}

// HasVelocity reports whether per-vertex velocities were supplied.
func (m *TriangleMesh) HasVelocity() bool {
	return len(m.VertexVelocities) == len(m.Vertices) && len(m.Vertices) > 0
}

// TriangleVertices returns the three vertex positions of triangle t.
func (m *TriangleMesh) TriangleVertices(t int) (vecmath.Vec3, vecmath.Vec3, vecmath.Vec3) {
	tri := m.Triangles[t]
	return m.Vertices[tri[0]], m.Vertices[tri[1]], m.Vertices[tri[2]]
}

// TriangleVelocities returns the three vertex velocities of triangle t.
func (m *TriangleMesh) TriangleVelocities(t int) (vecmath.Vec3, vecmath.Vec3, vecmath.Vec3) {
	tri := m.Triangles[t]
	return m.VertexVelocities[tri[0]], m.VertexVelocities[tri[1]], m.VertexVelocities[tri[2]]
}

// Bounds returns the axis-aligned bounding box of the mesh.
func (m *TriangleMesh) Bounds() vecmath.AABB {
	if len(m.Vertices) == 0 {
		return vecmath.AABB{}
	}
	min := m.Vertices[0]
	max := m.Vertices[0]
	for _, v := range m.Vertices[1:] {
		min = vecmath.MinVec3(min, v)
		max = vecmath.MaxVec3(max, v)
	}
	return vecmath.NewAABBFromPoints(min, max)
}
