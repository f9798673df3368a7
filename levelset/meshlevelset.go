// Copyright 2016 The Gofem Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package levelset

import (
	"math"
	"sort"

	"github.com/flip3d-sim/flip3d/grid"
	"github.com/flip3d-sim/flip3d/vecmath"
)

// MeshLevelSet is a node-centred signed-distance field derived from a
// triangle mesh, together with a closest-triangle index grid, a
// closest-mesh-object index grid, and (optionally) a face-velocity
// sub-grid, per §3/§4.3.
type MeshLevelSet struct {
	Isize, Jsize, Ksize int // cell counts; node grid is (I+1)x(J+1)x(K+1)
	H                   float64

	Phi                *grid.Array3d // node-centred distance, signed
	closestTriangles   []int         // flattened node -> triangle index, -1 if unset
	closestMeshObjects []int         // flattened node -> mesh-object index, -1 if unset

	mesh *TriangleMesh

	hasVelocity                     bool
	velU, velV, velW                *grid.Array3d // numerator: weighted sum of sampled velocity
	weightU, weightV, weightW       *grid.Array3d // denominator: accumulated face-fraction weight
	validU, validV, validW          *grid.BoolArray3d
}

const unsetIndex = -1

// defaultDistance is the initial (unsigned) distance written to every
// node before the mesh is rasterised.
func defaultDistance(isize, jsize, ksize int, h float64) float64 {
	return float64(isize+jsize+ksize) * h
}

// NewMeshLevelSet allocates an all-outside, all-unset level set over a
// cell grid of the given dimensions and cell width.
func NewMeshLevelSet(isize, jsize, ksize int, h float64) *MeshLevelSet {
	ni, nj, nk := isize+1, jsize+1, ksize+1
	m := &MeshLevelSet{
		Isize: isize, Jsize: jsize, Ksize: ksize, H: h,
		Phi: grid.NewArray3d(ni, nj, nk, defaultDistance(isize, jsize, ksize, h)),

		closestTriangles:   make([]int, ni*nj*nk),
		closestMeshObjects: make([]int, ni*nj*nk),

		velU: grid.NewArray3d(isize+1, jsize, ksize, 0), weightU: grid.NewArray3d(isize+1, jsize, ksize, 0),
		velV: grid.NewArray3d(isize, jsize+1, ksize, 0), weightV: grid.NewArray3d(isize, jsize+1, ksize, 0),
		velW: grid.NewArray3d(isize, jsize, ksize+1, 0), weightW: grid.NewArray3d(isize, jsize, ksize+1, 0),

		validU: grid.NewBoolArray3d(isize+1, jsize, ksize, false),
		validV: grid.NewBoolArray3d(isize, jsize+1, ksize, false),
		validW: grid.NewBoolArray3d(isize, jsize, ksize+1, false),
	}
	for i := range m.closestTriangles {
		m.closestTriangles[i] = unsetIndex
		m.closestMeshObjects[i] = unsetIndex
	}
	return m
}

func (m *MeshLevelSet) nodeFlat(i, j, k int) int {
	ni, nj, _ := m.Phi.Dims()
	return i + ni*(j+nj*k)
}

func (m *MeshLevelSet) nodePos(i, j, k int) vecmath.Vec3 {
	return vecmath.Vec3{X: float64(i) * m.H, Y: float64(j) * m.H, Z: float64(k) * m.H}
}

// ClosestTriangle returns the triangle index recorded for node (i,j,k), or
// -1 if unset.
func (m *MeshLevelSet) ClosestTriangle(i, j, k int) int {
	return m.closestTriangles[m.nodeFlat(i, j, k)]
}

// ClosestTriangleVelocity returns the mean vertex velocity of the
// triangle recorded at node (i,j,k), or the zero vector if no triangle is
// recorded there or the source mesh carries no velocities.
func (m *MeshLevelSet) ClosestTriangleVelocity(i, j, k int) vecmath.Vec3 {
	t := m.ClosestTriangle(i, j, k)
	if t < 0 || m.mesh == nil || !m.mesh.HasVelocity() {
		return vecmath.Vec3{}
	}
	v1, v2, v3 := m.mesh.TriangleVelocities(t)
	return v1.Add(v2).Add(v3).Scale(1.0 / 3.0)
}

// ClosestMeshObject returns the mesh-object index recorded for node
// (i,j,k), or -1 if unset. Used to attribute a solid-boundary node back to
// the MeshObject whose per-object properties (whitewater influence,
// velocity) should apply there.
func (m *MeshLevelSet) ClosestMeshObject(i, j, k int) int {
	return m.closestMeshObjects[m.nodeFlat(i, j, k)]
}

// FaceWeightU returns the fraction of the (i,j,k) U-face that lies inside
// the solid (phi < 0), derived from the four node distances at its
// corners.
func (m *MeshLevelSet) FaceWeightU(i, j, k int) float64 {
	return fractionInsideQuad(m.Phi.Get(i, j, k), m.Phi.Get(i, j+1, k), m.Phi.Get(i, j, k+1), m.Phi.Get(i, j+1, k+1))
}

// FaceWeightV returns the fraction of the (i,j,k) V-face inside the solid.
func (m *MeshLevelSet) FaceWeightV(i, j, k int) float64 {
	return fractionInsideQuad(m.Phi.Get(i, j, k), m.Phi.Get(i, j, k+1), m.Phi.Get(i+1, j, k), m.Phi.Get(i+1, j, k+1))
}

// FaceWeightW returns the fraction of the (i,j,k) W-face inside the solid.
func (m *MeshLevelSet) FaceWeightW(i, j, k int) float64 {
	return fractionInsideQuad(m.Phi.Get(i, j, k), m.Phi.Get(i, j+1, k), m.Phi.Get(i+1, j, k), m.Phi.Get(i+1, j+1, k))
}

// DistanceAtCellCenter returns the solid distance at the centre of cell
// (i,j,k), the average of its 8 corner nodes (exact under trilinear
// interpolation), used by the viscosity solver's face-state classification.
func (m *MeshLevelSet) DistanceAtCellCenter(i, j, k int) float64 {
	sum := m.Phi.Get(i, j, k) + m.Phi.Get(i+1, j, k) + m.Phi.Get(i, j+1, k) + m.Phi.Get(i+1, j+1, k) +
		m.Phi.Get(i, j, k+1) + m.Phi.Get(i+1, j, k+1) + m.Phi.Get(i, j+1, k+1) + m.Phi.Get(i+1, j+1, k+1)
	return sum / 8
}

// CellWeight returns the fraction of cell (i,j,k) inside the solid, per
// cellWeightApprox.
func (m *MeshLevelSet) CellWeight(i, j, k int) float64 {
	phi := [8]float64{
		m.Phi.Get(i, j, k), m.Phi.Get(i+1, j, k), m.Phi.Get(i, j+1, k), m.Phi.Get(i+1, j+1, k),
		m.Phi.Get(i, j, k+1), m.Phi.Get(i+1, j, k+1), m.Phi.Get(i, j+1, k+1), m.Phi.Get(i+1, j+1, k+1),
	}
	return cellWeightApprox(phi)
}

// CalculateSignedDistanceField rasterises mesh into the level set using
// the full algorithm of §4.3: per-triangle banded distance, BFS distance
// propagation, ray-cast sign determination, and (if the mesh carries
// per-vertex velocities) face-velocity accumulation.
func (m *MeshLevelSet) CalculateSignedDistanceField(mesh *TriangleMesh, bandwidth int, meshObjectIndex int) {
	m.mesh = mesh
	m.rasterizeBand(mesh, bandwidth, meshObjectIndex)
	m.propagateByBFS()
	m.applySign(mesh)
	if mesh.HasVelocity() {
		m.accumulateFaceVelocity(mesh)
		m.hasVelocity = true
	}
}

// FastCalculateSignedDistanceField is the §4.3 "fast" variant: identical
// to CalculateSignedDistanceField but skips the BFS propagation step, so
// the closest-triangle grid (and therefore a caller that wants sign) is
// only meaningful within the exact rasterised band.
func (m *MeshLevelSet) FastCalculateSignedDistanceField(mesh *TriangleMesh, bandwidth int, meshObjectIndex int) {
	m.mesh = mesh
	m.rasterizeBand(mesh, bandwidth, meshObjectIndex)
	m.applySign(mesh)
	if mesh.HasVelocity() {
		m.accumulateFaceVelocity(mesh)
		m.hasVelocity = true
	}
}

func (m *MeshLevelSet) rasterizeBand(mesh *TriangleMesh, bandwidth int, meshObjectIndex int) {
	ni, nj, nk := m.Phi.Dims()
	for t := range mesh.Triangles {
		x1, x2, x3 := mesh.TriangleVertices(t)
		lo := vecmath.MinVec3(vecmath.MinVec3(x1, x2), x3)
		hi := vecmath.MaxVec3(vecmath.MaxVec3(x1, x2), x3)

		i0 := clampInt(int(math.Floor(lo.X/m.H))-bandwidth, 0, ni-1)
		j0 := clampInt(int(math.Floor(lo.Y/m.H))-bandwidth, 0, nj-1)
		k0 := clampInt(int(math.Floor(lo.Z/m.H))-bandwidth, 0, nk-1)
		i1 := clampInt(int(math.Ceil(hi.X/m.H))+bandwidth, 0, ni-1)
		j1 := clampInt(int(math.Ceil(hi.Y/m.H))+bandwidth, 0, nj-1)
		k1 := clampInt(int(math.Ceil(hi.Z/m.H))+bandwidth, 0, nk-1)

		for k := k0; k <= k1; k++ {
			for j := j0; j <= j1; j++ {
				for i := i0; i <= i1; i++ {
					p := m.nodePos(i, j, k)
					cp := ClosestPointOnTriangle(p, x1, x2, x3)
					d := math.Sqrt(cp.DistanceSq)
					if d < m.Phi.Get(i, j, k) {
						m.Phi.Set(i, j, k, d)
						m.closestTriangles[m.nodeFlat(i, j, k)] = t
						m.closestMeshObjects[m.nodeFlat(i, j, k)] = meshObjectIndex
					}
				}
			}
		}
	}
}

// propagateByBFS implements §4.3 step 2: nodes whose closest-triangle is
// already known seed a breadth-first search; each dequeued node tests all
// six neighbours' distance to its own closest triangle, keeps the smaller
// distance, and enqueues the neighbours not yet visited.
func (m *MeshLevelSet) propagateByBFS() {
	ni, nj, nk := m.Phi.Dims()
	visited := make([]bool, ni*nj*nk)
	queue := grid.NewIndexVector(ni * nj * nk)

	for k := 0; k < nk; k++ {
		for j := 0; j < nj; j++ {
			for i := 0; i < ni; i++ {
				if m.closestTriangles[m.nodeFlat(i, j, k)] != unsetIndex {
					visited[m.nodeFlat(i, j, k)] = true
					queue.Push(grid.New(i, j, k))
				}
			}
		}
	}

	for head := 0; head < queue.Len(); head++ {
		g := queue.At(head)
		tri := m.closestTriangles[m.nodeFlat(g.I, g.J, g.K)]
		obj := m.closestMeshObjects[m.nodeFlat(g.I, g.J, g.K)]
		if tri == unsetIndex {
			continue
		}
		x1, x2, x3 := m.mesh.TriangleVertices(tri)
		for _, n := range g.FaceNeighbors6() {
			if n.I < 0 || n.J < 0 || n.K < 0 || n.I >= ni || n.J >= nj || n.K >= nk {
				continue
			}
			flat := m.nodeFlat(n.I, n.J, n.K)
			p := m.nodePos(n.I, n.J, n.K)
			cp := ClosestPointOnTriangle(p, x1, x2, x3)
			d := math.Sqrt(cp.DistanceSq)
			if d < m.Phi.Get(n.I, n.J, n.K) {
				m.Phi.Set(n.I, n.J, n.K, d)
				m.closestTriangles[flat] = tri
				m.closestMeshObjects[flat] = obj
			}
			if !visited[flat] {
				visited[flat] = true
				queue.Push(n)
			}
		}
	}
}

// applySign implements §4.3 step 3 via parity of +X-axis ray/triangle
// intersection counts: an odd number of crossings places the node inside
// the (assumed closed, outward-facing) mesh. Crossings at the same X (a
// ray through an edge or vertex shared by adjacent triangles) count once.
func (m *MeshLevelSet) applySign(mesh *TriangleMesh) {
	ni, nj, nk := m.Phi.Dims()
	for k := 0; k < nk; k++ {
		for j := 0; j < nj; j++ {
			p := m.nodePos(0, j, k)
			crossings := make([]float64, 0, 8)
			for t := range mesh.Triangles {
				x1, x2, x3 := mesh.TriangleVertices(t)
				if x, ok := rayTriangleXCrossing(p, x1, x2, x3); ok {
					crossings = append(crossings, x)
				}
			}
			sort.Float64s(crossings)
			unique := crossings[:0]
			for _, c := range crossings {
				if len(unique) == 0 || c-unique[len(unique)-1] > 1e-9*m.H {
					unique = append(unique, c)
				}
			}
			crossings = unique
			for i := 0; i < ni; i++ {
				x := float64(i) * m.H
				count := 0
				for _, c := range crossings {
					if c > x {
						count++
					}
				}
				if count%2 == 1 {
					m.Phi.Set(i, j, k, -m.Phi.Get(i, j, k))
				}
			}
		}
	}
}

// rayTriangleXCrossing tests whether the ray from p along +X crosses
// triangle (x1,x2,x3), returning the crossing's X coordinate.
func rayTriangleXCrossing(p, x1, x2, x3 vecmath.Vec3) (float64, bool) {
	ylo := math.Min(x1.Y, math.Min(x2.Y, x3.Y))
	yhi := math.Max(x1.Y, math.Max(x2.Y, x3.Y))
	zlo := math.Min(x1.Z, math.Min(x2.Z, x3.Z))
	zhi := math.Max(x1.Z, math.Max(x2.Z, x3.Z))
	if p.Y < ylo || p.Y > yhi || p.Z < zlo || p.Z > zhi {
		return 0, false
	}

	// barycentric coords of (p.Y,p.Z) in the triangle's (Y,Z) projection
	e1y, e1z := x2.Y-x1.Y, x2.Z-x1.Z
	e2y, e2z := x3.Y-x1.Y, x3.Z-x1.Z
	dy, dz := p.Y-x1.Y, p.Z-x1.Z

	det := e1y*e2z - e2y*e1z
	if math.Abs(det) < 1e-20 {
		return 0, false
	}
	v := (dy*e2z - e2y*dz) / det
	w := (e1y*dz - dy*e1z) / det
	u := 1 - v - w
	if u < 0 || v < 0 || w < 0 {
		return 0, false
	}
	x := u*x1.X + v*x2.X + w*x3.X
	return x, true
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// accumulateFaceVelocity implements §4.3 step 4: for every staggered
// face, find the closest triangle among the 8 surrounding nodes and
// interpolate that triangle's vertex velocities at the closest point,
// weighted by the face's in-air fractional area.
func (m *MeshLevelSet) accumulateFaceVelocity(mesh *TriangleMesh) {
	accumulate := func(axis int, vel, weight *grid.Array3d, facePos func(i, j, k int) vecmath.Vec3, corners func(i, j, k int) [4][3]int) {
		ni, nj, nk := vel.Dims()
		for k := 0; k < nk; k++ {
			for j := 0; j < nj; j++ {
				for i := 0; i < ni; i++ {
					tri, ok := m.bestTriangleNear8(axis, i, j, k)
					if !ok {
						continue
					}
					w := m.faceFractionWeight(corners(i, j, k))
					if w <= 0 {
						continue
					}
					x1, x2, x3 := mesh.TriangleVertices(tri)
					v1, v2, v3 := mesh.TriangleVelocities(tri)
					p := facePos(i, j, k)
					cp := ClosestPointOnTriangle(p, x1, x2, x3)
					v := cp.InterpolateVelocity(v1, v2, v3)
					normalVel := v.Component(axis)
					vel.Add(i, j, k, normalVel*w)
					weight.Add(i, j, k, w)
				}
			}
		}
	}

	half := m.H / 2
	accumulate(0, m.velU, m.weightU,
		func(i, j, k int) vecmath.Vec3 {
			return vecmath.Vec3{X: float64(i) * m.H, Y: float64(j)*m.H + half, Z: float64(k)*m.H + half}
		},
		func(i, j, k int) [4][3]int {
			return [4][3]int{{i, j, k}, {i, j + 1, k}, {i, j, k + 1}, {i, j + 1, k + 1}}
		})
	accumulate(1, m.velV, m.weightV,
		func(i, j, k int) vecmath.Vec3 {
			return vecmath.Vec3{X: float64(i)*m.H + half, Y: float64(j) * m.H, Z: float64(k)*m.H + half}
		},
		func(i, j, k int) [4][3]int {
			return [4][3]int{{i, j, k}, {i + 1, j, k}, {i, j, k + 1}, {i + 1, j, k + 1}}
		})
	accumulate(2, m.velW, m.weightW,
		func(i, j, k int) vecmath.Vec3 {
			return vecmath.Vec3{X: float64(i)*m.H + half, Y: float64(j)*m.H + half, Z: float64(k) * m.H}
		},
		func(i, j, k int) [4][3]int {
			return [4][3]int{{i, j, k}, {i + 1, j, k}, {i, j + 1, k}, {i + 1, j + 1, k}}
		})
}

// bestTriangleNear8 picks, among the (up to) 8 nodes surrounding a
// staggered face along axis, the one with the smallest recorded distance
// that has a closest-triangle set.
func (m *MeshLevelSet) bestTriangleNear8(axis, i, j, k int) (int, bool) {
	var nodes [8][3]int
	switch axis {
	case 0:
		nodes = [8][3]int{{i, j, k}, {i, j + 1, k}, {i, j, k + 1}, {i, j + 1, k + 1}, {i, j, k}, {i, j, k}, {i, j, k}, {i, j, k}}
	case 1:
		nodes = [8][3]int{{i, j, k}, {i + 1, j, k}, {i, j, k + 1}, {i + 1, j, k + 1}, {i, j, k}, {i, j, k}, {i, j, k}, {i, j, k}}
	default:
		nodes = [8][3]int{{i, j, k}, {i + 1, j, k}, {i, j + 1, k}, {i + 1, j + 1, k}, {i, j, k}, {i, j, k}, {i, j, k}, {i, j, k}}
	}
	best := -1
	bestDist := math.Inf(1)
	ni, nj, nk := m.Phi.Dims()
	seen := map[[3]int]bool{}
	for _, n := range nodes {
		if seen[n] {
			continue
		}
		seen[n] = true
		if n[0] < 0 || n[1] < 0 || n[2] < 0 || n[0] >= ni || n[1] >= nj || n[2] >= nk {
			continue
		}
		tri := m.closestTriangles[m.nodeFlat(n[0], n[1], n[2])]
		if tri == unsetIndex {
			continue
		}
		d := math.Abs(m.Phi.Get(n[0], n[1], n[2]))
		if d < bestDist {
			bestDist = d
			best = tri
		}
	}
	return best, best != unsetIndex
}

// faceFractionWeight computes the in-air fractional area of a face from
// its four corner signed distances, per §4.3 step 4.
func (m *MeshLevelSet) faceFractionWeight(corners [4][3]int) float64 {
	var vals [4]float64
	for idx, c := range corners {
		vals[idx] = m.Phi.Get(c[0], c[1], c[2])
	}
	return 1 - fractionInsideQuad(vals[0], vals[1], vals[2], vals[3])
}

// Normalize divides the accumulated face-velocity numerator by its weight
// and extrapolates into faces with zero weight, per §3's "Invariant after
// update" for the face-velocity sub-grid.
func (m *MeshLevelSet) Normalize(cfl float64) {
	if !m.hasVelocity {
		return
	}
	normalizeOne := func(vel, weight *grid.Array3d, valid *grid.BoolArray3d) {
		ni, nj, nk := vel.Dims()
		for k := 0; k < nk; k++ {
			for j := 0; j < nj; j++ {
				for i := 0; i < ni; i++ {
					w := weight.Get(i, j, k)
					if w > 0 {
						vel.Set(i, j, k, vel.Get(i, j, k)/w)
						valid.Set(i, j, k, true)
					}
				}
			}
		}
		layers := int(math.Ceil(cfl)) + 2
		grid.Extrapolate(vel, valid, layers)
	}
	normalizeOne(m.velU, m.weightU, m.validU)
	normalizeOne(m.velV, m.weightV, m.validV)
	normalizeOne(m.velW, m.weightW, m.validW)
}

// FaceVelocityU, FaceVelocityV, FaceVelocityW expose the normalised
// surface-velocity sub-grid.
func (m *MeshLevelSet) FaceVelocityU() *grid.Array3d { return m.velU }
func (m *MeshLevelSet) FaceVelocityV() *grid.Array3d { return m.velV }
func (m *MeshLevelSet) FaceVelocityW() *grid.Array3d { return m.velW }

// HasVelocity reports whether this level set was built from a mesh with
// per-vertex velocities.
func (m *MeshLevelSet) HasVelocity() bool { return m.hasVelocity }

// Union merges other into m in place, per §4.3: where other is closer
// (smaller Phi), its distance and closest-triangle reference win; when
// both carry velocity, numerator and weight are summed before the next
// Normalize.
func (m *MeshLevelSet) Union(other *MeshLevelSet) {
	ni, nj, nk := m.Phi.Dims()
	oni, onj, onk := other.Phi.Dims()
	if ni != oni || nj != onj || nk != onk {
		return // different local grids: translated-union is a mesh-authoring concern, out of scope
	}
	for k := 0; k < nk; k++ {
		for j := 0; j < nj; j++ {
			for i := 0; i < ni; i++ {
				if other.Phi.Get(i, j, k) < m.Phi.Get(i, j, k) {
					m.Phi.Set(i, j, k, other.Phi.Get(i, j, k))
					flat := m.nodeFlat(i, j, k)
					m.closestTriangles[flat] = other.closestTriangles[flat]
					m.closestMeshObjects[flat] = other.closestMeshObjects[flat]
				}
			}
		}
	}
	if other.hasVelocity {
		m.hasVelocity = true
		addInto := func(dstV, dstW, srcV, srcW *grid.Array3d) {
			ni, nj, nk := dstV.Dims()
			for k := 0; k < nk; k++ {
				for j := 0; j < nj; j++ {
					for i := 0; i < ni; i++ {
						dstV.Add(i, j, k, srcV.Get(i, j, k))
						dstW.Add(i, j, k, srcW.Get(i, j, k))
					}
				}
			}
		}
		addInto(m.velU, m.weightU, other.velU, other.weightU)
		addInto(m.velV, m.weightV, other.velV, other.weightV)
		addInto(m.velW, m.weightW, other.velW, other.weightW)
	}
}

// Negate inverts the sign of every node's distance in place. Calling it
// twice is a no-op on Phi (§8 round-trip property).
func (m *MeshLevelSet) Negate() {
	ni, nj, nk := m.Phi.Dims()
	for k := 0; k < nk; k++ {
		for j := 0; j < nj; j++ {
			for i := 0; i < ni; i++ {
				m.Phi.Set(i, j, k, -m.Phi.Get(i, j, k))
			}
		}
	}
}
