// Copyright 2016 The Gofem Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package levelset

import (
	"math"

	"github.com/flip3d-sim/flip3d/grid"
	"github.com/flip3d-sim/flip3d/vecmath"
)

// ParticleLevelSet is the cell-centred liquid signed-distance field built
// directly from marker-particle positions, per §4.4.
type ParticleLevelSet struct {
	Isize, Jsize, Ksize int
	H                   float64
	Phi                 *grid.Array3d
}

// NewParticleLevelSet allocates a field capped at +3h everywhere.
func NewParticleLevelSet(isize, jsize, ksize int, h float64) *ParticleLevelSet {
	return &ParticleLevelSet{
		Isize: isize, Jsize: jsize, Ksize: ksize, H: h,
		Phi: grid.NewArray3d(isize, jsize, ksize, 3*h),
	}
}

func (p *ParticleLevelSet) cellCenter(i, j, k int) vecmath.Vec3 {
	h := p.H
	return vecmath.Vec3{X: (float64(i) + 0.5) * h, Y: (float64(j) + 0.5) * h, Z: (float64(k) + 0.5) * h}
}

// CalculateSignedDistanceField implements §4.4 steps 1-2: each particle
// stamps |c-p|-r into every cell within a 3-cell cube of its own cell,
// keeping the minimum. The result is capped at +3h (the initial value).
func (p *ParticleLevelSet) CalculateSignedDistanceField(particles []vecmath.Vec3, radius float64) {
	p.Phi.Fill(3 * p.H)
	h := p.H
	for _, pos := range particles {
		ci := int(math.Floor(pos.X / h))
		cj := int(math.Floor(pos.Y / h))
		ck := int(math.Floor(pos.Z / h))
		for dk := -1; dk <= 1; dk++ {
			for dj := -1; dj <= 1; dj++ {
				for di := -1; di <= 1; di++ {
					i, j, k := ci+di, cj+dj, ck+dk
					if !p.Phi.InBounds(i, j, k) {
						continue
					}
					c := p.cellCenter(i, j, k)
					d := c.Distance(pos) - radius
					if d < p.Phi.Get(i, j, k) {
						p.Phi.Set(i, j, k, d)
					}
				}
			}
		}
	}
}

// ExtrapolateIntoSolids implements §4.4 step 3: any cell within h/2 of the
// liquid surface that is also inside a solid is clamped to -h/2, so the
// pressure system treats it as fluid without double-counting solid
// volume.
func (p *ParticleLevelSet) ExtrapolateIntoSolids(solidPhi *MeshLevelSet) {
	h := p.H
	for k := 0; k < p.Ksize; k++ {
		for j := 0; j < p.Jsize; j++ {
			for i := 0; i < p.Isize; i++ {
				if p.Phi.Get(i, j, k) >= h/2 {
					continue
				}
				c := p.cellCenter(i, j, k)
				sd := grid.InterpolateNodeCentered(solidPhi.Phi, c.X, c.Y, c.Z, h)
				if sd < 0 {
					p.Phi.Set(i, j, k, -h/2)
				}
			}
		}
	}
}

// Get returns the signed distance at cell (i,j,k).
func (p *ParticleLevelSet) Get(i, j, k int) float64 { return p.Phi.Get(i, j, k) }

// FaceWeightU returns the fraction of the segment joining cells (i-1,j,k)
// and (i,j,k) that lies inside the liquid, used as theta in the pressure
// and viscosity air-side equations (§4.6).
func (p *ParticleLevelSet) FaceWeightU(i, j, k int) float64 {
	return fractionInsideSegment(p.Phi.GetOr(i-1, j, k, 3*p.H), p.Phi.GetOr(i, j, k, 3*p.H))
}

// FaceWeightV is FaceWeightU's V-axis counterpart.
func (p *ParticleLevelSet) FaceWeightV(i, j, k int) float64 {
	return fractionInsideSegment(p.Phi.GetOr(i, j-1, k, 3*p.H), p.Phi.GetOr(i, j, k, 3*p.H))
}

// FaceWeightW is FaceWeightU's W-axis counterpart.
func (p *ParticleLevelSet) FaceWeightW(i, j, k int) float64 {
	return fractionInsideSegment(p.Phi.GetOr(i, j, k-1, 3*p.H), p.Phi.GetOr(i, j, k, 3*p.H))
}

// SurfaceMesher is the narrow, out-of-scope (§1) polygonisation
// collaborator: given a scalar field sampled on the same node grid as a
// MeshLevelSet and an isovalue, it returns a triangle mesh of the
// zero-crossing surface. Marching cubes / surface reconstruction is
// supplied externally; the core only consumes the result.
type SurfaceMesher interface {
	Polygonize(scalar *grid.Array3d, h float64, isovalue float64) *TriangleMesh
}

// nodeAveragedScalar seeds the marching-cubes input from the cell-centred
// liquid SDF: each node value is the average of its (up to 8) surrounding
// cells' -phi, per §4.4 step 1 (the sign is flipped because the
// polygoniser's inside-convention is value > 0).
func (p *ParticleLevelSet) nodeAveragedScalar() *grid.Array3d {
	ni, nj, nk := p.Isize+1, p.Jsize+1, p.Ksize+1
	out := grid.NewArray3d(ni, nj, nk, 0)
	for k := 0; k < nk; k++ {
		for j := 0; j < nj; j++ {
			for i := 0; i < ni; i++ {
				var sum float64
				var count int
				for dk := -1; dk <= 0; dk++ {
					for dj := -1; dj <= 0; dj++ {
						for di := -1; di <= 0; di++ {
							ci, cj, ck := i+di, j+dj, k+dk
							if p.Phi.InBounds(ci, cj, ck) {
								sum += -p.Phi.Get(ci, cj, ck)
								count++
							}
						}
					}
				}
				if count > 0 {
					out.Set(i, j, k, sum/float64(count))
				}
			}
		}
	}
	return out
}

// smoothMesh applies N iterations of Laplacian smoothing (uniform
// one-ring average) in place, per §4.4 step 3.
func smoothMesh(mesh *TriangleMesh, iterations int) {
	if len(mesh.Vertices) == 0 {
		return
	}
	neighbors := make([]map[int]bool, len(mesh.Vertices))
	for i := range neighbors {
		neighbors[i] = make(map[int]bool)
	}
	for _, tri := range mesh.Triangles {
		for a := 0; a < 3; a++ {
			b := (a + 1) % 3
			neighbors[tri[a]][tri[b]] = true
			neighbors[tri[b]][tri[a]] = true
		}
	}
	for iter := 0; iter < iterations; iter++ {
		next := make([]vecmath.Vec3, len(mesh.Vertices))
		copy(next, mesh.Vertices)
		for v, nbrs := range neighbors {
			if len(nbrs) == 0 {
				continue
			}
			var sum vecmath.Vec3
			for n := range nbrs {
				sum = sum.Add(mesh.Vertices[n])
			}
			next[v] = sum.Scale(1 / float64(len(nbrs)))
		}
		mesh.Vertices = next
	}
}

// CalculateCurvatureGrid implements §4.4's curvature pipeline: polygonise
// the liquid surface, Laplacian-smooth it, rebuild a signed-distance field
// from the smoothed mesh (sign taken from the original scalar field to
// stay robust at thin sheets), take the divergence of its normalised
// gradient at nodes, and extrapolate the result into untrusted nodes.
func (p *ParticleLevelSet) CalculateCurvatureGrid(mesher SurfaceMesher, smoothIterations int) (*MeshLevelSet, *grid.Array3d) {
	scalar := p.nodeAveragedScalar()
	mesh := mesher.Polygonize(scalar, p.H, 0)
	smoothMesh(mesh, smoothIterations)

	surface := NewMeshLevelSet(p.Isize, p.Jsize, p.Ksize, p.H)
	surface.FastCalculateSignedDistanceField(mesh, 3, 0)
	reassignSignFromScalar(surface, scalar)

	curvature, valid := computeCurvature(surface.Phi, p.H)
	grid.Extrapolate(curvature, valid, 3)
	return surface, curvature
}

// reassignSignFromScalar overwrites surface's sign bit using the sign of
// the original node-averaged scalar field, since a freshly polygonised
// thin-sheet mesh's own ray-cast sign can flip-flop near zero thickness.
func reassignSignFromScalar(surface *MeshLevelSet, scalar *grid.Array3d) {
	ni, nj, nk := surface.Phi.Dims()
	for k := 0; k < nk; k++ {
		for j := 0; j < nj; j++ {
			for i := 0; i < ni; i++ {
				mag := math.Abs(surface.Phi.Get(i, j, k))
				if scalar.Get(i, j, k) > 0 {
					surface.Phi.Set(i, j, k, -mag)
				} else {
					surface.Phi.Set(i, j, k, mag)
				}
			}
		}
	}
}

// computeCurvature evaluates kappa = div(grad(phi)/|grad(phi)|) at every
// interior node via central differences, per §4.4 step 5. Border nodes,
// and nodes with |phi| > 2h, are left at zero and marked invalid so the
// caller extrapolates into them; a zero gradient yields zero curvature.
func computeCurvature(phi *grid.Array3d, h float64) (*grid.Array3d, *grid.BoolArray3d) {
	ni, nj, nk := phi.Dims()
	out := grid.NewArray3d(ni, nj, nk, 0)
	valid := grid.NewBoolArray3d(ni, nj, nk, false)

	grad := func(i, j, k int) vecmath.Vec3 {
		return vecmath.Vec3{
			X: (phi.GetOr(i+1, j, k, phi.Get(i, j, k)) - phi.GetOr(i-1, j, k, phi.Get(i, j, k))) / (2 * h),
			Y: (phi.GetOr(i, j+1, k, phi.Get(i, j, k)) - phi.GetOr(i, j-1, k, phi.Get(i, j, k))) / (2 * h),
			Z: (phi.GetOr(i, j, k+1, phi.Get(i, j, k)) - phi.GetOr(i, j, k-1, phi.Get(i, j, k))) / (2 * h),
		}
	}
	normalizedGrad := func(i, j, k int) vecmath.Vec3 {
		g := grad(i, j, k)
		return g.Normalize()
	}

	for k := 1; k < nk-1; k++ {
		for j := 1; j < nj-1; j++ {
			for i := 1; i < ni-1; i++ {
				if math.Abs(phi.Get(i, j, k)) > 2*h {
					continue // too far from the surface to trust a local normal
				}
				nxp := normalizedGrad(i+1, j, k).X
				nxm := normalizedGrad(i-1, j, k).X
				nyp := normalizedGrad(i, j+1, k).Y
				nym := normalizedGrad(i, j-1, k).Y
				nzp := normalizedGrad(i, j, k+1).Z
				nzm := normalizedGrad(i, j, k-1).Z
				div := (nxp-nxm)/(2*h) + (nyp-nym)/(2*h) + (nzp-nzm)/(2*h)
				out.Set(i, j, k, div)
				valid.Set(i, j, k, true)
			}
		}
	}
	return out, valid
}
