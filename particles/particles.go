// Copyright 2016 The Gofem Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package particles implements the marker-particle pipeline of §4.8:
// particle<->grid transfer, PIC/FLIP velocity blending, RK3 advection
// with solid-collision resolution, and the per-frame removal passes.
package particles

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/flip3d-sim/flip3d/grid"
	"github.com/flip3d-sim/flip3d/levelset"
	"github.com/flip3d-sim/flip3d/macgrid"
	"github.com/flip3d-sim/flip3d/threading"
	"github.com/flip3d-sim/flip3d/vecmath"
)

// Particle is a single FLIP marker: a position and the velocity it
// carried forward from the previous sub-step's PIC/FLIP blend.
type Particle struct {
	Position vecmath.Vec3
	Velocity vecmath.Vec3
}

// System owns the marker-particle store for one simulation.
type System struct {
	Particles *grid.FragmentedVector[Particle]
	Radius    float64
}

// New allocates an empty particle store.
func New(radius float64) *System {
	return &System{Particles: grid.NewFragmentedVector[Particle](4096), Radius: radius}
}

// faceOffset mirrors macgrid's half-cell convention: a face lies at the
// cell's lower corner along its own axis and the cell centre along the
// other two.
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

// TransferToGrid splats every particle's velocity onto the MAC field
// using a trilinear kernel (linear in all three directions, including
// the component's own axis, per §4.8's one-sided-in-component
// description of the standard staggered hat function), accumulating a
// numerator/denominator pair per face and dividing where the denominator
// is positive. Faces with zero weight are left at zero and invalid, so a
// subsequent Extrapolate can fill them in.
func (s *System) TransferToGrid(mac *macgrid.Field) {
	mac.Clear()
	mac.ClearValidity()

	h := mac.H
	comps := [3]*grid.Array3d{mac.U, mac.V, mac.W}
	num := [3]*grid.Array3d{}
	den := [3]*grid.Array3d{}
	for axis := 0; axis < 3; axis++ {
		ci, cj, ck := comps[axis].Dims()
		num[axis] = grid.NewArray3d(ci, cj, ck, 0)
		den[axis] = grid.NewArray3d(ci, cj, ck, 0)
	}

	s.Particles.ForEach(func(_ int, p Particle) {
		for axis := 0; axis < 3; axis++ {
			off := faceOffset(axis, h)
			q := p.Position.Sub(off)
			splatTrilinear(num[axis], den[axis], q.X/h, q.Y/h, q.Z/h, p.Velocity.Component(axis))
		}
	})

	for axis := 0; axis < 3; axis++ {
		ci, cj, ck := comps[axis].Dims()
		for k := 0; k < ck; k++ {
			for j := 0; j < cj; j++ {
				for i := 0; i < ci; i++ {
					d := den[axis].Get(i, j, k)
					if d <= 0 {
						continue
					}
					v := num[axis].Get(i, j, k) / d
					switch axis {
					case 0:
						mac.SetU(i, j, k, v)
					case 1:
						mac.SetV(i, j, k, v)
					default:
						mac.SetW(i, j, k, v)
					}
				}
			}
		}
	}
}

// splatTrilinear distributes value*weight and weight onto the 8 grid
// nodes surrounding (gx,gy,gz) in index space.
func splatTrilinear(num, den *grid.Array3d, gx, gy, gz, value float64) {
	i0 := int(math.Floor(gx))
	j0 := int(math.Floor(gy))
	k0 := int(math.Floor(gz))
	ax := gx - float64(i0)
	ay := gy - float64(j0)
	az := gz - float64(k0)

	for di := 0; di <= 1; di++ {
		for dj := 0; dj <= 1; dj++ {
			for dk := 0; dk <= 1; dk++ {
				wx := ax
				if di == 0 {
					wx = 1 - ax
				}
				wy := ay
				if dj == 0 {
					wy = 1 - ay
				}
				wz := az
				if dk == 0 {
					wz = 1 - az
				}
				w := wx * wy * wz
				if w == 0 {
					continue
				}
				i, j, k := i0+di, j0+dj, k0+dk
				if !num.InBounds(i, j, k) {
					continue
				}
				num.Add(i, j, k, w*value)
				den.Add(i, j, k, w)
			}
		}
	}
}

// UpdatePICFLIP blends each particle's old velocity with the pressure/
// viscosity-solved field per §4.8: v = alpha*v_PIC + (1-alpha)*v_FLIP,
// where v_FLIP = v_prev + (v_PIC - interp_saved(p)) and v_prev is the
// particle's own velocity carried in from the previous step.
func (s *System) UpdatePICFLIP(newField, savedField *macgrid.Field, alpha float64) {
	n := s.Particles.Len()
	threading.ParallelFor(n, func(start, end int) {
		for i := start; i < end; i++ {
			p := s.Particles.At(i)
			vPIC := newField.EvaluateVelocityAtPosition(p.Position)
			vSaved := savedField.EvaluateVelocityAtPosition(p.Position)
			vFLIP := p.Velocity.Add(vPIC.Sub(vSaved))
			p.Velocity = vPIC.Scale(alpha).Add(vFLIP.Scale(1 - alpha))
			s.Particles.Set(i, p)
		}
	})
}

// AdvectParams bundles the inputs needed to advect and resolve collisions
// for every particle in one sub-step.
type AdvectParams struct {
	Velocity        *macgrid.Field
	SolidSDF        *levelset.MeshLevelSet
	Domain          vecmath.AABB
	DeltaTime       float64
	CFL             float64
	SolidBufferCFL  float64 // solid_buffer, in units of h (§4.8's "buffer")
	StepFactor      float64 // fraction of h used for the March step (default 0.25)
	NearSolidBand   float64 // distance (in h) within which a cell is "near solid"
}

// nearSolidGridCellFactor sizes the coarse near-solid grid relative to h,
// matching the source's _nearSolidGridCellSizeFactor default of 1 cell.
const nearSolidGridCellFactor = 1.0

// nearSolid builds a coarse boolean mask over the simulation grid,
// true where the solid SDF's cell-centre distance is within
// NearSolidBand*h, then feathers it outward by ceil(CFL) layers so a
// particle one full CFL step away from a near-solid cell is still
// caught by the check in §4.8.
func nearSolid(solidSDF *levelset.MeshLevelSet, h, band, cfl float64) *grid.BoolArray3d {
	isize, jsize, ksize := solidSDF.Isize, solidSDF.Jsize, solidSDF.Ksize
	mask := grid.NewBoolArray3d(isize, jsize, ksize, false)
	maxd := band * h
	for k := 0; k < ksize; k++ {
		for j := 0; j < jsize; j++ {
			for i := 0; i < isize; i++ {
				if math.Abs(solidSDF.DistanceAtCellCenter(i, j, k)) < maxd {
					mask.Set(i, j, k, true)
				}
			}
		}
	}
	layers := int(math.Ceil(cfl))
	neighbors6 := func(i, j, k int) [6][3]int {
		return [6][3]int{
			{i - 1, j, k}, {i + 1, j, k},
			{i, j - 1, k}, {i, j + 1, k},
			{i, j, k - 1}, {i, j, k + 1},
		}
	}
	for l := 0; l < layers; l++ {
		next := grid.NewBoolArray3d(isize, jsize, ksize, false)
		for k := 0; k < ksize; k++ {
			for j := 0; j < jsize; j++ {
				for i := 0; i < isize; i++ {
					if mask.Get(i, j, k) {
						next.Set(i, j, k, true)
						continue
					}
					for _, n := range neighbors6(i, j, k) {
						if mask.Get(n[0], n[1], n[2]) {
							next.Set(i, j, k, true)
							break
						}
					}
				}
			}
		}
		mask = next
	}
	return mask
}

func cellOf(p vecmath.Vec3, h float64) (int, int, int) {
	return int(math.Floor(p.X / h)), int(math.Floor(p.Y / h)), int(math.Floor(p.Z / h))
}

// Advect runs RK3 integration on the current velocity field followed by
// solid-collision resolution, per §4.8, for every particle.
func (s *System) Advect(p AdvectParams) {
	h := p.Velocity.H
	mask := nearSolid(p.SolidSDF, h, p.NearSolidBand, p.CFL)
	boundary := p.Domain.Expand(-p.SolidBufferCFL * h)
	stepFactor := p.StepFactor
	if stepFactor <= 0 {
		stepFactor = 0.25
	}

	n := s.Particles.Len()
	threading.ParallelFor(n, func(start, end int) {
		for i := start; i < end; i++ {
			part := s.Particles.At(i)
			newPos := rk3(p.Velocity, part.Position, p.DeltaTime)
			newPos = resolveCollision(part.Position, newPos, p.SolidSDF, mask, boundary, h, p.CFL, p.SolidBufferCFL, stepFactor)
			part.Position = newPos
			s.Particles.Set(i, part)
		}
	})
}

// rk3 integrates p0 forward by dt through field, per §4.8's
// k1/k2/k3-weighted third-order Runge-Kutta scheme.
func rk3(field *macgrid.Field, p0 vecmath.Vec3, dt float64) vecmath.Vec3 {
	k1 := field.EvaluateVelocityAtPosition(p0)
	k2 := field.EvaluateVelocityAtPosition(p0.AddScaled(k1, 0.5*dt))
	k3 := field.EvaluateVelocityAtPosition(p0.AddScaled(k2, 0.75*dt))
	sum := k1.Scale(2).Add(k2.Scale(3)).Add(k3.Scale(4))
	return p0.AddScaled(sum, dt/9)
}

// resolveCollision implements §4.8's marching/projection scheme: if
// neither endpoint's cell is near a solid, newp is accepted outright;
// otherwise the segment is marched in stepFactor*h increments until a
// step lands inside the solid or outside the domain, and that collision
// point is projected back out along -grad(phi), rejecting the projection
// (falling back to the last safe step) if it still lands in the solid or
// travels further than CFL*h.
func resolveCollision(oldp, newp vecmath.Vec3, solidSDF *levelset.MeshLevelSet, mask *grid.BoolArray3d, boundary vecmath.AABB, h, cfl, solidBuffer, stepFactor float64) vecmath.Vec3 {
	if !boundary.Contains(newp) {
		newp = boundary.NearestPointInside(newp)
	}

	oi, oj, ok2 := cellOf(oldp, h)
	ni, nj, nk := cellOf(newp, h)
	if !mask.Get(oi, oj, ok2) && !mask.Get(ni, nj, nk) {
		return newp
	}

	const eps = 1e-9
	travel := newp.Distance(oldp)
	if travel < eps {
		return newp
	}

	stepDistance := stepFactor * h
	numSteps := int(math.Ceil(travel / stepDistance))
	dir := newp.Sub(oldp).Normalize()

	last := oldp
	var collide vecmath.Vec3
	var collidePhi float64
	found := false
	for step := 0; step < numSteps; step++ {
		var cur vecmath.Vec3
		if step == numSteps-1 {
			cur = newp
		} else {
			cur = oldp.AddScaled(dir, float64(step+1)*stepDistance)
		}
		phi := grid.InterpolateNodeCentered(solidSDF.Phi, cur.X, cur.Y, cur.Z, h)
		if phi < 0 || !boundary.Contains(cur) {
			collide, collidePhi, found = cur, phi, true
			break
		}
		last = cur
	}
	if !found {
		return newp
	}

	maxResolved := cfl * h
	gx, gy, gz := grid.GradientNodeCentered(solidSDF.Phi, collide.X, collide.Y, collide.Z, h)
	grad := vecmath.Vec3{X: gx, Y: gy, Z: gz}
	resolved := last
	if grad.Length() > eps {
		grad = grad.Normalize()
		candidate := collide.Sub(grad.Scale(collidePhi - solidBuffer*h))
		candidatePhi := grid.InterpolateNodeCentered(solidSDF.Phi, candidate.X, candidate.Y, candidate.Z, h)
		if candidatePhi >= 0 && candidate.Distance(collide) <= maxResolved {
			resolved = candidate
		}
	}

	if !boundary.Contains(resolved) {
		orig := resolved
		snapped := boundary.NearestPointInside(resolved)
		snappedPhi := grid.InterpolateNodeCentered(solidSDF.Phi, snapped.X, snapped.Y, snapped.Z, h)
		if snappedPhi < 0 || snapped.Distance(orig) > maxResolved {
			return last
		}
		return snapped
	}
	return resolved
}

// speedLimit implements §4.8's "extreme-velocity cap": the speed such
// that removing every particle faster than it removes at most
// min(0.01*N, maxAbsolute) particles, found as the corresponding
// empirical quantile of the speed distribution rather than a hand-rolled
// bucket scan.
func speedLimit(s *System, maxAbsolute int) float64 {
	n := s.Particles.Len()
	if n == 0 {
		return math.Inf(1)
	}

	maxRemoval := int(0.01 * float64(n))
	if maxAbsolute < maxRemoval {
		maxRemoval = maxAbsolute
	}
	if maxRemoval <= 0 {
		return math.Inf(1)
	}

	speeds := make([]float64, 0, n)
	s.Particles.ForEach(func(_ int, p Particle) {
		speeds = append(speeds, p.Velocity.Length())
	})
	sort.Float64s(speeds)

	q := 1 - float64(maxRemoval)/float64(n)
	return stat.Quantile(q, stat.Empirical, speeds, nil)
}

// RemovalParams bundles the per-frame removal-pass configuration of
// §4.8.
type RemovalParams struct {
	SolidSDF                   *levelset.MeshLevelSet
	Isize, Jsize, Ksize        int
	H                          float64
	DeltaTime                  float64
	CFL                        float64
	MaxPerCell                 int // N_per_cell, default 16
	ExtremeVelocityCapEnabled  bool
	MaxExtremeVelocityAbsolute int // default 32
}

// Remove runs the ordered removal passes of §4.8 (1: inside-solid, 2:
// per-cell density cap, 3: extreme-velocity cap) over the marker
// particles, swap-removing every flagged particle. Diffuse-particle
// removal is handled separately by the diffuse package.
func (s *System) Remove(p RemovalParams) {
	maxPerCell := p.MaxPerCell
	if maxPerCell <= 0 {
		maxPerCell = 16
	}
	maxAbs := p.MaxExtremeVelocityAbsolute
	if maxAbs <= 0 {
		maxAbs = 32
	}

	maxSpeed := speedLimit(s, maxAbs)
	maxSpeedSq := maxSpeed * maxSpeed

	count := grid.NewArray3d(p.Isize, p.Jsize, p.Ksize, 0)
	for i := 0; i < s.Particles.Len(); {
		part := s.Particles.At(i)

		phi := grid.InterpolateNodeCentered(p.SolidSDF.Phi, part.Position.X, part.Position.Y, part.Position.Z, p.H)
		if phi < 0 {
			s.Particles.SwapRemove(i)
			continue
		}

		ci, cj, ck := cellOf(part.Position, p.H)
		if !count.InBounds(ci, cj, ck) {
			s.Particles.SwapRemove(i)
			continue
		}
		if count.Get(ci, cj, ck) >= float64(maxPerCell) {
			s.Particles.SwapRemove(i)
			continue
		}

		if p.ExtremeVelocityCapEnabled && part.Velocity.LengthSq() > maxSpeedSq {
			s.Particles.SwapRemove(i)
			continue
		}

		count.Add(ci, cj, ck, 1)
		i++
	}
}
