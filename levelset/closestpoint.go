// Copyright 2016 The Gofem Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package levelset implements the mesh-derived and particle-derived
// signed-distance fields (§4.3, §4.3a, §4.4) and their reinitialisation
// (§2.17).
package levelset

import "github.com/flip3d-sim/flip3d/vecmath"

// ClosestPointResult carries the closest point on a triangle together with
// the barycentric weights used to interpolate per-vertex attributes
// (position itself, and optionally velocity) at that point.
type ClosestPointResult struct {
	Point               vecmath.Vec3
	U, V, W             float64 // barycentric weights for x1, x2, x3
	DistanceSq          float64
}

// ClosestPointOnTriangle finds the point on triangle (x1,x2,x3) nearest to
// x0, per §4.3a: project onto the triangle's plane; if the barycentric
// coordinates are all non-negative the projection is the answer, otherwise
// clamp to the nearest edge and take the minimum of the three
// point-segment distances.
func ClosestPointOnTriangle(x0, x1, x2, x3 vecmath.Vec3) ClosestPointResult {
	e1 := x2.Sub(x1)
	e2 := x3.Sub(x1)
	d := x0.Sub(x1)

	a := e1.Dot(e1)
	b := e1.Dot(e2)
	c := e2.Dot(e2)
	dd1 := e1.Dot(d)
	dd2 := e2.Dot(d)

	det := a*c - b*b
	var u, v, w float64
	if det > 1e-20 {
		v = (c*dd1 - b*dd2) / det
		w = (a*dd2 - b*dd1) / det
		u = 1 - v - w
	}

	if u >= 0 && v >= 0 && w >= 0 {
		p := x1.AddScaled(e1, v).AddScaled(e2, w)
		return ClosestPointResult{Point: p, U: u, V: v, W: w, DistanceSq: p.Sub(x0).LengthSq()}
	}

	// fall back to the closest of the three edges
	best := closestPointOnSegment(x0, x1, x2)
	bestU, bestV, bestW := 1-best.t, best.t, 0.0
	bestDistSq := best.point.Sub(x0).LengthSq()
	bestPoint := best.point

	if s := closestPointOnSegment(x0, x2, x3); s.point.Sub(x0).LengthSq() < bestDistSq {
		bestPoint = s.point
		bestDistSq = s.point.Sub(x0).LengthSq()
		bestU, bestV, bestW = 0, 1-s.t, s.t
	}
	if s := closestPointOnSegment(x0, x3, x1); s.point.Sub(x0).LengthSq() < bestDistSq {
		bestPoint = s.point
		bestDistSq = s.point.Sub(x0).LengthSq()
		bestU, bestV, bestW = s.t, 0, 1-s.t
	}

	return ClosestPointResult{Point: bestPoint, U: bestU, V: bestV, W: bestW, DistanceSq: bestDistSq}
}

type segmentResult struct {
	point vecmath.Vec3
	t     float64 // parameter along [a,b], clamped to [0,1]
}

func closestPointOnSegment(x0, a, b vecmath.Vec3) segmentResult {
	ab := b.Sub(a)
	denom := ab.LengthSq()
	t := 0.0
	if denom > 1e-20 {
		t = vecmath.Clamp(x0.Sub(a).Dot(ab)/denom, 0, 1)
	}
	return segmentResult{point: a.AddScaled(ab, t), t: t}
}

// InterpolateVelocity uses the barycentric weights of a ClosestPointResult
// to blend per-vertex velocities, per §4.3a.
func (r ClosestPointResult) InterpolateVelocity(v1, v2, v3 vecmath.Vec3) vecmath.Vec3 {
	return v1.Scale(r.U).Add(v2.Scale(r.V)).Add(v3.Scale(r.W))
}
