// Copyright 2016 The Gofem Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package vecmath

// AABB is an axis-aligned bounding box defined by its minimum corner and
// per-axis extents (width, height, depth).
type AABB struct {
	Position Vec3
	Width    float64
	Height   float64
	Depth    float64
}

// NewAABB builds an AABB from its minimum corner and extents.
func NewAABB(position Vec3, width, height, depth float64) AABB {
	return AABB{Position: position, Width: width, Height: height, Depth: depth}
}

// NewAABBFromPoints builds the smallest AABB containing both points.
func NewAABBFromPoints(p0, p1 Vec3) AABB {
	min := MinVec3(p0, p1)
	max := MaxVec3(p0, p1)
	return AABB{Position: min, Width: max.X - min.X, Height: max.Y - min.Y, Depth: max.Z - min.Z}
}

// Max returns the maximum corner of the box.
func (b AABB) Max() Vec3 {
	return Vec3{b.Position.X + b.Width, b.Position.Y + b.Height, b.Position.Z + b.Depth}
}

// Contains reports whether p lies within the box (inclusive).
func (b AABB) Contains(p Vec3) bool {
	max := b.Max()
	return p.X >= b.Position.X && p.X <= max.X &&
		p.Y >= b.Position.Y && p.Y <= max.Y &&
		p.Z >= b.Position.Z && p.Z <= max.Z
}

// Expand returns a box grown by d on every side.
func (b AABB) Expand(d float64) AABB {
	return AABB{
		Position: Vec3{b.Position.X - d, b.Position.Y - d, b.Position.Z - d},
		Width:    b.Width + 2*d,
		Height:   b.Height + 2*d,
		Depth:    b.Depth + 2*d,
	}
}

// NearestPointInside clamps p to the closest point within the box.
func (b AABB) NearestPointInside(p Vec3) Vec3 {
	max := b.Max()
	return Vec3{
		Clamp(p.X, b.Position.X, max.X),
		Clamp(p.Y, b.Position.Y, max.Y),
		Clamp(p.Z, b.Position.Z, max.Z),
	}
}
