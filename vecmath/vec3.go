// Copyright 2016 The Gofem Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package vecmath implements the small dense math primitives (vectors,
// axis-aligned boxes) shared by the grid, level-set, and solver packages.
package vecmath

import "math"

// Vec3 is a point or direction in world space.
type Vec3 struct {
	X, Y, Z float64
}

// NewVec3 builds a vector from its three components.
func NewVec3(x, y, z float64) Vec3 { return Vec3{x, y, z} }

// Add returns v+u.
func (v Vec3) Add(u Vec3) Vec3 { return Vec3{v.X + u.X, v.Y + u.Y, v.Z + u.Z} }

// Sub returns v-u.
func (v Vec3) Sub(u Vec3) Vec3 { return Vec3{v.X - u.X, v.Y - u.Y, v.Z - u.Z} }

// Scale returns v*s.
func (v Vec3) Scale(s float64) Vec3 { return Vec3{v.X * s, v.Y * s, v.Z * s} }

// AddScaled returns v + u*s.
func (v Vec3) AddScaled(u Vec3, s float64) Vec3 {
	return Vec3{v.X + u.X*s, v.Y + u.Y*s, v.Z + u.Z*s}
}

// Dot returns the dot product v.u.
func (v Vec3) Dot(u Vec3) float64 { return v.X*u.X + v.Y*u.Y + v.Z*u.Z }

// Cross returns v x u.
func (v Vec3) Cross(u Vec3) Vec3 {
	return Vec3{
		v.Y*u.Z - v.Z*u.Y,
		v.Z*u.X - v.X*u.Z,
		v.X*u.Y - v.Y*u.X,
	}
}

// Length returns |v|.
func (v Vec3) Length() float64 { return math.Sqrt(v.Dot(v)) }

// LengthSq returns |v|^2.
func (v Vec3) LengthSq() float64 { return v.Dot(v) }

// Normalize returns v/|v|, or the zero vector if v is (near) zero.
func (v Vec3) Normalize() Vec3 {
	l := v.Length()
	if l < 1e-12 {
		return Vec3{}
	}
	return v.Scale(1.0 / l)
}

// Distance returns |v-u|.
func (v Vec3) Distance(u Vec3) float64 { return v.Sub(u).Length() }

// Lerp linearly interpolates between v and u by t in [0,1].
func (v Vec3) Lerp(u Vec3, t float64) Vec3 { return v.AddScaled(u.Sub(v), t) }

// Negate returns -v.
func (v Vec3) Negate() Vec3 { return Vec3{-v.X, -v.Y, -v.Z} }

// Component returns the axis-th component (0=x,1=y,2=z).
func (v Vec3) Component(axis int) float64 {
	switch axis {
	case 0:
		return v.X
	case 1:
		return v.Y
	default:
		return v.Z
	}
}

// WithComponent returns a copy of v with the axis-th component set to val.
func (v Vec3) WithComponent(axis int, val float64) Vec3 {
	switch axis {
	case 0:
		v.X = val
	case 1:
		v.Y = val
	default:
		v.Z = val
	}
	return v
}

// MinVec3 returns the component-wise minimum.
func MinVec3(a, b Vec3) Vec3 {
	return Vec3{math.Min(a.X, b.X), math.Min(a.Y, b.Y), math.Min(a.Z, b.Z)}
}

// MaxVec3 returns the component-wise maximum.
func MaxVec3(a, b Vec3) Vec3 {
	return Vec3{math.Max(a.X, b.X), math.Max(a.Y, b.Y), math.Max(a.Z, b.Z)}
}

// Clamp clamps each component of v to [lo,hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
