// Copyright 2016 The Gofem Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package grid

import "math"

// TrilinearScalar interpolates a cell-centred scalar field at a position
// already expressed in grid-index space (i.e. shifted by -h/2 and divided
// by h by the caller). Samples outside the grid contribute 0.
func TrilinearScalar(a *Array3d, gx, gy, gz float64) float64 {
	i0 := int(math.Floor(gx))
	j0 := int(math.Floor(gy))
	k0 := int(math.Floor(gz))
	ax := gx - float64(i0)
	ay := gy - float64(j0)
	az := gz - float64(k0)

	var sum float64
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
				sum += w * a.GetOr(i0+di, j0+dj, k0+dk, 0)
			}
		}
	}
	return sum
}

// InterpolateNodeCentered samples a node-centred field (value at node
// (i,j,k) represents the physical point (i*h,j*h,k*h), no half-cell shift)
// at world position p.
func InterpolateNodeCentered(a *Array3d, px, py, pz, h float64) float64 {
	return TrilinearScalar(a, px/h, py/h, pz/h)
}

// InterpolateCellCentered samples a cell-centred field (one whose value at
// cell (i,j,k) represents the physical point ((i+.5)h,(j+.5)h,(k+.5)h)) at
// the world-space position p, honouring the half-cell shift invariant of
// §4.1.
func InterpolateCellCentered(a *Array3d, px, py, pz, h float64) float64 {
	gx := px/h - 0.5
	gy := py/h - 0.5
	gz := pz/h - 0.5
	return TrilinearScalar(a, gx, gy, gz)
}

// GradientNodeCentered computes the gradient of a node-centred field
// (e.g. a MeshLevelSet's signed distance) at world position p via central
// differences at the nearest node, used by marker-particle collision
// resolution to project back out of a solid along -grad(phi).
func GradientNodeCentered(a *Array3d, px, py, pz, h float64) (gx, gy, gz float64) {
	i := int(math.Round(px / h))
	j := int(math.Round(py / h))
	k := int(math.Round(pz / h))
	gx = (a.GetOr(i+1, j, k, a.GetOr(i, j, k, 0)) - a.GetOr(i-1, j, k, a.GetOr(i, j, k, 0))) / (2 * h)
	gy = (a.GetOr(i, j+1, k, a.GetOr(i, j, k, 0)) - a.GetOr(i, j-1, k, a.GetOr(i, j, k, 0))) / (2 * h)
	gz = (a.GetOr(i, j, k+1, a.GetOr(i, j, k, 0)) - a.GetOr(i, j, k-1, a.GetOr(i, j, k, 0))) / (2 * h)
	return
}

// GradientCellCentered computes the gradient of a cell-centred field at p
// via bilinear interpolation of the six pairwise first differences, as
// specified in §4.1.
func GradientCellCentered(a *Array3d, px, py, pz, h float64) (gx, gy, gz float64) {
	gxi := px/h - 0.5
	gyi := py/h - 0.5
	gzi := pz/h - 0.5

	i0 := int(math.Floor(gxi))
	j0 := int(math.Floor(gyi))
	k0 := int(math.Floor(gzi))
	ax := gxi - float64(i0)
	ay := gyi - float64(j0)
	az := gzi - float64(k0)

	// first differences along each axis, bilinearly blended over the other two
	diffX := func(i, j, k int) float64 {
		return a.GetOr(i+1, j, k, 0) - a.GetOr(i, j, k, 0)
	}
	diffY := func(i, j, k int) float64 {
		return a.GetOr(i, j+1, k, 0) - a.GetOr(i, j, k, 0)
	}
	diffZ := func(i, j, k int) float64 {
		return a.GetOr(i, j, k+1, 0) - a.GetOr(i, j, k, 0)
	}

	bilerp := func(f func(i, j, k int) float64, keepAxis int) float64 {
		var sum float64
		for di := 0; di <= 1; di++ {
			for dj := 0; dj <= 1; dj++ {
				for dk := 0; dk <= 1; dk++ {
					if keepAxis == 0 && di == 1 {
						continue
					}
					if keepAxis == 1 && dj == 1 {
						continue
					}
					if keepAxis == 2 && dk == 1 {
						continue
					}
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
					switch keepAxis {
					case 0:
						wx = 1
					case 1:
						wy = 1
					default:
						wz = 1
					}
					w := wx * wy * wz
					sum += w * f(i0+di, j0+dj, k0+dk)
				}
			}
		}
		return sum
	}

	gx = bilerp(diffX, 0) / h
	gy = bilerp(diffY, 1) / h
	gz = bilerp(diffZ, 2) / h
	return
}
