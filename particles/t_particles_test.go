// Copyright 2016 The Gofem Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package particles

import (
	"testing"

	"github.com/cpmech/gosl/chk"

	"github.com/flip3d-sim/flip3d/levelset"
	"github.com/flip3d-sim/flip3d/macgrid"
	"github.com/flip3d-sim/flip3d/vecmath"
)

// openSolidSDF returns a solid level set with no triangles unioned in, so
// every point reads as far outside any solid.
func openSolidSDF(isize, jsize, ksize int, h float64) *levelset.MeshLevelSet {
	return levelset.NewMeshLevelSet(isize, jsize, ksize, h)
}

func Test_particles01(tst *testing.T) {
	chk.PrintTitle("particles01")

	const isize, jsize, ksize = 8, 8, 8
	const h = 0.1

	s := New(0.01)
	for n := 0; n < 300; n++ {
		s.Particles.Push(Particle{
			Position: vecmath.Vec3{X: 0.35, Y: 0.35, Z: 0.35},
			Velocity: vecmath.Vec3{X: 1, Y: 0, Z: 0},
		})
	}
	// a handful of extreme outliers, far faster than the bulk; count chosen
	// so 0.01*n lands exactly on 3, matching the removal budget below
	for n := 0; n < 3; n++ {
		s.Particles.Push(Particle{
			Position: vecmath.Vec3{X: 0.45, Y: 0.45, Z: 0.45},
			Velocity: vecmath.Vec3{X: 1000, Y: 0, Z: 0},
		})
	}

	before := s.Particles.Len()

	s.Remove(RemovalParams{
		SolidSDF:                  openSolidSDF(isize, jsize, ksize, h),
		Isize:                     isize,
		Jsize:                     jsize,
		Ksize:                     ksize,
		H:                         h,
		MaxPerCell:                1000,
		ExtremeVelocityCapEnabled: true,
	})

	after := s.Particles.Len()
	if after >= before {
		tst.Fatalf("expected extreme-velocity removal to shrink the particle count, before=%d after=%d", before, after)
	}

	var sawOutlier bool
	s.Particles.ForEach(func(_ int, p Particle) {
		if p.Velocity.X > 100 {
			sawOutlier = true
		}
	})
	if sawOutlier {
		tst.Fatal("expected every extreme-velocity outlier to be removed")
	}
}

func Test_particles02(tst *testing.T) {
	chk.PrintTitle("particles02")

	const isize, jsize, ksize = 8, 8, 8
	const h = 0.1

	s := New(0.01)
	for n := 0; n < 50; n++ {
		s.Particles.Push(Particle{
			Position: vecmath.Vec3{X: 0.35, Y: 0.35, Z: 0.35},
			Velocity: vecmath.Vec3{X: 1000, Y: 0, Z: 0},
		})
	}
	before := s.Particles.Len()

	s.Remove(RemovalParams{
		SolidSDF:                  openSolidSDF(isize, jsize, ksize, h),
		Isize:                     isize,
		Jsize:                     jsize,
		Ksize:                     ksize,
		H:                         h,
		MaxPerCell:                1000,
		ExtremeVelocityCapEnabled: false,
	})

	if s.Particles.Len() != before {
		tst.Fatalf("expected no removals with the cap disabled, before=%d after=%d", before, s.Particles.Len())
	}
}

func Test_particles03(tst *testing.T) {
	chk.PrintTitle("particles03")

	const isize, jsize, ksize = 8, 8, 8
	const h = 0.1

	s := New(0.01)
	for n := 0; n < 20; n++ {
		s.Particles.Push(Particle{Position: vecmath.Vec3{X: 0.35, Y: 0.35, Z: 0.35}})
	}

	s.Remove(RemovalParams{
		SolidSDF:   openSolidSDF(isize, jsize, ksize, h),
		Isize:      isize,
		Jsize:      jsize,
		Ksize:      ksize,
		H:          h,
		MaxPerCell: 4,
	})

	if s.Particles.Len() != 4 {
		tst.Fatalf("expected the per-cell cap to leave exactly 4 particles, got %d", s.Particles.Len())
	}
}

// Test_particles04 checks that a uniform particle velocity field
// round-trips through TransferToGrid/UpdatePICFLIP: splatting a constant
// velocity onto the MAC grid and pulling it back with pure PIC (alpha=1)
// should reproduce the same constant on every particle.
func Test_particles04(tst *testing.T) {
	chk.PrintTitle("particles04")

	const isize, jsize, ksize = 4, 4, 4
	const h = 0.1

	s := New(0.01)
	for k := 1; k < ksize; k++ {
		for j := 1; j < jsize; j++ {
			for i := 1; i < isize; i++ {
				s.Particles.Push(Particle{
					Position: vecmath.Vec3{X: (float64(i) + 0.5) * h, Y: (float64(j) + 0.5) * h, Z: (float64(k) + 0.5) * h},
					Velocity: vecmath.Vec3{X: 2, Y: -3, Z: 0.5},
				})
			}
		}
	}

	mac := macgrid.New(isize, jsize, ksize, h)
	s.TransferToGrid(mac)

	s.UpdatePICFLIP(mac, mac, 1.0)

	s.Particles.ForEach(func(_ int, p Particle) {
		chk.Scalar(tst, "vx", 1e-6, p.Velocity.X, 2)
		chk.Scalar(tst, "vy", 1e-6, p.Velocity.Y, -3)
		chk.Scalar(tst, "vz", 1e-6, p.Velocity.Z, 0.5)
	})
}
