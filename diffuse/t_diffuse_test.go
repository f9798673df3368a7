// Copyright 2016 The Gofem Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package diffuse

import (
	"testing"

	"github.com/cpmech/gosl/chk"

	"github.com/flip3d-sim/flip3d/levelset"
	"github.com/flip3d-sim/flip3d/macgrid"
	"github.com/flip3d-sim/flip3d/vecmath"
)

func alwaysBordersAir(vecmath.Vec3) bool { return true }
func neverBordersAir(vecmath.Vec3) bool  { return false }

// Test_diffuse01 checks §4.10's type-classification bands: a particle
// sitting inside the foam band becomes Foam, one well outside the band
// becomes Spray, and one forced by BordersAir==false becomes Bubble
// regardless of its distance.
func Test_diffuse01(tst *testing.T) {
	chk.PrintTitle("diffuse01")

	const isize, jsize, ksize = 4, 4, 4
	const h = 0.1

	surfaceSDF := levelset.NewMeshLevelSet(isize, jsize, ksize, h)
	surfaceSDF.Phi.Fill(0) // every node sits exactly on the surface

	s := New()
	s.Particles.Push(Particle{Position: vecmath.Vec3{X: 0.2, Y: 0.2, Z: 0.2}})
	s.Particles.Push(Particle{Position: vecmath.Vec3{X: 0.2, Y: 0.2, Z: 0.2}})

	s.Classify(ClassifyParams{
		SurfaceSDF:         surfaceSDF,
		BordersAir:         alwaysBordersAir,
		H:                  h,
		FoamDistanceFactor: 1,
		FoamOffset:         0,
	})
	if s.Particles.At(0).Type != Foam {
		tst.Fatalf("expected a particle on the surface to classify as foam, got %v", s.Particles.At(0).Type)
	}

	s2 := New()
	s2.Particles.Push(Particle{Position: vecmath.Vec3{X: 0.2, Y: 0.2, Z: 0.2}})
	surfaceSDF2 := levelset.NewMeshLevelSet(isize, jsize, ksize, h)
	surfaceSDF2.Phi.Fill(10 * h) // far outside the foam band, on the air side

	s2.Classify(ClassifyParams{
		SurfaceSDF:         surfaceSDF2,
		BordersAir:         alwaysBordersAir,
		H:                  h,
		FoamDistanceFactor: 1,
		FoamOffset:         0,
	})
	if s2.Particles.At(0).Type != Spray {
		tst.Fatalf("expected a particle far outside the foam band to classify as spray, got %v", s2.Particles.At(0).Type)
	}

	s3 := New()
	s3.Particles.Push(Particle{Position: vecmath.Vec3{X: 0.2, Y: 0.2, Z: 0.2}})
	s3.Classify(ClassifyParams{
		SurfaceSDF:         surfaceSDF2,
		BordersAir:         neverBordersAir,
		H:                  h,
		FoamDistanceFactor: 1,
		FoamOffset:         0,
	})
	if s3.Particles.At(0).Type != Bubble {
		tst.Fatalf("expected a particle not bordering air to be forced to bubble, got %v", s3.Particles.At(0).Type)
	}
}

// Test_diffuse02 pins down the fixed bubble-drag magnitude: with zero
// buoyancy, a bubble's new velocity after one step must equal exactly
// k_drag*(fluidVel-v), independent of dt, because the implementation's
// internal /dt cancels the outer dt multiplier per §4.10.
func Test_diffuse02(tst *testing.T) {
	chk.PrintTitle("diffuse02")

	const isize, jsize, ksize = 4, 4, 4
	const h = 0.1
	const dt = 0.01
	const dragBubble = 2.0

	vel := macgrid.New(isize, jsize, ksize, h)
	for k := 0; k < ksize; k++ {
		for j := 0; j < jsize; j++ {
			for i := 0; i <= isize; i++ {
				vel.SetU(i, j, k, 1.0)
			}
		}
	}

	s := New()
	s.Particles.Push(Particle{Position: vecmath.Vec3{X: 0.2, Y: 0.2, Z: 0.2}, Type: Bubble})

	s.Advect(AdvectParams{
		Velocity:       vel,
		Gravity:        vecmath.Vec3{},
		DeltaTime:      dt,
		BuoyancyBubble: 0,
		DragBubble:     dragBubble,
	})

	got := s.Particles.At(0).Velocity.X
	want := dragBubble * 1.0 // k_drag*(fluidVel-v), v starts at 0
	chk.Scalar(tst, "bubble_vx", 1e-9, got, want)
}

// Test_diffuse03 pins down the fixed speed-ceiling check: because every
// branch of Advect sets position to oldPos+v_new*dt exactly, the
// displacement-speed test reduces to comparing 1 against
// MaxVelocityFactor, so a factor below 1 always flags a moving particle
// and a factor at or above 1 never does.
func Test_diffuse03(tst *testing.T) {
	chk.PrintTitle("diffuse03")

	below := New()
	below.Particles.Push(Particle{Position: vecmath.Vec3{X: 1, Y: 1, Z: 1}, Velocity: vecmath.Vec3{X: 3, Y: 0, Z: 0}, Type: Spray})
	flaggedBelow := below.Advect(AdvectParams{DeltaTime: 0.1, MaxVelocityFactor: 0.5})
	if !flaggedBelow[0] {
		tst.Fatal("expected a sub-unity max-velocity factor to flag the particle for removal")
	}

	above := New()
	above.Particles.Push(Particle{Position: vecmath.Vec3{X: 1, Y: 1, Z: 1}, Velocity: vecmath.Vec3{X: 3, Y: 0, Z: 0}, Type: Spray})
	flaggedAbove := above.Advect(AdvectParams{DeltaTime: 0.1, MaxVelocityFactor: 2})
	if flaggedAbove[0] {
		tst.Fatal("expected a max-velocity factor above 1 to leave the particle unflagged")
	}
}

// Test_diffuse04 checks the foam-preservation lifetime bonus: when every
// occupied cell carries exactly one foam particle, each cell's density
// equals the field's own mean, so the bonus term (d-mean)/mean is zero
// and every particle's lifetime drops by exactly dt*modifier.
func Test_diffuse04(tst *testing.T) {
	chk.PrintTitle("diffuse04")

	const isize, jsize, ksize = 2, 2, 2
	const h = 0.1

	s := New()
	for k := 0; k < ksize; k++ {
		for j := 0; j < jsize; j++ {
			for i := 0; i < isize; i++ {
				pos := vecmath.Vec3{X: (float64(i) + 0.5) * h, Y: (float64(j) + 0.5) * h, Z: (float64(k) + 0.5) * h}
				s.Particles.Push(Particle{Position: pos, Lifetime: 1, Type: Foam})
			}
		}
	}

	s.DecrementLifetime(LifetimeParams{
		DeltaTime:    0.1,
		Modifier:     func(Type) float64 { return 1 },
		PreserveFoam: true,
		MinDensity:   0,
		MaxDensity:   100,
		H:            h,
		Isize:        isize, Jsize: jsize, Ksize: ksize,
	})

	s.Particles.ForEach(func(_ int, part Particle) {
		chk.Scalar(tst, "lifetime", 1e-9, part.Lifetime, 0.9)
	})
}

// Test_diffuse05 checks Prune: a particle with non-positive lifetime and
// a particle flagged by Advect are both removed, leaving only the
// surviving one.
func Test_diffuse05(tst *testing.T) {
	chk.PrintTitle("diffuse05")

	s := New()
	s.Particles.Push(Particle{Lifetime: -1})
	s.Particles.Push(Particle{Lifetime: 1})
	s.Particles.Push(Particle{Lifetime: 1})

	s.Prune([]bool{false, true, false})

	if s.Particles.Len() != 1 {
		tst.Fatalf("expected exactly one surviving particle, got %d", s.Particles.Len())
	}
	if s.Particles.At(0).Lifetime != 1 {
		tst.Fatalf("expected the surviving particle to have lifetime 1, got %v", s.Particles.At(0).Lifetime)
	}
}
