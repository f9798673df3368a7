// Copyright 2016 The Gofem Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sim

import (
	"testing"

	"github.com/cpmech/gosl/chk"

	"github.com/flip3d-sim/flip3d/particles"
	"github.com/flip3d-sim/flip3d/vecmath"
)

// baseConfig returns a minimal single-substep configuration with every
// non-core stage (diffuse, sheet, surface tension, viscosity) disabled,
// so each scenario test below exercises only the core transfer/forces/
// pressure/advect pipeline of §2.
func baseConfig(h float64) Config {
	return Config{
		Alpha:                        0.95,
		CFL:                          3,
		MinSubsteps:                  1,
		MaxSubsteps:                  1,
		ParticleRadius:                0.5 * h,
		PressureTolerance:             1e-6,
		PressureAcceptableTolerance:   1e-3,
		PressureMaxIterations:         50,
		ViscosityTolerance:            1e-6,
		ViscosityAcceptableTolerance:  1e-3,
		ViscosityMaxIterations:        50,
		MaxPerCell:                    64,
		ExtremeVelocityCapEnabled:     false,
	}
}

// Test_scenario_stillPool checks §8's still-pool baseline: a domain
// completely filled with at-rest marker particles and zero gravity must
// generate no spurious velocity. The fully-saturated, divergence-free
// configuration drives the pressure solve into its zero-RHS early exit,
// and the viscosity solve exits early because no viscosity is set, so
// every particle must come out exactly as it went in.
func Test_scenario_stillPool(tst *testing.T) {
	chk.PrintTitle("scenario_stillPool")

	const isize, jsize, ksize = 4, 4, 4
	const h = 0.1

	cfg := baseConfig(h)
	cfg.Gravity = [3]float64{0, 0, 0}

	s := New(isize, jsize, ksize, h, cfg)
	s.Initialize()

	for k := 0; k < ksize; k++ {
		for j := 0; j < jsize; j++ {
			for i := 0; i < isize; i++ {
				center := vecmath.Vec3{X: (float64(i) + 0.5) * h, Y: (float64(j) + 0.5) * h, Z: (float64(k) + 0.5) * h}
				s.Particles.Particles.Push(particles.Particle{Position: center})
			}
		}
	}

	stats := s.Update(0.01)
	if stats.NumParticles != isize*jsize*ksize {
		tst.Fatalf("expected no particles lost from a still pool, got %d", stats.NumParticles)
	}

	s.Particles.Particles.ForEach(func(_ int, p particles.Particle) {
		chk.Scalar(tst, "still_pool_speed", 1e-9, p.Velocity.Length(), 0)
	})
}

// Test_scenario_freeFall checks §8's free-fall baseline: a small drop far
// from any solid or other liquid, under gravity alone, must accelerate
// downward. Because a uniform body force keeps a divergence-free field
// divergence-free, the pressure solve cannot oppose it, so the particles'
// velocity after one sub-step must have gained a component in gravity's
// direction.
func Test_scenario_freeFall(tst *testing.T) {
	chk.PrintTitle("scenario_freeFall")

	const isize, jsize, ksize = 8, 8, 8
	const h = 0.1

	cfg := baseConfig(h)
	cfg.Gravity = [3]float64{0, -9.8, 0}

	s := New(isize, jsize, ksize, h, cfg)
	s.Initialize()

	centre := vecmath.Vec3{X: 0.45, Y: 0.45, Z: 0.45}
	for dk := 0; dk < 2; dk++ {
		for dj := 0; dj < 2; dj++ {
			for di := 0; di < 2; di++ {
				pos := centre.Add(vecmath.Vec3{X: float64(di) * h, Y: float64(dj) * h, Z: float64(dk) * h})
				s.Particles.Particles.Push(particles.Particle{Position: pos})
			}
		}
	}

	const dt = 0.005
	s.Update(dt)

	s.Particles.Particles.ForEach(func(_ int, p particles.Particle) {
		if p.Velocity.Y >= 0 {
			tst.Fatalf("expected a free-falling particle to gain downward velocity, got %+v", p.Velocity)
		}
	})
}
