// Copyright 2016 The Gofem Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package diffuse implements the whitewater (foam/bubble/spray)
// particle system of §4.10-4.11: emitter search from the marker-particle
// surface, probabilistic emission, per-type classification with
// hysteresis, per-type advection, and type-aware collision resolution.
package diffuse

import (
	"math"

	"github.com/cpmech/gosl/rnd"

	"github.com/flip3d-sim/flip3d/grid"
	"github.com/flip3d-sim/flip3d/levelset"
	"github.com/flip3d-sim/flip3d/macgrid"
	"github.com/flip3d-sim/flip3d/turbulence"
	"github.com/flip3d-sim/flip3d/vecmath"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Type classifies a diffuse particle's current appearance/behaviour.
type Type int8

const (
	Bubble Type = iota
	Foam
	Spray
	NotSet
)

// Behavior is a diffuse particle's response to crossing an active
// domain boundary face, per §4.11.
type Behavior int8

const (
	Collide Behavior = iota
	Ballistic
	Kill
)

// Particle is a single whitewater marker.
type Particle struct {
	Position vecmath.Vec3
	Velocity vecmath.Vec3
	Lifetime float64
	Type     Type
}

// System owns the diffuse-particle store.
type System struct {
	Particles *grid.FragmentedVector[Particle]
}

// New allocates an empty diffuse-particle store.
func New() *System {
	return &System{Particles: grid.NewFragmentedVector[Particle](4096)}
}

// Emitter is a candidate spawn point surfaced by SearchEmitters, per
// §4.10's Emitter{p, v, I_E, I_wc, I_t}.
type Emitter struct {
	Position vecmath.Vec3
	Velocity vecmath.Vec3
	IE       float64
	IWC      float64
	IT       float64
}

// EmitterParams bundles the per-step emitter-search inputs of §4.10.
type EmitterParams struct {
	MarkerPositions []vecmath.Vec3
	MarkerVelocities []vecmath.Vec3
	SurfaceSDF      *levelset.MeshLevelSet // node-centred distance, §4.4 step 6 output
	Curvature       *grid.Array3d          // node-centred, same grid as SurfaceSDF.Phi
	BordersAir      func(p vecmath.Vec3) bool
	Turbulence      *turbulence.Field
	H               float64

	NarrowBandFactor float64 // d_narrow, default ~1
	EnergyMin, EnergyMax float64
	WaveCrestMin, WaveCrestMax float64
	WaveCrestSharpness float64
	TurbulenceMin, TurbulenceMax float64
	GenerationRate float64
}

func clamp01(v float64) float64 { return vecmath.Clamp(v, 0, 1) }

// SearchEmitters implements §4.10's emitter-search stage: classify each
// marker particle as surface or inside by |phi_surface| against a
// narrow-band threshold and a borders-air test, compute the relevant
// potential(s), then probabilistically surface an Emitter.
func SearchEmitters(p EmitterParams) []Emitter {
	narrowBand := p.NarrowBandFactor * p.H

	var emitters []Emitter
	for i, pos := range p.MarkerPositions {
		v := p.MarkerVelocities[i]
		phi := grid.InterpolateNodeCentered(p.SurfaceSDF.Phi, pos.X, pos.Y, pos.Z, p.H)
		isSurface := math.Abs(phi) < narrowBand && p.BordersAir(pos)

		var ie, iwc, it float64
		if isSurface {
			speedSq := v.LengthSq()
			ie = clamp01((0.5*speedSq - p.EnergyMin) / (p.EnergyMax - p.EnergyMin))

			kappa := grid.InterpolateNodeCentered(p.Curvature, pos.X, pos.Y, pos.Z, p.H)
			gx, gy, gz := grid.GradientNodeCentered(p.SurfaceSDF.Phi, pos.X, pos.Y, pos.Z, p.H)
			n := vecmath.Vec3{X: gx, Y: gy, Z: gz}
			if n.Length() > 1e-9 && v.Length() > 1e-9 {
				n = n.Normalize()
				vn := v.Normalize().Dot(n)
				if kappa > p.WaveCrestMin && vn > p.WaveCrestSharpness {
					iwc = clamp01((kappa - p.WaveCrestMin) / (p.WaveCrestMax - p.WaveCrestMin))
				}
			}
		} else {
			t := p.Turbulence.Get(cellIndex(pos, p.H))
			it = clamp01((t - p.TurbulenceMin) / (p.TurbulenceMax - p.TurbulenceMin))
		}

		if ie == 0 && iwc == 0 && it == 0 {
			continue
		}
		if !rnd.FlipCoin(p.GenerationRate) {
			continue
		}

		emitters = append(emitters, Emitter{Position: pos, Velocity: v, IE: ie, IWC: iwc, IT: it})
	}
	return emitters
}

func cellIndex(p vecmath.Vec3, h float64) (int, int, int) {
	return int(math.Floor(p.X / h)), int(math.Floor(p.Y / h)), int(math.Floor(p.Z / h))
}

// EmitParams bundles §4.10's emission-stage tuning.
type EmitParams struct {
	WaveCrestRate float64 // r_wc
	TurbulenceRate float64 // r_t
	DeltaTime     float64
	ParticleRadius float64
	EmitterRadiusFactor float64 // default ~0.5-1
	MinLifetime, MaxLifetime float64
	LifetimeVariance float64
	Velocity *macgrid.Field
}

// orthonormalBasis returns two unit vectors perpendicular to dir (and to
// each other), used to build the cylinder's cross-section.
func orthonormalBasis(dir vecmath.Vec3) (vecmath.Vec3, vecmath.Vec3) {
	ref := vecmath.Vec3{X: 1, Y: 0, Z: 0}
	if math.Abs(dir.Dot(ref)) > 0.9 {
		ref = vecmath.Vec3{X: 0, Y: 1, Z: 0}
	}
	a := dir.Cross(ref).Normalize()
	b := dir.Cross(a).Normalize()
	return a, b
}

// Emit implements §4.10's emission stage: spawn
// N = round(I_E * (r_wc*I_wc + r_t*I_t) * dt) particles per emitter,
// uniformly inside a cylinder of radius r_emit oriented along v, at a
// random height along the emitter's sub-step displacement, with
// lifetime drawn from U(min,max) + U(-var,var), scaled by I_E.
func (s *System) Emit(emitters []Emitter, p EmitParams) {
	radius := p.EmitterRadiusFactor * p.ParticleRadius

	for _, e := range emitters {
		n := math.Round(e.IE * (p.WaveCrestRate*e.IWC + p.TurbulenceRate*e.IT) * p.DeltaTime)
		if n <= 0 {
			continue
		}
		speed := e.Velocity.Length()
		if speed < 1e-9 {
			continue
		}
		dir := e.Velocity.Scale(1 / speed)
		a, b := orthonormalBasis(dir)

		for i := 0; i < int(n); i++ {
			theta := rnd.Float64(0, 2*math.Pi)
			r := radius * math.Sqrt(rnd.Float64(0, 1))
			height := rnd.Float64(0, p.DeltaTime*speed)

			pos := e.Position.
				AddScaled(a, r*math.Cos(theta)).
				AddScaled(b, r*math.Sin(theta)).
				AddScaled(dir, height)

			life := rnd.Float64(p.MinLifetime, p.MaxLifetime)
			life += rnd.Float64(-p.LifetimeVariance, p.LifetimeVariance)
			life *= e.IE

			vel := e.Velocity
			if p.Velocity != nil {
				vel = p.Velocity.EvaluateVelocityAtPosition(pos)
			}

			s.Particles.Push(Particle{Position: pos, Velocity: vel, Lifetime: life, Type: NotSet})
		}
	}
}

// ClassifyParams bundles §4.10's type-classification tuning.
type ClassifyParams struct {
	SurfaceSDF *levelset.MeshLevelSet
	BordersAir func(p vecmath.Vec3) bool
	H          float64
	FoamDistanceFactor float64 // d_foam
	FoamOffset         float64
}

// Classify reclassifies every diffuse particle's type for the current
// step per §4.10: distance-band test for foam vs bubble, everything
// else spray, forcing bubble whenever the occupying cell does not
// border air. A particle already foam/bubble stays put unless it falls
// clearly on the other side of the band (simple hysteresis: the test
// uses the particle's own previous classification as a tie-break when
// the distance sits exactly on a boundary).
func (s *System) Classify(p ClassifyParams) {
	lowerFoam := -p.FoamDistanceFactor*p.H + p.FoamOffset
	upperFoam := p.FoamDistanceFactor*p.H + p.FoamOffset

	n := s.Particles.Len()
	for i := 0; i < n; i++ {
		part := s.Particles.At(i)
		d := grid.InterpolateNodeCentered(p.SurfaceSDF.Phi, part.Position.X, part.Position.Y, part.Position.Z, p.H)

		var t Type
		switch {
		case d > lowerFoam && d < upperFoam:
			t = Foam
		case (d == lowerFoam || d == upperFoam) && part.Type == Foam:
			t = Foam
		case d <= lowerFoam:
			t = Bubble
		default:
			t = Spray
		}

		if !p.BordersAir(part.Position) {
			t = Bubble
		}

		part.Type = t
		s.Particles.Set(i, part)
	}
}

// AdvectParams bundles §4.10's per-type advection tuning.
type AdvectParams struct {
	Velocity *macgrid.Field
	Gravity  vecmath.Vec3
	DeltaTime float64
	DragSpray float64 // k_drag_spray
	BuoyancyBubble float64 // k_buoy
	DragBubble float64 // k_drag_bubble
	FoamAdvectionFactor float64 // alpha_adv
	MaxVelocityFactor   float64
}

// Advect implements §4.10's per-type velocity/position update, followed
// by the per-particle speed-ceiling check that marks fast-moving
// particles for removal (returned as a bool slice indexed like the
// particle store; callers pass it to Prune).
func (s *System) Advect(p AdvectParams) []bool {
	n := s.Particles.Len()
	flagged := make([]bool, n)
	for i := 0; i < n; i++ {
		part := s.Particles.At(i)
		oldPos := part.Position

		switch part.Type {
		case Spray:
			part.Velocity = part.Velocity.Scale(1 - p.DragSpray*p.DeltaTime).AddScaled(p.Gravity, p.DeltaTime)
			part.Position = part.Position.AddScaled(part.Velocity, p.DeltaTime)
		case Bubble:
			fluidVel := p.Velocity.EvaluateVelocityAtPosition(part.Position)
			dragVelocity := fluidVel.Sub(part.Velocity).Scale(p.DragBubble / p.DeltaTime)
			accel := p.Gravity.Scale(-p.BuoyancyBubble).Add(dragVelocity)
			part.Velocity = part.Velocity.AddScaled(accel, p.DeltaTime)
			part.Position = part.Position.AddScaled(part.Velocity, p.DeltaTime)
		case Foam:
			fluidVel := p.Velocity.EvaluateVelocityAtPosition(part.Position)
			part.Velocity = fluidVel.Scale(p.FoamAdvectionFactor)
			part.Position = part.Position.AddScaled(part.Velocity, p.DeltaTime)
		default:
			part.Position = part.Position.AddScaled(part.Velocity, p.DeltaTime)
		}

		if p.MaxVelocityFactor > 0 && p.DeltaTime > 0 {
			displacementSpeed := part.Position.Sub(oldPos).Length() / p.DeltaTime
			if displacementSpeed > p.MaxVelocityFactor*part.Velocity.Length() {
				flagged[i] = true
			}
		}

		s.Particles.Set(i, part)
	}
	return flagged
}

// LifetimeParams bundles §4.10's lifetime-decrement and foam-preservation
// tuning.
type LifetimeParams struct {
	DeltaTime float64
	Modifier  func(Type) float64
	PreserveFoam bool
	MinDensity, MaxDensity float64
	H float64
	Isize, Jsize, Ksize int
}

// localFoamDensity returns the foam-particle count per cell, used as the
// density signal for the preserve_foam lifetime bonus; gonum/stat.Mean
// derives the grid's average occupancy so the bonus can be expressed
// relative to the field's own typical density rather than a fixed
// constant.
func (s *System) localFoamDensity(p LifetimeParams) (*grid.Array3d, float64) {
	counts := grid.NewArray3d(p.Isize, p.Jsize, p.Ksize, 0)
	s.Particles.ForEach(func(_ int, part Particle) {
		if part.Type != Foam {
			return
		}
		i, j, k := cellIndex(part.Position, p.H)
		if counts.InBounds(i, j, k) {
			counts.Add(i, j, k, 1)
		}
	})
	raw := counts.Raw()
	mean := 0.0
	if len(raw) > 0 {
		mean = stat.Mean(raw, nil)
	}
	return counts, mean
}

// DecrementLifetime implements §4.10's lifetime update: subtract
// dt*modifier(type) from every particle's lifetime, and (when
// preserve_foam is set) add a bonus to foam particles sitting in a cell
// whose local foam density falls within [min_density, max_density],
// scaled by how far above the field's mean density that cell sits.
func (s *System) DecrementLifetime(p LifetimeParams) {
	var density *grid.Array3d
	var mean float64
	if p.PreserveFoam {
		density, mean = s.localFoamDensity(p)
	}

	n := s.Particles.Len()
	for i := 0; i < n; i++ {
		part := s.Particles.At(i)
		part.Lifetime -= p.DeltaTime * p.Modifier(part.Type)

		if p.PreserveFoam && part.Type == Foam {
			ci, cj, ck := cellIndex(part.Position, p.H)
			d := density.GetOr(ci, cj, ck, 0)
			if d >= p.MinDensity && d <= p.MaxDensity && mean > 0 {
				bonus := floats.Max([]float64{0, (d - mean) / mean})
				part.Lifetime += bonus * p.DeltaTime
			}
		}

		s.Particles.Set(i, part)
	}
}

// Boundaries maps each diffuse-particle type to its §4.11 boundary
// behaviour and the active-side flags it applies to.
type Boundaries struct {
	Foam, Bubble, Spray Behavior
	ActiveSides         vecmath.AABB // domain extent; sides outside this box are "inactive" (no collide/kill applied)
}

func (b Boundaries) behaviorFor(t Type) Behavior {
	switch t {
	case Foam:
		return b.Foam
	case Bubble:
		return b.Bubble
	default:
		return b.Spray
	}
}

// ResolveParams bundles §4.11's collision-resolution inputs.
type ResolveParams struct {
	SolidSDF *levelset.MeshLevelSet
	H        float64
	CFL      float64
	StepFactor float64
	Boundaries Boundaries
}

// Resolve implements §4.11: a single check of each particle's current
// position against the solid SDF, pushing it out along the SDF gradient
// (see resolveSolid; applied to every particle regardless of type),
// plus a type-aware response to crossing the domain's active boundary:
// Collide clamps back inside, Ballistic lets the particle pass through
// unmodified, Kill marks the particle's lifetime to force removal on
// the next prune.
func (s *System) Resolve(p ResolveParams) {
	stepFactor := p.StepFactor
	if stepFactor <= 0 {
		stepFactor = 0.25
	}

	n := s.Particles.Len()
	for i := 0; i < n; i++ {
		part := s.Particles.At(i)
		resolved := resolveSolid(part.Position, p.SolidSDF, p.H, p.CFL, stepFactor)

		if !p.Boundaries.ActiveSides.Contains(resolved) {
			switch p.Boundaries.behaviorFor(part.Type) {
			case Collide:
				resolved = p.Boundaries.ActiveSides.NearestPointInside(resolved)
			case Kill:
				part.Lifetime = -1
			case Ballistic:
				// pass through unmodified
			}
		}

		part.Position = resolved
		s.Particles.Set(i, part)
	}
}

// resolveSolid checks only the particle's current position: when the
// solid distance phi there is negative, it moves the particle by |phi|
// along the normalised SDF gradient, capping the move at cfl*h. The path
// since the previous position is not marched, no move is rejected, and a
// capped move can leave the particle inside the solid. There is no
// near-solid gating grid: every diffuse particle is checked every step.
// stepFactor is not used.
func resolveSolid(pos vecmath.Vec3, solidSDF *levelset.MeshLevelSet, h, cfl, stepFactor float64) vecmath.Vec3 {
	phi := grid.InterpolateNodeCentered(solidSDF.Phi, pos.X, pos.Y, pos.Z, h)
	if phi >= 0 {
		return pos
	}

	gx, gy, gz := grid.GradientNodeCentered(solidSDF.Phi, pos.X, pos.Y, pos.Z, h)
	grad := vecmath.Vec3{X: gx, Y: gy, Z: gz}
	if grad.Length() < 1e-9 {
		return pos
	}
	grad = grad.Normalize()

	maxResolved := cfl * h
	candidate := pos.Sub(grad.Scale(phi))
	if candidate.Distance(pos) > maxResolved {
		candidate = pos.AddScaled(grad, maxResolved)
	}
	return candidate
}

// Prune removes every particle with non-positive lifetime or flagged by
// a prior Advect speed-ceiling check, per §4.10's removal rule. flagged
// may be nil.
func (s *System) Prune(flagged []bool) {
	for i := 0; i < s.Particles.Len(); {
		part := s.Particles.At(i)
		if part.Lifetime <= 0 || (flagged != nil && i < len(flagged) && flagged[i]) {
			s.Particles.SwapRemove(i)
			if flagged != nil && i < len(flagged) {
				flagged[i] = flagged[len(flagged)-1]
				flagged = flagged[:len(flagged)-1]
			}
			continue
		}
		i++
	}
}
