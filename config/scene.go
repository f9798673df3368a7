// Copyright 2016 The Gofem Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package config loads a scene description from a JSON (.flip) file, the
// way inp.Data/inp.Simulation loads a .sim file, and builds the runnable
// sim.FluidSimulation it describes. Mesh I/O and surface reconstruction
// are out of scope, so obstacles and fluid sources are procedural boxes
// rather than loaded triangle assets.
package config

import (
	"encoding/json"
	"os"

	"github.com/cpmech/gosl/chk"
	"github.com/cpmech/gosl/io"
	"github.com/cpmech/gosl/rnd"

	"github.com/flip3d-sim/flip3d/diffuse"
	"github.com/flip3d-sim/flip3d/grid"
	"github.com/flip3d-sim/flip3d/levelset"
	"github.com/flip3d-sim/flip3d/particles"
	"github.com/flip3d-sim/flip3d/sim"
	"github.com/flip3d-sim/flip3d/vecmath"
)

// Box is an axis-aligned region in world units, used both for the
// initial fluid seed and for procedural obstacle/source geometry.
type Box struct {
	Min [3]float64 `json:"min"`
	Max [3]float64 `json:"max"`
}

func (b Box) min() vecmath.Vec3 { return vecmath.Vec3{X: b.Min[0], Y: b.Min[1], Z: b.Min[2]} }
func (b Box) max() vecmath.Vec3 { return vecmath.Vec3{X: b.Max[0], Y: b.Max[1], Z: b.Max[2]} }

// Obstacle is a procedural box solid, optionally static, with its own
// friction and whitewater-influence settings (§6 "boundary friction
// (per-obstacle)").
type Obstacle struct {
	Box                 Box     `json:"box"`
	Friction            float64 `json:"friction"`
	WhitewaterInfluence float64 `json:"whitewaterInfluence"`
}

// Source is a procedural box inflow or outflow region (§2's "update
// inflow/outflow sources").
type Source struct {
	Box              Box     `json:"box"`
	StartFrame       int     `json:"startFrame"`
	EndFrame         int     `json:"endFrame"` // < 0 means unbounded
	IsOutflow        bool    `json:"isOutflow"`
	Velocity         [3]float64 `json:"velocity"`
	ParticlesPerCell int     `json:"particlesPerCell"`
}

// Scene is the top-level JSON document a .flip file decodes into.
type Scene struct {
	// grid
	Isize int     `json:"isize"`
	Jsize int     `json:"jsize"`
	Ksize int     `json:"ksize"`
	H     float64 `json:"h"`

	// run
	Frames        int     `json:"frames"`
	FrameDeltaTime float64 `json:"frameDeltaTime"`

	// physical parameters, mirrored onto sim.Config
	Density                   float64    `json:"density"`
	Alpha                     float64    `json:"alpha"`
	CFL                       float64    `json:"cfl"`
	Gravity                   [3]float64 `json:"gravity"`
	SurfaceTensionCoefficient float64    `json:"surfaceTensionCoefficient"`
	ViscosityValue            float64    `json:"viscosity"`

	MinSubsteps int `json:"minSubsteps"`
	MaxSubsteps int `json:"maxSubsteps"`

	ParticleRadius             float64 `json:"particleRadius"`
	MaxPerCell                 int     `json:"maxPerCell"`
	ExtremeVelocityCapEnabled  bool    `json:"extremeVelocityCapEnabled"`
	MaxExtremeVelocityAbsolute int     `json:"maxExtremeVelocityAbsolute"`

	SolidBufferCFL float64 `json:"solidBufferCfl"`
	NearSolidBand  float64 `json:"nearSolidBand"`
	StepFactor     float64 `json:"stepFactor"`

	PressureTolerance           float64 `json:"pressureTolerance"`
	PressureAcceptableTolerance float64 `json:"pressureAcceptableTolerance"`
	PressureMaxIterations       int     `json:"pressureMaxIterations"`

	ViscosityTolerance           float64 `json:"viscosityTolerance"`
	ViscosityAcceptableTolerance float64 `json:"viscosityAcceptableTolerance"`
	ViscosityMaxIterations       int     `json:"viscosityMaxIterations"`

	SheetFillThreshold float64 `json:"sheetFillThreshold"`
	SheetFillRate      float64 `json:"sheetFillRate"`

	Diffuse DiffuseData `json:"diffuse"`

	// scene geometry
	FluidSeed         Box        `json:"fluidSeed"`
	FluidParticlesPerCell int    `json:"fluidParticlesPerCell"`
	Obstacles         []Obstacle `json:"obstacles"`
	Sources           []Source  `json:"sources"`
}

// DiffuseData mirrors sim.DiffuseConfig's JSON-facing subset.
type DiffuseData struct {
	Enabled bool `json:"enabled"`

	NarrowBandFactor             float64 `json:"narrowBandFactor"`
	EnergyMin                    float64 `json:"energyMin"`
	EnergyMax                    float64 `json:"energyMax"`
	WaveCrestMin                 float64 `json:"waveCrestMin"`
	WaveCrestMax                 float64 `json:"waveCrestMax"`
	WaveCrestSharpness           float64 `json:"waveCrestSharpness"`
	TurbulenceMin                float64 `json:"turbulenceMin"`
	TurbulenceMax                float64 `json:"turbulenceMax"`
	GenerationRate               float64 `json:"generationRate"`

	WaveCrestRate                 float64 `json:"waveCrestRate"`
	TurbulenceRate                float64 `json:"turbulenceRate"`
	EmitterRadiusFactor           float64 `json:"emitterRadiusFactor"`
	MinLifetime                   float64 `json:"minLifetime"`
	MaxLifetime                   float64 `json:"maxLifetime"`
	LifetimeVariance              float64 `json:"lifetimeVariance"`

	DragSpray           float64 `json:"dragSpray"`
	BuoyancyBubble      float64 `json:"buoyancyBubble"`
	DragBubble          float64 `json:"dragBubble"`
	FoamAdvectionFactor float64 `json:"foamAdvectionFactor"`
	MaxVelocityFactor   float64 `json:"maxVelocityFactor"`

	FoamDistanceFactor float64 `json:"foamDistanceFactor"`
	FoamOffset         float64 `json:"foamOffset"`

	MaxDiffuseParticles int `json:"maxDiffuseParticles"`
}

// SetDefault fills every zero-valued tunable with the value spec.md's
// tables list as the default, mirroring inp.SolverData.SetDefault.
func (s *Scene) SetDefault() {
	if s.H <= 0 {
		s.H = 1
	}
	if s.Frames <= 0 {
		s.Frames = 1
	}
	if s.FrameDeltaTime <= 0 {
		s.FrameDeltaTime = 1.0 / 24.0
	}
	if s.Density <= 0 {
		s.Density = 1000
	}
	if s.CFL <= 0 {
		s.CFL = 5
	}
	if s.Gravity == ([3]float64{}) {
		s.Gravity = [3]float64{0, -9.81, 0}
	}
	if s.MinSubsteps <= 0 {
		s.MinSubsteps = 1
	}
	if s.MaxSubsteps <= 0 {
		s.MaxSubsteps = 12
	}
	if s.ParticleRadius <= 0 {
		s.ParticleRadius = 0.5 * 1.01 * (1.7320508 / 2) * s.H // ~half the diagonal of a half-cell, matching a 8-particle-per-cell fill
	}
	if s.MaxPerCell <= 0 {
		s.MaxPerCell = 16
	}
	if s.MaxExtremeVelocityAbsolute <= 0 {
		s.MaxExtremeVelocityAbsolute = 32
	}
	if s.SolidBufferCFL <= 0 {
		s.SolidBufferCFL = 0.1
	}
	if s.NearSolidBand <= 0 {
		s.NearSolidBand = 1
	}
	if s.StepFactor <= 0 {
		s.StepFactor = 0.25
	}
	if s.PressureTolerance <= 0 {
		s.PressureTolerance = 1e-6
	}
	if s.PressureAcceptableTolerance <= 0 {
		s.PressureAcceptableTolerance = 1e-3
	}
	if s.PressureMaxIterations <= 0 {
		s.PressureMaxIterations = 200
	}
	if s.ViscosityTolerance <= 0 {
		s.ViscosityTolerance = 1e-6
	}
	if s.ViscosityAcceptableTolerance <= 0 {
		s.ViscosityAcceptableTolerance = 1e-3
	}
	if s.ViscosityMaxIterations <= 0 {
		s.ViscosityMaxIterations = 200
	}
	if s.SheetFillThreshold == 0 {
		s.SheetFillThreshold = -0.95
	}
	if s.SheetFillRate <= 0 {
		s.SheetFillRate = 1
	}
	if s.FluidParticlesPerCell <= 0 {
		s.FluidParticlesPerCell = 8
	}
}

// Load reads and decodes a .flip scene file, applying defaults to every
// tunable the file leaves at its zero value.
func Load(path string) (*Scene, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, chk.Err("config: cannot read scene file %q: %v", path, err)
	}
	var s Scene
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, chk.Err("config: cannot decode scene file %q: %v", path, err)
	}
	s.SetDefault()
	if s.Isize <= 0 || s.Jsize <= 0 || s.Ksize <= 0 {
		return nil, chk.Err("config: scene %q must set isize/jsize/ksize > 0", path)
	}
	return &s, nil
}

// Build constructs a ready-to-run simulation from the scene: grid, solver
// tunables, procedural obstacle/source meshes, and the initial marker
// particle fill.
func (s *Scene) Build() *sim.FluidSimulation {
	var viscosity *grid.Array3d
	if s.ViscosityValue > 0 {
		viscosity = grid.NewArray3d(s.Isize, s.Jsize, s.Ksize, s.ViscosityValue)
	}

	cfg := sim.Config{
		Density: s.Density,
		Alpha:   s.Alpha,
		CFL:     s.CFL,

		SurfaceTensionCoefficient: s.SurfaceTensionCoefficient,
		Viscosity:                 viscosity,

		MinSubsteps: s.MinSubsteps,
		MaxSubsteps: s.MaxSubsteps,

		SheetFillThreshold: s.SheetFillThreshold,
		SheetFillRate:      s.SheetFillRate,

		PressureTolerance:           s.PressureTolerance,
		PressureAcceptableTolerance: s.PressureAcceptableTolerance,
		PressureMaxIterations:       s.PressureMaxIterations,

		ViscosityTolerance:           s.ViscosityTolerance,
		ViscosityAcceptableTolerance: s.ViscosityAcceptableTolerance,
		ViscosityMaxIterations:       s.ViscosityMaxIterations,

		ParticleRadius: s.ParticleRadius,
		MaxPerCell:     s.MaxPerCell,

		ExtremeVelocityCapEnabled:  s.ExtremeVelocityCapEnabled,
		MaxExtremeVelocityAbsolute: s.MaxExtremeVelocityAbsolute,

		SolidBufferCFL: s.SolidBufferCFL,
		NearSolidBand:  s.NearSolidBand,
		StepFactor:     s.StepFactor,

		SmoothIterations: 2,

		Gravity: s.Gravity,

		Diffuse: sim.DiffuseConfig{
			Enabled: s.Diffuse.Enabled,

			NarrowBandFactor:   s.Diffuse.NarrowBandFactor,
			EnergyMin:          s.Diffuse.EnergyMin,
			EnergyMax:          s.Diffuse.EnergyMax,
			WaveCrestMin:       s.Diffuse.WaveCrestMin,
			WaveCrestMax:       s.Diffuse.WaveCrestMax,
			WaveCrestSharpness: s.Diffuse.WaveCrestSharpness,
			TurbulenceMin:      s.Diffuse.TurbulenceMin,
			TurbulenceMax:      s.Diffuse.TurbulenceMax,
			GenerationRate:     s.Diffuse.GenerationRate,

			WaveCrestRate:       s.Diffuse.WaveCrestRate,
			TurbulenceRate:      s.Diffuse.TurbulenceRate,
			EmitterRadiusFactor: s.Diffuse.EmitterRadiusFactor,
			MinLifetime:         s.Diffuse.MinLifetime,
			MaxLifetime:         s.Diffuse.MaxLifetime,
			LifetimeVariance:    s.Diffuse.LifetimeVariance,

			DragSpray:           s.Diffuse.DragSpray,
			BuoyancyBubble:      s.Diffuse.BuoyancyBubble,
			DragBubble:          s.Diffuse.DragBubble,
			FoamAdvectionFactor: s.Diffuse.FoamAdvectionFactor,
			MaxVelocityFactor:   s.Diffuse.MaxVelocityFactor,

			FoamDistanceFactor: s.Diffuse.FoamDistanceFactor,
			FoamOffset:         s.Diffuse.FoamOffset,

			MaxDiffuseParticles: s.Diffuse.MaxDiffuseParticles,

			Boundaries: diffuse.Boundaries{
				Foam:   diffuse.Collide,
				Bubble: diffuse.Collide,
				Spray:  diffuse.Kill,
			},
		},
	}

	fsim := sim.New(s.Isize, s.Jsize, s.Ksize, s.H, cfg)

	for _, obs := range s.Obstacles {
		fsim.AddMeshObject(sim.MeshObject{
			Mesh:                  boxMesh(obs.Box.min(), obs.Box.max()),
			Friction:              obs.Friction,
			WhitewaterInfluence:   obs.WhitewaterInfluence,
			IsStatic:              true,
			IsAppendingToSolidSDF: true,
		})
	}

	for _, src := range s.Sources {
		fsim.AddFluidSource(sim.FluidSource{
			Mesh:             boxMesh(src.Box.min(), src.Box.max()),
			StartFrame:       src.StartFrame,
			EndFrame:         src.EndFrame,
			IsOutflow:        src.IsOutflow,
			VelocityMode:     sim.FixedInflowVelocity,
			Velocity:         vecmath.Vec3{X: src.Velocity[0], Y: src.Velocity[1], Z: src.Velocity[2]},
			ParticlesPerCell: src.ParticlesPerCell,
		})
	}

	fsim.Initialize()
	seedFluid(fsim, s.FluidSeed, s.H, s.FluidParticlesPerCell)

	return fsim
}

// boxMesh builds a 12-triangle closed box over [min,max], the procedural
// stand-in this core uses for obstacle/source geometry since mesh I/O is
// out of scope.
func boxMesh(min, max vecmath.Vec3) *levelset.TriangleMesh {
	v := [8]vecmath.Vec3{
		{X: min.X, Y: min.Y, Z: min.Z}, {X: max.X, Y: min.Y, Z: min.Z},
		{X: max.X, Y: max.Y, Z: min.Z}, {X: min.X, Y: max.Y, Z: min.Z},
		{X: min.X, Y: min.Y, Z: max.Z}, {X: max.X, Y: min.Y, Z: max.Z},
		{X: max.X, Y: max.Y, Z: max.Z}, {X: min.X, Y: max.Y, Z: max.Z},
	}
	faces := [6][4]int{
		{0, 1, 2, 3}, // -z
		{5, 4, 7, 6}, // +z
		{4, 0, 3, 7}, // -x
		{1, 5, 6, 2}, // +x
		{4, 5, 1, 0}, // -y
		{3, 2, 6, 7}, // +y
	}
	mesh := &levelset.TriangleMesh{Vertices: v[:]}
	for _, f := range faces {
		mesh.Triangles = append(mesh.Triangles, [3]int{f[0], f[1], f[2]}, [3]int{f[0], f[2], f[3]})
	}
	return mesh
}

// seedFluid fills the seed box with FragmentedVector-backed marker
// particles at particlesPerCell per cell, jittered within each cell, the
// same random per-particle placement fluidsource.go's spawnParticlesInside
// uses for inflow sources.
func seedFluid(fsim *sim.FluidSimulation, box Box, h float64, particlesPerCell int) {
	if box == (Box{}) {
		return
	}
	minC := box.min()
	maxC := box.max()
	ci0, cj0, ck0 := int(minC.X/h), int(minC.Y/h), int(minC.Z/h)
	ci1, cj1, ck1 := int(maxC.X/h), int(maxC.Y/h), int(maxC.Z/h)

	for k := ck0; k < ck1; k++ {
		for j := cj0; j < cj1; j++ {
			for i := ci0; i < ci1; i++ {
				center := vecmath.Vec3{X: (float64(i) + 0.5) * h, Y: (float64(j) + 0.5) * h, Z: (float64(k) + 0.5) * h}
				for n := 0; n < particlesPerCell; n++ {
					fsim.Particles.Particles.Push(particles.Particle{Position: jitter(center, h)})
				}
			}
		}
	}
	io.Pf("seeded fluid box [%v, %v] with %d particles\n", minC, maxC, fsim.Particles.Particles.Len())
}

func jitter(center vecmath.Vec3, h float64) vecmath.Vec3 {
	return vecmath.Vec3{
		X: center.X + rnd.Float64(-h/2, h/2),
		Y: center.Y + rnd.Float64(-h/2, h/2),
		Z: center.Z + rnd.Float64(-h/2, h/2),
	}
}
