// Package sim implements the per-frame simulation driver of §4.13: Δt
// estimation, the ordered per-sub-step data-flow pipeline of §2, the
// concurrent-stage join contract of §5, and the mesh-object/fluid-source
// registries and frame-timing output of §6.
package sim

import (
	"context"
	"math"

	"github.com/cpmech/gosl/chk"
	"github.com/cpmech/gosl/io"
	"github.com/cpmech/gosl/rnd"
	"golang.org/x/sync/errgroup"

	"github.com/flip3d-sim/flip3d/diffuse"
	"github.com/flip3d-sim/flip3d/grid"
	"github.com/flip3d-sim/flip3d/influence"
	"github.com/flip3d-sim/flip3d/levelset"
	"github.com/flip3d-sim/flip3d/macgrid"
	"github.com/flip3d-sim/flip3d/particles"
	"github.com/flip3d-sim/flip3d/pressure"
	"github.com/flip3d-sim/flip3d/sheet"
	"github.com/flip3d-sim/flip3d/turbulence"
	"github.com/flip3d-sim/flip3d/vecmath"
	"github.com/flip3d-sim/flip3d/viscosity"
	"github.com/flip3d-sim/flip3d/weights"

	"github.com/google/uuid"
)

// FluidSimulation owns every grid, solver input, and particle store for
// one simulation, per §3's ownership rules: the driver exclusively owns
// marker particles, the MAC field, all grids, and the diffuse simulation.
type FluidSimulation struct {
	Isize, Jsize, Ksize int
	H                   float64

	Config Config

	Velocity     *macgrid.Field
	SolidSDF     *levelset.MeshLevelSet
	LiquidSDF    *levelset.ParticleLevelSet
	Weights      *weights.Grid
	Influence    *influence.Grid
	Turbulence   *turbulence.Field

	Particles *particles.System
	Diffuse   *diffuse.System

	// Mesher is the out-of-scope (§1) surface-reconstruction collaborator
	// consumed by the curvature pipeline; when nil, curvature, surface
	// tension, diffuse emission, and sheet seeding are all skipped for the
	// frame (there is no surface to reconstruct them from).
	Mesher levelset.SurfaceMesher

	// SurfaceMeshOutput receives the polygonised liquid surface once per
	// sub-step, as a background task joined at the final sub-step of the
	// frame, mirroring §4.13.2's "surface mesh output... runs as a
	// background task". Out of scope per §1; nil disables it.
	SurfaceMeshOutput func(*levelset.TriangleMesh)

	meshObjects      map[uuid.UUID]MeshObject
	meshObjectOrder  []uuid.UUID
	fluidSources     map[uuid.UUID]*FluidSource
	fluidSourceOrder []uuid.UUID

	currentFrame  int
	isInitialized bool

	meshOutputGroup *errgroup.Group
}

// New allocates an uninitialised simulation over an I x J x K cell grid
// of cell width h (§6's `FluidSimulation::new(I, J, K, h) -> handle`).
func New(isize, jsize, ksize int, h float64, cfg Config) *FluidSimulation {
	rnd.Init(0)
	return &FluidSimulation{
		Isize: isize, Jsize: jsize, Ksize: ksize, H: h,
		Config: cfg,

		Velocity:   macgrid.New(isize, jsize, ksize, h),
		SolidSDF:   levelset.NewMeshLevelSet(isize, jsize, ksize, h),
		LiquidSDF:  levelset.NewParticleLevelSet(isize, jsize, ksize, h),
		Weights:    weights.New(isize, jsize, ksize),
		Influence:  influence.New(isize, jsize, ksize, h, 0),
		Turbulence: turbulence.New(isize, jsize, ksize),

		Particles: particles.New(cfg.ParticleRadius),
		Diffuse:   diffuse.New(),

		meshObjects:  make(map[uuid.UUID]MeshObject),
		fluidSources: make(map[uuid.UUID]*FluidSource),
	}
}

// Initialize prepares the simulation for its first Update call (§6's
// `initialize()`). Calling Update before Initialize is a precondition
// violation per §7 and panics.
func (s *FluidSimulation) Initialize() {
	s.Weights.Update(s.SolidSDF)
	s.isInitialized = true
}

// IsInitialized reports whether Initialize has run.
func (s *FluidSimulation) IsInitialized() bool { return s.isInitialized }

// CurrentFrame returns the number of completed frames.
func (s *FluidSimulation) CurrentFrame() int { return s.currentFrame }

const epsSpeed = 1e-6

// estimateSubstepDeltaTime implements §4.13 step 1's Δt formula.
func (s *FluidSimulation) estimateSubstepDeltaTime(remaining, frameDt float64) float64 {
	maxSpeed := s.maxParticleSpeed()
	dt := s.Config.CFL * s.H / math.Max(maxSpeed, epsSpeed)

	if s.Config.SurfaceTensionCoefficient > 0 {
		stCFL := 1.0 // surfaceTensionCFL, a fixed constant absent a tunable field in Config
		stDt := stCFL * math.Sqrt(s.H*s.H*s.H/s.Config.SurfaceTensionCoefficient)
		dt = math.Min(dt, stDt)
	}

	dt = math.Min(dt, remaining)

	if s.Config.MinSubsteps > 0 {
		minDt := frameDt / float64(s.Config.MinSubsteps)
		if dt > minDt {
			dt = minDt
		}
	}

	return dt
}

func (s *FluidSimulation) maxParticleSpeed() float64 {
	max := 0.0
	s.Particles.Particles.ForEach(func(_ int, p particles.Particle) {
		if sp := p.Velocity.Length(); sp > max {
			max = sp
		}
	})
	return max
}

// Update advances the simulation by one frame of duration dt, running as
// many sub-steps as §4.13 step 1's adaptive schedule calls for (bounded
// by Config.MaxSubsteps), and returns the frame's aggregate stats (§6's
// `update(dt) -> frame_stats`).
func (s *FluidSimulation) Update(dt float64) *FrameStats {
	if !s.isInitialized {
		chk.Panic("sim: Update called before Initialize\n")
	}
	if dt < 0 {
		chk.Panic("sim: Update called with negative dt\n")
	}

	stats := &FrameStats{Frame: s.currentFrame, DeltaTime: dt}

	remaining := dt
	maxSubsteps := s.Config.MaxSubsteps
	if maxSubsteps <= 0 {
		maxSubsteps = 1
	}

	for remaining > 1e-12 && stats.NumSubsteps < maxSubsteps {
		subDt := s.estimateSubstepDeltaTime(remaining, dt)
		if stats.NumSubsteps == maxSubsteps-1 {
			subDt = remaining
		}
		subDt = math.Min(subDt, remaining)

		s.runSubstep(subDt, stats)

		remaining -= subDt
		stats.NumSubsteps++
	}

	if s.meshOutputGroup != nil {
		if err := s.meshOutputGroup.Wait(); err != nil {
			stats.addStatus("FAILED: surface mesh output: " + err.Error())
		}
		s.meshOutputGroup = nil
	}

	stats.NumParticles = s.Particles.Particles.Len()
	stats.NumDiffuse = s.Diffuse.Particles.Len()
	s.currentFrame++
	return stats
}

// runSubstep implements §2's per-sub-step data flow and §4.13.2's
// concurrency contract.
func (s *FluidSimulation) runSubstep(dt float64, stats *FrameStats) {
	ctx := context.Background()
	g, _ := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.updateObstacles(dt)
		return nil
	})
	g.Go(func() error {
		s.updateLiquidSDF()
		return nil
	})
	stats.timed("solid+liquid sdf", func() {
		if err := g.Wait(); err != nil {
			stats.addStatus("FAILED: " + err.Error())
		}
	})

	var curvature *grid.Array3d
	var surfaceSDF *levelset.MeshLevelSet
	var curveGroup *errgroup.Group
	if s.Mesher != nil {
		curveGroup, _ = errgroup.WithContext(ctx)
		curveGroup.Go(func() error {
			surfaceSDF, curvature = s.LiquidSDF.CalculateCurvatureGrid(s.Mesher, s.Config.SmoothIterations)
			return nil
		})
	}

	stats.timed("transfer", func() { s.Particles.TransferToGrid(s.Velocity) })
	stats.timed("extrapolate", func() { s.Velocity.Extrapolate(s.Config.CFL) })

	saved := s.Velocity.Clone()

	stats.timed("body forces", func() { s.applyBodyForces(dt) })

	stats.timed("viscosity", func() {
		status := viscosity.Solve(viscosity.Params{
			Velocity:  s.Velocity,
			LiquidSDF: s.LiquidSDF,
			SolidSDF:  s.SolidSDF,
			Viscosity: s.Config.Viscosity,
			H:         s.H,
			DeltaTime: dt,

			Tolerance:           s.Config.ViscosityTolerance,
			AcceptableTolerance: s.Config.ViscosityAcceptableTolerance,
			MaxIterations:       s.Config.ViscosityMaxIterations,
		})
		s.reportSolverStatus(stats, "viscosity", status.Converged, status.Acceptable)
	})

	if curveGroup != nil {
		stats.timed("curvature join", func() {
			if err := curveGroup.Wait(); err != nil {
				stats.addStatus("FAILED: curvature: " + err.Error())
			}
		})
	}

	stats.timed("pressure", func() {
		var st *pressure.SurfaceTension
		if curvature != nil && s.Config.SurfaceTensionCoefficient > 0 {
			st = &pressure.SurfaceTension{Coefficient: s.Config.SurfaceTensionCoefficient, Curvature: curvature}
		}
		status := pressure.Solve(pressure.Params{
			Velocity:  s.Velocity,
			LiquidSDF: s.LiquidSDF,
			SolidSDF:  s.SolidSDF,
			Weights:   s.Weights,
			H:         s.H,
			DeltaTime: dt,
			CFL:       s.Config.CFL,

			Tolerance:           s.Config.PressureTolerance,
			AcceptableTolerance: s.Config.PressureAcceptableTolerance,
			MaxIterations:       s.Config.PressureMaxIterations,

			SurfaceTension: st,
		})
		s.reportSolverStatus(stats, "pressure", status.Converged, status.Acceptable)
	})

	stats.timed("constrain solid faces", s.constrainSolidFaces)

	if s.Config.Diffuse.Enabled && surfaceSDF != nil {
		stats.timed("diffuse", func() { s.updateDiffuse(dt, surfaceSDF, curvature) })
	}

	if surfaceSDF != nil {
		stats.timed("sheet", func() { s.reseedSheets(dt) })
	}

	stats.timed("pic/flip blend", func() { s.Particles.UpdatePICFLIP(s.Velocity, saved, s.Config.Alpha) })

	stats.timed("advect", func() {
		s.Particles.Advect(particles.AdvectParams{
			Velocity:       s.Velocity,
			SolidSDF:       s.SolidSDF,
			Domain:         s.domainAABB(),
			DeltaTime:      dt,
			CFL:            s.Config.CFL,
			SolidBufferCFL: s.Config.SolidBufferCFL,
			StepFactor:     s.Config.StepFactor,
			NearSolidBand:  s.Config.NearSolidBand,
		})
	})

	stats.timed("remove", func() {
		s.Particles.Remove(particles.RemovalParams{
			SolidSDF:                   s.SolidSDF,
			Isize:                      s.Isize,
			Jsize:                      s.Jsize,
			Ksize:                      s.Ksize,
			H:                          s.H,
			DeltaTime:                  dt,
			CFL:                        s.Config.CFL,
			MaxPerCell:                 s.Config.MaxPerCell,
			ExtremeVelocityCapEnabled:  s.Config.ExtremeVelocityCapEnabled,
			MaxExtremeVelocityAbsolute: s.Config.MaxExtremeVelocityAbsolute,
		})
	})

	stats.timed("sources", func() { s.updateFluidSources(s.currentFrame) })

	if s.SurfaceMeshOutput != nil && surfaceSDF != nil {
		mesh := surfaceSDF // capture for the closure; surfaceSDF isn't reused after this point
		if s.meshOutputGroup == nil {
			s.meshOutputGroup = &errgroup.Group{}
		}
		s.meshOutputGroup.Go(func() error {
			s.SurfaceMeshOutput(meshToTriangleMesh(mesh))
			return nil
		})
	}
}

func (s *FluidSimulation) reportSolverStatus(stats *FrameStats, name string, converged, acceptable bool) {
	if converged {
		return
	}
	if acceptable {
		io.Pfred("%s solve did not fully converge; continuing with acceptable residual\n", name)
		stats.addStatus(name + ": ACCEPTABLE")
		return
	}
	io.Pfred("%s solve FAILED to converge\n", name)
	stats.addStatus(name + ": FAILED")
}

// updateObstacles rebuilds the solid SDF from every registered mesh
// object that contributes to it, then the weight and influence grids
// that depend on it (§2's "solid SDF & obstacle weights").
func (s *FluidSimulation) updateObstacles(dt float64) {
	combined := levelset.NewMeshLevelSet(s.Isize, s.Jsize, s.Ksize, s.H)
	for i, id := range s.meshObjectOrder {
		obj := s.meshObjects[id]
		if !obj.IsAppendingToSolidSDF {
			continue
		}
		one := levelset.NewMeshLevelSet(s.Isize, s.Jsize, s.Ksize, s.H)
		one.CalculateSignedDistanceField(obj.Mesh, 3, i)
		combined.Union(one)
	}
	combined.Normalize(s.Config.CFL)
	s.SolidSDF = combined

	s.Weights.Update(s.SolidSDF)
	s.Influence.Update(s.SolidSDF, dt, s.influenceLookup)
}

func (s *FluidSimulation) influenceLookup(meshObjectIndex int) (float32, bool) {
	if meshObjectIndex < 0 || meshObjectIndex >= len(s.meshObjectOrder) {
		return 0, false
	}
	obj := s.meshObjects[s.meshObjectOrder[meshObjectIndex]]
	return float32(obj.WhitewaterInfluence), true
}

// updateLiquidSDF rebuilds the liquid SDF from current marker positions
// (§2's "liquid SDF (from marker positions)").
func (s *FluidSimulation) updateLiquidSDF() {
	positions := s.markerPositions()
	s.LiquidSDF.CalculateSignedDistanceField(positions, s.Config.ParticleRadius)
	s.LiquidSDF.ExtrapolateIntoSolids(s.SolidSDF)
}

func (s *FluidSimulation) markerPositions() []vecmath.Vec3 {
	out := make([]vecmath.Vec3, 0, s.Particles.Particles.Len())
	s.Particles.Particles.ForEach(func(_ int, p particles.Particle) {
		out = append(out, p.Position)
	})
	return out
}

func (s *FluidSimulation) markerVelocities() []vecmath.Vec3 {
	out := make([]vecmath.Vec3, 0, s.Particles.Particles.Len())
	s.Particles.Particles.ForEach(func(_ int, p particles.Particle) {
		out = append(out, p.Velocity)
	})
	return out
}

// applyBodyForces adds gravity*dt to every U, V and W face (each face
// gets the matching gravity component), per §2's "body forces"
// stage; marker-to-grid transfer has already populated and extrapolated
// the field, so every face carries a meaningful base velocity to
// integrate from.
func (s *FluidSimulation) applyBodyForces(dt float64) {
	g := vecmath.Vec3{X: s.Config.Gravity[0], Y: s.Config.Gravity[1], Z: s.Config.Gravity[2]}
	vi, vj, vk := s.Velocity.V.Dims()
	for k := 0; k < vk; k++ {
		for j := 0; j < vj; j++ {
			for i := 0; i < vi; i++ {
				s.Velocity.AddV(i, j, k, g.Y*dt)
			}
		}
	}
	ui, uj, uk := s.Velocity.U.Dims()
	for k := 0; k < uk; k++ {
		for j := 0; j < uj; j++ {
			for i := 0; i < ui; i++ {
				s.Velocity.AddU(i, j, k, g.X*dt)
			}
		}
	}
	wi, wj, wk := s.Velocity.W.Dims()
	for k := 0; k < wk; k++ {
		for j := 0; j < wj; j++ {
			for i := 0; i < wi; i++ {
				s.Velocity.AddW(i, j, k, g.Z*dt)
			}
		}
	}
}

// constrainSolidFaces implements §2's "velocity constraint on solid
// faces" stage: any face whose weight is (near) zero is snapped to the
// solid's own face velocity rather than whatever the solves left there,
// per §3's MAC invariant.
func (s *FluidSimulation) constrainSolidFaces() {
	const solidTol = 1e-6
	ui, uj, uk := s.Weights.U.Dims()
	for k := 0; k < uk; k++ {
		for j := 0; j < uj; j++ {
			for i := 0; i < ui; i++ {
				if s.Weights.U.Get(i, j, k) < solidTol {
					s.Velocity.SetU(i, j, k, s.SolidSDF.FaceVelocityU().Get(i, j, k))
				}
			}
		}
	}
	vi, vj, vk := s.Weights.V.Dims()
	for k := 0; k < vk; k++ {
		for j := 0; j < vj; j++ {
			for i := 0; i < vi; i++ {
				if s.Weights.V.Get(i, j, k) < solidTol {
					s.Velocity.SetV(i, j, k, s.SolidSDF.FaceVelocityV().Get(i, j, k))
				}
			}
		}
	}
	wi, wj, wk := s.Weights.W.Dims()
	for k := 0; k < wk; k++ {
		for j := 0; j < wj; j++ {
			for i := 0; i < wi; i++ {
				if s.Weights.W.Get(i, j, k) < solidTol {
					s.Velocity.SetW(i, j, k, s.SolidSDF.FaceVelocityW().Get(i, j, k))
				}
			}
		}
	}
}

// bordersAir reports whether any of pos's cell's 6-neighbours is not
// liquid; the cell itself is not tested, and a neighbour outside the grid
// counts as not liquid.
func (s *FluidSimulation) bordersAir(pos vecmath.Vec3) bool {
	ci := int(math.Floor(pos.X / s.H))
	cj := int(math.Floor(pos.Y / s.H))
	ck := int(math.Floor(pos.Z / s.H))
	neighbors := [6][3]int{
		{ci - 1, cj, ck}, {ci + 1, cj, ck},
		{ci, cj - 1, ck}, {ci, cj + 1, ck},
		{ci, cj, ck - 1}, {ci, cj, ck + 1},
	}
	for _, n := range neighbors {
		if s.LiquidSDF.Phi.GetOr(n[0], n[1], n[2], 3*s.H) >= 0 {
			return true
		}
	}
	return false
}

func (s *FluidSimulation) domainAABB() vecmath.AABB {
	return vecmath.NewAABB(vecmath.Vec3{}, float64(s.Isize)*s.H, float64(s.Jsize)*s.H, float64(s.Ksize)*s.H)
}

// updateDiffuse implements §2's "diffuse simulation" stage: search for
// new emitters, emit, classify, advect, decrement lifetimes, resolve
// collisions, and prune, all against the surface SDF freshly rebuilt by
// the curvature pipeline.
func (s *FluidSimulation) updateDiffuse(dt float64, surfaceSDF *levelset.MeshLevelSet, curvature *grid.Array3d) {
	cfg := s.Config.Diffuse
	if s.Diffuse.Particles.Len() >= cfg.MaxDiffuseParticles && cfg.MaxDiffuseParticles > 0 {
		io.Pfred("diffuse particle store at capacity; throttling emission\n")
	} else {
		emitters := diffuse.SearchEmitters(diffuse.EmitterParams{
			MarkerPositions:  s.markerPositions(),
			MarkerVelocities: s.markerVelocities(),
			SurfaceSDF:       surfaceSDF,
			Curvature:        curvature,
			BordersAir:       s.bordersAir,
			Turbulence:       s.Turbulence,
			H:                s.H,

			NarrowBandFactor:   cfg.NarrowBandFactor,
			EnergyMin:          cfg.EnergyMin,
			EnergyMax:          cfg.EnergyMax,
			WaveCrestMin:       cfg.WaveCrestMin,
			WaveCrestMax:       cfg.WaveCrestMax,
			WaveCrestSharpness: cfg.WaveCrestSharpness,
			TurbulenceMin:      cfg.TurbulenceMin,
			TurbulenceMax:      cfg.TurbulenceMax,
			GenerationRate:     cfg.GenerationRate,
		})

		s.Diffuse.Emit(emitters, diffuse.EmitParams{
			WaveCrestRate:       cfg.WaveCrestRate,
			TurbulenceRate:      cfg.TurbulenceRate,
			DeltaTime:           dt,
			ParticleRadius:      s.Config.ParticleRadius,
			EmitterRadiusFactor: cfg.EmitterRadiusFactor,
			MinLifetime:         cfg.MinLifetime,
			MaxLifetime:         cfg.MaxLifetime,
			LifetimeVariance:    cfg.LifetimeVariance,
			Velocity:            s.Velocity,
		})
	}

	s.Diffuse.Classify(diffuse.ClassifyParams{
		SurfaceSDF:         surfaceSDF,
		BordersAir:         s.bordersAir,
		H:                  s.H,
		FoamDistanceFactor: cfg.FoamDistanceFactor,
		FoamOffset:         cfg.FoamOffset,
	})

	flagged := s.Diffuse.Advect(diffuse.AdvectParams{
		Velocity:            s.Velocity,
		Gravity:             vecmath.Vec3{X: s.Config.Gravity[0], Y: s.Config.Gravity[1], Z: s.Config.Gravity[2]},
		DeltaTime:           dt,
		DragSpray:           cfg.DragSpray,
		BuoyancyBubble:      cfg.BuoyancyBubble,
		DragBubble:          cfg.DragBubble,
		FoamAdvectionFactor: cfg.FoamAdvectionFactor,
		MaxVelocityFactor:   cfg.MaxVelocityFactor,
	})

	s.Diffuse.DecrementLifetime(diffuse.LifetimeParams{
		DeltaTime:    dt,
		Modifier:     cfg.LifetimeModifier,
		PreserveFoam: cfg.PreserveFoam,
		MinDensity:   cfg.PreserveFoamMinDensity,
		MaxDensity:   cfg.PreserveFoamMaxDensity,
		H:            s.H,
		Isize:        s.Isize, Jsize: s.Jsize, Ksize: s.Ksize,
	})

	s.Diffuse.Resolve(diffuse.ResolveParams{
		SolidSDF:   s.SolidSDF,
		H:          s.H,
		CFL:        s.Config.CFL,
		StepFactor: s.Config.StepFactor,
		Boundaries: diffuse.Boundaries{
			Foam: cfg.Boundaries.Foam, Bubble: cfg.Boundaries.Bubble, Spray: cfg.Boundaries.Spray,
			ActiveSides: s.domainAABB(),
		},
	})

	s.Diffuse.Prune(flagged)
}

// reseedSheets implements §2's "sheet seeding" stage, adding new marker
// particles at the positions Generate selects, subject to the
// configured fill rate.
func (s *FluidSimulation) reseedSheets(dt float64) {
	seeds := sheet.Generate(sheet.Params{
		Positions:     s.markerPositions(),
		SurfaceSDF:    s.LiquidSDF.Phi,
		Isize:         s.Isize, Jsize: s.Jsize, Ksize: s.Ksize,
		H:             s.H,
		FillThreshold: s.Config.SheetFillThreshold,
	})

	rate := s.Config.SheetFillRate
	if rate <= 0 {
		rate = 1
	}
	for _, pos := range seeds {
		if rate < 1 && !rnd.FlipCoin(rate) {
			continue
		}
		vel := s.Velocity.EvaluateVelocityAtPosition(pos)
		s.Particles.Particles.Push(particles.Particle{Position: pos, Velocity: vel})
	}
}

// meshToTriangleMesh returns an empty TriangleMesh whatever the surface:
// the polygonised surface is out of scope (§1) and the level set does not
// retain the mesh produced by the curvature pipeline's internal
// polygonise step, so nothing is reconstructed here.
func meshToTriangleMesh(surface *levelset.MeshLevelSet) *levelset.TriangleMesh {
	return &levelset.TriangleMesh{}
}
