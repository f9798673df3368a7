package sim

import (
	"github.com/flip3d-sim/flip3d/diffuse"
	"github.com/flip3d-sim/flip3d/grid"
)

// Config bundles every option §6 lists as affecting the core, plus the
// diffuse-material tuning of §4.10 and the sheet-seeding tuning of §4.9.
type Config struct {
	Density float64 // rho
	Alpha   float64 // PIC/FLIP ratio, 0=pure FLIP, 1=pure PIC
	CFL     float64

	SurfaceTensionCoefficient float64 // sigma; 0 disables the term
	Viscosity                 *grid.Array3d // cell-centred Isize x Jsize x Ksize, may be nil (treated as all-zero)

	MinSubsteps, MaxSubsteps int

	SheetFillThreshold float64
	SheetFillRate      float64 // fraction of identified seeds actually inserted per sub-step

	PressureTolerance, PressureAcceptableTolerance float64
	PressureMaxIterations                          int
	ViscosityTolerance, ViscosityAcceptableTolerance float64
	ViscosityMaxIterations                           int

	ParticleRadius float64 // r_L, marker-particle/liquid-SDF radius

	MaxPerCell                 int
	ExtremeVelocityCapEnabled  bool
	MaxExtremeVelocityAbsolute int

	SolidBufferCFL float64
	NearSolidBand  float64
	StepFactor     float64

	SmoothIterations int // curvature-pipeline mesh smoothing passes

	Gravity [3]float64

	Diffuse DiffuseConfig
}

// DiffuseConfig bundles §4.10/§4.11's whitewater tuning: emission rates,
// lifetime envelopes, per-type force coefficients, and per-type boundary
// behaviour.
type DiffuseConfig struct {
	Enabled bool

	NarrowBandFactor             float64
	EnergyMin, EnergyMax         float64
	WaveCrestMin, WaveCrestMax   float64
	WaveCrestSharpness           float64
	TurbulenceMin, TurbulenceMax float64
	GenerationRate               float64

	WaveCrestRate, TurbulenceRate float64
	EmitterRadiusFactor           float64
	MinLifetime, MaxLifetime      float64
	LifetimeVariance              float64

	DragSpray           float64
	BuoyancyBubble      float64
	DragBubble          float64
	FoamAdvectionFactor float64
	MaxVelocityFactor   float64

	FoamDistanceFactor float64
	FoamOffset         float64

	PreserveFoam           bool
	PreserveFoamMinDensity float64
	PreserveFoamMaxDensity float64
	LifetimeModifier       func(diffuse.Type) float64

	MaxDiffuseParticles int

	Boundaries diffuse.Boundaries
}
