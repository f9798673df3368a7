package sim

import "time"

// StageTiming records one pipeline stage's wall-clock duration within a
// sub-step, mirroring original_source/stopwatch.cpp's per-stage timing
// (spec.md §4.13.3 names the aggregate but not its shape).
type StageTiming struct {
	Name     string
	Duration time.Duration
}

// FrameStats is the per-frame output of Update (§6's `update(dt) ->
// frame_stats`): the realised sub-step count, per-stage timing summed
// across sub-steps, and the solver-status strings required by §7 (one
// entry per sub-step in which a solver failed to converge or only
// reached the acceptable tolerance).
type FrameStats struct {
	Frame         int
	DeltaTime     float64
	NumSubsteps   int
	StageTimings  []StageTiming
	SolverStatus  []string
	NumParticles  int
	NumDiffuse    int
}

func (f *FrameStats) addStage(name string, d time.Duration) {
	for i := range f.StageTimings {
		if f.StageTimings[i].Name == name {
			f.StageTimings[i].Duration += d
			return
		}
	}
	f.StageTimings = append(f.StageTimings, StageTiming{Name: name, Duration: d})
}

func (f *FrameStats) addStatus(s string) {
	f.SolverStatus = append(f.SolverStatus, s)
}

// timed runs fn and records its wall-clock cost against stage.
func (f *FrameStats) timed(stage string, fn func()) {
	start := time.Now()
	fn()
	f.addStage(stage, time.Since(start))
}
