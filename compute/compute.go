// Package compute narrows the optional OpenCL back-end of §6 to the two
// batched operations the core actually calls out to: velocity
// interpolation at many points and scalar-field evaluation at many
// points, both with a caller-controlled work-load size. Only a CPU
// implementation is provided here, matching original_source's
// openclutils.cpp split between a thin capability-query layer and the
// kernels themselves (the kernels are out of scope per §1).
package compute

import (
	"github.com/flip3d-sim/flip3d/grid"
	"github.com/flip3d-sim/flip3d/macgrid"
	"github.com/flip3d-sim/flip3d/threading"
	"github.com/flip3d-sim/flip3d/vecmath"
)

// VelocityInterpolator batch-samples a velocity field at N points. A
// future OpenCL back-end satisfies this interface without the core's
// call sites changing.
type VelocityInterpolator interface {
	InterpolateVelocity(mac *macgrid.Field, points []vecmath.Vec3) []vecmath.Vec3
}

// ScalarFieldSampler batch-samples a node-centred scalar field at M
// points.
type ScalarFieldSampler interface {
	SampleScalarField(field *grid.Array3d, h float64, points []vecmath.Vec3) []float64
}

// CPUBackend is the authoritative, always-available implementation of
// both batched operations (§1: "the CPU path is authoritative").
type CPUBackend struct{}

// InterpolateVelocity samples mac at every point, in parallel.
func (CPUBackend) InterpolateVelocity(mac *macgrid.Field, points []vecmath.Vec3) []vecmath.Vec3 {
	out := make([]vecmath.Vec3, len(points))
	threading.ParallelFor(len(points), func(start, end int) {
		for i := start; i < end; i++ {
			out[i] = mac.EvaluateVelocityAtPosition(points[i])
		}
	})
	return out
}

// SampleScalarField samples field (node-centred, cell width h) at every
// point via trilinear interpolation, in parallel.
func (CPUBackend) SampleScalarField(field *grid.Array3d, h float64, points []vecmath.Vec3) []float64 {
	out := make([]float64, len(points))
	threading.ParallelFor(len(points), func(start, end int) {
		for i := start; i < end; i++ {
			p := points[i]
			out[i] = grid.InterpolateNodeCentered(field, p.X, p.Y, p.Z, h)
		}
	})
	return out
}
