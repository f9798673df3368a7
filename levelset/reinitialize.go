package levelset

import (
	"math"

	"github.com/flip3d-sim/flip3d/grid"
	"github.com/flip3d-sim/flip3d/threading"
)

// reinitializeMaxCFL is the pseudo-time CFL bound used by the upwind
// re-distancing iteration.
const reinitializeMaxCFL = 0.5

// reinitializeErrorThreshold governs early termination: iteration stops once
// the per-sweep change in the maximum nodal difference stalls.
const reinitializeErrorThreshold = 1e-4

// Reinitialize re-distances sdf over the given cells so that it again
// satisfies |grad phi| = 1, without moving the zero isocontour. It solves
// the steady state of the pseudo-time PDE
//
//	phi_tau + sign(phi0) * (|grad phi| - 1) = 0
//
// by upwind differencing and a fixed pseudo-time step, run for a fixed
// number of iterations (or until the sweep-to-sweep change stalls),
// matching the fast-sweep-with-uniform-stencil approach rather than a
// narrow-band fast-marching method.
func Reinitialize(sdf *grid.Array3d, h, maxDistance float64, cells []grid.Index) *grid.Array3d {
	dtau := pseudoTimeStep(sdf, h)
	numIterations := int(math.Ceil(maxDistance / dtau))

	output := sdf.Clone()
	temp := sdf.Clone()

	var lastMaxDiff float64 = -1
	for n := 0; n < numIterations; n++ {
		threading.ParallelFor(len(cells), func(start, end int) {
			for idx := start; idx < end; idx++ {
				g := cells[idx]
				stepCell(output, temp, g.I, g.J, g.K, h, dtau)
			}
		})

		maxDiff := 0.0
		for _, g := range cells {
			diff := math.Abs(temp.Get(g.I, g.J, g.K) - output.Get(g.I, g.J, g.K))
			if diff > maxDiff {
				maxDiff = diff
			}
		}

		output, temp = temp, output

		if math.Abs(maxDiff-lastMaxDiff) < reinitializeErrorThreshold*h {
			break
		}
		lastMaxDiff = maxDiff
	}

	return output
}

func pseudoTimeStep(sdf *grid.Array3d, h float64) float64 {
	isize, jsize, ksize := sdf.Dims()
	maxS := -math.MaxFloat64
	for k := 0; k < ksize; k++ {
		for j := 0; j < jsize; j++ {
			for i := 0; i < isize; i++ {
				s := distanceSign(sdf.Get(i, j, k), h)
				if s > maxS {
					maxS = s
				}
			}
		}
	}

	dtau := reinitializeMaxCFL * h
	for dtau*maxS/h > reinitializeMaxCFL {
		dtau *= 0.5
	}
	return dtau
}

func distanceSign(phi, h float64) float64 {
	return phi / math.Sqrt(phi*phi+h*h)
}

func stepCell(src, dst *grid.Array3d, i, j, k int, h, dtau float64) {
	s := distanceSign(src.Get(i, j, k), h)
	dxm, dxp := upwindDerivative(src, i, j, k, 0, h)
	dym, dyp := upwindDerivative(src, i, j, k, 1, h)
	dzm, dzp := upwindDerivative(src, i, j, k, 2, h)

	posGrad := math.Sqrt(sq(math.Max(dxm, 0))+sq(math.Min(dxp, 0))+
		sq(math.Max(dym, 0))+sq(math.Min(dyp, 0))+
		sq(math.Max(dzm, 0))+sq(math.Min(dzp, 0))) - 1
	negGrad := math.Sqrt(sq(math.Min(dxm, 0))+sq(math.Max(dxp, 0))+
		sq(math.Min(dym, 0))+sq(math.Max(dyp, 0))+
		sq(math.Min(dzm, 0))+sq(math.Max(dzp, 0))) - 1

	val := src.Get(i, j, k) -
		dtau*math.Max(s, 0)*posGrad -
		dtau*math.Min(s, 0)*negGrad

	dst.Set(i, j, k, val)
}

func sq(v float64) float64 { return v * v }

// upwindDerivative returns the backward and forward first differences of
// sdf along axis (0=x, 1=y, 2=z) at (i,j,k), clamping neighbour indices to
// the grid boundary.
func upwindDerivative(sdf *grid.Array3d, i, j, k, axis int, h float64) (float64, float64) {
	isize, jsize, ksize := sdf.Dims()
	im1, ip1 := i, i
	jm1, jp1 := j, j
	km1, kp1 := k, k

	switch axis {
	case 0:
		im1, ip1 = clampInt(i-1, 0, isize-1), clampInt(i+1, 0, isize-1)
	case 1:
		jm1, jp1 = clampInt(j-1, 0, jsize-1), clampInt(j+1, 0, jsize-1)
	case 2:
		km1, kp1 = clampInt(k-1, 0, ksize-1), clampInt(k+1, 0, ksize-1)
	}

	center := sdf.Get(i, j, k)
	back := sdf.Get(im1, jm1, km1)
	fwd := sdf.Get(ip1, jp1, kp1)

	invh := 1 / h
	return invh * (center - back), invh * (fwd - center)
}
