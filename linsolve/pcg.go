// Copyright 2016 The Gofem Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package linsolve

import "math"

// micTau and micSigma are the modified-incomplete-Cholesky(0) tuning
// constants of §4.5: tau controls how much of the dropped fill-in mass is
// folded back into the diagonal, sigma bounds how far the modified
// diagonal may fall below the unmodified one before the row falls back to
// an unmodified (IC(0)-style) diagonal.
const (
	micTau   = 0.97
	micSigma = 0.25
)

// Preconditioner holds the MIC(0) diagonal scaling of A; applying it only
// requires A's stored off-diagonal entries plus this diagonal, so no
// off-diagonal factor storage is needed beyond what A already carries.
type Preconditioner struct {
	diag []float64
}

// BuildMIC0 computes the modified-incomplete-Cholesky(0) diagonal for A,
// per §4.5: for each row i in increasing order,
//
//	d_i = A_ii - sum_{k<i, A_ik != 0} (A_ik^2)/d_k - tau * (dropped off-diagonal mass)
//
// falling back to the unmodified diagonal A_ii if d_i <= sigma*A_ii.
func BuildMIC0(a *SparseMatrix) *Preconditioner {
	n := a.N()
	diag := make([]float64, n)
	for i := 0; i < n; i++ {
		aii := a.Get(i, i)
		var sumSq, droppedMass float64
		a.Row(i, func(j int, v float64) {
			if j >= i {
				return
			}
			dj := diag[j]
			if dj == 0 {
				return
			}
			sumSq += (v * v) / dj
			droppedMass += v
		})
		d := aii - sumSq - micTau*droppedMass
		if d <= micSigma*aii {
			d = aii
		}
		if d == 0 {
			d = 1
		}
		diag[i] = d
	}
	return &Preconditioner{diag: diag}
}

// Apply solves M*z = r for the MIC(0)-preconditioned system via the usual
// two-pass forward/backward substitution implied by an incomplete
// Cholesky factor with reciprocal-diagonal scaling, using A's stored
// entries as the (approximate) triangular factor.
func (p *Preconditioner) Apply(a *SparseMatrix, r, z []float64) {
	n := len(p.diag)
	q := make([]float64, n)
	for i := 0; i < n; i++ {
		sum := r[i]
		a.Row(i, func(j int, v float64) {
			if j < i {
				sum -= v * q[j]
			}
		})
		q[i] = sum / p.diag[i]
	}
	for i := n - 1; i >= 0; i-- {
		sum := q[i] * p.diag[i]
		a.Row(i, func(j int, v float64) {
			if j > i {
				sum -= v * z[j]
			}
		})
		z[i] = sum / p.diag[i]
	}
}

// Result reports the outcome of a Solve call.
type Result struct {
	Converged bool
	Residual  float64
	Iterations int
	// Acceptable is true when the solver hit the iteration cap but the
	// residual was within the relaxed acceptable tolerance, per §4.5's
	// "acceptable-but-failed" rule; callers should proceed but flag a
	// warning.
	Acceptable bool
}

func infNorm(v []float64) float64 {
	var m float64
	for _, x := range v {
		if a := math.Abs(x); a > m {
			m = a
		}
	}
	return m
}

// Solve runs preconditioned conjugate gradient on A*x=b starting from
// x=0, per §4.5: converges when ||r||_inf <= tolerance*||b||_inf, or
// after maxIterations, in which case a residual below
// acceptableTolerance*||b||_inf is still reported as Acceptable.
func Solve(a *SparseMatrix, b []float64, tolerance, acceptableTolerance float64, maxIterations int) ([]float64, Result) {
	n := a.N()
	x := make([]float64, n)

	bNorm := infNorm(b)
	if bNorm < 1e-300 {
		return x, Result{Converged: true, Residual: 0, Iterations: 0}
	}

	r := make([]float64, n)
	copy(r, b)

	resNorm := infNorm(r)
	if resNorm <= tolerance*bNorm {
		return x, Result{Converged: true, Residual: resNorm, Iterations: 0}
	}

	precon := BuildMIC0(a)
	z := make([]float64, n)
	precon.Apply(a, r, z)

	p := make([]float64, n)
	copy(p, z)

	rz := dot(r, z)
	ap := make([]float64, n)

	iter := 0
	for ; iter < maxIterations; iter++ {
		a.Multiply(p, ap)
		denom := dot(p, ap)
		if math.Abs(denom) < 1e-300 {
			break
		}
		alpha := rz / denom
		for i := 0; i < n; i++ {
			x[i] += alpha * p[i]
			r[i] -= alpha * ap[i]
		}

		resNorm = infNorm(r)
		if resNorm <= tolerance*bNorm {
			return x, Result{Converged: true, Residual: resNorm, Iterations: iter + 1}
		}

		precon.Apply(a, r, z)
		rzNew := dot(r, z)
		beta := rzNew / rz
		for i := 0; i < n; i++ {
			p[i] = z[i] + beta*p[i]
		}
		rz = rzNew
	}

	acceptable := resNorm <= acceptableTolerance*bNorm
	return x, Result{Converged: false, Residual: resNorm, Iterations: iter, Acceptable: acceptable}
}

func dot(a, b []float64) float64 {
	var s float64
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}
