// Copyright 2016 The Gofem Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package linsolve

import (
	"testing"

	"github.com/cpmech/gosl/chk"
)

// laplacian1D builds the standard 1-D Poisson stencil (2 on the diagonal,
// -1 on the off-diagonals), an M-matrix the MIC(0) preconditioner is
// guaranteed to handle.
func laplacian1D(n int) *SparseMatrix {
	a := NewSparseMatrix(n)
	for i := 0; i < n; i++ {
		a.Add(i, i, 2)
		if i > 0 {
			a.Add(i, i-1, -1)
		}
		if i < n-1 {
			a.Add(i, i+1, -1)
		}
	}
	return a
}

func Test_pcg01(tst *testing.T) {
	chk.PrintTitle("pcg01")

	n := 20
	a := laplacian1D(n)
	b := make([]float64, n)
	for i := range b {
		b[i] = 1
	}

	x, res := Solve(a, b, 1e-9, 1e-4, 500)
	if !res.Converged {
		tst.Fatalf("expected convergence, got residual %g after %d iterations", res.Residual, res.Iterations)
	}

	// verify A*x == b within tolerance
	ax := make([]float64, n)
	a.Multiply(x, ax)
	for i := 0; i < n; i++ {
		chk.Scalar(tst, "Ax-b", 1e-6, ax[i]-b[i], 0)
	}
}

func Test_pcg02(tst *testing.T) {
	chk.PrintTitle("pcg02")

	a := laplacian1D(5)
	b := make([]float64, 5)
	x, res := Solve(a, b, 1e-9, 1e-4, 100)
	if !res.Converged || res.Iterations != 0 {
		tst.Fatalf("expected immediate convergence on zero RHS, got %+v", res)
	}
	for i, v := range x {
		chk.Scalar(tst, "x", 1e-15, v, 0)
		_ = i
	}
}

func Test_pcg03(tst *testing.T) {
	chk.PrintTitle("pcg03")

	a := NewSparseMatrix(3)
	a.Add(0, 1, 2.0)
	a.Add(0, 1, 3.0)
	chk.Scalar(tst, "A01", 1e-15, a.Get(0, 1), 5.0)

	a.Set(0, 1, 7.0)
	chk.Scalar(tst, "A01", 1e-15, a.Get(0, 1), 7.0)
}
