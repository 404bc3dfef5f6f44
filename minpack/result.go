// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package minpack

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Result contains the final result of a solver run.
type Result struct {
	OK      bool          // Whether the solver converged.
	X       []float64     // Final estimate of the solution.
	Fvec    []float64     // Residual vector at X.
	FNorm   float64       // Euclidean norm of Fvec.
	Factor  Factorization // Factorization of the last Jacobian.
	Summary               // Solver summary.
	Err     error         // Error reported by the evaluator when Status is UserAbort.
}

// Summary contains a summary of the solver run.
type Summary struct {
	Status     Status // Final status.
	NumIter    int    // Number of accepted steps.
	NumEval    int    // Number of function evaluations, finite differences included.
	NumJacEval int    // Number of analytic Jacobian evaluations.
}

// Factorization holds the QR factorization of the last Jacobian (or its Broyden update).
//
// For least-squares solvers 𝐉𝐏 = 𝐐𝐑 so that 𝐏ᵀ(𝐉ᵀ𝐉)𝐏 = 𝐑ᵀ𝐑.
// For hybrid solvers 𝐏 is the identity and 𝐐 is formed explicitly.
type Factorization struct {
	R    *mat.TriDense // n × n upper triangular factor.
	Perm []int         // Perm[j] is the original index of the j-th column of 𝐉𝐏.
	Q    *mat.Dense    // n × n orthogonal factor, hybrid solvers only.
	QTF  []float64     // The first n components of 𝐐ᵀF.
	Diag []float64     // Final variable scaling.
}

// Covariance computes (𝐉ᵀ𝐉)⁻¹ from the factorization.
//
// Columns of 𝐑 following the first diagonal element with |rₖₖ| ≤ 𝚝𝚘𝚕 × |r₁₁| are treated
// as linearly dependent: the corresponding rows and columns of the result are zero.
// Multiply by ‖F‖²/(m-n) to estimate the covariance of a least-squares fit.
func (r *Result) Covariance(tol float64) (*mat.SymDense, error) {
	f := &r.Factor
	if f.R == nil {
		return nil, errors.New("minpack: no factorization available")
	}
	if tol < zero {
		return nil, fmt.Errorf("%w: negative covariance tolerance", ErrTolerance)
	}

	n, _ := f.R.Dims()
	tolr := tol * math.Abs(f.R.At(0, 0))
	rank := 0
	for rank < n && math.Abs(f.R.At(rank, rank)) > tolr {
		rank++
	}

	cov := mat.NewSymDense(n, nil)
	if rank == 0 {
		return cov, nil
	}

	lead := f.R.SliceTri(0, rank).(*mat.TriDense)
	var rinv mat.TriDense
	if err := rinv.InverseTri(lead); err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) {
			return nil, err
		}
	}

	var inv mat.SymDense
	inv.SymOuterK(1, &rinv)

	perm := f.Perm
	for i := 0; i < rank; i++ {
		for j := i; j < rank; j++ {
			cov.SetSym(perm[i], perm[j], inv.At(i, j))
		}
	}
	return cov, nil
}

// newFactorization copies the upper triangle of a column-major factor with leading dimension ld.
// rdiag replaces the stored diagonal when given.
func newFactorization(n int, a []float64, ld int, rdiag []float64, ipvt []int, qtf, diag []float64) Factorization {
	r := mat.NewTriDense(n, mat.Upper, nil)
	for j := 0; j < n; j++ {
		for i := 0; i < j; i++ {
			r.SetTri(i, j, a[i+j*ld])
		}
		if rdiag != nil {
			r.SetTri(j, j, rdiag[j])
		} else {
			r.SetTri(j, j, a[j+j*ld])
		}
	}
	return Factorization{
		R:    r,
		Perm: append([]int(nil), ipvt[:n]...),
		QTF:  append([]float64(nil), qtf[:n]...),
		Diag: append([]float64(nil), diag[:n]...),
	}
}

// newPackedFactorization expands an upper triangle packed by rows and an explicit n × n 𝐐.
func newPackedFactorization(n int, packed, q []float64, qtf, diag []float64) Factorization {
	r := mat.NewTriDense(n, mat.Upper, nil)
	l := 0
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			r.SetTri(i, j, packed[l])
			l++
		}
	}
	qd := mat.NewDense(n, n, nil)
	for j := 0; j < n; j++ {
		for i := 0; i < n; i++ {
			qd.Set(i, j, q[i+j*n])
		}
	}
	perm := make([]int, n)
	for i := range perm {
		perm[i] = i
	}
	return Factorization{
		R:    r,
		Perm: perm,
		Q:    qd,
		QTF:  append([]float64(nil), qtf[:n]...),
		Diag: append([]float64(nil), diag[:n]...),
	}
}
