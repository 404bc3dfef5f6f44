// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package minpack

import (
	"fmt"

	"github.com/curioloop/nonlinear/numdiff"
	"gonum.org/v1/gonum/mat"
)

// Func evaluates the residual vector F(x) into fvec.
// Returning any non-nil error stops the solver with UserAbort.
type Func func(x, fvec []float64) error

// Jacobian evaluates the m × n Jacobian of F at x into jac, which is zeroed before the call.
type Jacobian func(x []float64, jac *mat.Dense) error

// JacobianRow evaluates the i-th row of the m × n Jacobian of F at x into row.
type JacobianRow func(x []float64, i int, row []float64) error

// Bound restricts the finite-difference probes of one variable.
// A NaN value means unbounded.
type Bound struct {
	Lower, Upper float64
}

// protect runs a user callback and converts a panic into an error.
func protect(call func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrEvaluator, r)
		}
	}()
	return call()
}

// evalFunc evaluates F(x) into fvec.
func evalFunc(f Func, x, fvec []float64) error {
	return protect(func() error { return f(x, fvec) })
}

// evalJacobian evaluates the analytic Jacobian and stores it in column-major order.
func evalJacobian(jf Jacobian, x []float64, dense *mat.Dense, raw *rawJacobian) error {
	dense.Zero()
	if err := protect(func() error { return jf(x, dense) }); err != nil {
		return err
	}
	rm := dense.RawMatrix()
	for i := 0; i < raw.m; i++ {
		row := rm.Data[i*rm.Stride : i*rm.Stride+raw.n]
		for j, v := range row {
			raw.data[i+j*raw.m] = v
		}
	}
	return nil
}

// evalJacobianRow evaluates the i-th Jacobian row.
func evalJacobianRow(jf JacobianRow, x []float64, i int, row []float64) error {
	clear(row)
	return protect(func() error { return jf(x, i, row) })
}

// newApprox prepares the finite-difference estimator writing column-major Jacobians.
func newApprox(m, n int, f Func, opt *Options, band *Band, bounds []Bound) *numdiff.ApproxSpec {
	as := &numdiff.ApproxSpec{
		N: n, M: m,
		Object: func(x, y []float64) error {
			return evalFunc(f, x, y)
		},
		Method:    numdiff.Forward,
		EpsFcn:    opt.EpsFcn,
		NotChkBnd: true,
		TransJac:  true,
	}
	if opt.Central {
		as.Method = numdiff.Central
	}
	if band != nil {
		as.Band = &numdiff.Band{Lower: band.Lower, Upper: band.Upper}
	}
	if bounds != nil {
		as.Bounds = make([]numdiff.Bound, n)
		for i, b := range bounds {
			as.Bounds[i] = numdiff.Bound{b.Lower, b.Upper}
		}
	}
	return as
}
