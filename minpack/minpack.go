// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package minpack solves systems of nonlinear equations and nonlinear least-squares problems.
//
// The hybrid family (Hybrd, Hybrj) finds a zero of n functions in n variables with
// Powell's dogleg trust-region method and Broyden rank-one updates of the Jacobian.
// The Levenberg-Marquardt family (Lmdif, Lmder, Lmstr) minimizes the sum of squares
// of m functions in n variables with a trust-region controlled damping parameter.
//
// The suffix selects how the Jacobian is obtained:
//
//	Hybrd, Lmdif   forward differences (banded grouping for Hybrd)
//	Hybrj, Lmder   analytic m × n Jacobian
//	Lmstr          analytic Jacobian rows, the factor uses n × n storage only
//
// The functions suffixed with 1 expose a single tolerance and fix every other setting.
// For repeated or concurrent solves build a solver with System.New or LeastSquares.New
// and give each goroutine its own workspace.
package minpack

import (
	"fmt"
	"math"
	"slices"
)

// resolve applies the defaults of an entry point to the caller options.
// A nil opt takes √eps step tolerance, and √eps function tolerance for least squares.
func resolve(opt *Options, maxfev int, lsq bool) Options {
	var o Options
	if opt == nil {
		tol := math.Sqrt(epsmch)
		o.Stop.StepTolerance = tol
		if lsq {
			o.Stop.FuncTolerance = tol
		}
	} else {
		o = *opt
	}
	if o.Stop.MaxEvaluations == 0 {
		o.Stop.MaxEvaluations = maxfev
	}
	if o.Factor == 0 {
		o.Factor = 100
	}
	return o
}

// simple builds the options of the single tolerance entry points.
func simple(n int, tol float64, maxfev int, lsq bool) (Options, error) {
	if tol < 0 || math.IsNaN(tol) {
		return Options{}, fmt.Errorf("%w: tol=%g", ErrTolerance, tol)
	}
	o := Options{Factor: 100}
	o.Stop.StepTolerance = tol
	o.Stop.MaxEvaluations = maxfev
	if lsq {
		o.Stop.FuncTolerance = tol
	} else {
		o.Scale = ScaleUser
		o.Diag = slices.Repeat([]float64{1}, max(n, 0))
	}
	return o, nil
}

func improper(x []float64, err error) (*Result, error) {
	return &Result{
		X:       slices.Clone(x),
		Summary: Summary{Status: ImproperInput},
		Err:     err,
	}, err
}

func (p *System) run(x []float64) (*Result, error) {
	h, err := p.New(nil)
	if err != nil {
		return improper(x, err)
	}
	return h.Solve(x, h.Init()), nil
}

func (p *LeastSquares) run(x []float64) (*Result, error) {
	o, err := p.New(nil)
	if err != nil {
		return improper(x, err)
	}
	return o.Fit(x, o.Init()), nil
}

// Hybrd finds a zero of n nonlinear functions in n variables, the Jacobian is approximated by forward differences.
// A non-nil band declares the Jacobian banded, negative widths mean n-1.
// With nil opt it uses maxfev = 2000, factor = 100, xtol = √eps and automatic scaling.
// The error is non-nil only for improper input.
func Hybrd(f Func, x []float64, band *Band, opt *Options) (*Result, error) {
	p := System{N: len(x), Func: f, Band: band, Options: resolve(opt, 2000, false)}
	return p.run(x)
}

// Hybrj finds a zero of n nonlinear functions in n variables using the analytic Jacobian j.
// With nil opt it uses maxfev = 1000, factor = 100, xtol = √eps and automatic scaling.
// The error is non-nil only for improper input.
func Hybrj(f Func, j Jacobian, x []float64, opt *Options) (*Result, error) {
	if j == nil {
		return improper(x, fmt.Errorf("%w: jacobian is required", ErrImproperInput))
	}
	p := System{N: len(x), Func: f, Jac: j, Options: resolve(opt, 1000, false)}
	return p.run(x)
}

// Lmdif minimizes the sum of squares of m nonlinear functions in n variables,
// the Jacobian is approximated by finite differences.
// With nil opt it uses maxfev = 400, factor = 100, ftol = xtol = √eps, gtol = 0 and automatic scaling.
// The error is non-nil only for improper input.
func Lmdif(f Func, m int, x []float64, opt *Options) (*Result, error) {
	p := LeastSquares{M: m, N: len(x), Func: f, Options: resolve(opt, 400, true)}
	return p.run(x)
}

// Lmder minimizes the sum of squares of m nonlinear functions in n variables using the analytic Jacobian j.
// With nil opt it uses maxfev = 400, factor = 100, ftol = xtol = √eps, gtol = 0 and automatic scaling.
// The error is non-nil only for improper input.
func Lmder(f Func, j Jacobian, m int, x []float64, opt *Options) (*Result, error) {
	if j == nil {
		return improper(x, fmt.Errorf("%w: jacobian is required", ErrImproperInput))
	}
	p := LeastSquares{M: m, N: len(x), Func: f, Jac: j, Options: resolve(opt, 400, true)}
	return p.run(x)
}

// Lmstr minimizes the sum of squares of m nonlinear functions in n variables
// using analytic Jacobian rows, so that only n × n storage is needed for the factor.
// With nil opt it uses maxfev = 400, factor = 100, ftol = xtol = √eps, gtol = 0 and automatic scaling.
// The error is non-nil only for improper input.
func Lmstr(f Func, jr JacobianRow, m int, x []float64, opt *Options) (*Result, error) {
	if jr == nil {
		return improper(x, fmt.Errorf("%w: jacobian row is required", ErrImproperInput))
	}
	p := LeastSquares{M: m, N: len(x), Func: f, JacRow: jr, Options: resolve(opt, 400, true)}
	return p.run(x)
}

// Hybrd1 is the simple form of Hybrd with xtol = tol, maxfev = 200(n+1) and unit scaling.
func Hybrd1(f Func, x []float64, tol float64) (*Result, error) {
	o, err := simple(len(x), tol, 200*(len(x)+1), false)
	if err != nil {
		return improper(x, err)
	}
	p := System{N: len(x), Func: f, Options: o}
	return p.run(x)
}

// Hybrj1 is the simple form of Hybrj with xtol = tol, maxfev = 100(n+1) and unit scaling.
func Hybrj1(f Func, j Jacobian, x []float64, tol float64) (*Result, error) {
	if j == nil {
		return improper(x, fmt.Errorf("%w: jacobian is required", ErrImproperInput))
	}
	o, err := simple(len(x), tol, 100*(len(x)+1), false)
	if err != nil {
		return improper(x, err)
	}
	p := System{N: len(x), Func: f, Jac: j, Options: o}
	return p.run(x)
}

// Lmdif1 is the simple form of Lmdif with ftol = xtol = tol, gtol = 0 and maxfev = 200(n+1).
func Lmdif1(f Func, m int, x []float64, tol float64) (*Result, error) {
	o, err := simple(len(x), tol, 200*(len(x)+1), true)
	if err != nil {
		return improper(x, err)
	}
	p := LeastSquares{M: m, N: len(x), Func: f, Options: o}
	return p.run(x)
}

// Lmder1 is the simple form of Lmder with ftol = xtol = tol, gtol = 0 and maxfev = 100(n+1).
func Lmder1(f Func, j Jacobian, m int, x []float64, tol float64) (*Result, error) {
	if j == nil {
		return improper(x, fmt.Errorf("%w: jacobian is required", ErrImproperInput))
	}
	o, err := simple(len(x), tol, 100*(len(x)+1), true)
	if err != nil {
		return improper(x, err)
	}
	p := LeastSquares{M: m, N: len(x), Func: f, Jac: j, Options: o}
	return p.run(x)
}

// Lmstr1 is the simple form of Lmstr with ftol = xtol = tol, gtol = 0 and maxfev = 100(n+1).
func Lmstr1(f Func, jr JacobianRow, m int, x []float64, tol float64) (*Result, error) {
	if jr == nil {
		return improper(x, fmt.Errorf("%w: jacobian row is required", ErrImproperInput))
	}
	o, err := simple(len(x), tol, 100*(len(x)+1), true)
	if err != nil {
		return improper(x, err)
	}
	p := LeastSquares{M: m, N: len(x), Func: f, JacRow: jr, Options: o}
	return p.run(x)
}
