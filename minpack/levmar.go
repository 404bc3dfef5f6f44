// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package minpack

import (
	"fmt"
	"slices"

	"github.com/curioloop/nonlinear/numdiff"
	"gonum.org/v1/gonum/mat"
)

// LeastSquares specifies the minimization of the sum of squares of m nonlinear functions in n variables.
type LeastSquares struct {
	M, N   int         // The number of functions and variables, M ≥ N
	Func   Func        // Residual function
	Jac    Jacobian    // Optional analytic Jacobian
	JacRow JacobianRow // Optional analytic Jacobian rows, uses n × n storage for the factor
	// Optional bounds restricting the finite-difference probes.
	Bounds []Bound
	Options
}

// jacMode identifies how the Jacobian of a least-squares problem is obtained.
type jacMode int

const (
	jacForwardDiff jacMode = iota
	jacAnalytic
	jacRowWise
)

// New creates a Levenberg-Marquardt solver for the given problem.
func (p *LeastSquares) New(logger *Logger) (solver *LevMar, err error) {

	m, n := p.M, p.N
	opt := p.Options
	stop := &opt.Stop

	mode := jacForwardDiff
	switch {
	case p.Jac != nil && p.JacRow != nil:
		return nil, fmt.Errorf("%w: at most one of Jac and JacRow may be set", ErrImproperInput)
	case p.Jac != nil:
		mode = jacAnalytic
	case p.JacRow != nil:
		mode = jacRowWise
	}

	if stop.MaxEvaluations == 0 {
		if mode == jacForwardDiff {
			stop.MaxEvaluations = 200 * (n + 1)
		} else {
			stop.MaxEvaluations = 100 * (n + 1)
		}
	}
	if opt.Factor == 0 {
		opt.Factor = 100
	}

	if err = checkOptions(n, &opt); err != nil {
		return
	}

	switch {
	case m < n:
		err = fmt.Errorf("%w: m=%d must not be less than n=%d", ErrDimension, m, n)
	case p.Func == nil:
		err = fmt.Errorf("%w: residual function is required", ErrImproperInput)
	default:
		err = checkBounds(n, p.Bounds)
	}
	if err != nil {
		return
	}

	solver = &LevMar{
		m: m, n: n,
		mode:   mode,
		fcn:    p.Func,
		jac:    p.Jac,
		jacRow: p.JacRow,
		opt:    opt,
		logger: logger.normalize(),
	}
	if p.Bounds != nil {
		solver.bounds = slices.Clone(p.Bounds)
	}
	if opt.Diag != nil {
		solver.opt.Diag = slices.Clone(opt.Diag)
	}
	return
}

// LevMar minimizes the sum of squares of nonlinear functions using a modification of the Levenberg-Marquardt algorithm.
//
// # Reference:
//
//   - J.J. Moré, 'The Levenberg-Marquardt algorithm: implementation and theory',
//     Numerical Analysis, Lecture Notes in Mathematics 630, Springer, 1978.
//   - J.J. Moré, B.S. Garbow and K.E. Hillstrom, 'User Guide for MINPACK-1', ANL-80-74, 1980.
type LevMar struct {
	m, n   int
	mode   jacMode
	fcn    Func
	jac    Jacobian
	jacRow JacobianRow
	bounds []Bound
	opt    Options
	logger Logger
}

// LevMarWorkspace contains the state of a Levenberg-Marquardt solver run.
// Given m functions and n variables, total work space is approximately float64[2×mn + 2×m + 7×n],
// or float64[n² + 2×m + 8×n] when the Jacobian is supplied row by row.
type LevMarWorkspace struct {
	o    *LevMar
	m, n int
	mode jacMode
	fvec []float64   // m
	wa4  []float64   // m
	jac  rawJacobian // m × n, empty for row-wise Jacobian
	qr   qrFactor    // m × n, or n × n for row-wise Jacobian
	qtf  []float64   // n
	diag []float64   // n
	wa1  []float64   // n
	wa2  []float64   // n
	wa3  []float64   // n
	row  []float64   // n, row-wise Jacobian only
	dj   *mat.Dense  // m × n, analytic Jacobian only
	fd   *numdiff.ApproxSpec
}

// Init allocate the workspace for the Levenberg-Marquardt solver.
// To avoid race conditions, separate workspaces need to be created for each goroutine.
// But multiple workspaces could share one solver.
func (o *LevMar) Init() *LevMarWorkspace {
	m, n := o.m, o.n
	w := &LevMarWorkspace{
		o: o,
		m: m, n: n,
		mode: o.mode,
		fvec: make([]float64, m),
		wa4:  make([]float64, m),
		qtf:  make([]float64, n),
		diag: make([]float64, n),
		wa1:  make([]float64, n),
		wa2:  make([]float64, n),
		wa3:  make([]float64, n),
	}
	switch o.mode {
	case jacRowWise:
		w.qr = newQRFactor(n, n, n)
		w.row = make([]float64, n)
	case jacAnalytic:
		w.qr = newQRFactor(m, n, m)
		w.jac = newRawJacobian(m, n)
		w.dj = mat.NewDense(m, n, nil)
	default:
		w.qr = newQRFactor(m, n, m)
		w.jac = newRawJacobian(m, n)
		w.fd = newApprox(m, n, o.fcn, &o.opt, nil, o.bounds)
	}
	return w
}

// reset clears the state left by a previous run.
func (w *LevMarWorkspace) reset() {
	clear(w.fvec)
	clear(w.wa4)
	clear(w.jac.data)
	w.qr.reset()
	clear(w.qtf)
	clear(w.diag)
	clear(w.wa1)
	clear(w.wa2)
	clear(w.wa3)
	clear(w.row)
	if w.dj != nil {
		w.dj.Zero()
	}
}

// Fit runs the Levenberg-Marquardt iterations from the initial guess x using workspace w.
// The input x is left untouched.
func (o *LevMar) Fit(x []float64, w *LevMarWorkspace) *Result {

	if len(x) != o.n {
		panic("initial x dimension not match problem")
	}

	if w.m != o.m || w.n != o.n || w.mode != o.mode {
		panic("workspace dimension not match solver")
	}

	if w.o != o {
		panic("workspace not created by solver")
	}

	d := levmarDriver{
		solver:    o,
		workspace: w,
		x:         slices.Clone(x),
	}
	status := d.mainLoop()

	res := &Result{
		OK:    status.Converged(),
		X:     d.x,
		Fvec:  slices.Clone(w.fvec),
		FNorm: d.fnorm,
		Summary: Summary{
			Status:     status,
			NumIter:    d.iter,
			NumEval:    d.nfev,
			NumJacEval: d.njev,
		},
		Err: d.err,
	}
	if d.factored {
		res.Factor = newFactorization(o.n, w.qr.a, w.qr.ld, nil, w.qr.ipvt, w.qtf, w.diag)
	}
	return res
}
