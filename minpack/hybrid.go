// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package minpack

import (
	"fmt"
	"math"
	"slices"

	"github.com/curioloop/nonlinear/numdiff"
	"gonum.org/v1/gonum/mat"
)

// System specifies a system of n nonlinear equations F(x) = 0 in n unknowns.
type System struct {
	N    int      // The problem dimension
	Func Func     // Residual function
	Jac  Jacobian // Optional analytic Jacobian, finite differences are used when nil
	Band *Band    // Optional band structure of the finite-difference Jacobian
	// Optional bounds restricting the finite-difference probes.
	Bounds []Bound
	Options
}

// New creates a hybrid solver for the given system.
func (p *System) New(logger *Logger) (solver *Hybrid, err error) {

	n := p.N
	opt := p.Options
	stop := &opt.Stop

	if stop.MaxEvaluations == 0 {
		if p.Jac == nil {
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
	case p.Func == nil:
		err = fmt.Errorf("%w: residual function is required", ErrImproperInput)
	case p.Band != nil && p.Jac != nil:
		err = fmt.Errorf("%w: band applies to finite differences only", ErrImproperInput)
	case p.Band != nil && opt.Central:
		err = fmt.Errorf("%w: band requires forward differences", ErrImproperInput)
	default:
		err = checkBounds(n, p.Bounds)
	}
	if err != nil {
		return
	}

	solver = &Hybrid{
		n:      n,
		fcn:    p.Func,
		jac:    p.Jac,
		opt:    opt,
		logger: logger.normalize(),
	}
	if p.Band != nil {
		band := *p.Band
		solver.band = &band
	}
	if p.Bounds != nil {
		solver.bounds = slices.Clone(p.Bounds)
	}
	if opt.Diag != nil {
		solver.opt.Diag = slices.Clone(opt.Diag)
	}
	return
}

// checkOptions validates the options shared by all solvers.
func checkOptions(n int, opt *Options) error {
	stop := &opt.Stop
	switch {
	case n <= 0:
		return fmt.Errorf("%w: problem dimension n=%d must be positive", ErrDimension, n)
	case stop.FuncTolerance < 0 || math.IsNaN(stop.FuncTolerance):
		return fmt.Errorf("%w: ftol=%g", ErrTolerance, stop.FuncTolerance)
	case stop.StepTolerance < 0 || math.IsNaN(stop.StepTolerance):
		return fmt.Errorf("%w: xtol=%g", ErrTolerance, stop.StepTolerance)
	case stop.GradTolerance < 0 || math.IsNaN(stop.GradTolerance):
		return fmt.Errorf("%w: gtol=%g", ErrTolerance, stop.GradTolerance)
	case stop.MaxEvaluations <= 0:
		return fmt.Errorf("%w: maxfev=%d", ErrBudget, stop.MaxEvaluations)
	case stop.MaxJacEvaluations < 0:
		return fmt.Errorf("%w: maxjev=%d", ErrBudget, stop.MaxJacEvaluations)
	case opt.Factor <= 0 || math.IsNaN(opt.Factor):
		return fmt.Errorf("%w: factor=%g must be positive", ErrScaling, opt.Factor)
	case opt.EpsFcn < 0:
		return fmt.Errorf("%w: epsfcn=%g", ErrTolerance, opt.EpsFcn)
	case opt.Scale != ScaleAuto && opt.Scale != ScaleUser:
		return fmt.Errorf("%w: unknown scaling mode %d", ErrScaling, opt.Scale)
	}
	if opt.Scale == ScaleUser {
		if len(opt.Diag) != n {
			return fmt.Errorf("%w: len(diag)=%d want %d", ErrScaling, len(opt.Diag), n)
		}
		for j, d := range opt.Diag {
			if !(d > 0) {
				return fmt.Errorf("%w: diag[%d]=%g must be positive", ErrScaling, j, d)
			}
		}
	}
	return nil
}

// checkBounds validates the optional finite-difference bounds.
func checkBounds(n int, bounds []Bound) error {
	if bounds == nil {
		return nil
	}
	if len(bounds) != n {
		return fmt.Errorf("%w: len(bounds)=%d want %d", ErrDimension, len(bounds), n)
	}
	for i, b := range bounds {
		if b.Lower > b.Upper {
			return fmt.Errorf("%w: bound range at %d has no feasible solution", ErrImproperInput, i)
		}
	}
	return nil
}

// Hybrid solves systems of nonlinear equations using a modification of the Powell hybrid method.
// The Jacobian is calculated at the starting point and refreshed only when the rank-one
// Broyden updates fail to make progress.
//
// # Reference:
//
//   - M.J.D. Powell, 'A Hybrid Method for Nonlinear Equations',
//     Numerical Methods for Nonlinear Algebraic Equations, P. Rabinowitz, editor, 1970.
//   - J.J. Moré, B.S. Garbow and K.E. Hillstrom, 'User Guide for MINPACK-1', ANL-80-74, 1980.
type Hybrid struct {
	n      int
	fcn    Func
	jac    Jacobian
	band   *Band
	bounds []Bound
	opt    Options
	logger Logger
}

// HybridWorkspace contains the state of a hybrid solver run.
// Given problem dimension n, total work space is approximately float64[2.5×n² + 10×n].
type HybridWorkspace struct {
	h    *Hybrid
	n    int
	fvec []float64       // n
	jac  rawJacobian     // n × n
	qr   qrFactor        // n × n, holds 𝐐 after qform
	r    []float64       // ½n(n+1), 𝐑 packed by rows
	qtf  []float64       // n
	diag []float64       // n
	wa1  []float64       // n
	wa2  []float64       // n
	wa3  []float64       // n
	wa4  []float64       // n
	dj   *mat.Dense      // n × n, analytic Jacobian
	fd   *numdiff.ApproxSpec
}

// Init allocate the workspace for the hybrid solver.
// To avoid race conditions, separate workspaces need to be created for each goroutine.
// But multiple workspaces could share one solver.
func (h *Hybrid) Init() *HybridWorkspace {
	n := h.n
	w := &HybridWorkspace{
		h:    h,
		n:    n,
		fvec: make([]float64, n),
		jac:  newRawJacobian(n, n),
		qr:   newQRFactor(n, n, n),
		r:    make([]float64, n*(n+1)/2),
		qtf:  make([]float64, n),
		diag: make([]float64, n),
		wa1:  make([]float64, n),
		wa2:  make([]float64, n),
		wa3:  make([]float64, n),
		wa4:  make([]float64, n),
	}
	if h.jac != nil {
		w.dj = mat.NewDense(n, n, nil)
	} else {
		w.fd = newApprox(n, n, h.fcn, &h.opt, h.band, h.bounds)
	}
	return w
}

// reset clears the state left by a previous run.
func (w *HybridWorkspace) reset() {
	clear(w.fvec)
	clear(w.jac.data)
	w.qr.reset()
	clear(w.r)
	clear(w.qtf)
	clear(w.diag)
	clear(w.wa1)
	clear(w.wa2)
	clear(w.wa3)
	clear(w.wa4)
	if w.dj != nil {
		w.dj.Zero()
	}
}

// Solve runs the hybrid method from the initial guess x using workspace w.
// The input x is left untouched.
func (h *Hybrid) Solve(x []float64, w *HybridWorkspace) *Result {

	if len(x) != h.n {
		panic("initial x dimension not match problem")
	}

	if w.n != h.n || (h.jac == nil) != (w.fd != nil) {
		panic("workspace dimension not match solver")
	}

	if w.h != h {
		panic("workspace not created by solver")
	}

	d := hybridDriver{
		solver:    h,
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
		res.Factor = newPackedFactorization(h.n, w.r, w.qr.a, w.qtf, w.diag)
	}
	return res
}
