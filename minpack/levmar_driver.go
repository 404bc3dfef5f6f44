// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package minpack

import (
	"math"
)

// levmarDriver manages the flow of one Levenberg-Marquardt solver run.
type levmarDriver struct {
	solver    *LevMar
	workspace *LevMarWorkspace

	x     []float64
	fnorm float64
	xnorm float64
	delta float64
	par   float64
	gnorm float64

	iter int
	nfev int
	njev int

	factored bool
	err      error
}

// evaluate computes F at x into fvec and records the evaluator error.
func (d *levmarDriver) evaluate(x, fvec []float64) bool {
	d.nfev++
	if d.err = evalFunc(d.solver.fcn, x, fvec); d.err != nil {
		return false
	}
	return true
}

// factorize obtains the QR factorization with column pivoting of the Jacobian at the current iterate,
// stores the first n components of 𝐐ᵀF in qtf and the diagonal of 𝐑 in place.
func (d *levmarDriver) factorize() bool {
	o, w := d.solver, d.workspace
	m, n := o.m, o.n
	qr := &w.qr

	switch o.mode {
	case jacRowWise:
		return d.accumulate()
	case jacAnalytic:
		d.njev++
		if d.err = evalJacobian(o.jac, d.x, w.dj, &w.jac); d.err != nil {
			return false
		}
	default:
		var nfev int
		nfev, d.err = w.fd.Diff(d.x, w.fvec, w.jac.data)
		d.nfev += nfev
		if d.err != nil {
			return false
		}
	}

	qr.factor(&w.jac, true)

	// Form 𝐐ᵀF and store the first n components in qtf.
	copy(w.wa4, w.fvec)
	qr.applyQT(w.wa4)
	for j := 0; j < n; j++ {
		qr.a[j+j*m] = qr.rdiag[j]
		w.qtf[j] = w.wa4[j]
	}
	return true
}

// accumulate computes the triangular factor of the Jacobian one row at a time
// while simultaneously forming 𝐐ᵀF, using only n × n storage.
func (d *levmarDriver) accumulate() bool {
	o, w := d.solver, d.workspace
	m, n := o.m, o.n
	qr, qtf := &w.qr, w.qtf

	clear(qtf)
	clear(qr.a)
	for i := 0; i < m; i++ {
		if d.err = evalJacobianRow(o.jacRow, d.x, i, w.row); d.err != nil {
			return false
		}
		rwupdt(n, qr.a, n, w.row, qtf, w.fvec[i], w.wa1, w.wa2)
	}
	d.njev++

	// If the Jacobian is rank deficient, call qrfac to reorder its columns and update the components of qtf.
	sing := false
	for j := 0; j < n; j++ {
		if qr.a[j+j*n] == zero {
			sing = true
		}
		qr.ipvt[j] = j
		qr.acnorm[j] = enorm(j+1, qr.a[j*n:], 1)
	}
	if sing {
		qrfac(n, n, qr.a, n, true, qr.ipvt, qr.rdiag, qr.acnorm, qr.wa)
		applyQT(n, n, qr.a, n, qtf)
		for j := 0; j < n; j++ {
			qr.a[j+j*n] = qr.rdiag[j]
		}
	}
	return true
}

// gradientNorm computes the scaled gradient norm 𝚖𝚊𝚡ⱼ |Jⱼᵀ F| / (‖Jⱼ‖ ‖F‖).
func (d *levmarDriver) gradientNorm() float64 {
	n, w := d.solver.n, d.workspace
	qr := &w.qr
	g := zero
	if d.fnorm == zero {
		return g
	}
	for j := 0; j < n; j++ {
		l := qr.ipvt[j]
		if qr.acnorm[l] == zero {
			continue
		}
		sum := zero
		for i := 0; i <= j; i++ {
			sum += qr.a[i+j*qr.ld] * (w.qtf[i] / d.fnorm)
		}
		g = math.Max(g, math.Abs(sum/qr.acnorm[l]))
	}
	return g
}

// mainLoop performs the outer Jacobian iterations and the inner Levenberg-Marquardt iterations.
func (d *levmarDriver) mainLoop() (status Status) {

	o, w := d.solver, d.workspace
	m, n, stop := o.m, o.n, &o.opt.Stop
	x, fvec, qtf, diag := d.x, w.fvec, w.qtf, w.diag
	wa1, wa2, wa3, wa4 := w.wa1, w.wa2, w.wa3, w.wa4
	ftol, xtol := stop.FuncTolerance, stop.StepTolerance
	qr := &w.qr

	w.reset()
	d.printInit()
	defer func() { d.printExit(status) }()

	if o.opt.Scale == ScaleUser {
		copy(diag, o.opt.Diag)
	} else {
		clear(diag)
	}

	// Evaluate the function at the starting point and calculate its norm.
	if !d.evaluate(x, fvec) {
		return UserAbort
	}
	d.fnorm = enorm(m, fvec, 1)

	for {
		if stop.MaxJacEvaluations > 0 && d.njev >= stop.MaxJacEvaluations {
			return OverJacLimit
		}

		// Calculate the Jacobian matrix and its QR factorization.
		if !d.factorize() {
			return UserAbort
		}
		d.factored = true

		// On the first iteration, scale according to the norms of the columns of the initial Jacobian
		// and calculate the norm of the scaled x and initialize the step bound Δ.
		if d.iter == 0 {
			if o.opt.Scale == ScaleAuto {
				for j, v := range qr.acnorm {
					if v == zero {
						v = one
					}
					diag[j] = v
				}
			}
			d.xnorm = scaledNorm(n, diag, x, wa3)
			d.delta = o.opt.Factor * d.xnorm
			if d.delta == zero {
				d.delta = o.opt.Factor
			}
		}

		if d.logger().every(d.iter) {
			d.printIter()
		}

		// An exact zero residual satisfies every convergence test.
		if d.fnorm == zero {
			return ConvBoth
		}

		// Test for convergence of the gradient norm.
		if d.gnorm = d.gradientNorm(); d.gnorm <= stop.GradTolerance {
			return ConvGrad
		}

		// Rescale if necessary.
		if o.opt.Scale == ScaleAuto {
			for j, v := range qr.acnorm {
				diag[j] = math.Max(diag[j], v)
			}
		}

		for {
			// Determine the Levenberg-Marquardt parameter.
			d.par = lmpar(n, qr.a, qr.ld, qr.ipvt, diag, qtf, d.delta, d.par, wa1, wa2, wa3, wa4)

			// Store the direction p and x + p. Calculate the norm of p.
			for j := 0; j < n; j++ {
				wa1[j] = -wa1[j]
				wa2[j] = x[j] + wa1[j]
			}
			pnorm := scaledNorm(n, diag, wa1, wa3)

			// On the first iteration, adjust the initial step bound.
			if d.iter == 0 {
				d.delta = math.Min(d.delta, pnorm)
			}

			// Evaluate the function at x + p and calculate its norm.
			if !d.evaluate(wa2, wa4) {
				return UserAbort
			}
			fnorm1 := enorm(m, wa4, 1)

			// Compute the scaled actual reduction.
			actred := -one
			if p1*fnorm1 < d.fnorm {
				actred = one - (fnorm1/d.fnorm)*(fnorm1/d.fnorm)
			}

			// Compute the scaled predicted reduction and the scaled directional derivative.
			clear(wa3)
			for j := 0; j < n; j++ {
				daxpy(j+1, wa1[qr.ipvt[j]], qr.a[j*qr.ld:], 1, wa3, 1)
			}
			temp1 := enorm(n, wa3, 1) / d.fnorm
			temp2 := math.Sqrt(d.par) * pnorm / d.fnorm
			prered := temp1*temp1 + temp2*temp2/p5
			dirder := -(temp1*temp1 + temp2*temp2)

			// Compute the ratio of the actual to the predicted reduction.
			ratio := zero
			if prered != zero {
				ratio = actred / prered
			}

			// Update the step bound.
			if ratio <= p25 {
				t := p5
				if actred < zero {
					t = p5 * dirder / (dirder + p5*actred)
				}
				if p1*fnorm1 >= d.fnorm || t < p1 {
					t = p1
				}
				d.delta = t * math.Min(d.delta, pnorm/p1)
				d.par /= t
			} else if d.par == zero || ratio >= p75 {
				d.delta = pnorm / p5
				d.par *= p5
			}

			// Test for successful iteration.
			if ratio >= p0001 {
				// Successful iteration. Update x, fvec, and their norms.
				copy(x, wa2)
				copy(fvec, wa4)
				d.xnorm = scaledNorm(n, diag, x, wa2)
				d.fnorm = fnorm1
				d.iter++
			}

			d.printStep(pnorm, actred, prered, ratio)

			// Tests for convergence.
			fconv := math.Abs(actred) <= ftol && prered <= ftol && p5*ratio <= one
			xconv := d.delta <= xtol*d.xnorm
			switch {
			case fconv && xconv:
				return ConvBoth
			case xconv:
				return ConvStep
			case fconv:
				return ConvFunc
			}

			// Tests for termination and stringent tolerances.
			switch {
			case d.nfev >= stop.MaxEvaluations:
				return OverEvalLimit
			case d.gnorm <= epsmch:
				return StallGrad
			case d.delta <= epsmch*d.xnorm:
				return StallStep
			case math.Abs(actred) <= epsmch && prered <= epsmch && p5*ratio <= one:
				return StallFunc
			}

			// End of the inner loop. Repeat if iteration unsuccessful.
			if ratio >= p0001 {
				break
			}
		}
	}
}

func (d *levmarDriver) logger() *Logger {
	return &d.solver.logger
}

func (d *levmarDriver) printInit() {
	log := d.logger()
	if !log.enable(LogLast) {
		return
	}
	o := d.solver
	method := [...]string{
		jacForwardDiff: "forward-difference",
		jacAnalytic:    "analytic",
		jacRowWise:     "analytic row-wise",
	}[o.mode]
	if o.mode == jacForwardDiff && o.opt.Central {
		method = "central-difference"
	}
	log.log("RUNNING THE LEVENBERG-MARQUARDT CODE\n")
	log.log("           * * *\n")
	log.log("Machine precision = %10.3e\n", epsmch)
	log.log("M = %d    N = %d    Jacobian = %s\n", o.m, o.n, method)
	if log.enable(LogEval) {
		log.out("\n   it   nf   nj      fnorm       delta         par\n")
	}
	if log.enable(LogVerbose) {
		log.vector("X0", d.x)
	}
}

func (d *levmarDriver) printIter() {
	log := d.logger()
	log.out(" %4d %4d %4d %12.5e %12.5e %12.5e\n", d.iter, d.nfev, d.njev, d.fnorm, d.delta, d.par)
	if log.enable(LogVerbose) {
		log.vector("X", d.x)
		log.vector("F", d.workspace.fvec)
	}
}

func (d *levmarDriver) printStep(pnorm, actred, prered, ratio float64) {
	log := d.logger()
	if !log.enable(LogTrace) {
		return
	}
	log.log("At iterate %5d    |F|= %12.5e    |Dp|= %12.5e    delta= %12.5e    par= %12.5e\n",
		d.iter, d.fnorm, pnorm, d.delta, d.par)
	log.log("    actred= %12.5e    prered= %12.5e    ratio= %12.5e\n", actred, prered, ratio)
}

func (d *levmarDriver) printExit(status Status) {
	log := d.logger()
	if !log.enable(LogLast) {
		return
	}
	log.log("\n           * * *\n")
	log.log("Tit   = total number of accepted iterations\n")
	log.log("Tnf   = total number of function evaluations\n")
	log.log("Tnj   = total number of analytic Jacobian evaluations\n")
	log.log("\n   M      N      Tit      Tnf      Tnj      |F|\n")
	log.log("%5d %6d %8d %8d %8d %12.5e\n", d.solver.m, d.solver.n, d.iter, d.nfev, d.njev, d.fnorm)
	log.log("\n%s\n", status)
	if d.err != nil {
		log.log("%v\n", d.err)
	}
	if log.enable(LogTrace) {
		log.vector("X", d.x)
	}
}
