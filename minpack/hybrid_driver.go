// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package minpack

import (
	"math"
)

// hybridDriver manages the flow of one hybrid solver run.
type hybridDriver struct {
	solver    *Hybrid
	workspace *HybridWorkspace

	x     []float64
	fnorm float64
	xnorm float64
	delta float64

	iter int
	nfev int
	njev int

	factored bool
	err      error
}

// evaluate computes F at x into fvec and records the evaluator error.
func (d *hybridDriver) evaluate(x, fvec []float64) bool {
	d.nfev++
	if d.err = evalFunc(d.solver.fcn, x, fvec); d.err != nil {
		return false
	}
	return true
}

// jacobian computes the Jacobian at the current iterate,
// by finite differences when no analytic Jacobian is given.
func (d *hybridDriver) jacobian() bool {
	h, w := d.solver, d.workspace
	if h.jac != nil {
		d.njev++
		d.err = evalJacobian(h.jac, d.x, w.dj, &w.jac)
	} else {
		var nfev int
		nfev, d.err = w.fd.Diff(d.x, w.fvec, w.jac.data)
		d.nfev += nfev
	}
	return d.err == nil
}

// factorize computes the QR factorization of the fresh Jacobian,
// forms 𝐐ᵀF and the explicit 𝐐, and copies 𝐑 into packed storage.
func (d *hybridDriver) factorize() {
	h, w := d.solver, d.workspace
	n := h.n
	qr, diag := &w.qr, w.diag

	qr.factor(&w.jac, false)

	// On the first iteration, scale according to the norms of the columns of the initial Jacobian
	// and calculate the norm of the scaled x and initialize the step bound Δ.
	if d.iter == 0 {
		if h.opt.Scale == ScaleAuto {
			for j, v := range qr.acnorm {
				if v == zero {
					v = one
				}
				diag[j] = v
			}
		}
		d.xnorm = scaledNorm(n, diag, d.x, w.wa3)
		d.delta = h.opt.Factor * d.xnorm
		if d.delta == zero {
			d.delta = h.opt.Factor
		}
	}

	// Form 𝐐ᵀF and store in qtf.
	copy(w.qtf, w.fvec)
	qr.applyQT(w.qtf)

	// Copy the triangular factor of the QR factorization into 𝐑.
	l := 0
	for i := 0; i < n; i++ {
		w.r[l] = qr.rdiag[i]
		for j := i + 1; j < n; j++ {
			w.r[l+j-i] = qr.a[i+j*n]
		}
		l += n - i
	}

	// Accumulate the orthogonal factor in qr.a.
	qform(n, n, qr.a, n, w.wa1)

	// Rescale if necessary.
	if h.opt.Scale == ScaleAuto {
		for j, v := range qr.acnorm {
			diag[j] = math.Max(diag[j], v)
		}
	}
	d.factored = true
}

// gradientCosine computes 𝚖𝚊𝚡ⱼ |Jⱼᵀ F| / (‖Jⱼ‖ ‖F‖) from the fresh factorization.
func (d *hybridDriver) gradientCosine() float64 {
	n, w := d.solver.n, d.workspace
	g := zero
	for j := 0; j < n; j++ {
		if w.qr.acnorm[j] == zero {
			continue
		}
		// Column j of 𝐑 packed by rows.
		sum, l := zero, j
		for i := 0; i <= j; i++ {
			sum += w.r[l] * w.qtf[i]
			l += n - i - 1
		}
		g = math.Max(g, math.Abs(sum/d.fnorm)/w.qr.acnorm[j])
	}
	return g
}

// mainLoop performs the outer Jacobian iterations and the inner Broyden iterations.
func (d *hybridDriver) mainLoop() (status Status) {

	h, w := d.solver, d.workspace
	n, stop := h.n, &h.opt.Stop
	x, fvec, qtf, diag, r := d.x, w.fvec, w.qtf, w.diag, w.r
	wa1, wa2, wa3, wa4 := w.wa1, w.wa2, w.wa3, w.wa4

	w.reset()
	d.printInit()
	defer func() { d.printExit(status) }()

	if h.opt.Scale == ScaleUser {
		copy(diag, h.opt.Diag)
	} else {
		clear(diag)
	}

	// Evaluate the function at the starting point and calculate its norm.
	if !d.evaluate(x, fvec) {
		return UserAbort
	}
	d.fnorm = enorm(n, fvec, 1)

	ncsuc, ncfail, nslow1, nslow2 := 0, 0, 0, 0

	for {
		jeval := true

		if stop.MaxJacEvaluations > 0 && d.njev >= stop.MaxJacEvaluations {
			return OverJacLimit
		}

		// Calculate the Jacobian matrix and its factorization.
		if !d.jacobian() {
			return UserAbort
		}
		d.factorize()

		if d.logger().every(d.iter) {
			d.printIter()
		}

		if stop.GradTolerance > 0 && d.fnorm != zero && d.gradientCosine() <= stop.GradTolerance {
			return ConvGrad
		}

		for {
			// Determine the direction p.
			dogleg(n, r, diag, qtf, d.delta, wa1, wa2, wa3)

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
			fnorm1 := enorm(n, wa4, 1)

			// Compute the scaled actual reduction.
			actred := -one
			if fnorm1 < d.fnorm {
				actred = one - (fnorm1/d.fnorm)*(fnorm1/d.fnorm)
			}

			// Compute the scaled predicted reduction.
			l := 0
			for i := 0; i < n; i++ {
				wa3[i] = qtf[i] + ddot(n-i, r[l:], 1, wa1[i:], 1)
				l += n - i
			}
			prered := zero
			if t := enorm(n, wa3, 1); t < d.fnorm {
				prered = one - (t/d.fnorm)*(t/d.fnorm)
			}

			// Compute the ratio of the actual to the predicted reduction.
			ratio := zero
			if prered > zero {
				ratio = actred / prered
			}

			// Update the step bound.
			if ratio < p1 {
				ncsuc = 0
				ncfail++
				d.delta *= p5
			} else {
				ncfail = 0
				ncsuc++
				if ratio >= p5 || ncsuc > 1 {
					d.delta = math.Max(d.delta, pnorm/p5)
				}
				if math.Abs(ratio-one) <= p1 {
					d.delta = pnorm / p5
				}
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

			// Determine the progress of the iteration.
			nslow1++
			if actred >= p001 {
				nslow1 = 0
			}
			if jeval {
				nslow2++
			}
			if actred >= p1 {
				nslow2 = 0
			}

			d.printStep(pnorm, actred, prered, ratio)

			// Test for convergence.
			if stop.FuncTolerance > 0 && d.fnorm <= stop.FuncTolerance {
				return ConvFunc
			}
			if d.delta <= stop.StepTolerance*d.xnorm || d.fnorm == zero {
				return ConvStep
			}

			// Tests for termination and stringent tolerances.
			switch {
			case d.nfev >= stop.MaxEvaluations:
				return OverEvalLimit
			case p1*math.Max(p1*d.delta, pnorm) <= epsmch*d.xnorm:
				return StallStep
			case nslow2 == 5:
				return SlowJacobian
			case nslow1 == 10:
				return SlowProgress
			}

			// Criterion for recalculating Jacobian.
			if ncfail == 2 {
				break
			}

			// Calculate the rank-one modification to the Jacobian and update qtf if necessary.
			q := w.qr.a
			for j := 0; j < n; j++ {
				sum := ddot(n, q[j*n:], 1, wa4, 1)
				wa2[j] = (sum - wa3[j]) / pnorm
				wa1[j] = diag[j] * ((diag[j] * wa1[j]) / pnorm)
				if ratio >= p0001 {
					qtf[j] = sum
				}
			}

			// Compute the QR factorization of the updated Jacobian.
			r1updt(n, n, r, wa1, wa2, wa3)
			r1mpyq(n, n, q, n, wa2, wa3)
			r1mpyq(1, n, qtf, 1, wa2, wa3)

			jeval = false
		}
	}
}

func (d *hybridDriver) logger() *Logger {
	return &d.solver.logger
}

func (d *hybridDriver) printInit() {
	log := d.logger()
	if !log.enable(LogLast) {
		return
	}
	h := d.solver
	method := "forward-difference"
	if h.jac != nil {
		method = "analytic"
	}
	log.log("RUNNING THE HYBRID CODE\n")
	log.log("           * * *\n")
	log.log("Machine precision = %10.3e\n", epsmch)
	log.log("N = %d    Jacobian = %s\n", h.n, method)
	if log.enable(LogEval) {
		log.out("\n   it   nf   nj      fnorm       delta\n")
	}
	if log.enable(LogVerbose) {
		log.vector("X0", d.x)
	}
}

func (d *hybridDriver) printIter() {
	log := d.logger()
	log.out(" %4d %4d %4d %12.5e %12.5e\n", d.iter, d.nfev, d.njev, d.fnorm, d.delta)
	if log.enable(LogVerbose) {
		log.vector("X", d.x)
		log.vector("F", d.workspace.fvec)
	}
}

func (d *hybridDriver) printStep(pnorm, actred, prered, ratio float64) {
	log := d.logger()
	if !log.enable(LogTrace) {
		return
	}
	log.log("At iterate %5d    |F|= %12.5e    |Dp|= %12.5e    delta= %12.5e\n", d.iter, d.fnorm, pnorm, d.delta)
	log.log("    actred= %12.5e    prered= %12.5e    ratio= %12.5e\n", actred, prered, ratio)
}

func (d *hybridDriver) printExit(status Status) {
	log := d.logger()
	if !log.enable(LogLast) {
		return
	}
	log.log("\n           * * *\n")
	log.log("Tit   = total number of accepted iterations\n")
	log.log("Tnf   = total number of function evaluations\n")
	log.log("Tnj   = total number of analytic Jacobian evaluations\n")
	log.log("\n   N      Tit      Tnf      Tnj      |F|\n")
	log.log("%5d %8d %8d %8d %12.5e\n", d.solver.n, d.iter, d.nfev, d.njev, d.fnorm)
	log.log("\n%s\n", status)
	if d.err != nil {
		log.log("%v\n", d.err)
	}
	if log.enable(LogTrace) {
		log.vector("X", d.x)
	}
}
