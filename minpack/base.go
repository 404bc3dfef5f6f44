// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package minpack

import (
	"fmt"
	"math"
)

const (
	zero  = 0.0
	one   = 1.0
	p1    = 0.1
	p5    = 0.5
	p25   = 0.25
	p75   = 0.75
	p001  = 0.001
	p0001 = 0.0001
)

var (
	// epsmch is the machine precision.
	epsmch = math.Nextafter(1, 2) - 1
	// dwarf is the smallest positive normalized magnitude.
	dwarf = 0x1p-1022
)

// Status reports why a solver stopped.
type Status int

const (
	// ImproperInput the dimensions, tolerances, budget or scaling are unacceptable.
	ImproperInput Status = iota
	// ConvFunc both actual and predicted relative reductions in the sum of squares are at most FuncTolerance.
	// For the hybrid family it means the residual norm is at most FuncTolerance.
	ConvFunc
	// ConvStep relative error between two consecutive iterates is at most StepTolerance.
	ConvStep
	// ConvBoth conditions of ConvFunc and ConvStep both hold.
	ConvBoth
	// ConvGrad the cosine of the angle between F and any column of the Jacobian is at most GradTolerance in absolute value.
	ConvGrad
	// OverEvalLimit number of function evaluations reached MaxEvaluations.
	OverEvalLimit
	// OverJacLimit number of Jacobian evaluations reached MaxJacEvaluations.
	OverJacLimit
	// StallFunc FuncTolerance is too small, no further reduction in the sum of squares is possible.
	StallFunc
	// StallStep StepTolerance is too small, no further improvement in the approximate solution x is possible.
	StallStep
	// StallGrad GradTolerance is too small, F is orthogonal to the columns of the Jacobian to machine precision.
	StallGrad
	// SlowJacobian iteration is not making good progress, as measured by the improvement from the last five Jacobian evaluations.
	SlowJacobian
	// SlowProgress iteration is not making good progress, as measured by the improvement from the last ten iterations.
	SlowProgress
	// UserAbort the evaluator returned an error or panicked.
	UserAbort
)

var statusMessage = [...]string{
	ImproperInput: "improper input parameters",
	ConvFunc:      "relative reduction of the sum of squares is at most ftol",
	ConvStep:      "relative error between two consecutive iterates is at most xtol",
	ConvBoth:      "both ftol and xtol convergence conditions hold",
	ConvGrad:      "the cosine of the angle between fvec and any column of the jacobian is at most gtol",
	OverEvalLimit: "number of calls to fcn has reached maxfev",
	OverJacLimit:  "number of jacobian evaluations has reached the limit",
	StallFunc:     "ftol is too small, no further reduction in the sum of squares is possible",
	StallStep:     "xtol is too small, no further improvement in the approximate solution x is possible",
	StallGrad:     "gtol is too small, fvec is orthogonal to the columns of the jacobian to machine precision",
	SlowJacobian:  "iteration is not making good progress, as measured by the improvement from the last five jacobian evaluations",
	SlowProgress:  "iteration is not making good progress, as measured by the improvement from the last ten iterations",
	UserAbort:     "execution was aborted by the evaluator",
}

func (s Status) String() string {
	if s >= 0 && int(s) < len(statusMessage) {
		return statusMessage[s]
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// Converged reports whether the solver stopped on a convergence test.
func (s Status) Converged() bool {
	return s >= ConvFunc && s <= ConvGrad
}

// Scaling selects how the variable scaling vector diag is chosen.
type Scaling int

const (
	// ScaleAuto derives diag from the Jacobian column norms, never decreasing.
	ScaleAuto Scaling = iota
	// ScaleUser keeps the caller supplied diag unchanged.
	ScaleUser
)

// Band describes the non-zero structure of a banded Jacobian.
// Lower counts the sub-diagonals and Upper the super-diagonals.
// A negative count means the full width n-1.
type Band struct {
	Lower, Upper int
}

// Termination specifies the stopping criteria of the solvers.
type Termination struct {
	// The iteration stops when the number of function evaluations reaches limit.
	// Evaluations spent on finite-difference Jacobians are counted.
	MaxEvaluations int
	// The iteration stops when the number of analytic Jacobian evaluations reaches limit.
	// Zero means unlimited.
	MaxJacEvaluations int
	// The iteration stops when both the actual and predicted relative reductions
	// in the sum of squares are at most FuncTolerance.
	//   |actred| ≤ 𝚏𝚝𝚘𝚕  and  prered ≤ 𝚏𝚝𝚘𝚕  and  ½ ratio ≤ 1
	// For the hybrid family it is an absolute test ‖F‖ ≤ 𝚏𝚝𝚘𝚕 and zero disables it.
	FuncTolerance float64
	// The iteration stops when the relative error between two consecutive iterates is at most StepTolerance.
	//   Δ ≤ 𝚡𝚝𝚘𝚕 × ‖D x‖
	StepTolerance float64
	// The iteration stops when the cosine of the angle between F and any column of the Jacobian is at most GradTolerance.
	//   𝚖𝚊𝚡ⱼ |Jⱼᵀ F| / (‖Jⱼ‖ ‖F‖) ≤ 𝚐𝚝𝚘𝚕
	// For the hybrid family zero disables it.
	GradTolerance float64
}

// Options contains the tuning parameters shared by all solvers.
type Options struct {
	Stop  Termination
	Scale Scaling
	// Multiplicative scale factors of the variables, required by ScaleUser and ignored otherwise.
	Diag []float64
	// Initial step bound factor: Δ₀ = 𝚏𝚊𝚌𝚝𝚘𝚛 × ‖D x₀‖, or 𝚏𝚊𝚌𝚝𝚘𝚛 when x₀ is zero.
	// Zero means 100.
	Factor float64
	// Relative error of the function values used to choose the finite-difference step.
	EpsFcn float64
	// Central selects central differences for the least-squares finite-difference Jacobian.
	Central bool
}
