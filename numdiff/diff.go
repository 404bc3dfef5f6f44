// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package numdiff approximates Jacobian matrices by finite differences.
package numdiff

import (
	"errors"
	"fmt"
	"math"
)

var epsmch = math.Nextafter(1, 2) - 1

var (
	ErrDimension = errors.New("numdiff: invalid dimension")
	ErrBound     = errors.New("numdiff: invalid bound")
	ErrSpec      = errors.New("numdiff: invalid approximation spec")
)

type Method int

const (
	// Forward use the first order accuracy forward difference.
	Forward Method = iota
	// Central use central difference in interior points and the second order accuracy
	// forward or backward difference near the boundary.
	Central
)

func (m Method) String() string {
	switch m {
	case Forward:
		return "forward"
	case Central:
		return "central"
	}
	return fmt.Sprintf("Method(%d)", int(m))
}

type Bound [2]float64

// Band describes the non-zero structure of a banded Jacobian.
// Lower counts the sub-diagonals and Upper the super-diagonals.
// A negative count means the full width.
type Band struct {
	Lower, Upper int
}

// limits clamps the band to an n-column matrix.
func (b Band) limits(n int) (ml, mu int) {
	ml, mu = b.Lower, b.Upper
	if ml < 0 || ml > n-1 {
		ml = n - 1
	}
	if mu < 0 || mu > n-1 {
		mu = n - 1
	}
	return
}

// ApproxSpec represents a numerical differentiation algorithms to estimate the derivative of a mathematical function.
//
// The Jacobian entry for output j and variable i is stored at diff[j*N+i],
// or at diff[i*M+j] when TransJac is set (column-major m×n).
//
// # Reference:
//
//   - https://en.wikipedia.org/wiki/Finite_difference
//   - https://github.com/scipy/scipy/blob/main/scipy/optimize/_numdiff.py
//   - Curtis, Powell and Reid, On the estimation of sparse Jacobian matrices (1974).
type ApproxSpec struct {
	N, M int
	// Function of which to estimate the derivatives.
	// The argument x passed to this function is an n-vector.
	// The result is store in an m-vector y.
	// A non-nil error aborts the approximation.
	Object func(x, y []float64) error
	// Finite difference method to use.
	Method Method
	// Lower and upper bounds on independent variables.
	// Use it to limit the range of function evaluation.
	Bounds []Bound
	// Relative step size used to compute absolute step size.
	// The default absolute step size is computed as h = RelStep * sign(x0) * max(1, abs(x0)) with RelStep being selected automatically.
	// Otherwise, absolute step size is computed as h = RelStep * sign(x0) * abs(x0) when RelStep is provided.
	RelStep float64
	// Absolute step size to use, possibly adjusted to fit into the bounds.
	// The RelStep is used when AbsStep is not provide.
	// For Central method the sign of AbsStep is ignored.
	AbsStep float64
	// Relative error of the function values.
	// The automatic relative step becomes sqrt(max(EpsFcn, eps)) for Forward
	// and cbrt(max(EpsFcn, eps)) for Central.
	EpsFcn float64
	// Band structure of the Jacobian, nil means dense.
	// Columns sharing no row are perturbed together with the Forward method,
	// so only Lower+Upper+1 evaluations are needed.
	Band *Band
	// Don't check if x0 is out of bounds.
	NotChkBnd bool
	// Whether transpose the Jacobian matrix.
	TransJac bool
	approxCtx
}

type approxCtx struct {
	f0, fx  []float64
	absStep []float64
	oneSide []bool
	xSave   []float64
	bounds  []Bound
}

// Check the parameters and initialize approxCtx.
func (as *ApproxSpec) Check(x0, diff []float64) (err error) {

	switch {
	case as.N <= 0 || as.M <= 0:
		return fmt.Errorf("%w: non-positive n=%d m=%d", ErrDimension, as.N, as.M)
	case as.Method != Forward && as.Method != Central:
		return fmt.Errorf("%w: unknown method %v", ErrSpec, as.Method)
	case as.Object == nil:
		return fmt.Errorf("%w: object function is required", ErrSpec)
	case as.N != len(x0):
		return fmt.Errorf("%w: len(x0)=%d want %d", ErrDimension, len(x0), as.N)
	case as.N*as.M != len(diff):
		return fmt.Errorf("%w: len(diff)=%d want %d", ErrDimension, len(diff), as.N*as.M)
	case as.EpsFcn < 0:
		return fmt.Errorf("%w: negative epsfcn", ErrSpec)
	case as.Band != nil && as.Method != Forward:
		return fmt.Errorf("%w: band grouping requires forward difference", ErrSpec)
	}

	as.bounds = as.bounds[:0]
	if as.Bounds != nil {
		if len(as.Bounds) != len(x0) {
			return fmt.Errorf("%w: len(bounds)=%d want %d", ErrDimension, len(as.Bounds), as.N)
		}
		for i, bound := range as.Bounds {
			if math.IsNaN(bound[0]) {
				bound[0] = math.Inf(-1)
			}
			if math.IsNaN(bound[1]) {
				bound[1] = math.Inf(1)
			}
			if bound[0] > bound[1] {
				return fmt.Errorf("%w: range [%g,%g] of x[%d]", ErrBound, bound[0], bound[1], i)
			}
			if !as.NotChkBnd && (x0[i] < bound[0] || x0[i] > bound[1]) {
				return fmt.Errorf("%w: x0[%d]=%g violates bound constraints", ErrBound, i, x0[i])
			}
			as.bounds = append(as.bounds, bound)
		}
	}

	if len(as.fx) != as.M*(int(as.Method)+1) {
		as.f0 = make([]float64, as.M)
		as.fx = make([]float64, as.M*(int(as.Method)+1))
	}
	if len(as.absStep) != as.N {
		as.absStep = make([]float64, as.N)
		as.xSave = make([]float64, as.N)
	}
	if len(as.oneSide) != as.N*int(as.Method) {
		as.oneSide = make([]bool, as.N*int(as.Method))
	}
	return
}

// Diff calculate approximation of derivatives by finite differences.
//
// When f0 is not nil it must hold the function value at x0, which saves one evaluation.
// It returns the number of function evaluations spent.
// x0 is restored to its input value even when the object function fails.
func (as *ApproxSpec) Diff(x0, f0, diff []float64) (nfev int, err error) {

	if err = as.Check(x0, diff); err != nil {
		return
	}

	if f0 == nil {
		f0 = as.f0
		if err = as.Object(x0, f0); err != nil {
			return 1, err
		}
		nfev++
	} else if len(f0) != as.M {
		return 0, fmt.Errorf("%w: len(f0)=%d want %d", ErrDimension, len(f0), as.M)
	}

	bnd := false
	for _, bound := range as.bounds {
		l, u := bound[0], bound[1]
		if bnd = !(math.IsInf(l, 0) && math.IsInf(u, 0)); bnd {
			break
		}
	}

	as.absoluteStep(x0)
	as.adjustToBounds(x0, bnd)

	var k int
	switch {
	case as.Method == Central:
		k, err = as.approxCentral(x0, f0, diff)
	case as.grouped():
		k, err = as.approxBanded(x0, f0, diff)
	default:
		k, err = as.approxForward(x0, f0, diff)
	}
	return nfev + k, err
}

func (as *ApproxSpec) grouped() bool {
	if as.Band == nil {
		return false
	}
	ml, mu := as.Band.limits(as.N)
	return ml+mu+1 < as.N
}

func (as *ApproxSpec) adjustToBounds(x0 []float64, bnd bool) {
	h, o := as.absStep, as.oneSide
	if as.Method == Central {
		for i, v := range h {
			h[i] = math.Abs(v)
		}
		for i := range o {
			o[i] = false
		}
	}

	if !bnd {
		return
	}

	b := as.bounds
	if len(x0) != len(b) || len(x0) != len(h) {
		panic("bound check error")
	}

	if as.Method == Forward {
		for i, x0 := range x0 {
			ld, ud := x0-b[i][0], b[i][1]-x0
			h0 := h[i]
			x := x0 + h0
			violated := x < b[i][0] || x > b[i][1]
			fitting := math.Abs(h0) < math.Max(ld, ud)
			switch {
			case violated && fitting:
				h[i] = -h0
			case !fitting && ud >= ld:
				h[i] = ud
			case !fitting:
				h[i] = -ld
			}
		}
		return
	}

	if len(x0) != len(o) {
		panic("bound check error")
	}
	for i, x0 := range x0 {
		ld, ud := x0-b[i][0], b[i][1]-x0
		central := ld >= h[i] && ud >= h[i]
		if !central {
			if ud >= ld {
				h[i] = math.Min(h[i], 0.5*ud)
			} else {
				h[i] = -math.Min(h[i], 0.5*ld)
			}
			o[i] = true
		}
		minDist := math.Min(ud, ld)
		if !central && math.Abs(h[i]) <= minDist {
			h[i] = minDist
			o[i] = false
		}
	}
}

// relativeStep returns the automatic relative step of the method.
func (as *ApproxSpec) relativeStep() float64 {
	eps := math.Max(as.EpsFcn, epsmch)
	switch as.Method {
	case Forward:
		return math.Sqrt(eps)
	case Central:
		return math.Cbrt(eps)
	}
	panic("unknown method")
}

func (as *ApproxSpec) absoluteStep(x0 []float64) {
	h := as.absStep
	if len(h) != len(x0) {
		panic("bound check error")
	}

	eps := as.relativeStep()
	abs, rel := as.AbsStep, as.RelStep
	for i, v := range x0 {
		auto := math.Copysign(eps, v) * math.Max(1.0, math.Abs(v))
		if abs == 0 && rel == 0 {
			h[i] = auto
			continue
		}
		s := abs
		if s == 0 {
			s = math.Copysign(rel, v) * math.Abs(v)
		}
		if (v+s)-v == 0 {
			s = auto
		}
		h[i] = s
	}
}

// store writes the derivative of output j with respect to variable i.
func (as *ApproxSpec) store(df []float64, i, j int, v float64) {
	if as.TransJac {
		df[i*as.M+j] = v
	} else {
		df[j*as.N+i] = v
	}
}

func (as *ApproxSpec) approxForward(x0, f0, df []float64) (nfev int, err error) {

	fx, h := as.fx[:as.M], as.absStep
	if len(h) != len(x0) || len(f0) != len(fx) {
		panic("bound check error")
	}

	for i, s := range h {
		t := x0[i]
		x0[i] = t + s
		err = as.Object(x0, fx)
		x0[i] = t
		nfev++
		if err != nil {
			return
		}
		d := 1.0 / s
		for j := range f0 {
			as.store(df, i, j, (fx[j]-f0[j])*d)
		}
	}
	return
}

// approxBanded perturbs the columns k, k+w, k+2w, ... simultaneously,
// where w is the band width. Entries outside the band are set to zero.
func (as *ApproxSpec) approxBanded(x0, f0, df []float64) (nfev int, err error) {

	n := as.N
	ml, mu := as.Band.limits(n)
	msum := ml + mu + 1
	fx, h, xs := as.fx[:as.M], as.absStep, as.xSave

	for k := 0; k < msum; k++ {
		for i := k; i < n; i += msum {
			xs[i] = x0[i]
			x0[i] += h[i]
		}
		err = as.Object(x0, fx)
		for i := k; i < n; i += msum {
			x0[i] = xs[i]
		}
		nfev++
		if err != nil {
			return
		}
		for i := k; i < n; i += msum {
			d := 1.0 / h[i]
			for j := range f0 {
				v := 0.0
				if j >= i-mu && j <= i+ml {
					v = (fx[j] - f0[j]) * d
				}
				as.store(df, i, j, v)
			}
		}
	}
	return
}

func (as *ApproxSpec) approxCentral(x0, f0, df []float64) (nfev int, err error) {

	h, o, m := as.absStep, as.oneSide, as.M
	f1, f2 := as.fx[:m], as.fx[m:]
	if len(h) != len(x0) || len(h) != len(o) || len(f0) != len(f1) || len(f0) != len(f2) {
		panic("bound check error")
	}

	eval := func(x []float64, y []float64) error {
		nfev++
		return as.Object(x, y)
	}

	for i, s := range h {
		x := x0[i]
		d := 1.0 / (2 * s)
		if o[i] {
			x0[i] = x + s
			if err = eval(x0, f1); err == nil {
				x0[i] = x + 2*s
				err = eval(x0, f2)
			}
			x0[i] = x
			if err != nil {
				return
			}
			for j := range f0 {
				as.store(df, i, j, (4*f1[j]-3*f0[j]-f2[j])*d)
			}
		} else {
			x0[i] = x - s
			if err = eval(x0, f1); err == nil {
				x0[i] = x + s
				err = eval(x0, f2)
			}
			x0[i] = x
			if err != nil {
				return
			}
			for j := range f0 {
				as.store(df, i, j, (f2[j]-f1[j])*d)
			}
		}
	}
	return
}
