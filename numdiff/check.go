// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package numdiff

import (
	"fmt"
	"math"
)

// CheckJacobian checks the consistency of a user supplied m×n Jacobian jac at x.
//
// The object function is evaluated at x and at a neighboring point.
// For each of the m outputs a score in [0, 1] is returned:
// 1 means the gradient row is correct, 0 means it is wrong,
// and values in between indicate the number of matched digits relative to sqrt(eps).
//
// jac holds row-major m×n data, or column-major when trans is set.
//
// # Reference:
//
//   - Moré, Garbow and Hillstrom, User Guide for MINPACK-1 (1980), subroutine CHKDER.
func CheckJacobian(object func(x, y []float64) error, m int, x, jac []float64, trans bool) ([]float64, error) {

	n := len(x)
	switch {
	case n == 0 || m <= 0:
		return nil, fmt.Errorf("%w: non-positive n=%d m=%d", ErrDimension, n, m)
	case len(jac) != n*m:
		return nil, fmt.Errorf("%w: len(jac)=%d want %d", ErrDimension, len(jac), n*m)
	case object == nil:
		return nil, fmt.Errorf("%w: object function is required", ErrSpec)
	}

	eps := math.Sqrt(epsmch)
	epsf := 100 * epsmch
	epslog := math.Log10(eps)

	xp := make([]float64, n)
	for j, v := range x {
		t := eps * math.Abs(v)
		if t == 0 {
			t = eps
		}
		xp[j] = v + t
	}

	fvec := make([]float64, m)
	fvecp := make([]float64, m)
	if err := object(x, fvec); err != nil {
		return nil, err
	}
	if err := object(xp, fvecp); err != nil {
		return nil, err
	}

	at := func(i, j int) float64 {
		if trans {
			return jac[j*m+i]
		}
		return jac[i*n+j]
	}

	score := make([]float64, m)
	for j, v := range x {
		t := math.Abs(v)
		if t == 0 {
			t = 1
		}
		for i := range score {
			score[i] += t * at(i, j)
		}
	}

	for i, e := range score {
		t := 1.0
		if fvec[i] != 0 && fvecp[i] != 0 && math.Abs(fvecp[i]-fvec[i]) >= epsf*math.Abs(fvec[i]) {
			t = eps * math.Abs((fvecp[i]-fvec[i])/eps-e) / (math.Abs(fvec[i]) + math.Abs(fvecp[i]))
		}
		score[i] = 1
		if t > epsmch && t < eps {
			score[i] = (math.Log10(t) - epslog) / epslog
		}
		if t >= eps {
			score[i] = 0
		}
	}
	return score, nil
}
