// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package minpack

import (
	"gonum.org/v1/gonum/blas/blas64"
	"gonum.org/v1/gonum/floats"
)

func vector(n int, x []float64, inc int) blas64.Vector {
	return blas64.Vector{N: n, Data: x, Inc: inc}
}

// ddot computes the dot product of two vectors.
func ddot(n int, dx []float64, incx int, dy []float64, incy int) float64 {
	if n <= 0 {
		return zero
	}
	return blas64.Dot(vector(n, dx, incx), vector(n, dy, incy))
}

// daxpy performs constant times a vector plus a vector operation.
func daxpy(n int, da float64, dx []float64, incx int, dy []float64, incy int) {
	if n <= 0 || da == zero {
		return
	}
	blas64.Axpy(da, vector(n, dx, incx), vector(n, dy, incy))
}

// dscal scales a vector by a constant.
func dscal(n int, da float64, dx []float64, incx int) {
	if n <= 0 {
		return
	}
	blas64.Scal(da, vector(n, dx, incx))
}

// enorm computes the euclidean norm of a vector without destructive underflow or overflow.
func enorm(n int, x []float64, incx int) float64 {
	if n <= 0 {
		return zero
	}
	return blas64.Nrm2(vector(n, x, incx))
}

// scaledNorm computes ‖D x‖ for diagonal D.
func scaledNorm(n int, diag, x, wa []float64) float64 {
	floats.MulTo(wa[:n], diag[:n], x[:n])
	return enorm(n, wa, 1)
}
