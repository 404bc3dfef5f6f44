// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package minpack_test

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Test problems from J.J. Moré, B.S. Garbow and K.E. Hillstrom,
// 'Testing Unconstrained Optimization Software', ACM TOMS 7 (1981).

func rosenbrock(x, fvec []float64) error {
	fvec[0] = 10 * (x[1] - x[0]*x[0])
	fvec[1] = 1 - x[0]
	return nil
}

func rosenbrockJac(x []float64, jac *mat.Dense) error {
	jac.Set(0, 0, -20*x[0])
	jac.Set(0, 1, 10)
	jac.Set(1, 0, -1)
	return nil
}

func helicalTheta(x []float64) float64 {
	t := math.Atan(x[1]/x[0]) / (2 * math.Pi)
	if x[0] < 0 {
		t += 0.5
	}
	return t
}

func helical(x, fvec []float64) error {
	fvec[0] = 10 * (x[2] - 10*helicalTheta(x))
	fvec[1] = 10 * (math.Hypot(x[0], x[1]) - 1)
	fvec[2] = x[2]
	return nil
}

// broydenTri is the Broyden tridiagonal function.
func broydenTri(x, fvec []float64) error {
	n := len(x)
	for k := range x {
		t := (3-2*x[k])*x[k] + 1
		if k > 0 {
			t -= x[k-1]
		}
		if k < n-1 {
			t -= 2 * x[k+1]
		}
		fvec[k] = t
	}
	return nil
}

func broydenTriJac(x []float64, jac *mat.Dense) error {
	n := len(x)
	for k := range x {
		jac.Set(k, k, 3-4*x[k])
		if k > 0 {
			jac.Set(k, k-1, -1)
		}
		if k < n-1 {
			jac.Set(k, k+1, -2)
		}
	}
	return nil
}

var broydenTriRoot = []float64{
	-0.5706545, -0.6816283, -0.7017325, -0.7042129, -0.701369,
	-0.6918656, -0.665792, -0.5960342, -0.4164121,
}

// circleLine intersects the unit circle with the diagonal.
func circleLine(x, fvec []float64) error {
	fvec[0] = x[0]*x[0] + x[1]*x[1] - 1
	fvec[1] = x[0] - x[1]
	return nil
}

func circleLineJac(x []float64, jac *mat.Dense) error {
	jac.Set(0, 0, 2*x[0])
	jac.Set(0, 1, 2*x[1])
	jac.Set(1, 0, 1)
	jac.Set(1, 1, -1)
	return nil
}

var bardY = []float64{
	0.14, 0.18, 0.22, 0.25, 0.29, 0.32, 0.35, 0.39,
	0.37, 0.58, 0.73, 0.96, 1.34, 2.10, 4.39,
}

const bardM = 15

func bardTerms(i int) (t1, t2, t3 float64) {
	t1 = float64(i + 1)
	t2 = float64(15 - i)
	t3 = math.Min(t1, t2)
	return
}

func bard(x, fvec []float64) error {
	for i := range fvec {
		t1, t2, t3 := bardTerms(i)
		fvec[i] = bardY[i] - (x[0] + t1/(x[1]*t2+x[2]*t3))
	}
	return nil
}

func bardRow(x []float64, i int, row []float64) error {
	t1, t2, t3 := bardTerms(i)
	t := x[1]*t2 + x[2]*t3
	t *= t
	row[0] = -1
	row[1] = t1 * t2 / t
	row[2] = t1 * t3 / t
	return nil
}

func bardJac(x []float64, jac *mat.Dense) error {
	row := make([]float64, 3)
	for i := 0; i < bardM; i++ {
		_ = bardRow(x, i, row)
		jac.SetRow(i, row)
	}
	return nil
}

var (
	bardSolution = []float64{0.08241058, 1.133037, 2.343695}
	bardNorm     = 0.09063596
)

// line returns the residuals of the straight line fit y ≈ x₀ + x₁t.
func line(t, y []float64) (func(x, fvec []float64) error, func(x []float64, jac *mat.Dense) error) {
	f := func(x, fvec []float64) error {
		for i := range fvec {
			fvec[i] = x[0] + x[1]*t[i] - y[i]
		}
		return nil
	}
	j := func(x []float64, jac *mat.Dense) error {
		for i := range t {
			jac.Set(i, 0, 1)
			jac.Set(i, 1, t[i])
		}
		return nil
	}
	return f, j
}

// linearA and linearB define the linear system F(x) = 𝐀x - b.
var (
	linearA = mat.NewDense(3, 3, []float64{
		4, 1, 0,
		1, 3, 1,
		0, 1, 2,
	})
	linearB = []float64{1, 2, 3}
)

func linear(x, fvec []float64) error {
	for i := range fvec {
		fvec[i] = mat.Dot(linearA.RowView(i), mat.NewVecDense(len(x), x)) - linearB[i]
	}
	return nil
}

func linearJac(x []float64, jac *mat.Dense) error {
	jac.Copy(linearA)
	return nil
}

// linearRoot returns 𝐀⁻¹b.
func linearRoot() []float64 {
	var x mat.VecDense
	if err := x.SolveVec(linearA, mat.NewVecDense(3, linearB)); err != nil {
		panic(err)
	}
	return x.RawVector().Data
}

// cube has the root (2, 1).
func cube(x, fvec []float64) error {
	fvec[0] = x[0]*x[0]*x[0] - 8
	fvec[1] = x[1] - 1
	return nil
}

func cubeJac(x []float64, jac *mat.Dense) error {
	jac.Set(0, 0, 3*x[0]*x[0])
	jac.Set(1, 1, 1)
	return nil
}
