// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package minpack

import (
	"math"
	"math/rand/v2"
	"slices"
	"testing"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// randomMatrix returns an m × n column-major matrix with entries in [-1, 1).
func randomMatrix(rnd *rand.Rand, m, n int) []float64 {
	a := make([]float64, m*n)
	for i := range a {
		a[i] = 2*rnd.Float64() - 1
	}
	return a
}

// denseOf converts a column-major matrix with leading dimension ld.
func denseOf(m, n int, a []float64, ld int) *mat.Dense {
	d := mat.NewDense(m, n, nil)
	for j := 0; j < n; j++ {
		for i := 0; i < m; i++ {
			d.Set(i, j, a[i+j*ld])
		}
	}
	return d
}

// randomUpper returns an n × n upper triangular matrix packed by rows with a dominant diagonal.
func randomUpper(rnd *rand.Rand, n int) []float64 {
	r := make([]float64, n*(n+1)/2)
	l := 0
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			r[l] = 2*rnd.Float64() - 1
			if i == j {
				r[l] += math.Copysign(2, r[l])
			}
			l++
		}
	}
	return r
}

// unpackUpper expands an upper triangle packed by rows.
func unpackUpper(n int, r []float64) *mat.Dense {
	d := mat.NewDense(n, n, nil)
	l := 0
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			d.Set(i, j, r[l])
			l++
		}
	}
	return d
}

func TestQRFactor(t *testing.T) {

	const m, n = 7, 4
	rnd := rand.New(rand.NewPCG(1, 2))

	for _, pivot := range []bool{false, true} {

		a := randomMatrix(rnd, m, n)
		a0 := denseOf(m, n, a, m)

		ipvt := make([]int, n)
		rdiag := make([]float64, n)
		acnorm := make([]float64, n)
		wa := make([]float64, m)

		qrfac(m, n, a, m, pivot, ipvt, rdiag, acnorm, wa)

		perm := []int{0, 1, 2, 3}
		if pivot {
			perm = ipvt
			for j := 1; j < n; j++ {
				if math.Abs(rdiag[j]) > math.Abs(rdiag[j-1])*(1+1e-12) {
					t.Fatal("pivoted diagonal is not non-increasing", rdiag)
				}
			}
		}

		for j := 0; j < n; j++ {
			if !relativeEqual(acnorm[j], mat.Norm(a0.ColView(j), 2), 1e-14) {
				t.Fatal("unexpected column norm", j)
			}
		}

		r := mat.NewDense(m, n, nil)
		for j := 0; j < n; j++ {
			for i := 0; i < j; i++ {
				r.Set(i, j, a[i+j*m])
			}
			r.Set(j, j, rdiag[j])
		}

		b := randomMatrix(rnd, m, 1)
		qtb := slices.Clone(b)
		applyQT(m, n, a, m, qtb)

		q := make([]float64, m*m)
		copy(q, a)
		qform(m, n, q, m, wa)
		qd := denseOf(m, m, q, m)

		var qtq mat.Dense
		qtq.Mul(qd.T(), qd)
		if !mat.EqualApprox(&qtq, eye(m), 1e-13) {
			t.Fatal("accumulated Q is not orthogonal")
		}

		var qr mat.Dense
		qr.Mul(qd, r)
		for j := 0; j < n; j++ {
			for i := 0; i < m; i++ {
				if math.Abs(qr.At(i, j)-a0.At(i, perm[j])) > 1e-13 {
					t.Fatalf("QR does not reproduce AP at (%d,%d) with pivot=%v", i, j, pivot)
				}
			}
		}

		var want mat.VecDense
		want.MulVec(qd.T(), mat.NewVecDense(m, b))
		if !floats.EqualApprox(qtb, want.RawVector().Data, 1e-13) {
			t.Fatal("unexpected Qᵀb")
		}
	}
}

func eye(n int) *mat.Dense {
	d := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		d.Set(i, i, 1)
	}
	return d
}

func TestRankOneUpdate(t *testing.T) {

	const n = 5
	rnd := rand.New(rand.NewPCG(3, 4))

	// S = Rᵀ is lower triangular, its columns are the rows of R.
	s := randomUpper(rnd, n)
	u := randomMatrix(rnd, n, 1)
	v := randomMatrix(rnd, n, 1)
	v[2] = 0

	st := unpackUpper(n, s)
	var a mat.Dense
	a.Outer(1, mat.NewVecDense(n, u), mat.NewVecDense(n, slices.Clone(v)))
	a.Add(&a, st.T())

	w := make([]float64, n)
	if sing := r1updt(n, n, s, u, v, w); sing {
		t.Fatal("unexpected singular update")
	}

	raw := make([]float64, n*n)
	for j := 0; j < n; j++ {
		for i := 0; i < n; i++ {
			raw[i+j*n] = a.At(i, j)
		}
	}
	r1mpyq(n, n, raw, n, v, w)

	updated := unpackUpper(n, s)
	if !mat.EqualApprox(denseOf(n, n, raw, n), updated.T(), 1e-13) {
		t.Fatal("rotations do not reproduce the updated factor")
	}

	// a single row sees the same rotations
	row := make([]float64, n)
	for i := 0; i < n; i++ {
		mat.Row(row, i, &a)
		r1mpyq(1, n, row, 1, v, w)
		if !floats.EqualApprox(row, mat.Col(nil, i, updated), 1e-13) {
			t.Fatal("unexpected rotated row", i)
		}
	}
}

func TestRotationEncoding(t *testing.T) {
	for _, ab := range [][2]float64{{3, 4}, {4, 3}, {-1, 1e-3}, {1e-3, -1}, {1e-300, 1}} {
		c, s := givens(ab[0], ab[1])
		if math.Abs(-s*ab[0]+c*ab[1]) > 1e-15*math.Hypot(ab[0], ab[1]) {
			t.Fatal("rotation does not eliminate", ab)
		}
		dc, ds := decode(encode(c, s, math.Abs(ab[0]) >= math.Abs(ab[1])))
		if math.Abs(dc-c) > 1e-12 || math.Abs(ds-s) > 1e-12 {
			t.Fatalf("rotation (%g,%g) decoded as (%g,%g)", c, s, dc, ds)
		}
	}
}

func TestRowUpdate(t *testing.T) {

	const m, n = 8, 3
	rnd := rand.New(rand.NewPCG(5, 6))

	a := mat.NewDense(m, n, randomMatrix(rnd, m, n))
	b := randomMatrix(rnd, m, 1)

	r := make([]float64, n*n)
	qtb := make([]float64, n)
	cos, sin := make([]float64, n), make([]float64, n)
	row := make([]float64, n)

	ss := zero
	for i := 0; i < m; i++ {
		mat.Row(row, i, a)
		alpha := rwupdt(n, r, n, row, qtb, b[i], cos, sin)
		ss += alpha * alpha
	}

	// Rᵀ R = Aᵀ A
	rd := denseOf(n, n, r, n)
	for j := 0; j < n; j++ {
		for i := j + 1; i < n; i++ {
			rd.Set(i, j, 0)
		}
	}
	var rtr, ata mat.Dense
	rtr.Mul(rd.T(), rd)
	ata.Mul(a.T(), a)
	if !mat.EqualApprox(&rtr, &ata, 1e-12) {
		t.Fatal("row accumulation does not reproduce AᵀA")
	}

	// ‖b‖² = ‖Qᵀb‖² + Σα²
	if !relativeEqual(floats.Dot(b, b), floats.Dot(qtb, qtb)+ss, 1e-13) {
		t.Fatal("row accumulation does not preserve the residual norm")
	}

	// R x = Qᵀb gives the least-squares solution
	var x, want mat.VecDense
	if err := x.SolveVec(rd, mat.NewVecDense(n, qtb)); err != nil {
		t.Fatal(err)
	}
	if err := want.SolveVec(a, mat.NewVecDense(m, b)); err != nil {
		t.Fatal(err)
	}
	if !mat.EqualApprox(&x, &want, 1e-12) {
		t.Fatal("unexpected least-squares solution")
	}
}

// factorized returns the pivoted factor of A with the diagonal stored in place and Qᵀb.
func factorized(m, n int, a, b []float64) (r []float64, ipvt []int, qtb []float64) {
	r = slices.Clone(a)
	ipvt = make([]int, n)
	rdiag := make([]float64, n)
	qrfac(m, n, r, m, true, ipvt, rdiag, make([]float64, n), make([]float64, n))
	qtb = slices.Clone(b)
	applyQT(m, n, r, m, qtb)
	for j := 0; j < n; j++ {
		r[j+j*m] = rdiag[j]
	}
	return r, ipvt, qtb[:n]
}

func TestLMParameter(t *testing.T) {

	const m, n = 6, 3
	rnd := rand.New(rand.NewPCG(7, 8))

	a := randomMatrix(rnd, m, n)
	b := randomMatrix(rnd, m, 1)
	ad := denseOf(m, n, a, m)
	diag := []float64{1, 2, 0.5}

	x := make([]float64, n)
	sdiag := make([]float64, n)
	wa1, wa2 := make([]float64, n), make([]float64, n)

	// A large trust region accepts the Gauss-Newton direction.
	r, ipvt, qtb := factorized(m, n, a, b)
	if par := lmpar(n, r, m, ipvt, diag, qtb, 1e6, 0, x, sdiag, wa1, wa2); par != 0 {
		t.Fatal("unexpected parameter for large region", par)
	}
	var gn mat.VecDense
	if err := gn.SolveVec(ad, mat.NewVecDense(m, b)); err != nil {
		t.Fatal(err)
	}
	if !floats.EqualApprox(x, gn.RawVector().Data, 1e-12) {
		t.Fatal("unexpected Gauss-Newton direction")
	}

	// A small trust region yields a damped step close to the boundary.
	dx := make([]float64, n)
	delta := 0.1 * scaledNorm(n, diag, x, dx)
	par := lmpar(n, r, m, ipvt, diag, qtb, delta, 0, x, sdiag, wa1, wa2)
	if par <= 0 {
		t.Fatal("expect positive parameter", par)
	}
	if math.Abs(scaledNorm(n, diag, x, dx)-delta) > 0.1*delta {
		t.Fatal("step is not close to the trust region boundary")
	}

	// (AᵀA + λD²) x = Aᵀb
	var lhs mat.Dense
	lhs.Mul(ad.T(), ad)
	for j, d := range diag {
		lhs.Set(j, j, lhs.At(j, j)+par*d*d)
	}
	var rhs, want mat.VecDense
	rhs.MulVec(ad.T(), mat.NewVecDense(m, b))
	if err := want.SolveVec(&lhs, &rhs); err != nil {
		t.Fatal(err)
	}
	if !floats.EqualApprox(x, want.RawVector().Data, 1e-10) {
		t.Fatal("damped step does not solve the regularized normal equations")
	}

	// The upper triangle survives qrsolv.
	r0, _, _ := factorized(m, n, a, b)
	for j := 0; j < n; j++ {
		for i := 0; i <= j; i++ {
			if r[i+j*m] != r0[i+j*m] {
				t.Fatal("upper triangle modified", i, j)
			}
		}
	}
}

func TestDogleg(t *testing.T) {

	const n = 4
	rnd := rand.New(rand.NewPCG(9, 10))

	r := randomUpper(rnd, n)
	qtb := randomMatrix(rnd, n, 1)
	diag := []float64{1, 0.5, 2, 1.5}

	x := make([]float64, n)
	wa1, wa2 := make([]float64, n), make([]float64, n)

	// Inside the region the Gauss-Newton step R⁻¹Qᵀb is returned.
	dogleg(n, r, diag, qtb, 1e6, x, wa1, wa2)
	var gn mat.VecDense
	if err := gn.SolveVec(unpackUpper(n, r), mat.NewVecDense(n, qtb)); err != nil {
		t.Fatal(err)
	}
	if !floats.EqualApprox(x, gn.RawVector().Data, 1e-12) {
		t.Fatal("unexpected Gauss-Newton step")
	}

	dx := make([]float64, n)
	qnorm := scaledNorm(n, diag, x, dx)

	// Otherwise the step lies on the boundary, both on the dogleg segment and on the gradient leg.
	for _, frac := range []float64{0.9, 0.5, 1e-3} {
		delta := frac * qnorm
		dogleg(n, r, diag, qtb, delta, x, wa1, wa2)
		if !relativeEqual(scaledNorm(n, diag, x, dx), delta, 1e-12) {
			t.Fatalf("step is not on the boundary for delta=%g", delta)
		}
	}
}

func relativeEqual(a, b, tol float64) bool {
	if a == b {
		return true
	}
	return math.Abs(a-b)/math.Max(math.Abs(a), math.Abs(b)) <= tol
}
