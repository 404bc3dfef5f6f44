// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package minpack

import "math"

// rawJacobian holds an m × n Jacobian in column-major order exactly as evaluated.
type rawJacobian struct {
	m, n int
	data []float64
}

func newRawJacobian(m, n int) rawJacobian {
	return rawJacobian{m: m, n: n, data: make([]float64, m*n)}
}

// qrFactor holds the Householder factorization 𝐀𝐏 = 𝐐𝐑 of a Jacobian.
//
// The strict upper triangle of a contains the strict upper triangle of 𝐑,
// the lower trapezoid contains the vectors defining 𝐐.
// The diagonal of 𝐑 is kept in rdiag.
type qrFactor struct {
	m, n, ld int
	a        []float64 // ld × n
	ipvt     []int     // n
	rdiag    []float64 // n
	acnorm   []float64 // n
	wa       []float64 // n
}

func newQRFactor(m, n, ld int) qrFactor {
	return qrFactor{
		m: m, n: n, ld: ld,
		a:      make([]float64, ld*n),
		ipvt:   make([]int, n),
		rdiag:  make([]float64, n),
		acnorm: make([]float64, n),
		wa:     make([]float64, n),
	}
}

func (f *qrFactor) reset() {
	clear(f.a)
	clear(f.ipvt)
	clear(f.rdiag)
	clear(f.acnorm)
	clear(f.wa)
}

// factor copies the raw Jacobian and factorizes it.
func (f *qrFactor) factor(j *rawJacobian, pivot bool) {
	if j.m != f.m || j.n != f.n || f.ld != f.m {
		panic("jacobian dimension not match factor")
	}
	copy(f.a, j.data)
	qrfac(f.m, f.n, f.a, f.ld, pivot, f.ipvt, f.rdiag, f.acnorm, f.wa)
}

// applyQT overwrites b with 𝐐ᵀb for the first n components.
func (f *qrFactor) applyQT(b []float64) {
	applyQT(f.m, f.n, f.a, f.ld, b)
}

// qrfac computes a QR factorization with optional column pivoting of the m × n matrix 𝐀
// using Householder transformations, that is 𝐀𝐏 = 𝐐𝐑.
//
//	𝐏 is a permutation matrix chosen so that the diagonal of 𝐑 is non-increasing in magnitude.
//	𝐐 is an orthogonal matrix of order m constructed as product of 𝚖𝚒𝚗(m,n) Householder matrix 𝐐₁ × ··· × 𝐐ᵤ
//	where 𝐐ⱼ = 𝐈 - (1/uⱼ)𝐮𝐮ᵀ and 𝐮 is the j-th column of the output a below the diagonal.
//
// # Pivoting
//
// At step j the column among j,...,n with the largest remaining norm in rows j,...,m is moved to position j.
// The remaining norms are downdated after each transformation and recomputed
// from scratch when cancellation makes the downdate unreliable.
//
// # Memory Layout
//
//	⎡ u₁₁ r₁₂ r₁₃ ⎤   strict upper triangle holds 𝐑 without its diagonal
//	⎥ u₂₁ u₂₂ r₂₃ ⎥   lower trapezoid holds the Householder vectors
//	⎥ u₃₁ u₃₂ u₃₃ ⎥
//	⎣ u₄₁ u₄₂ u₄₃ ⎦   rdiag holds the diagonal of 𝐑
//
// On return ipvt[j] is the original index of the j-th column of 𝐀𝐏 (unused without pivoting),
// acnorm holds the norms of the columns of the input 𝐀, wa is working space.
func qrfac(m, n int, a []float64, lda int, pivot bool, ipvt []int, rdiag, acnorm, wa []float64) {

	const p05 = 0.05

	if n > len(rdiag) || n > len(acnorm) || n > len(wa) || (pivot && n > len(ipvt)) {
		panic("bound check error")
	}

	// Compute the initial column norms and initialize several arrays.
	for j := 0; j < n; j++ {
		acnorm[j] = enorm(m, a[j*lda:], 1)
		rdiag[j] = acnorm[j]
		wa[j] = rdiag[j]
		if pivot {
			ipvt[j] = j
		}
	}

	// Reduce 𝐀 to 𝐑 with Householder transformations.
	minmn := min(m, n)
	for j := 0; j < minmn; j++ {
		aj := a[j*lda : j*lda+m]
		if pivot {
			// Bring the column of largest norm into the pivot position.
			kmax := j
			for k := j; k < n; k++ {
				if rdiag[k] > rdiag[kmax] {
					kmax = k
				}
			}
			if kmax != j {
				ak := a[kmax*lda : kmax*lda+m]
				for i := range aj {
					aj[i], ak[i] = ak[i], aj[i]
				}
				rdiag[kmax] = rdiag[j]
				wa[kmax] = wa[j]
				ipvt[j], ipvt[kmax] = ipvt[kmax], ipvt[j]
			}
		}

		// Compute the Householder transformation to reduce the j-th column of 𝐀 to a multiple of the j-th unit vector.
		ajnorm := enorm(m-j, aj[j:], 1)
		if ajnorm != zero {
			if aj[j] < zero {
				ajnorm = -ajnorm
			}
			dscal(m-j, one/ajnorm, aj[j:], 1)
			aj[j] += one

			// Apply the transformation to the remaining columns and update the norms.
			for k := j + 1; k < n; k++ {
				ak := a[k*lda : k*lda+m]
				sum := ddot(m-j, aj[j:], 1, ak[j:], 1)
				daxpy(m-j, -sum/aj[j], aj[j:], 1, ak[j:], 1)
				if pivot && rdiag[k] != zero {
					t := ak[j] / rdiag[k]
					rdiag[k] *= math.Sqrt(max(zero, one-t*t))
					if t = rdiag[k] / wa[k]; p05*t*t <= epsmch {
						rdiag[k] = enorm(m-j-1, ak[j+1:], 1)
						wa[k] = rdiag[k]
					}
				}
			}
		}
		rdiag[j] = -ajnorm
	}
}

// applyQT overwrites b with 𝐐ᵀb where 𝐐 is stored in the factored form produced by qrfac.
func applyQT(m, n int, a []float64, lda int, b []float64) {
	for j := 0; j < min(m, n); j++ {
		aj := a[j*lda : j*lda+m]
		if aj[j] != zero {
			sum := ddot(m-j, aj[j:], 1, b[j:], 1)
			daxpy(m-j, -sum/aj[j], aj[j:], 1, b[j:], 1)
		}
	}
}

// qform accumulates the m × m orthogonal matrix 𝐐 from its factored form.
//
// On entry the first 𝚖𝚒𝚗(m,n) columns of q contain the Householder vectors produced by qrfac,
// on return q contains 𝐐 in column-major order with leading dimension ldq.
func qform(m, n int, q []float64, ldq int, wa []float64) {

	// Zero out upper triangle of 𝐐 in the first 𝚖𝚒𝚗(m,n) columns.
	minmn := min(m, n)
	for j := 1; j < minmn; j++ {
		clear(q[j*ldq : j*ldq+j])
	}

	// Initialize remaining columns to those of the identity matrix.
	for j := n; j < m; j++ {
		clear(q[j*ldq : j*ldq+m])
		q[j+j*ldq] = one
	}

	// Accumulate 𝐐 from its factored form.
	for k := minmn - 1; k >= 0; k-- {
		qk := q[k*ldq : k*ldq+m]
		copy(wa[k:m], qk[k:])
		clear(qk[k:])
		qk[k] = one
		if wa[k] == zero {
			continue
		}
		for j := k; j < m; j++ {
			qj := q[j*ldq : j*ldq+m]
			sum := ddot(m-k, qj[k:], 1, wa[k:], 1)
			daxpy(m-k, -sum/wa[k], wa[k:], 1, qj[k:], 1)
		}
	}
}
