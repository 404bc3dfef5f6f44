// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package minpack

import "math"

// lmpar determines the Levenberg-Marquardt parameter λ such that the solution 𝐱 of
//
//	𝐀𝐱 ≅ 𝐛,  √λ𝐃𝐱 ≅ ೦
//
// satisfies either λ = 0 and ‖𝐃𝐱‖ - Δ ≤ 0.1Δ, or λ > 0 and |‖𝐃𝐱‖ - Δ| ≤ 0.1Δ.
//
// # Algorithm Outline
//
// The Gauss-Newton direction is tried first (λ = 0), accepted when it lies within 1.1Δ.
// Otherwise a safeguarded Newton iteration is applied on φ(λ) = ‖𝐃𝐱(λ)‖ - Δ
// keeping λ inside the bracket [λₗ, λᵤ], where λₗ comes from the Newton step at λ = 0
// when 𝐀 has full rank and λᵤ = ‖(𝐀𝐃⁻¹)ᵀ𝐛‖ / Δ. At most 10 iterations are performed.
//
// The factorization 𝐀𝐏 = 𝐐𝐑 is supplied in r with leading dimension ldr, ipvt and qtb = 𝐐ᵀ𝐛.
// On return the strict lower triangle of r and sdiag hold the factor 𝐒 computed by qrsolv
// and par holds the final λ.
//
// # References
//
//	J.J. Moré, 'The Levenberg-Marquardt algorithm: implementation and theory',
//	Numerical Analysis, Lecture Notes in Mathematics 630, Springer, 1978.
func lmpar(n int, r []float64, ldr int, ipvt []int, diag, qtb []float64,
	delta, par float64, x, sdiag, wa1, wa2 []float64) float64 {

	const maxIter = 10

	if n > len(ipvt) || n > len(diag) || n > len(qtb) || n > len(x) || n > len(wa1) || n > len(wa2) {
		panic("bound check error")
	}

	// Compute and store in x the Gauss-Newton direction.
	// If the Jacobian is rank-deficient, obtain a least-squares solution.
	nsing := n
	for j := 0; j < n; j++ {
		wa1[j] = qtb[j]
		if r[j+j*ldr] == zero && nsing == n {
			nsing = j
		}
		if nsing < n {
			wa1[j] = zero
		}
	}
	for j := nsing - 1; j >= 0; j-- {
		wa1[j] /= r[j+j*ldr]
		daxpy(j, -wa1[j], r[j*ldr:], 1, wa1, 1)
	}
	for j := 0; j < n; j++ {
		x[ipvt[j]] = wa1[j]
	}

	// Evaluate the function at the origin, and test for acceptance of the Gauss-Newton direction.
	iter := 0
	dxnorm := scaledNorm(n, diag, x, wa2)
	fp := dxnorm - delta
	if fp <= p1*delta {
		return zero
	}

	// If the Jacobian is not rank deficient, the Newton step provides a lower bound λₗ
	// for the zero of the function. Otherwise set this bound to zero.
	parl := zero
	if nsing >= n {
		for j := 0; j < n; j++ {
			l := ipvt[j]
			wa1[j] = diag[l] * (wa2[l] / dxnorm)
		}
		for j := 0; j < n; j++ {
			sum := ddot(j, r[j*ldr:], 1, wa1, 1)
			wa1[j] = (wa1[j] - sum) / r[j+j*ldr]
		}
		t := enorm(n, wa1, 1)
		parl = ((fp / delta) / t) / t
	}

	// Calculate an upper bound λᵤ for the zero of the function.
	for j := 0; j < n; j++ {
		sum := ddot(j+1, r[j*ldr:], 1, qtb, 1)
		wa1[j] = sum / diag[ipvt[j]]
	}
	gnorm := enorm(n, wa1, 1)
	paru := gnorm / delta
	if paru == zero {
		paru = dwarf / math.Min(delta, p1)
	}

	// If the input λ lies outside of the interval (λₗ, λᵤ), set λ to the closer endpoint.
	par = math.Max(par, parl)
	par = math.Min(par, paru)
	if par == zero {
		par = gnorm / dxnorm
	}

	for {
		iter++

		// Evaluate the function at the current value of λ.
		if par == zero {
			par = math.Max(dwarf, p001*paru)
		}
		t := math.Sqrt(par)
		for j := 0; j < n; j++ {
			wa1[j] = t * diag[j]
		}
		qrsolv(n, r, ldr, ipvt, wa1, qtb, x, sdiag, wa2)
		dxnorm = scaledNorm(n, diag, x, wa2)
		t = fp
		fp = dxnorm - delta

		// If the function is small enough, accept the current value of λ.
		// Also test for the exceptional cases where λₗ is zero or the number of iterations has reached 10.
		if math.Abs(fp) <= p1*delta || parl == zero && fp <= t && t < zero || iter == maxIter {
			break
		}

		// Compute the Newton correction.
		for j := 0; j < n; j++ {
			l := ipvt[j]
			wa1[j] = diag[l] * (wa2[l] / dxnorm)
		}
		for j := 0; j < n; j++ {
			wa1[j] /= sdiag[j]
			daxpy(n-j-1, -wa1[j], r[j+1+j*ldr:], 1, wa1[j+1:], 1)
		}
		t = enorm(n, wa1, 1)
		parc := ((fp / delta) / t) / t

		// Depending on the sign of the function, update λₗ or λᵤ.
		if fp > zero {
			parl = math.Max(parl, par)
		}
		if fp < zero {
			paru = math.Min(paru, par)
		}

		// Compute an improved estimate for λ.
		par = math.Max(parl, par+parc)
	}

	return par
}
