// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package minpack

import "math"

// dogleg determines the convex combination 𝐱 of the Gauss-Newton and scaled gradient directions
// that minimizes ‖𝐀𝐱 - 𝐛‖ along the dogleg path subject to ‖𝐃𝐱‖ ≤ Δ.
//
// # Algorithm Outline
//
// Given 𝐀 = 𝐐𝐑 and qtb = 𝐐ᵀ𝐛:
//
//	𝐱ɢɴ = 𝐑⁻¹𝐐ᵀ𝐛               Gauss-Newton direction, returned when ‖𝐃𝐱ɢɴ‖ ≤ Δ
//	𝐠 = 𝐃⁻¹𝐑ᵀ𝐐ᵀ𝐛               scaled gradient direction
//	σ = ‖𝐠‖ / ‖𝐑𝐃⁻¹𝐠‖²          length of the Cauchy point along 𝐃⁻¹𝐠/‖𝐠‖
//
// When σ ≥ Δ the step is the scaled gradient point on the boundary.
// Otherwise α ∈ (0,1) is chosen in closed form so that
// 𝐱 = (1-α)σ𝐃⁻¹𝐠/‖𝐠‖ + α𝐱ɢɴ lies exactly on the boundary ‖𝐃𝐱‖ = Δ.
//
// A zero diagonal element of 𝐑 is replaced by eps times the largest element of its column,
// or by eps when the column is zero.
//
// # Memory Layout
//
// r holds the upper triangle of the n × n matrix 𝐑 packed by rows in ½n(n+1) entries:
//
//	[ r₁₁ r₁₂ ··· r₁ₙ | r₂₂ ··· r₂ₙ | ··· | rₙₙ ]
func dogleg(n int, r []float64, diag, qtb []float64, delta float64, x, wa1, wa2 []float64) {

	if n*(n+1)/2 > len(r) || n > len(diag) || n > len(qtb) || n > len(x) || n > len(wa1) || n > len(wa2) {
		panic("bound check error")
	}

	// First, calculate the Gauss-Newton direction.
	jj := n * (n + 1) / 2
	for k := 0; k < n; k++ {
		j := n - 1 - k
		jj -= k + 1
		sum := ddot(n-j-1, r[jj+1:], 1, x[j+1:], 1)
		t := r[jj]
		if t == zero {
			l := j
			for i := 0; i <= j; i++ {
				t = math.Max(t, math.Abs(r[l]))
				l += n - i - 1
			}
			if t *= epsmch; t == zero {
				t = epsmch
			}
		}
		x[j] = (qtb[j] - sum) / t
	}

	// Test whether the Gauss-Newton direction is acceptable.
	clear(wa1[:n])
	qnorm := scaledNorm(n, diag, x, wa2)
	if qnorm <= delta {
		return
	}

	// The Gauss-Newton direction is not acceptable.
	// Next, calculate the scaled gradient direction.
	l := 0
	for j := 0; j < n; j++ {
		daxpy(n-j, qtb[j], r[l:], 1, wa1[j:], 1)
		wa1[j] /= diag[j]
		l += n - j
	}

	// Calculate the norm of the scaled gradient and test for the special case in which the scaled gradient is zero.
	gnorm := enorm(n, wa1, 1)
	sgnorm := zero
	alpha := delta / qnorm

	if gnorm != zero {
		// Calculate the point along the scaled gradient at which the quadratic is minimized.
		for j := 0; j < n; j++ {
			wa1[j] = (wa1[j] / gnorm) / diag[j]
		}
		l = 0
		for j := 0; j < n; j++ {
			wa2[j] = ddot(n-j, r[l:], 1, wa1[j:], 1)
			l += n - j
		}
		t := enorm(n, wa2, 1)
		sgnorm = (gnorm / t) / t

		// Test whether the scaled gradient direction is acceptable.
		alpha = zero
		if sgnorm < delta {
			// The scaled gradient direction is not acceptable.
			// Finally, calculate the point along the dogleg at which the quadratic is minimized.
			bnorm := enorm(n, qtb, 1)
			dq := delta / qnorm
			sd := sgnorm / delta
			t = (bnorm / gnorm) * (bnorm / qnorm) * sd
			t = t - dq*sd*sd + math.Sqrt((t-dq)*(t-dq)+(one-dq*dq)*(one-sd*sd))
			alpha = dq * (one - sd*sd) / t
		}
	}

	// Form appropriate convex combination of the Gauss-Newton direction and the scaled gradient direction.
	t := (one - alpha) * math.Min(sgnorm, delta)
	for j := 0; j < n; j++ {
		x[j] = t*wa1[j] + alpha*x[j]
	}
}
