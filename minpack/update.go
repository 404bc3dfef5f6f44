// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package minpack

import "math"

// givens determines the rotation [c s; -s c] which eliminates b against a.
// It must not be called with b = 0.
func givens(a, b float64) (c, s float64) {
	if math.Abs(a) >= math.Abs(b) {
		t := b / a
		c = p5 / math.Sqrt(p25+p25*t*t)
		s = c * t
	} else {
		t := a / b
		s = p5 / math.Sqrt(p25+p25*t*t)
		c = s * t
	}
	return
}

// encode packs a rotation into a single number recoverable by decode.
func encode(c, s float64, sinStored bool) float64 {
	if sinStored {
		return s
	}
	if math.Abs(c)*math.MaxFloat64 > one {
		return one / c
	}
	return one
}

// decode recovers the rotation stored by encode.
func decode(v float64) (c, s float64) {
	if math.Abs(v) > one {
		c = one / v
		s = math.Sqrt(one - c*c)
	} else {
		s = v
		c = math.Sqrt(one - s*s)
	}
	return
}

// r1updt computes the rank-one update (𝐒 + 𝐮𝐯ᵀ)𝐐 = 𝐒߬ of an m × n lower trapezoidal matrix 𝐒
// where 𝐐 is an orthogonal matrix chosen so that 𝐒߬ is again lower trapezoidal.
//
// 𝐐 is the product of two sets of Givens rotations 𝐆₁ × ··· × 𝐆ₙ₋₁ × 𝐇ₙ₋₁ × ··· × 𝐇₁
// where 𝐆ⱼ rotates columns j and n to eliminate v(j) and 𝐇ⱼ removes the resulting spike.
//
// # Memory Layout
//
// s holds the lower trapezoid of 𝐒 packed by columns in ½n(2m-n+1) entries:
//
//	[ s₁₁ s₂₁ ··· sₘ₁ | s₂₂ ··· sₘ₂ | ··· | sₙₙ ··· sₘₙ ]
//
// For a square 𝐒 = 𝐑ᵀ this is the upper triangle of 𝐑 packed by rows.
//
// On return v holds the information to recover 𝐆ⱼ and w the information to recover 𝐇ⱼ,
// each rotation encoded as one number (see decode); v(n) and w(n) are unused.
// The result reports whether any diagonal element of 𝐒߬ is zero.
func r1updt(m, n int, s []float64, u, v, w []float64) (sing bool) {

	if n > len(v) || m > len(w) || m > len(u) || n*(2*m-n+1)/2 > len(s) {
		panic("bound check error")
	}

	nl := n - 1

	// Initialize the diagonal element pointer and move the last column of 𝐒 into w.
	jj := nl*m - nl*(nl-1)/2
	copy(w[nl:m], s[jj:jj+m-nl])

	// Rotate the vector v into a multiple of the n-th unit vector
	// in such a way that a spike is introduced into w.
	for j := nl - 1; j >= 0; j-- {
		jj -= m - j
		w[j] = zero
		if v[j] == zero {
			continue
		}
		sinStored := math.Abs(v[nl]) >= math.Abs(v[j])
		c, sn := givens(v[nl], v[j])
		v[nl] = sn*v[j] + c*v[nl]
		v[j] = encode(c, sn, sinStored)

		// Apply the transformation to 𝐒 and extend the spike in w.
		col := s[jj : jj+m-j]
		for i := j; i < m; i++ {
			t := c*col[i-j] - sn*w[i]
			w[i] = sn*col[i-j] + c*w[i]
			col[i-j] = t
		}
	}

	// Add the spike from the rank-one update to w.
	daxpy(m, v[nl], u, 1, w, 1)

	// Eliminate the spike.
	for j := 0; j < nl; j++ {
		col := s[jj : jj+m-j]
		if w[j] != zero {
			c, sn := givens(col[0], w[j])
			tau := encode(c, sn, math.Abs(col[0]) >= math.Abs(w[j]))
			for i := j; i < m; i++ {
				t := c*col[i-j] + sn*w[i]
				w[i] = -sn*col[i-j] + c*w[i]
				col[i-j] = t
			}
			w[j] = tau
		}
		if col[0] == zero {
			sing = true
		}
		jj += m - j
	}

	// Move w back into the last column of the output 𝐒.
	copy(s[jj:jj+m-nl], w[nl:m])
	if s[jj] == zero {
		sing = true
	}
	return
}

// r1mpyq computes 𝐀𝐐 for an m × n matrix 𝐀 where 𝐐 is the product of the rotations
// 𝐆₁ × ··· × 𝐆ₙ₋₁ × 𝐇ₙ₋₁ × ··· × 𝐇₁ recorded in v and w by r1updt.
//
// 𝐀 is column-major with leading dimension lda; a vector is handled as a 1 × n matrix.
func r1mpyq(m, n int, a []float64, lda int, v, w []float64) {

	nl := n - 1
	if nl < 1 {
		return
	}
	an := a[nl*lda:]

	// Apply the first set of Givens rotations to 𝐀.
	for j := nl - 1; j >= 0; j-- {
		c, s := decode(v[j])
		aj := a[j*lda:]
		for i := 0; i < m; i++ {
			t := c*aj[i] - s*an[i]
			an[i] = s*aj[i] + c*an[i]
			aj[i] = t
		}
	}

	// Apply the second set of Givens rotations to 𝐀.
	for j := 0; j < nl; j++ {
		c, s := decode(w[j])
		aj := a[j*lda:]
		for i := 0; i < m; i++ {
			t := c*aj[i] + s*an[i]
			an[i] = -s*aj[i] + c*an[i]
			aj[i] = t
		}
	}
}

// rwupdt updates the n × n upper triangular 𝐑 when the row wᵀ is appended, that is
//
//	⎡ 𝐑  ⎤       ⎡ 𝐑߬ ⎤     ⎡ b  ⎤       ⎡ b߬ ⎤
//	⎣ wᵀ ⎦ = 𝐐 ⎣ ೦ ⎦ ,   ⎣ α  ⎦ = 𝐐 ⎣ α߬ ⎦
//
// where 𝐐 is the product of n Givens rotations eliminating w.
// 𝐑 is column-major with leading dimension ldr and only its upper triangle is referenced.
// The rotations are stored in cos and sin, the updated α is returned.
func rwupdt(n int, r []float64, ldr int, w, b []float64, alpha float64, cos, sin []float64) float64 {

	if n > len(w) || n > len(b) || n > len(cos) || n > len(sin) {
		panic("bound check error")
	}

	for j := 0; j < n; j++ {
		rj := r[j*ldr : j*ldr+j+1]
		row := w[j]

		// Apply the previous transformations to 𝐑(i,j), i < j, and to w(j).
		for i := 0; i < j; i++ {
			t := cos[i]*rj[i] + sin[i]*row
			row = -sin[i]*rj[i] + cos[i]*row
			rj[i] = t
		}

		// Determine a Givens rotation which eliminates w(j).
		cos[j], sin[j] = one, zero
		if row == zero {
			continue
		}
		cos[j], sin[j] = givens(rj[j], row)

		// Apply the current transformation to 𝐑(j,j), b(j), and α.
		rj[j] = cos[j]*rj[j] + sin[j]*row
		t := cos[j]*b[j] + sin[j]*alpha
		alpha = -sin[j]*b[j] + cos[j]*alpha
		b[j] = t
	}
	return alpha
}
