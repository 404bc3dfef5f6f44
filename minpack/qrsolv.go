// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package minpack

// qrsolv solves the damped least-squares problem
//
//	𝐀𝐱 ≅ 𝐛,  𝐃𝐱 ≅ ೦
//
// given the QR factorization with column pivoting 𝐀𝐏 = 𝐐𝐑, the diagonal 𝐃 and 𝐐ᵀ𝐛.
//
// # Algorithm Outline
//
// The system is equivalent to
//
//	⎡ 𝐑    ⎤       ⎡ 𝐐ᵀ𝐛 ⎤
//	⎣ 𝐏ᵀ𝐃𝐏 ⎦ 𝐳 ≅ ⎣  ೦   ⎦   with 𝐱 = 𝐏𝐳
//
// A sequence of Givens rotations eliminates the diagonal rows one at a time,
// producing an upper triangular 𝐒 with 𝐏ᵀ(𝐀ᵀ𝐀 + 𝐃𝐃)𝐏 = 𝐒ᵀ𝐒.
// When 𝐒 is singular a least-squares solution is obtained by zeroing the trailing components.
//
// # Memory Layout
//
// r is column-major with leading dimension ldr, only its upper triangle is read on entry.
// On return the full upper triangle is unaltered, the strict lower triangle holds
// the strict upper triangle of 𝐒 transposed and sdiag holds the diagonal of 𝐒.
// diag is indexed by the original variable order, qtb by the pivoted order.
func qrsolv(n int, r []float64, ldr int, ipvt []int, diag, qtb, x, sdiag, wa []float64) {

	if n > len(ipvt) || n > len(diag) || n > len(qtb) || n > len(x) || n > len(sdiag) || n > len(wa) {
		panic("bound check error")
	}

	// Copy 𝐑 and 𝐐ᵀ𝐛 to preserve input and initialize 𝐒.
	// In particular, save the diagonal elements of 𝐑 in x.
	for j := 0; j < n; j++ {
		for i := j; i < n; i++ {
			r[i+j*ldr] = r[j+i*ldr]
		}
		x[j] = r[j+j*ldr]
		wa[j] = qtb[j]
	}

	// Eliminate the diagonal matrix 𝐃 using Givens rotations.
	for j := 0; j < n; j++ {

		// Prepare the row of 𝐃 to be eliminated,
		// locating the diagonal element using 𝐏 from the QR factorization.
		if l := ipvt[j]; diag[l] != zero {
			clear(sdiag[j:n])
			sdiag[j] = diag[l]

			// The transformations to eliminate the row of 𝐃 modify only
			// a single element of 𝐐ᵀ𝐛 beyond the first n, which is initially zero.
			qtbpj := zero
			for k := j; k < n; k++ {
				if sdiag[k] == zero {
					continue
				}
				rk := r[k*ldr : k*ldr+n]
				c, s := givens(rk[k], sdiag[k])

				// Compute the modified diagonal element of 𝐑 and the modified element of (𝐐ᵀ𝐛,0).
				rk[k] = c*rk[k] + s*sdiag[k]
				t := c*wa[k] + s*qtbpj
				qtbpj = -s*wa[k] + c*qtbpj
				wa[k] = t

				// Accumulate the transformation in the row of 𝐒.
				for i := k + 1; i < n; i++ {
					t := c*rk[i] + s*sdiag[i]
					sdiag[i] = -s*rk[i] + c*sdiag[i]
					rk[i] = t
				}
			}
		}

		// Store the diagonal element of 𝐒 and restore the corresponding diagonal element of 𝐑.
		sdiag[j] = r[j+j*ldr]
		r[j+j*ldr] = x[j]
	}

	// Solve the triangular system for 𝐳.
	// If the system is singular, then obtain a least-squares solution.
	nsing := n
	for j := 0; j < n; j++ {
		if sdiag[j] == zero && nsing == n {
			nsing = j
		}
		if nsing < n {
			wa[j] = zero
		}
	}
	for j := nsing - 1; j >= 0; j-- {
		sum := ddot(nsing-j-1, r[j+1+j*ldr:], 1, wa[j+1:], 1)
		wa[j] = (wa[j] - sum) / sdiag[j]
	}

	// Permute the components of 𝐳 back to components of 𝐱.
	for j := 0; j < n; j++ {
		x[ipvt[j]] = wa[j]
	}
}
