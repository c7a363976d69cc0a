// Package linalg supplies the complex64 dense-matrix kernels the eigensolver
// and sweep-truncation steps need but that github.com/fumin/tensor's public
// surface does not cover: a shifted-QR eigendecomposition (Eig), an SVD
// built on top of it, and a restarted Arnoldi iteration operating on an
// implicit linear operator. Every kernel here reads and writes
// *tensor.Dense from github.com/fumin/tensor directly; there is no
// locally-defined tensor type.
//
// References:
//   - Matrix Computations 4th Ed., G. H. Golub, C. F. Van Loan.
//   - ARPACK Users' Guide, R. B. Lehoucq, D. C. Sorensen, C. Yang.
package linalg

import (
	"math/cmplx"

	"github.com/fumin/tensor"
)

// epsilon is the convergence/degeneracy tolerance used throughout this
// package.
const epsilon = 0x1p-23

// Mul returns the elementwise scaling of a by scalar, stored in dst. dst may
// alias a.
func Mul(dst *tensor.Dense, scalar complex64, a *tensor.Dense) *tensor.Dense {
	shape := a.Shape()
	snap := tensor.Zeros(shape...)
	snap.Set(make([]int, len(shape)), a)

	dst.Reset(shape...)
	for idx, v := range snap.All() {
		dst.SetAt(idx, scalar*v)
	}
	return dst
}

// Add returns the elementwise sum of a and b, stored in dst. dst may alias a
// or b.
func Add(dst, a, b *tensor.Dense) *tensor.Dense {
	aShape := a.Shape()
	aSnap := tensor.Zeros(aShape...)
	aSnap.Set(make([]int, len(aShape)), a)

	bShape := b.Shape()
	bSnap := tensor.Zeros(bShape...)
	bSnap.Set(make([]int, len(bShape)), b)

	dst.Reset(aShape...)
	for idx, v := range aSnap.All() {
		dst.SetAt(idx, v+bSnap.At(idx...))
	}
	return dst
}

func abs(x complex64) float32 { return float32(cmplx.Abs(complex128(x))) }

func conj(x complex64) complex64 { return complex64(cmplx.Conj(complex128(x))) }
