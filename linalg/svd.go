package linalg

import (
	"math"

	"github.com/fumin/tensor"
)

// SVD computes the thin singular value decomposition a = u @ s @ v^H of the
// m x n matrix a, where s = min(m,n) x min(m,n) is diagonal. a is overwritten
// with s; u and v receive the left/right singular vectors as columns, sorted
// by descending singular value. bufs is not used; the underlying
// eigendecomposition allocates its own scratch space.
// See Section 8.6, Matrix Computations 4th Ed., G. H. Golub, C. F. Van Loan.
func SVD(a, u, v *tensor.Dense, bufs []*tensor.Dense) error {
	m, n := a.Shape()[0], a.Shape()[1]
	if m >= n {
		return svdTall(a, u, v, bufs)
	}

	aH := a.H()
	uSwap, vSwap := tensor.Zeros(1), tensor.Zeros(1)
	if err := svdTall(aH, uSwap, vSwap, bufs); err != nil {
		return err
	}
	a.Reset(aH.Shape()...)
	a.Set([]int{0, 0}, aH)
	v.Reset(uSwap.Shape()...)
	v.Set([]int{0, 0}, uSwap)
	u.Reset(vSwap.Shape()...)
	u.Set([]int{0, 0}, vSwap)
	return nil
}

// svdTall implements SVD for the m x n case with m >= n, via eigendecomposition
// of the Gram matrix a^H @ a.
func svdTall(a, u, v *tensor.Dense, bufs []*tensor.Dense) error {
	m, n := a.Shape()[0], a.Shape()[1]

	gram := tensor.MatMul(tensor.Zeros(n, n), a.H(), a)
	eig := NewEig()
	eigvals, eigvecs, err := eig.Solve(gram)
	if err != nil {
		return err
	}

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	for i := 1; i < n; i++ {
		for j := i; j > 0 && real(eigvals.At(order[j])) > real(eigvals.At(order[j-1])); j-- {
			order[j], order[j-1] = order[j-1], order[j]
		}
	}

	s := tensor.Zeros(n, n)
	u.Reset(m, n)
	v.Reset(n, n)
	for col, idx := range order {
		lambda := real(eigvals.At(idx))
		if lambda < 0 {
			lambda = 0
		}
		sigma := float32(math.Sqrt(float64(lambda)))
		s.SetAt([]int{col, col}, complex(sigma, 0))

		vcol := eigvecs.Slice([][2]int{{0, n}, {idx, idx + 1}})
		v.Set([]int{0, col}, vcol)

		if sigma > epsilon {
			ucol := tensor.MatMul(tensor.Zeros(m, 1), a, vcol)
			Mul(ucol, complex(1/sigma, 0), ucol)
			u.Set([]int{0, col}, ucol)
		}
	}

	a.Reset(n, n)
	a.Set([]int{0, 0}, s)
	return nil
}
