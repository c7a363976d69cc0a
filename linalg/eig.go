package linalg

import (
	"math/cmplx"

	"github.com/pkg/errors"

	"github.com/fumin/tensor"
)

// EigOptions configures a call to Eig.Solve.
type EigOptions struct {
	Vectors bool
}

// Eig computes the eigenvalues and (optionally) eigenvectors of a general
// square complex matrix via the shifted QR algorithm.
// See Section 7.5, Matrix Computations 4th Ed., G. H. Golub, C. F. Van Loan.
type Eig struct {
	eigvals *tensor.Dense
	eigvecs *tensor.Dense

	a  *tensor.Dense
	z  *tensor.Dense
	q  *tensor.Dense
	r0 *tensor.Dense
	r1 *tensor.Dense
}

// NewEig allocates a reusable Eig solver.
func NewEig() *Eig {
	return &Eig{
		eigvals: tensor.Zeros(1),
		eigvecs: tensor.Zeros(1),
		a:       tensor.Zeros(1),
		z:       tensor.Zeros(1),
		q:       tensor.Zeros(1),
		r0:      tensor.Zeros(1),
		r1:      tensor.Zeros(1),
	}
}

// Solve returns the eigenvalues, sorted by ascending real part, and the
// corresponding eigenvectors as columns of a matrix. Callers hand it Krylov
// and Davidson projections, the Gram matrices of SVD, and sweep's
// reduced density matrix on its multi-state path (as large as the whole
// local site tensor); never the local effective Hamiltonian itself (see
// eigensolver.solveArnoldi).
func (solver *Eig) Solve(a *tensor.Dense, options ...EigOptions) (*tensor.Dense, *tensor.Dense, error) {
	opt := EigOptions{Vectors: true}
	if len(options) > 0 {
		opt = options[0]
	}
	if err := solver.solve(a, opt); err != nil {
		return nil, nil, errors.Wrap(err, "")
	}
	var vecs *tensor.Dense
	if opt.Vectors {
		vecs = solver.eigvecs
	}
	sortEigen(solver.eigvals, vecs, func(a, b complex64) int {
		switch {
		case real(a) < real(b):
			return -1
		case real(a) > real(b):
			return 1
		default:
			return 0
		}
	})
	return solver.eigvals, solver.eigvecs, nil
}

// sortEigen reorders the eigenvalues (and, if non-nil, the corresponding
// eigenvector columns) according to cmp, via a simple insertion sort since
// the dimensions involved are always small.
func sortEigen(vals, vecs *tensor.Dense, cmp func(complex64, complex64) int) {
	vv := valVecs{val: vals, vec: vecs, fn: cmp}
	n := vv.Len()
	for i := 1; i < n; i++ {
		for j := i; j > 0 && vv.Less(j, j-1); j-- {
			vv.Swap(j, j-1)
		}
	}
}

// maxQRIterations bounds the shifted-QR reduction to (near) triangular form.
const maxQRIterations = 500

func (solver *Eig) solve(a *tensor.Dense, opt EigOptions) error {
	m := a.Shape()[0]
	solver.a.Reset(m, m)
	solver.a.Set([]int{0, 0}, a)
	solver.z.Eye(m, 0)

	qrbufs := [2]*tensor.Dense{solver.r0, solver.r1}
	for iter := 0; iter < maxQRIterations; iter++ {
		if subdiagonalNorm(solver.a) < epsilon*max(1, solver.a.FrobeniusNorm()) {
			break
		}

		var shift complex64
		if m >= 2 {
			shift = wilkinsonsShift(solver.a.Slice([][2]int{{m - 2, m}, {m - 2, m}}))
		}
		eye := solver.r0.Eye(m, 0)
		shifted := solver.r1.Reset(m, m)
		Add(shifted, solver.a, Mul(tensor.Zeros(m, m), -shift, eye))
		solver.a.Set([]int{0, 0}, shifted)

		r := tensor.QR(solver.q, solver.a, qrbufs)
		solver.a.Reset(m, m)
		tensor.MatMul(solver.a, r, solver.q)
		eye2 := tensor.Zeros(m, m).Eye(m, 0)
		Add(solver.a, solver.a, Mul(tensor.Zeros(m, m), shift, eye2))

		newZ := tensor.MatMul(tensor.Zeros(m, m), solver.z, solver.q)
		solver.z.Reset(m, m)
		solver.z.Set([]int{0, 0}, newZ)
	}

	solver.eigvals.Reset(m)
	for i := 0; i < m; i++ {
		solver.eigvals.SetAt([]int{i}, solver.a.At(i, i))
	}
	if !opt.Vectors {
		return nil
	}

	// solver.a is (approximately) upper triangular; find its eigenvectors by
	// back-substitution, then transform back via the accumulated Schur
	// vectors z.
	triVecs := tensor.Zeros(m, m)
	aMinusLambda := tensor.Zeros(m, m).Set([]int{0, 0}, solver.a)
	zeroCol := tensor.Zeros(m, 1)
	for i := 0; i < m; i++ {
		for j := 0; j < m; j++ {
			aMinusLambda.SetAt([]int{j, j}, solver.a.At(j, j)-solver.a.At(i, i))
		}
		vec := triVecs.Slice([][2]int{{0, m}, {i, i + 1}})
		backSubstitution(vec, aMinusLambda, zeroCol, i)
	}

	solver.eigvecs.Reset(m, m)
	tensor.MatMul(solver.eigvecs, solver.z, triVecs)
	for j := 0; j < m; j++ {
		vec := solver.eigvecs.Slice([][2]int{{0, m}, {j, j + 1}})
		norm := vec.FrobeniusNorm()
		if norm > epsilon {
			Mul(vec, complex(1/norm, 0), vec)
		}
	}
	return nil
}

func subdiagonalNorm(a *tensor.Dense) float32 {
	m := a.Shape()[0]
	var sum float32
	for i := 1; i < m; i++ {
		sum += abs(a.At(i, i-1))
	}
	return sum
}

// backSubstitution solves (l - l[zeroIndex,zeroIndex]*I) x = b for the
// eigenvector of the upper-triangular matrix l associated with its
// zeroIndex-th diagonal entry.
// See Section 7.6.4 Eigenvector Bases, Matrix Computations 4th Ed., G. H. Golub, C. F. Van Loan.
func backSubstitution(x, l, b *tensor.Dense, zeroIndex int) {
	m := x.Shape()[0]
	for i := m - 1; i >= 0; i-- {
		v := b.At(i, 0)
		for j := m - 1; j > i; j-- {
			v -= l.At(i, j) * x.At(j, 0)
		}
		if abs(l.At(i, i)) < epsilon {
			if i == zeroIndex {
				v = 1
			} else {
				v = 0
			}
		} else {
			v /= l.At(i, i)
		}
		x.SetAt([]int{i, 0}, v)
	}
}

func eig22(a *tensor.Dense) (complex64, complex64) {
	tr := a.At(0, 0) + a.At(1, 1)
	det := a.At(0, 0)*a.At(1, 1) - a.At(0, 1)*a.At(1, 0)
	disc := complex64(cmplx.Sqrt(complex128(tr*tr - 4*det)))
	return (tr + disc) / 2, (tr - disc) / 2
}

// wilkinsonsShift picks the eigenvalue of the trailing 2x2 block closest to
// its bottom-right entry.
func wilkinsonsShift(a *tensor.Dense) complex64 {
	m := a.Shape()[0]
	l0, l1 := eig22(a)
	amm := a.At(m-1, m-1)
	if abs(l0-amm) > abs(l1-amm) {
		return l1
	}
	return l0
}

type valVecs struct {
	val *tensor.Dense
	vec *tensor.Dense
	fn  func(complex64, complex64) int
}

func (vv valVecs) Len() int { return vv.val.Shape()[0] }
func (vv valVecs) Swap(i, j int) {
	tmp := vv.val.At(i)
	vv.val.SetAt([]int{i}, vv.val.At(j))
	vv.val.SetAt([]int{j}, tmp)
	if vv.vec == nil {
		return
	}
	m := vv.vec.Shape()[0]
	tmpCol := tensor.Zeros(m, 1)
	tmpCol.Set([]int{0, 0}, vv.vec.Slice([][2]int{{0, m}, {i, i + 1}}))
	vv.vec.Set([]int{0, i}, vv.vec.Slice([][2]int{{0, m}, {j, j + 1}}))
	vv.vec.Set([]int{0, j}, tmpCol)
}
func (vv valVecs) Less(i, j int) bool { return vv.fn(vv.val.At(i), vv.val.At(j)) < 0 }
