package linalg

import (
	"github.com/pkg/errors"

	"github.com/fumin/tensor"
)

// MatVec applies an implicit linear operator to the n x 1 column vector x,
// returning the n x 1 result, without the operator ever being formed as a
// dense n x n matrix. The local effective Hamiltonians this solves are built
// by the eigensolver package as a closure over an environment cache's
// left/right blocks and the active MPO tensor (spec.md section 4.4, "R.x,
// then W, then L").
type MatVec func(x *tensor.Dense) *tensor.Dense

// ArnoldiOptions configures a restarted Arnoldi solve.
type ArnoldiOptions struct {
	// KrylovDim is the Krylov subspace dimension built before every restart,
	// capped at the operator dimension. Zero selects a default of 20.
	KrylovDim int
	// MaxRestarts bounds the number of restart cycles. Zero selects a
	// default of 10.
	MaxRestarts int
	// Tol is the residual-norm convergence threshold ||A v - lambda v||.
	// Zero selects a default of 1e-6.
	Tol float32
}

func (opt ArnoldiOptions) krylovDim(n int) int {
	m := opt.KrylovDim
	if m <= 0 {
		m = 20
	}
	return min(m, n)
}

func (opt ArnoldiOptions) maxRestarts() int {
	if opt.MaxRestarts > 0 {
		return opt.MaxRestarts
	}
	return 10
}

func (opt ArnoldiOptions) tol() float32 {
	if opt.Tol > 0 {
		return opt.Tol
	}
	return 1e-6
}

// Arnoldi is a restarted Arnoldi/Lanczos eigensolver operating on an
// implicit linear operator (a MatVec closure), never materializing the
// operator as a dense matrix. The Krylov factorization (Gram-Schmidt
// orthogonalization building an upper Hessenberg projection) and the
// residual-based convergence check are adapted from the teacher's
// tensor/linalg.go Arnoldi type. Its restart step differs: that type's
// implicitlyRestart called an undefined chaseBulgeHessenberg helper (dead,
// unreachable code), so there is no working implicit-shift deflation to
// adapt; this instead restarts explicitly from the best current Ritz
// vector, which is simpler and costs one extra factorization per restart
// cycle rather than a bulge-chasing QR step.
// See Chapter 4, ARPACK Users' Guide, R. B. Lehoucq, D. C. Sorensen, C. Yang.
type Arnoldi struct {
	opt ArnoldiOptions
}

// NewArnoldi allocates a restarted Arnoldi solver with the given options,
// defaulting to a Krylov dimension of 20, 10 restart cycles, and a residual
// tolerance of 1e-6.
func NewArnoldi(options ...ArnoldiOptions) *Arnoldi {
	var opt ArnoldiOptions
	if len(options) > 0 {
		opt = options[0]
	}
	return &Arnoldi{opt: opt}
}

// Solve finds the k eigenpairs of lowest real part of the n-dimensional
// implicit operator applied by mv, starting the Krylov basis from v0 (an
// n x 1 vector, not required to be normalized). It returns the eigenvalues
// and the corresponding eigenvectors as columns of an n x k matrix, both
// sorted ascending by real part.
func (s *Arnoldi) Solve(n int, mv MatVec, v0 *tensor.Dense, k int) (*tensor.Dense, *tensor.Dense, error) {
	if k > n {
		k = n
	}
	m := s.opt.krylovDim(n)
	if m < k {
		m = k
	}
	tol := s.opt.tol()

	start := v0
	restarts := s.opt.maxRestarts()
	for restart := 0; restart < restarts; restart++ {
		basis, hess, err := arnoldiFactorization(n, mv, start, m)
		if err != nil {
			return nil, nil, errors.Wrap(err, "")
		}
		mUsed := len(basis)
		kk := min(k, mUsed)

		eig := NewEig()
		ritzVals, ritzVecs, err := eig.Solve(hess)
		if err != nil {
			return nil, nil, errors.Wrap(err, "")
		}

		vals := tensor.Zeros(kk)
		vecs := tensor.Zeros(n, kk)
		converged := true
		for j := 0; j < kk; j++ {
			lambda := ritzVals.At(j)
			ritz := ritzVectorFromBasis(basis, ritzVecs, j, n)
			if residualNorm(mv, ritz, lambda) > tol {
				converged = false
			}
			vals.SetAt([]int{j}, lambda)
			vecs.Set([]int{0, j}, ritz)
		}
		if converged || restart == restarts-1 {
			return vals, vecs, nil
		}
		start = ritzVectorFromBasis(basis, ritzVecs, 0, n)
	}
	return nil, nil, errors.Errorf("arnoldi: exceeded %d restarts without converging to tol=%v", restarts, tol)
}

// arnoldiFactorization builds an Arnoldi factorization A*V_m = V_m*H_m +
// f*e_m^T of at most m steps starting from v0, via modified Gram-Schmidt
// with one reorthogonalization pass. It stops early (a "happy breakdown") if
// the residual norm collapses before m steps are reached, in which case the
// returned basis/Hessenberg pair is smaller than m.
// See Lecture 11.1, Large Scale Eigenvalue Problems, Peter Arbenz.
func arnoldiFactorization(n int, mv MatVec, v0 *tensor.Dense, m int) ([]*tensor.Dense, *tensor.Dense, error) {
	v0n := v0.FrobeniusNorm()
	if v0n < 1e-12 {
		return nil, nil, errors.Errorf("arnoldi: zero starting vector")
	}
	basis := []*tensor.Dense{Mul(tensor.Zeros(n, 1), complex(1/v0n, 0), v0)}
	hess := tensor.Zeros(m, m)

	for j := 0; j < m && j < n; j++ {
		w := mv(basis[j])
		for pass := 0; pass < 2; pass++ {
			for i := 0; i <= j; i++ {
				c := dotVec(basis[i], w)
				if pass == 0 {
					hess.SetAt([]int{i, j}, hess.At(i, j)+c)
				}
				Add(w, w, Mul(tensor.Zeros(n, 1), -c, basis[i]))
			}
		}
		if j == m-1 {
			break
		}
		beta := w.FrobeniusNorm()
		if beta < 1e-10 {
			break
		}
		hess.SetAt([]int{j + 1, j}, complex(beta, 0))
		basis = append(basis, Mul(tensor.Zeros(n, 1), complex(1/beta, 0), w))
	}

	mUsed := len(basis)
	return basis, hess.Slice([][2]int{{0, mUsed}, {0, mUsed}}), nil
}

// ritzVectorFromBasis forms the j-th Ritz vector sum_i ritzVecs[i,j]*basis[i]
// and normalizes it.
func ritzVectorFromBasis(basis []*tensor.Dense, ritzVecs *tensor.Dense, j, n int) *tensor.Dense {
	out := tensor.Zeros(n, 1)
	for i, vi := range basis {
		c := ritzVecs.At(i, j)
		Add(out, out, Mul(tensor.Zeros(n, 1), c, vi))
	}
	norm := out.FrobeniusNorm()
	if norm > 1e-12 {
		Mul(out, complex(1/norm, 0), out)
	}
	return out
}

// residualNorm returns ||A*ritz - lambda*ritz||, the convergence diagnostic
// for a Ritz pair.
func residualNorm(mv MatVec, ritz *tensor.Dense, lambda complex64) float32 {
	n := ritz.Shape()[0]
	hv := mv(ritz)
	Add(hv, hv, Mul(tensor.Zeros(n, 1), -lambda, ritz))
	return hv.FrobeniusNorm()
}

// dotVec returns the conjugate-linear inner product <a,b> = sum_i conj(a_i)*b_i
// of two n x 1 column vectors.
func dotVec(a, b *tensor.Dense) complex64 {
	n := a.Shape()[0]
	var s complex64
	for i := 0; i < n; i++ {
		s += conj(a.At(i, 0)) * b.At(i, 0)
	}
	return s
}
