// Package mps implements the Matrix Product State container: generation,
// the mixed-canonical gauge, and the controlled bond-dimension growth used
// between sweep stages.
//
// References:
//   - The density-matrix renormalization group in the age of matrix product states, Ulrich Schollwock
package mps

import (
	"fmt"
	"math"
	"math/cmplx"
	"math/rand/v2"
	"slices"

	"github.com/pkg/errors"

	dmrgerrors "github.com/corvid-lab/dmrg/errors"

	"github.com/corvid-lab/dmrg/mpo"
	"github.com/fumin/tensor"
)

const (
	// LeftAxis is the axis of a_{l-1} in Figure 6, Schollwock.
	LeftAxis  = 0
	UpAxis    = 1
	RightAxis = 2

	// epsilon is the convergence/degeneracy tolerance used throughout the
	// package.
	epsilon = 0x1p-23

	// isometryTolerance bounds ||Q^H Q - I|| after every gauge move, per
	// spec.md section 7's fatal-numeric-error contract.
	isometryTolerance = 1e-6
)

// State is a finite chain of MPS site tensors, each indexed (left, phys,
// right).
type State []*tensor.Dense

// SeedPolicy selects how Generate fills the initial guess state.
type SeedPolicy int

const (
	// SeedRandom fills every entry with a uniform random complex number in
	// [-1,1]x[-1,1], the teacher's RandMPS/randTensor default.
	SeedRandom SeedPolicy = iota
	SeedZeros
	SeedOnes
	// SeedConstant fills every entry with the value set by
	// GenerateOptions.Constant.
	SeedConstant
)

// GenerateOptions configures Generate.
type GenerateOptions struct {
	policy   SeedPolicy
	constant complex64
}

// NewGenerateOptions returns the default generate options (random seeding).
func NewGenerateOptions() GenerateOptions {
	return GenerateOptions{policy: SeedRandom}
}

// Policy sets the seed policy.
func (opt GenerateOptions) Policy(p SeedPolicy) GenerateOptions {
	opt.policy = p
	return opt
}

// Constant sets the fill value used by SeedConstant.
func (opt GenerateOptions) Constant(c complex64) GenerateOptions {
	opt.constant = c
	return opt
}

// Generate creates an initial-guess MPS for the given operator list, with
// bond dimension capped at maxD at every internal bond.
// See Section 4.1.4, Schollwock.
func Generate(w mpo.List, maxD int, options ...GenerateOptions) (State, error) {
	opt := NewGenerateOptions()
	if len(options) > 0 {
		opt = options[0]
	}
	if w.N() == 0 {
		return nil, errors.Errorf("empty operator list")
	}
	n := w.N()

	fill := func(shape ...int) *tensor.Dense {
		switch opt.policy {
		case SeedZeros:
			return tensor.Zeros(shape...)
		case SeedOnes:
			return constTensor(1, shape...)
		case SeedConstant:
			return constTensor(opt.constant, shape...)
		default:
			return randTensor(shape...)
		}
	}

	sites := make(State, 0, n)
	physD := w.PhysDim(0)
	leftD := physD
	sites = append(sites, fill(1, physD, min(physD, maxD)))

	for i := 1; i <= n-2; i++ {
		physD := w.PhysDim(i)
		var rightD int
		switch {
		case i < n/2:
			rightD = leftD * physD
		case i > n/2:
			rightD = leftD / physD
		case n%2 == 0:
			rightD = leftD / physD
		default:
			rightD = leftD
		}
		if rightD < 1 {
			rightD = 1
		}
		leftD = rightD

		prev := sites[i-1].Shape()
		sites = append(sites, fill(prev[RightAxis], physD, min(rightD, maxD)))
	}

	physD = w.PhysDim(n - 1)
	prev := sites[n-2].Shape()
	sites = append(sites, fill(prev[RightAxis], physD, 1))

	return sites, nil
}

// InnerProduct computes <x|y>.
// See Section 4.2.1, Schollwock.
func InnerProduct(x, y State, bufs [2]*tensor.Dense) complex64 {
	if len(x) != len(y) {
		panic(fmt.Sprintf("%d %d", len(x), len(y)))
	}

	f := ones(bufs[0], 1, 1)
	const fTopAxis, fBottomAxis = 0, 1
	for i, xi := range x {
		yi := y[i]
		fyi := tensor.Product(bufs[1], f, yi, [][2]int{{fBottomAxis, LeftAxis}})
		tensor.Product(f, xi.Conj(), fyi, [][2]int{{LeftAxis, fTopAxis}, {UpAxis, UpAxis}})
	}

	if !slices.Equal(f.Shape(), []int{1, 1}) {
		panic(fmt.Sprintf("%#v", f.Shape()))
	}
	return f.At(0, 0)
}

// RightCanonicalize brings every site but the first into right-canonical
// form, leaving the gauge at site 0.
// See Section 4.4.2, Schollwock.
func RightCanonicalize(ms State, bufs [3]*tensor.Dense) error {
	for i := len(ms) - 1; i >= 1; i-- {
		if err := MoveGaugeLeft(ms, i, bufs); err != nil {
			return err
		}
	}
	return nil
}

// RightCanonicalizeSeeded right-canonicalizes ms, then overwrites site 0 with
// the boundary-swapped copy of site N-1, a symmetry trick some models use to
// avoid seeding the first local solve from an arbitrarily large random
// tensor. Off by default (see SymmetrySeed); most callers should use plain
// RightCanonicalize.
func RightCanonicalizeSeeded(ms State, bufs [3]*tensor.Dense) error {
	if err := RightCanonicalize(ms, bufs); err != nil {
		return err
	}
	SymmetrySeed(ms)
	return nil
}

// SymmetrySeed replaces site 0 with site N-1's tensor, boundary axes
// swapped, when the two sites' boundary bond dimensions happen to line up;
// a no-op otherwise. Grounded in original_source/efficient/mps_opt.py's
// unconditional `self.M[0] = np.swapaxes(self.M[-1], 1, 2)` ("sloppy fix to
// prevent super large values in initial matrix"); spec.md section 9 notes
// this is a model-specific trick, not a general requirement, so it is never
// applied implicitly by RightCanonicalize.
func SymmetrySeed(ms State) {
	if len(ms) < 2 {
		return
	}
	last := ms[len(ms)-1]
	s := last.Shape()
	if s[LeftAxis] != ms[0].Shape()[RightAxis] || s[UpAxis] != ms[0].Shape()[UpAxis] {
		return
	}
	swapped := tensor.Zeros(s[RightAxis], s[UpAxis], s[LeftAxis])
	for idx, v := range last.All() {
		swapped.SetAt([]int{idx[RightAxis], idx[UpAxis], idx[LeftAxis]}, v)
	}
	resetCopy(ms[0], swapped)
}

// MoveGaugeLeft right-normalizes site i (LQ decomposition) and folds the
// remainder into site i-1, moving the gauge center from i to i-1. It returns
// a *dmrgerrors.NumericError if the resulting isometry fails its residual
// check or either site's tensor develops a NaN/Inf entry (spec.md section 7).
func MoveGaugeLeft(ms State, i int, bufs [3]*tensor.Dense) error {
	s := ms[i].Shape()
	dUp, dRight := s[UpAxis], s[RightAxis]

	mi := ms[i].Reshape(s[LeftAxis], dUp*dRight)
	q, lqbufs := bufs[0], [2]*tensor.Dense(bufs[1:])
	l := lq(q, mi, lqbufs)
	if err := checkIsometry(q, i); err != nil {
		return err
	}

	resetCopy(ms[i-1], tensor.Product(bufs[1], ms[i-1], l, axesRight))
	if err := checkFinite(ms[i-1], i-1); err != nil {
		return err
	}

	ms[i] = resetCopy(ms[i], q.H()).Reshape(-1, dUp, dRight)
	return checkFinite(ms[i], i)
}

var axesRight = [][2]int{{RightAxis, 0}}

// MoveGaugeRight left-normalizes site i (QR decomposition) and folds the
// remainder into site i+1, moving the gauge center from i to i+1. It returns
// a *dmrgerrors.NumericError if the resulting isometry fails its residual
// check or either site's tensor develops a NaN/Inf entry (spec.md section 7).
func MoveGaugeRight(ms State, i int, bufs [3]*tensor.Dense) error {
	s := ms[i].Shape()
	dLeft, dUp := s[LeftAxis], s[UpAxis]

	mi := ms[i].Reshape(dLeft*dUp, s[RightAxis])
	q, qrbufs := bufs[0], [2]*tensor.Dense(bufs[1:])
	r := tensor.QR(q, mi, qrbufs)
	if err := checkIsometry(q, i); err != nil {
		return err
	}

	axes := [][2]int{{1, LeftAxis}}
	resetCopy(ms[i+1], tensor.Product(bufs[1], r, ms[i+1], axes))
	if err := checkFinite(ms[i+1], i+1); err != nil {
		return err
	}

	ms[i] = resetCopy(ms[i], q).Reshape(dLeft, dUp, -1)
	return checkFinite(ms[i], i)
}

// checkIsometry verifies ||Q^H Q - I|| <= isometryTolerance for the
// economy-QR factor q (m x n, n <= m, orthonormal columns by construction of
// QR/LQ), raising a *dmrgerrors.NumericError at site otherwise.
func checkIsometry(q *tensor.Dense, site int) error {
	n := q.Shape()[1]
	prod := tensor.MatMul(tensor.Zeros(n, n), q.H(), q)
	var sumSq float32
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			want := complex64(0)
			if i == j {
				want = 1
			}
			d := prod.At(i, j) - want
			sumSq += real(d)*real(d) + imag(d)*imag(d)
		}
	}
	residual := float32(math.Sqrt(float64(sumSq)))
	if residual > isometryTolerance {
		return dmrgerrors.NewNumericError(site, "isometry residual %v exceeds tolerance %v after gauge move", residual, isometryTolerance)
	}
	return nil
}

// checkFinite raises a *dmrgerrors.NumericError at site if t holds any
// NaN/Inf entry, the other half of spec.md section 7's fatal-numeric-error
// contract.
func checkFinite(t *tensor.Dense, site int) error {
	for _, v := range t.All() {
		c := complex128(v)
		if cmplx.IsNaN(c) || cmplx.IsInf(c) {
			return dmrgerrors.NewNumericError(site, "non-finite entry %v after gauge move", v)
		}
	}
	return nil
}

// IncreaseBondDimension returns a copy of ms with every internal bond
// dimension grown towards newMaxD (never shrunk), placing the old tensors
// in the leading corner of zero-padded tensors. When noiseAmplitude > 0, the
// newly-opened subspace is seeded with small random noise so the next local
// eigensolve is not started from an exactly-orthogonal, all-zero subspace.
// See spec.md section 9, "bond-growth noise injection".
func IncreaseBondDimension(ms State, newMaxD int, noiseAmplitude float32) State {
	out := make(State, len(ms))
	for i, t := range ms {
		s := t.Shape()
		newRight := s[RightAxis]
		if i < len(ms)-1 && newRight < newMaxD {
			newRight = newMaxD
		}
		newLeft := s[LeftAxis]
		if i > 0 {
			newLeft = out[i-1].Shape()[RightAxis]
		}

		grown := tensor.Zeros(newLeft, s[UpAxis], newRight)
		if noiseAmplitude > 0 {
			for idx := range grown.All() {
				v := complex(rand.Float32()*2-1, rand.Float32()*2-1) * complex(noiseAmplitude, 0)
				grown.SetAt(idx, v)
			}
		}
		grown.Set([]int{0, 0, 0}, t)
		out[i] = grown
	}
	return out
}

func lq(q, a *tensor.Dense, bufs [2]*tensor.Dense) *tensor.Dense {
	r := tensor.QR(q, a.H(), bufs)
	return r.H()
}

func resetCopy(dst, src *tensor.Dense) *tensor.Dense {
	shape := src.Shape()
	zeroOffset := make([]int, len(shape))
	dst.Reset(shape...).Set(zeroOffset, src)
	return dst
}

func ones(t *tensor.Dense, shape ...int) *tensor.Dense {
	t.Reset(shape...)
	for idx := range t.All() {
		t.SetAt(idx, 1)
	}
	return t
}

func constTensor(v complex64, shape ...int) *tensor.Dense {
	t := tensor.Zeros(shape...)
	for idx := range t.All() {
		t.SetAt(idx, v)
	}
	return t
}

func randTensor(shape ...int) *tensor.Dense {
	t := tensor.Zeros(shape...)
	for idx := range t.All() {
		v := complex(rand.Float32()*2-1, rand.Float32()*2-1)
		t.SetAt(idx, v)
	}
	return t
}

func abs(x complex64) float32 {
	return float32(cmplx.Abs(complex128(x)))
}
