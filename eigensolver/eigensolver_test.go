package eigensolver

import (
	"math"
	"testing"

	"github.com/corvid-lab/dmrg/env"
	"github.com/corvid-lab/dmrg/mpo"
	"github.com/corvid-lab/dmrg/mps"
	"github.com/fumin/tensor"
)

func buildCache(t *testing.T, n, maxD int) (*env.Cache, mps.State) {
	t.Helper()
	w := mpo.List{mpo.Ising(n, 1)}
	ms, err := mps.Generate(w, maxD)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	var bufs3 [3]*tensor.Dense
	for i := range bufs3 {
		bufs3[i] = tensor.Zeros(1)
	}
	if err := mps.RightCanonicalize(ms, bufs3); err != nil {
		t.Fatalf("%+v", err)
	}

	c := env.New(w, n)
	var cbufs [2]*tensor.Dense
	for i := range cbufs {
		cbufs[i] = tensor.Zeros(1)
	}
	c.BuildFromRight(ms, cbufs)
	return c, ms
}

func TestSolveArnoldiMatchesExact(t *testing.T) {
	t.Parallel()
	c, ms := buildCache(t, 6, 4)

	exactOpt := NewOptions()
	exactOpt.Algorithm = AlgorithmExact
	lambdaExact, _, _, err := Solve(c, 0, ms[0], exactOpt)
	if err != nil {
		t.Fatalf("%+v", err)
	}

	arnoldiOpt := NewOptions()
	lambdaArnoldi, _, tracked, err := Solve(c, 0, ms[0], arnoldiOpt)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if !tracked {
		t.Fatalf("expected tracked=true when Preserve is unset")
	}
	if diff := abs32complex(lambdaArnoldi - lambdaExact); diff > 1e-3 {
		t.Fatalf("arnoldi lambda=%v exact lambda=%v diff=%v", lambdaArnoldi, lambdaExact, diff)
	}
}

func TestSolveDavidsonMatchesExact(t *testing.T) {
	t.Parallel()
	c, ms := buildCache(t, 6, 4)

	exactOpt := NewOptions()
	exactOpt.Algorithm = AlgorithmExact
	lambdaExact, _, _, err := Solve(c, 0, ms[0], exactOpt)
	if err != nil {
		t.Fatalf("%+v", err)
	}

	davidsonOpt := NewOptions()
	davidsonOpt.Algorithm = AlgorithmDavidson
	lambdaDavidson, _, tracked, err := Solve(c, 0, ms[0], davidsonOpt)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if !tracked {
		t.Fatalf("davidson should always report tracked=true")
	}
	if diff := abs32complex(lambdaDavidson - lambdaExact); diff > 1e-3 {
		t.Fatalf("davidson lambda=%v exact lambda=%v diff=%v", lambdaDavidson, lambdaExact, diff)
	}
}

func TestPolarityHighestNegatesLowest(t *testing.T) {
	t.Parallel()
	c, ms := buildCache(t, 6, 4)

	lowOpt := NewOptions()
	lowOpt.Algorithm = AlgorithmExact
	lowOpt.Polarity = PolarityLowest
	lambdaLow, _, _, err := Solve(c, 0, ms[0], lowOpt)
	if err != nil {
		t.Fatalf("%+v", err)
	}

	highOpt := NewOptions()
	highOpt.Algorithm = AlgorithmExact
	highOpt.Polarity = PolarityHighest
	lambdaHigh, _, _, err := Solve(c, 0, ms[0], highOpt)
	if err != nil {
		t.Fatalf("%+v", err)
	}

	if real(lambdaHigh) < real(lambdaLow) {
		t.Fatalf("highest-polarity eigenvalue %v should be >= lowest-polarity eigenvalue %v", lambdaHigh, lambdaLow)
	}
}

func TestSolvePreserveTracksGuess(t *testing.T) {
	t.Parallel()
	c, ms := buildCache(t, 6, 4)

	opt := NewOptions()
	opt.Algorithm = AlgorithmExact
	opt.Preserve = true
	_, vec, tracked, err := Solve(c, 0, ms[0], opt)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if !tracked {
		t.Fatalf("expected the ground-state guess to remain tracked")
	}
	if vec.Shape()[0] != ms[0].Shape()[0] {
		t.Fatalf("returned vector shape %#v does not match guess shape %#v", vec.Shape(), ms[0].Shape())
	}
}

func TestPickByOverlapReportsUntrackedOnOrthogonalGuess(t *testing.T) {
	t.Parallel()
	n := 4
	vals := tensor.Zeros(n)
	vecs := tensor.Zeros(n, n)
	for i := 0; i < n; i++ {
		vals.SetAt([]int{i}, complex(float32(i), 0))
		vecs.SetAt([]int{i, i}, 1)
	}

	// guess orthogonal to every basis vector held in vecs' candidate pool by
	// construction is impossible for a full basis, so instead use a guess
	// with vanishingly small overlap against all candidates.
	guess := tensor.Zeros(n, 1)
	guess.SetAt([]int{0, 0}, complex(1e-3, 0))
	guess.SetAt([]int{1, 0}, complex(1e-3, 0))

	_, _, tracked := pickByOverlap(vals, vecs, guess)
	if tracked {
		t.Fatalf("expected tracked=false for a near-orthogonal guess")
	}
}

func abs32complex(x complex64) float32 {
	r, i := real(x), imag(x)
	return float32(math.Sqrt(float64(r*r + i*i)))
}
