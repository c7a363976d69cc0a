package observable

import (
	"math/cmplx"
	"testing"

	"github.com/corvid-lab/dmrg/eigensolver"
	"github.com/corvid-lab/dmrg/env"
	"github.com/corvid-lab/dmrg/mpo"
	"github.com/corvid-lab/dmrg/mps"
	"github.com/fumin/tensor"
)

func TestEnergyAtSiteMatchesEigenvalue(t *testing.T) {
	t.Parallel()
	n := 6
	w := mpo.List{mpo.Ising(n, 1)}

	ms, err := mps.Generate(w, 4)
	if err != nil {
		t.Fatal(err)
	}
	var bufs3 [3]*tensor.Dense
	for i := range bufs3 {
		bufs3[i] = tensor.Zeros(1)
	}
	if err := mps.RightCanonicalize(ms, bufs3); err != nil {
		t.Fatal(err)
	}

	c := env.New(w, n)
	var cbufs [2]*tensor.Dense
	for i := range cbufs {
		cbufs[i] = tensor.Zeros(1)
	}
	c.BuildFromRight(ms, cbufs)

	opt := eigensolver.NewOptions()
	lambda, vec, _, err := eigensolver.Solve(c, 0, ms[0], opt)
	if err != nil {
		t.Fatal(err)
	}
	ms[0] = tensor.Zeros(vec.Shape()...).Set(make([]int, len(vec.Shape())), vec)

	got := EnergyAtSite(c, ms, 0)
	if diff := abs(got - lambda); diff > 1e-4 {
		t.Fatalf("EnergyAtSite=%v lambda=%v diff=%v", got, lambda, diff)
	}
}

func TestSiteExpectationMagnetization(t *testing.T) {
	t.Parallel()
	n := 5
	w := mpo.List{mpo.Ising(n, 0.01)}

	ms, err := mps.Generate(w, 1, mps.NewGenerateOptions().Policy(mps.SeedConstant).Constant(0))
	if err != nil {
		t.Fatal(err)
	}
	for i := range ms {
		ms[i].SetAt(zeroIdx(ms[i].Shape()), 1)
	}

	got := SiteExpectation(ms, n/2, mpo.SpinZ())
	if diff := abs(got - 1); diff > 1e-5 {
		t.Fatalf("got %v, want 1", got)
	}
}

func zeroIdx(shape []int) []int {
	idx := make([]int, len(shape))
	return idx
}

func abs(x complex64) float32 {
	return float32(cmplx.Abs(complex128(x)))
}
