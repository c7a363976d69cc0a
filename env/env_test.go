package env

import (
	"math"
	"testing"

	"github.com/corvid-lab/dmrg/mpo"
	"github.com/fumin/tensor"
)

func productState(spins []int) []*tensor.Dense {
	ms := make([]*tensor.Dense, len(spins))
	for i, s := range spins {
		t := tensor.Zeros(1, 2, 1)
		t.SetAt([]int{0, s, 0}, 1)
		ms[i] = t
	}
	return ms
}

func TestBuildFromRightMatchesUncoupledProductState(t *testing.T) {
	t.Parallel()
	// With h=0, the only term is -sum ZZ. |up,up> has ZZ eigenvalue +1 at the
	// single bond, so the total energy is exactly -1.
	w := mpo.List{mpo.Ising(2, 0)}
	ms := productState([]int{0, 0})

	c := New(w, 2)
	var bufs [2]*tensor.Dense
	for i := range bufs {
		bufs[i] = tensor.Zeros(1)
	}
	total := c.BuildFromRight(ms, bufs)

	if diff := abs(total - (-1)); diff > 1e-3 {
		t.Fatalf("total energy = %v, want -1", total)
	}
}

func TestBuildFromRightAntiparallelSpins(t *testing.T) {
	t.Parallel()
	// |up,down> has ZZ eigenvalue -1, so the total energy is +1.
	w := mpo.List{mpo.Ising(2, 0)}
	ms := productState([]int{0, 1})

	c := New(w, 2)
	var bufs [2]*tensor.Dense
	for i := range bufs {
		bufs[i] = tensor.Zeros(1)
	}
	total := c.BuildFromRight(ms, bufs)

	if diff := abs(total - 1); diff > 1e-3 {
		t.Fatalf("total energy = %v, want 1", total)
	}
}

func TestUpdateLeftAndBuildFromRightAgreeOnBoundaryValue(t *testing.T) {
	t.Parallel()
	w := mpo.List{mpo.Ising(4, 1)}
	ms := productState([]int{0, 1, 0, 1})
	n := len(ms)

	c := New(w, n)
	var bufs [2]*tensor.Dense
	for i := range bufs {
		bufs[i] = tensor.Zeros(1)
	}
	total := c.BuildFromRight(ms, bufs)

	for i := 0; i < n; i++ {
		c.UpdateLeft(ms, i, bufs)
	}
	// Closing the last left environment against the right boundary must
	// reproduce the same total energy BuildFromRight computed.
	last := c.Left(0, n-1, tensor.Zeros(1))
	if last.Shape()[0] != 1 || last.Shape()[1] != 1 || last.Shape()[2] != 1 {
		t.Fatalf("unexpected left-environment boundary shape %v", last.Shape())
	}
	if diff := abs(last.At(0, 0, 0) - total); diff > 1e-3 {
		t.Fatalf("L[N-1] = %v, BuildFromRight total = %v, want equal", last.At(0, 0, 0), total)
	}
}

func TestLeftAndRightReturnBoundaryOutsideChain(t *testing.T) {
	t.Parallel()
	w := mpo.List{mpo.Ising(3, 1)}
	c := New(w, 3)

	buf := tensor.Zeros(1)
	left := c.Left(0, -1, buf)
	if left.At(0, 0, 0) != 1 {
		t.Fatalf("Left(-1) = %v, want the unit boundary", left.At(0, 0, 0))
	}

	buf2 := tensor.Zeros(1)
	right := c.Right(0, 3, 3, buf2)
	if right.At(0, 0, 0) != 1 {
		t.Fatalf("Right(N) = %v, want the unit boundary", right.At(0, 0, 0))
	}
}

func TestChainsAndChainAccessors(t *testing.T) {
	t.Parallel()
	w := mpo.List{mpo.Ising(3, 1), mpo.MagnetizationZ(3)}
	c := New(w, 3)
	if c.Chains() != 2 {
		t.Fatalf("Chains() = %d, want 2", c.Chains())
	}
	if len(c.Chain(0)) != 3 || len(c.Chain(1)) != 3 {
		t.Fatalf("unexpected chain lengths: %d %d", len(c.Chain(0)), len(c.Chain(1)))
	}
}

func abs(x complex64) float32 {
	r, i := real(x), imag(x)
	return float32(math.Sqrt(float64(r*r + i*i)))
}
