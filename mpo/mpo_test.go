package mpo_test

import (
	"math"
	"testing"

	"github.com/corvid-lab/dmrg/env"
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

func energy(w mpo.List, ms []*tensor.Dense) complex64 {
	c := env.New(w, len(ms))
	var bufs [2]*tensor.Dense
	for i := range bufs {
		bufs[i] = tensor.Zeros(1)
	}
	return c.BuildFromRight(ms, bufs)
}

func TestIsingChainShapesHaveOpenBoundaries(t *testing.T) {
	t.Parallel()
	chain := mpo.Ising(5, 1)
	if len(chain) != 5 {
		t.Fatalf("len(chain)=%d, want 5", len(chain))
	}
	if chain[0].Shape()[mpo.LeftAxis] != 1 {
		t.Fatalf("first site left bond = %d, want 1", chain[0].Shape()[mpo.LeftAxis])
	}
	if chain[len(chain)-1].Shape()[mpo.RightAxis] != 1 {
		t.Fatalf("last site right bond = %d, want 1", chain[len(chain)-1].Shape()[mpo.RightAxis])
	}
	for i := 0; i < len(chain)-1; i++ {
		if chain[i].Shape()[mpo.RightAxis] != chain[i+1].Shape()[mpo.LeftAxis] {
			t.Fatalf("site %d right bond %d != site %d left bond %d", i, chain[i].Shape()[mpo.RightAxis], i+1, chain[i+1].Shape()[mpo.LeftAxis])
		}
	}
}

func TestIsingEnergyOnAllUpState(t *testing.T) {
	t.Parallel()
	w := mpo.List{mpo.Ising(4, 0)}
	ms := productState([]int{0, 0, 0, 0})
	got := energy(w, ms)
	if diff := abs(got - (-3)); diff > 1e-3 {
		t.Fatalf("energy=%v, want -3 (3 aligned bonds)", got)
	}
}

func TestIsingEnergyOnAlternatingState(t *testing.T) {
	t.Parallel()
	w := mpo.List{mpo.Ising(4, 0)}
	ms := productState([]int{0, 1, 0, 1})
	got := energy(w, ms)
	if diff := abs(got - 3); diff > 1e-3 {
		t.Fatalf("energy=%v, want 3 (3 anti-aligned bonds)", got)
	}
}

func TestMagnetizationZOnAllUpState(t *testing.T) {
	t.Parallel()
	w := mpo.List{mpo.MagnetizationZ(3)}
	ms := productState([]int{0, 0, 0})
	got := energy(w, ms)
	if diff := abs(got - 3); diff > 1e-3 {
		t.Fatalf("magnetization=%v, want 3", got)
	}
}

func TestMagnetizationZOnMixedState(t *testing.T) {
	t.Parallel()
	w := mpo.List{mpo.MagnetizationZ(3)}
	ms := productState([]int{0, 1, 0})
	got := energy(w, ms)
	if diff := abs(got - 1); diff > 1e-3 {
		t.Fatalf("magnetization=%v, want 1 (two up, one down)", got)
	}
}

func TestHeisenbergDimerEnergyOnTripletState(t *testing.T) {
	t.Parallel()
	// |up,up> is the m=+1 triplet member: Sx*Sx+Sy*Sy+Sz*Sz = 1 at j=1.
	w := mpo.List{mpo.Heisenberg(2, 1)}
	ms := productState([]int{0, 0})
	got := energy(w, ms)
	if diff := abs(got - 1); diff > 1e-3 {
		t.Fatalf("energy=%v, want 1", got)
	}
}

func TestTASEPOccupiedEmptyPairCarriesBulkLossOnDiagonal(t *testing.T) {
	t.Parallel()
	// A particle sitting left of a hole, under the TASEP generator, has a
	// nonzero row in the generator's "remove from here, add downstream"
	// structure: <occupied,empty| G |occupied,empty> must carry the bulk
	// loss rate -1 on its diagonal (spec.md section 3's sep bulk loss term).
	w := mpo.List{mpo.TASEP(2, 0.5, 0.5, 0)}
	ms := productState([]int{1, 0}) // site 0 occupied, site 1 empty
	got := energy(w, ms)
	if diff := abs(got - (-1)); diff > 1e-3 {
		t.Fatalf("diagonal generator entry=%v, want -1", got)
	}
}

func TestTASEPVacuumStateHasOnlyBoundaryInjection(t *testing.T) {
	t.Parallel()
	// The all-empty state has no bulk hop available; only left-boundary
	// injection (-alpha onsite) contributes to the diagonal.
	const alpha, beta = 0.3, 0.7
	w := mpo.List{mpo.TASEP(3, alpha, beta, 0)}
	ms := productState([]int{0, 0, 0})
	got := energy(w, ms)
	if diff := abs(got - complex64(-alpha)); diff > 1e-3 {
		t.Fatalf("diagonal generator entry=%v, want %v", got, -complex64(alpha))
	}
}

func abs(x complex64) float32 {
	r, i := real(x), imag(x)
	return float32(math.Sqrt(float64(r*r + i*i)))
}
