package sweep

import (
	"testing"

	"github.com/corvid-lab/dmrg/eigensolver"
	"github.com/corvid-lab/dmrg/exactdiag"
	"github.com/corvid-lab/dmrg/mpo"
	"github.com/corvid-lab/dmrg/mps"
)

func runToGroundState(t *testing.T, w mpo.List, n, maxD int, polarity eigensolver.Polarity) Result {
	t.Helper()
	ms, err := mps.Generate(w, maxD)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	eng := New(w, ms)
	cfg := NewConfig().WithMaxBondDim(maxD).WithPolarity(polarity).WithMaxIter(30).WithTol(1e-8)
	res, err := eng.RunStage(cfg)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	return res
}

func TestIsingGroundEnergyMatchesExactDiagonalization(t *testing.T) {
	t.Parallel()
	const n = 10
	w := mpo.List{mpo.Ising(n, 1)}
	res := runToGroundState(t, w, n, 16, eigensolver.PolarityLowest)
	if !res.Converged {
		t.Fatalf("stage did not converge within the iteration budget: %+v", res.Diagnostics)
	}

	want, err := exactdiag.GroundEnergy(exactdiag.ModelIsing, exactdiag.Params{H: 1}, n, false)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if diff := abs32(res.Energy - want); diff > 1e-2 {
		t.Fatalf("DMRG energy=%v, exact=%v, diff=%v", res.Energy, want, diff)
	}
}

func TestHeisenbergDimerGroundEnergy(t *testing.T) {
	t.Parallel()
	const n = 2
	w := mpo.List{mpo.Heisenberg(n, 1)}
	res := runToGroundState(t, w, n, 4, eigensolver.PolarityLowest)
	if !res.Converged {
		t.Fatalf("stage did not converge: %+v", res.Diagnostics)
	}

	want, err := exactdiag.GroundEnergy(exactdiag.ModelHeisenberg, exactdiag.Params{J: 1}, n, false)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if diff := abs32(res.Energy - want); diff > 1e-2 {
		t.Fatalf("DMRG energy=%v, exact=%v, diff=%v", res.Energy, want, diff)
	}
}

func TestHeisenbergN4MatchesExactDiagonalization(t *testing.T) {
	t.Parallel()
	const n = 4
	w := mpo.List{mpo.Heisenberg(n, 1)}
	res := runToGroundState(t, w, n, 8, eigensolver.PolarityLowest)
	if !res.Converged {
		t.Fatalf("stage did not converge: %+v", res.Diagnostics)
	}

	want, err := exactdiag.GroundEnergy(exactdiag.ModelHeisenberg, exactdiag.Params{J: 1}, n, false)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if diff := abs32(res.Energy - want); diff > 1e-2 {
		t.Fatalf("DMRG energy=%v, exact=%v, diff=%v", res.Energy, want, diff)
	}
}

// TestTASEPStationaryEigenvalueMatchesExactDiagonalization checks spec.md
// section 8's driven-lattice-gas boundary scenario: at zero tilt, the
// dominant (PolarityHighest) eigenvalue of the TASEP generator is exactly 0,
// the stationary distribution's eigenvalue. Both the DMRG sweep and the
// exact-diagonalization comparator must find it to within tolerance.
func TestTASEPStationaryEigenvalueMatchesExactDiagonalization(t *testing.T) {
	t.Parallel()
	const n = 8
	w := mpo.List{mpo.TASEP(n, 0.5, 0.5, 0)}
	res := runToGroundState(t, w, n, 12, eigensolver.PolarityHighest)
	if !res.Converged {
		t.Fatalf("stage did not converge: %+v", res.Diagnostics)
	}

	want, err := exactdiag.GroundEnergy(exactdiag.ModelTASEP, exactdiag.Params{Alpha: 0.5, Beta: 0.5}, n, true)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if diff := abs32(res.Energy - want); diff > 1e-2 {
		t.Fatalf("DMRG eigenvalue=%v, exact=%v, diff=%v", res.Energy, want, diff)
	}
}

// TestSEPCurrentIsMonotonicInTiltField exercises spec.md section 8's
// current-monotonicity boundary scenario: increasing the counting field s
// that weights rightward hops by exp(-s) must not increase the dominant
// eigenvalue's growth rate relative to a smaller tilt, for a biased
// (p>q) driven process on a chain of 10 sites.
func TestSEPCurrentIsMonotonicInTiltField(t *testing.T) {
	t.Parallel()
	const n = 10
	run := func(s complex64) complex64 {
		w := mpo.List{mpo.SEP(n, 0.5, 0.5, 0.1, 0.1, 0.9, 0.1, s)}
		res := runToGroundState(t, w, n, 12, eigensolver.PolarityHighest)
		if !res.Converged {
			t.Fatalf("stage did not converge at s=%v: %+v", s, res.Diagnostics)
		}
		return res.Energy
	}

	low := run(0)
	high := run(0.1)
	if real(high) > real(low)+1e-3 {
		t.Fatalf("dominant eigenvalue increased with tilt: low(s=0)=%v high(s=0.1)=%v", low, high)
	}
}

func abs32(x complex64) float32 {
	r, i := real(x), imag(x)
	return sqrt32(r*r + i*i)
}
