package exactdiag

import (
	"math"
	"testing"
)

func TestGroundEnergyIsingMatchesReference(t *testing.T) {
	t.Parallel()
	// Reference value from https://juliaphysics.github.io/PhysicsTutorials.jl/tutorials/general/quantum_ising/quantum_ising.html
	got, err := GroundEnergy(ModelIsing, Params{H: 1}, 8, false)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	want := -9.837951447459426
	if diff := math.Abs(real(complex128(got)) - want); diff > 1e-6 {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestGroundEnergyHeisenbergDimer(t *testing.T) {
	t.Parallel()
	// Two-site Heisenberg dimer H = j(SxSx+SySy+SzSz) has eigenvalues
	// {-3j, j, j, j} (singlet below the triplet) for the Pauli normalization.
	got, err := GroundEnergy(ModelHeisenberg, Params{J: 1}, 2, false)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	want := -3.0
	if diff := math.Abs(real(complex128(got)) - want); diff > 1e-6 {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestGroundEnergyTASEPStationaryStateAtZeroTilt(t *testing.T) {
	t.Parallel()
	// At s=0 the untilted TASEP generator is a genuine stochastic generator:
	// its dominant (highest real part) eigenvalue is exactly 0, the
	// stationary distribution.
	got, err := GroundEnergy(ModelTASEP, Params{Alpha: 0.5, Beta: 0.5}, 6, true)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if diff := math.Abs(real(complex128(got))); diff > 1e-5 {
		t.Fatalf("dominant eigenvalue = %v, want 0", got)
	}
}

func TestGroundEnergyRejectsOversizedChain(t *testing.T) {
	t.Parallel()
	if _, err := GroundEnergy(ModelIsing, Params{H: 1}, maxExactN+1, false); err == nil {
		t.Fatalf("expected a config error for n > maxExactN")
	}
}
