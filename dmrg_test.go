package dmrg

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/corvid-lab/dmrg/exactdiag"
)

func TestRunIsingMatchesExactDiagonalization(t *testing.T) {
	t.Parallel()
	cfg := NewConfig(10)
	cfg.MaxBondDim = []int{16}
	cfg.Tol = []float32{1e-8}
	cfg.MaxIter = []int{30}
	cfg.MinIter = []int{0}

	res, err := Run(cfg)
	if err != nil {
		t.Fatalf("%+v", err)
	}

	want, err := exactdiag.GroundEnergy(exactdiag.ModelIsing, exactdiag.Params{H: 1}, cfg.N, false)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if diff := abs32(res.Energy - want); diff > 1e-2 {
		t.Fatalf("energy=%v, exact=%v, diff=%v", res.Energy, want, diff)
	}
}

func TestRunRejectsMismatchedScheduleLengths(t *testing.T) {
	t.Parallel()
	cfg := NewConfig(6)
	cfg.Tol = []float32{1e-8} // length 1, MaxBondDim has length 3
	if _, err := Run(cfg); err == nil {
		t.Fatalf("expected a config error for mismatched schedule lengths")
	}
}

func TestRunRejectsNonpositiveN(t *testing.T) {
	t.Parallel()
	cfg := NewConfig(0)
	if _, err := Run(cfg); err == nil {
		t.Fatalf("expected a config error for N=0")
	}
}

func TestRunWithPersistPathResumesFromLastSavedStage(t *testing.T) {
	t.Parallel()
	dir, err := os.MkdirTemp("", "")
	if err != nil {
		t.Fatalf("%+v", err)
	}
	defer os.RemoveAll(dir)
	path := filepath.Join(dir, "run.db")

	cfg := NewConfig(6)
	cfg.MaxBondDim = []int{4, 8}
	cfg.Tol = []float32{1e-8, 1e-8}
	cfg.MaxIter = []int{10, 10}
	cfg.MinIter = []int{0, 0}
	cfg.PersistPath = path

	first, err := Run(cfg)
	if err != nil {
		t.Fatalf("%+v", err)
	}

	// Re-running with the same persisted path resumes at the last saved
	// stage, re-runs it on the restored state, and should reproduce the same
	// converged energy.
	second, err := Run(cfg)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if diff := abs32(second.Energy - first.Energy); diff > 1e-3 {
		t.Fatalf("resumed energy=%v, first run energy=%v, diff=%v", second.Energy, first.Energy, diff)
	}
}

func TestRunNStatesReportsSpectralGap(t *testing.T) {
	t.Parallel()
	cfg := NewConfig(6)
	cfg.MaxBondDim = []int{8}
	cfg.Tol = []float32{1e-8}
	cfg.MaxIter = []int{20}
	cfg.MinIter = []int{0}
	cfg.NStates = 2

	res, err := Run(cfg)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if real(res.SpectralGap) <= 0 {
		t.Fatalf("SpectralGap=%v, want a positive real gap", res.SpectralGap)
	}
}

func abs32(x complex64) float32 {
	r, i := real(x), imag(x)
	return float32(math.Sqrt(float64(r*r + i*i)))
}
