package meanfield

import (
	"testing"

	"github.com/corvid-lab/dmrg/exactdiag"
)

func TestEstimateReturnsNormalizedVector(t *testing.T) {
	t.Parallel()
	lambda, vec, err := Estimate(exactdiag.ModelIsing, exactdiag.Params{H: 1}, 2)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	_ = lambda
	if len(vec) != 1<<2 {
		t.Fatalf("len(vec)=%d, want %d", len(vec), 1<<2)
	}
	var norm float32
	for _, v := range vec {
		norm += real(v)*real(v) + imag(v)*imag(v)
	}
	if diff := norm - 1; diff < -1e-3 || diff > 1e-3 {
		t.Fatalf("||vec||^2 = %v, want 1", norm)
	}
}

func TestEstimateRejectsOversizedChain(t *testing.T) {
	t.Parallel()
	if _, _, err := Estimate(exactdiag.ModelIsing, exactdiag.Params{H: 1}, 100); err == nil {
		t.Fatalf("expected a config error for an oversized chain")
	}
}
