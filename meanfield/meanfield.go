// Package meanfield is a coarse, non-diagonalizing ground-energy estimator
// used to sanity-check a DMRG run before committing to a full sweep: it runs
// the teacher's gradient-descent loss (exactdiag/mat.GradientDescent) against
// the same full generator matrix exactdiag.Generator builds, so it shares
// the DMRG's notion of a model's Hamiltonian/generator exactly, while
// avoiding the O(2^n) dense eigendecomposition GroundEnergy performs.
//
// Grounded on the teacher's qising.go GradientDescent / gerschgorin pair,
// moved into exactdiag/mat as the adapted mat.GradientDescent in this
// module's section 4.8 expansion.
package meanfield

import (
	"github.com/corvid-lab/dmrg/exactdiag"
	"github.com/corvid-lab/dmrg/exactdiag/mat"
)

// Estimate runs the gradient-descent loss minimization against model's full
// generator on a chain of n sites and returns an approximate ground
// eigenvalue and its (unit-normalized) eigenvector, laid out in the same
// 2^n-dimensional basis exactdiag.GroundEnergy's generator uses.
func Estimate(model exactdiag.Model, params exactdiag.Params, n int) (float32, []complex64, error) {
	gen, err := exactdiag.Generator(model, params, n)
	if err != nil {
		return 0, nil, err
	}
	lambda, vec := mat.GradientDescent(gen)
	return lambda, vec, nil
}
