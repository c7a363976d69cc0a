// Package observable implements the single-site expectation-value and
// energy-at-site contractions of spec.md section 4.6, reusing the MPS and
// environment cache the sweep engine already maintains.
//
// References:
//   - The density-matrix renormalization group in the age of matrix product states, Ulrich Schollwock, Section 6.2
package observable

import (
	"github.com/corvid-lab/dmrg/env"
	"github.com/corvid-lab/dmrg/mpo"
	"github.com/corvid-lab/dmrg/mps"
	"github.com/fumin/tensor"
)

// SiteExpectation returns <O> = T_s* . O . T_s contracted on the physical and
// bond indices of site i, valid for any gauge placement (the bond indices
// are only fully traced out, giving the correct normalized expectation value,
// when the gauge sits at i; callers elsewhere in the chain get the
// unnormalized overlap instead).
// See spec.md section 4.6.
func SiteExpectation(ms mps.State, i int, op *tensor.Dense) complex64 {
	t := ms[i]
	tc := t.Conj()

	// op is (sigma', sigma): row index sigma' (bra), column index sigma
	// (ket), the usual matrix-element convention.
	ov := tensor.Product(tensor.Zeros(1), op, t, [][2]int{{1, mps.UpAxis}})
	// ov: (sigma', aLeft, aRight)
	res := tensor.Product(tensor.Zeros(1), tc, ov,
		[][2]int{{mps.LeftAxis, 1}, {mps.UpAxis, 0}, {mps.RightAxis, 2}})
	return res.At()
}

// EnergyAtSite computes <H>_i = L_i . W_i . R_{i+1} . T_i* . T_i (spec.md
// section 4.6) from cache c's current environments, the operator list w, and
// the site tensor ms[i]. When the gauge sits exactly at i, this equals the
// local eigenvalue lambda_i returned by eigensolver.Solve to round-off; used
// as the solver's self-consistency check.
func EnergyAtSite(c *env.Cache, ms mps.State, i int) complex64 {
	n := len(ms)
	t := ms[i]
	tc := t.Conj()

	var total complex64
	for k := 0; k < c.Chains(); k++ {
		chain := c.Chain(k)
		lBuf, rBuf := tensor.Zeros(1), tensor.Zeros(1)
		left := c.Left(k, i-1, lBuf)
		right := c.Right(k, i+1, n, rBuf)

		physD := t.Shape()[mps.UpAxis]
		leftDim, rightDim := left.Shape()[2], t.Shape()[mps.RightAxis]
		w := chain.SiteTensor(i, leftDim, rightDim, physD)

		// left: (a'L, b, aL); contract aL with T_i's left bond.
		lt := tensor.Product(tensor.Zeros(1), left, t, [][2]int{{2, mps.LeftAxis}})
		// lt: (a'L, b, sigma, aR)
		wlt := tensor.Product(tensor.Zeros(1), w, lt,
			[][2]int{{mpo.LeftAxis, 1}, {mpo.DownAxis, 2}})
		// wlt: (bR, sigma', a'L, aR)
		rtc := tensor.Product(tensor.Zeros(1), tc, wlt,
			[][2]int{{mps.LeftAxis, 2}, {mps.UpAxis, 1}})
		// rtc: (a'R, bR, aR), matching right's (a'R, b, aR) shape exactly.
		closed := tensor.Product(tensor.Zeros(1), rtc, right,
			[][2]int{{0, 0}, {1, 1}, {2, 2}})
		total += closed.At()
	}
	return total
}
