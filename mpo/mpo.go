// Package mpo implements Matrix Product Operators: the finite-state-machine
// encoding of a sum of local operator chains (Hamiltonians, or, for the
// driven-lattice-gas models, Markov generators) as a rank-4 tensor per site.
//
// References:
//   - The density-matrix renormalization group in the age of matrix product states, Ulrich Schollwock
//   - Matrix product operator representations, Crosswhite, Doherty, Vidal
package mpo

import "github.com/fumin/tensor"

const (
	// LeftAxis is the axis of b_{l-1} in Figure 35, Schollwock.
	LeftAxis  = 0
	RightAxis = 1
	UpAxis    = 2
	DownAxis  = 3
)

// Chain is the site tensors of a single operator chain. A nil entry means
// "identity at this site" (spec.md section 3, "An MPO may be a list of
// MPOs"): the effective local dimension is inferred from neighboring sites,
// and contractions skip straight through.
type Chain []*tensor.Dense

// List represents a sum of chains, e.g. a Hamiltonian built from several
// independently-constructed terms. Every chain in a List must have the same
// length and the same physical dimension at each site.
type List []Chain

// N returns the number of sites of a list's chains.
func (l List) N() int {
	if len(l) == 0 {
		return 0
	}
	return len(l[0])
}

// PhysDim returns the physical (local Hilbert space) dimension at site i,
// found by looking through the list for a non-identity tensor at that site.
func (l List) PhysDim(i int) int {
	for _, c := range l {
		if c[i] != nil {
			return c[i].Shape()[DownAxis]
		}
	}
	panic("mpo: every chain is identity at site, cannot infer physical dimension")
}

// SiteTensor returns the site tensor of chain c at site i, synthesizing an
// identity tensor of the given virtual bond dimension when the site is nil.
func (c Chain) SiteTensor(i, leftDim, rightDim, physDim int) *tensor.Dense {
	if c[i] != nil {
		return c[i]
	}
	w := tensor.Zeros(leftDim, rightDim, physDim, physDim)
	for b := 0; b < leftDim && b < rightDim; b++ {
		for s := 0; s < physDim; s++ {
			w.SetAt([]int{b, b, s, s}, 1)
		}
	}
	return w
}

// newMPO builds a uniform-bulk operator chain of length n from the virtual-bond
// tensor w (shape d x d x physD x physD): the first site keeps only the last
// row of w (the chain enters the finite-state machine at its start state),
// the last site keeps only the first column (the chain must have finished by
// the last site), and every interior site reuses w directly.
// See Section 6, "Matrix product operator representations", Crosswhite & Doherty & Vidal.
func newMPO(w *tensor.Dense, n int) Chain {
	d0, d1, d2, d3 := w.Shape()[0], w.Shape()[1], w.Shape()[2], w.Shape()[3]
	chain := make(Chain, 0, n)

	chain = append(chain, w.Slice([][2]int{{d0 - 1, d0}, {0, d1}, {0, d2}, {0, d3}}))
	for i := 0; i < n-2; i++ {
		chain = append(chain, w)
	}
	chain = append(chain, w.Slice([][2]int{{0, d0}, {0, 1}, {0, d2}, {0, d3}}))

	return chain
}
