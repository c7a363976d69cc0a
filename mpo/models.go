package mpo

import (
	"math/cmplx"

	"github.com/fumin/tensor"
)

var (
	zero = [][]complex64{
		{0, 0},
		{0, 0},
	}
	identity = [][]complex64{
		{1, 0},
		{0, 1},
	}
	pauliX = [][]complex64{
		{0, 1},
		{1, 0},
	}
	pauliY = [][]complex64{
		{0, -1i},
		{1i, 0},
	}
	pauliZ = [][]complex64{
		{1, 0},
		{0, -1},
	}
	// occupation (n) and vacancy (1-n) in the occupation-number basis {|0>,|1>}
	// used by the driven-lattice-gas models.
	occupation = [][]complex64{
		{0, 0},
		{0, 1},
	}
	vacancy = [][]complex64{
		{1, 0},
		{0, 0},
	}
	// creationOp raises |0> to |1>, annihilationOp lowers |1> to |0>.
	creationOp = [][]complex64{
		{0, 0},
		{1, 0},
	}
	annihilationOp = [][]complex64{
		{0, 1},
		{0, 0},
	}
)

func scale(c complex64, x [][]complex64) [][]complex64 {
	out := make([][]complex64, len(x))
	for i, row := range x {
		out[i] = make([]complex64, len(row))
		for j, v := range row {
			out[i][j] = c * v
		}
	}
	return out
}

func add2(a, b [][]complex64) [][]complex64 {
	out := make([][]complex64, len(a))
	for i := range a {
		out[i] = make([]complex64, len(a[i]))
		for j := range a[i] {
			out[i][j] = a[i][j] + b[i][j]
		}
	}
	return out
}

// MagnetizationZ returns the MPO of the Z-axis total magnetization on a chain
// of n sites.
func MagnetizationZ(n int) Chain {
	w := tensor.T4([][][][]complex64{
		{identity, zero},
		{pauliZ, identity},
	})
	return newMPO(w, n)
}

// Ising returns the MPO Hamiltonian of the transverse-field Ising model on a
// chain of n sites with field strength h.
func Ising(n int, h complex64) Chain {
	w := tensor.T4([][][][]complex64{
		{identity, zero, zero},
		{pauliZ, zero, zero},
		{scale(-h, pauliX), scale(-1, pauliZ), identity},
	})
	return newMPO(w, n)
}

// Heisenberg returns the MPO Hamiltonian of the spin-1/2 Heisenberg model
// H = J * sum_i (Sx_i Sx_{i+1} + Sy_i Sy_{i+1} + Sz_i Sz_{i+1}) on a chain of
// n sites, built with the same finite-state-machine layout as Ising: one
// pending-bond channel per Pauli component.
func Heisenberg(n int, j complex64) Chain {
	w := tensor.T4([][][][]complex64{
		{identity, zero, zero, zero, zero},
		{pauliX, zero, zero, zero, zero},
		{pauliY, zero, zero, zero, zero},
		{pauliZ, zero, zero, zero, zero},
		{zero, scale(j, pauliX), scale(j, pauliY), scale(j, pauliZ), identity},
	})
	return newMPO(w, n)
}

// Occupation returns the single-site particle-number operator n.
func Occupation() *tensor.Dense { return tensor.T2(occupation) }

// Vacancy returns the single-site hole-number operator (1-n).
func Vacancy() *tensor.Dense { return tensor.T2(vacancy) }

// SpinX returns the single-site Pauli X operator.
func SpinX() *tensor.Dense { return tensor.T2(pauliX) }

// SpinY returns the single-site Pauli Y operator.
func SpinY() *tensor.Dense { return tensor.T2(pauliY) }

// SpinZ returns the single-site Pauli Z operator.
func SpinZ() *tensor.Dense { return tensor.T2(pauliZ) }

// TASEP returns the tilted Markov generator of the totally asymmetric simple
// exclusion process on a chain of n sites: left-boundary injection at rate
// alpha, right-boundary extraction at rate beta, uniform rightward bulk
// hopping at rate 1, and a large-deviation counting field s that weights
// each physical hop by exp(-s) (spec.md boundary scenario 1). The finite-
// state-machine virtual bond carries, in order: "done", "pending hop",
// "pending loss", "start" — the same layout as mpo.Ising generalized to two
// independent two-site terms (a hop and a correlated loss) instead of one.
// See Section 2, "Large deviations of the current in the TASEP", Derrida.
func TASEP(n int, alpha, beta, s complex64) Chain {
	return sep(n, alpha, beta, 0, 0, 1, 0, s)
}

// SEP returns the tilted Markov generator of the partially asymmetric simple
// exclusion process (bulk hopping right at rate p, left at rate q) on a
// chain of n sites, with left-boundary injection/extraction rates
// (alpha, delta) and right-boundary rates (gamma, beta), and large-deviation
// counting field s (rightward hops weighted exp(-s), leftward exp(s)).
// See Section 3, "Exact solution of a 1D asymmetric exclusion model using a matrix formulation", Derrida, Evans, Hakim, Pasquier.
func SEP(n int, alpha, beta, gamma, delta, p, q, s complex64) Chain {
	return sep(n, alpha, beta, gamma, delta, p, q, s)
}

func sep(n int, alpha, beta, gamma, delta, p, q, s complex64) Chain {
	fwdRate := p * complex64(cmplx.Exp(complex128(-s)))
	bwdRate := q * complex64(cmplx.Exp(complex128(s)))

	bidirectional := q != 0 || gamma != 0 || delta != 0
	var d int
	if bidirectional {
		d = 6
	} else {
		d = 4
	}

	// Channel layout: 0=done, 1=pending forward hop, 2=pending forward loss,
	// [3=pending backward hop, 4=pending backward loss if bidirectional],
	// last=start.
	start := d - 1
	pendFwdHop, pendFwdLoss := 1, 2
	pendBwdHop, pendBwdLoss := 3, 4

	w := make([][][][]complex64, d)
	for i := range w {
		w[i] = make([][][]complex64, d)
		for j := range w[i] {
			w[i][j] = zero
		}
	}
	w[0][0] = identity
	w[start][start] = identity
	w[start][pendFwdHop] = annihilationOp
	w[start][pendFwdLoss] = scale(-p, occupation)
	w[pendFwdHop][0] = scale(fwdRate, creationOp)
	w[pendFwdLoss][0] = vacancy
	if bidirectional {
		w[start][pendBwdHop] = creationOp
		w[start][pendBwdLoss] = scale(-q, vacancy)
		w[pendBwdHop][0] = scale(bwdRate, annihilationOp)
		w[pendBwdLoss][0] = occupation
	}

	wt := tensor.T4(w)
	chain := newMPO(wt, n)

	// Splice in the single-site boundary generators: alpha*sp + delta*sm -
	// alpha*vac - delta*n at site 0, beta*sm + gamma*sp - beta*n - gamma*vac
	// at site n-1. Both are onsite-only terms, so they land directly in the
	// "start" row / "done" column entry that the bulk matrix leaves at zero.
	left := add2(add2(scale(alpha, creationOp), scale(delta, annihilationOp)), add2(scale(-alpha, vacancy), scale(-delta, occupation)))
	right := add2(add2(scale(beta, annihilationOp), scale(gamma, creationOp)), add2(scale(-beta, occupation), scale(-gamma, vacancy)))

	chain[0] = addOnsite(chain[0], 0, 0, left)
	chain[n-1] = addOnsite(chain[n-1], chain[n-1].Shape()[LeftAxis]-1, 0, right)

	return chain
}

// addOnsite returns a copy of w with the onsite 2x2 block op added into the
// (leftIdx, rightIdx) virtual-bond entry.
func addOnsite(w *tensor.Dense, leftIdx, rightIdx int, op [][]complex64) *tensor.Dense {
	out := tensor.Zeros(w.Shape()...)
	for idx, v := range w.All() {
		out.SetAt(idx, v)
	}
	for s0 := range op {
		for s1 := range op[s0] {
			cur := out.At(leftIdx, rightIdx, s0, s1)
			out.SetAt([]int{leftIdx, rightIdx, s0, s1}, cur+op[s0][s1])
		}
	}
	return out
}
