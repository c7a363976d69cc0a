// Package env maintains the left/right environment blocks (L_i, R_i of
// spec.md section 3) that the sweep engine contracts into the local
// effective Hamiltonian at each site.
//
// References:
//   - The density-matrix renormalization group in the age of matrix product states, Ulrich Schollwock, Section 6.2
package env

import (
	"fmt"

	"github.com/corvid-lab/dmrg/mpo"
	"github.com/fumin/tensor"
)

const (
	mpsLeftAxis  = 0
	mpsUpAxis    = 1
	mpsRightAxis = 2
)

// Cache holds one L and one R environment tensor per chain of an mpo.List,
// per site. L[k][i] is the left environment built from sites 0..i against
// chain k; R[k][i] is the right environment built from sites i..N-1.
// Boundary scalars L[k][-1] = R[k][N] = 1 are represented implicitly (see
// Boundary below) rather than stored.
type Cache struct {
	w mpo.List
	L [][]*tensor.Dense
	R [][]*tensor.Dense
}

// New allocates a Cache sized for w's chains over n sites.
func New(w mpo.List, n int) *Cache {
	c := &Cache{w: w}
	c.L = make([][]*tensor.Dense, len(w))
	c.R = make([][]*tensor.Dense, len(w))
	for k := range w {
		c.L[k] = make([]*tensor.Dense, n)
		c.R[k] = make([]*tensor.Dense, n)
		for i := 0; i < n; i++ {
			c.L[k][i] = tensor.Zeros(1)
			c.R[k][i] = tensor.Zeros(1)
		}
	}
	return c
}

// Boundary returns the rank-3 {1,1,1} unit environment used at the open
// edges of the chain.
func Boundary(buf *tensor.Dense) *tensor.Dense {
	buf.Reset(1, 1, 1)
	for idx := range buf.All() {
		buf.SetAt(idx, 1)
	}
	return buf
}

// BuildFromRight fills every R[k][i] by sweeping from the right boundary
// inward, and returns the total energy <ms|w|ms> summed across chains.
// See Equation 193, Section 6.2, Schollwock.
func (c *Cache) BuildFromRight(ms []*tensor.Dense, bufs [2]*tensor.Dense) complex64 {
	var total complex64
	for k, chain := range c.w {
		boundary := tensor.Zeros(1)
		fi1 := Boundary(boundary)
		for i := len(ms) - 1; i >= 0; i-- {
			w := chainSite(chain, ms, i)
			fi1 = rExpression(c.R[k][i], fi1, w, ms[i], bufs[:])
		}
		if fi1.Shape()[0] != 1 || fi1.Shape()[1] != 1 || fi1.Shape()[2] != 1 {
			panic(fmt.Sprintf("env: bad boundary closure %#v", fi1.Shape()))
		}
		total += fi1.At(0, 0, 0)
	}
	return total
}

// UpdateLeft recomputes L[k][i] for every chain k from L[k][i-1] (or the
// boundary, if i == 0).
func (c *Cache) UpdateLeft(ms []*tensor.Dense, i int, bufs [2]*tensor.Dense) {
	for k, chain := range c.w {
		left := tensor.Zeros(1)
		fi1 := Boundary(left)
		if i-1 >= 0 {
			fi1 = c.L[k][i-1]
		}
		w := chainSite(chain, ms, i)
		lExpression(c.L[k][i], fi1, w, ms[i], bufs[:])
	}
}

// UpdateRight recomputes R[k][i] for every chain k from R[k][i+1] (or the
// boundary, if i == len(ms)-1).
func (c *Cache) UpdateRight(ms []*tensor.Dense, i int, bufs [2]*tensor.Dense) {
	for k, chain := range c.w {
		right := tensor.Zeros(1)
		fi1 := Boundary(right)
		if i+1 <= len(ms)-1 {
			fi1 = c.R[k][i+1]
		}
		w := chainSite(chain, ms, i)
		rExpression(c.R[k][i], fi1, w, ms[i], bufs[:])
	}
}

// ResetLeft marks L[k][i] as stale (to be rebuilt before its next use), for
// every chain k. Called whenever a normalization step modifies the tensor
// the environment was built from.
func (c *Cache) ResetLeft(i int) {
	for k := range c.w {
		c.L[k][i].Reset(1)
	}
}

// ResetRight marks R[k][i] as stale, for every chain k.
func (c *Cache) ResetRight(i int) {
	for k := range c.w {
		c.R[k][i].Reset(1)
	}
}

// Left returns the left environment tensor of chain k at site i, or the
// {1,1,1} boundary unit if i < 0.
func (c *Cache) Left(k, i int, buf *tensor.Dense) *tensor.Dense {
	if i < 0 {
		return Boundary(buf)
	}
	return c.L[k][i]
}

// Right returns the right environment tensor of chain k at site i, or the
// {1,1,1} boundary unit if i >= N.
func (c *Cache) Right(k, i, n int, buf *tensor.Dense) *tensor.Dense {
	if i >= n {
		return Boundary(buf)
	}
	return c.R[k][i]
}

// Chains returns the number of chains held by the cache.
func (c *Cache) Chains() int { return len(c.w) }

// Chain returns the list's k-th chain.
func (c *Cache) Chain(k int) mpo.Chain { return c.w[k] }

func chainSite(chain mpo.Chain, ms []*tensor.Dense, i int) *tensor.Dense {
	physD := ms[i].Shape()[mpsUpAxis]
	leftDim, rightDim := physD, physD
	if i > 0 {
		leftDim = ms[i-1].Shape()[mpsRightAxis]
	}
	rightDim = ms[i].Shape()[mpsRightAxis]
	return chain.SiteTensor(i, leftDim, rightDim, physD)
}

// lExpression contracts the left environment fi1 through site m under
// operator w, writing the result into fi and returning it.
// See Figure 38, Schollwock.
func lExpression(fi, fi1, w, m *tensor.Dense, bufs []*tensor.Dense) *tensor.Dense {
	fm := tensor.Product(bufs[0], fi1, m, [][2]int{{2, mpsLeftAxis}})
	wfm := tensor.Product(bufs[1], w, fm, [][2]int{{mpo.DownAxis, 2}, {mpo.LeftAxis, 1}})
	tensor.Product(fi, m.Conj(), wfm, [][2]int{{mpsLeftAxis, 2}, {mpsUpAxis, 1}})
	return fi
}

// rExpression contracts the right environment fi1 through site m under
// operator w, writing the result into fi and returning it.
func rExpression(fi, fi1, w, m *tensor.Dense, bufs []*tensor.Dense) *tensor.Dense {
	fm := tensor.Product(bufs[0], fi1, m, [][2]int{{2, mpsRightAxis}})
	wfm := tensor.Product(bufs[1], w, fm, [][2]int{{mpo.DownAxis, 3}, {mpo.RightAxis, 1}})
	tensor.Product(fi, m.Conj(), wfm, [][2]int{{mpsRightAxis, 2}, {mpsUpAxis, 1}})
	return fi
}
