// Package sweep implements the DMRG state machine: per-site local solve,
// truncation, gauge shift, environment update, convergence check, and the
// outer multi-stage bond-dimension schedule of spec.md section 4.5.
//
// References:
//   - The density-matrix renormalization group in the age of matrix product states, Ulrich Schollwock, Section 6.3
package sweep

import (
	"math"

	"github.com/pkg/errors"

	dmrgerrors "github.com/corvid-lab/dmrg/errors"

	"github.com/corvid-lab/dmrg/eigensolver"
	"github.com/corvid-lab/dmrg/env"
	"github.com/corvid-lab/dmrg/linalg"
	"github.com/corvid-lab/dmrg/mpo"
	"github.com/corvid-lab/dmrg/mps"
	"github.com/fumin/tensor"
)

// Config configures a single bond-dimension stage of the sweep engine.
type Config struct {
	Stage          int
	MaxBondDim     int
	Tol            float32
	MaxIter        int
	MinIter        int
	NStates        int
	TargetState    int
	Algorithm      eigensolver.Algorithm
	Polarity       eigensolver.Polarity
	PreserveState  bool
	Orthonormalize bool
	NoiseAmplitude float32
}

// NewConfig returns the spec's default single-stage configuration: bond
// dimension 10, tolerance 1e-10, 10 iterations, Arnoldi, lowest polarity, a
// single tracked state.
func NewConfig() Config {
	return Config{
		MaxBondDim:  10,
		Tol:         1e-10,
		MaxIter:     10,
		MinIter:     0,
		NStates:     1,
		TargetState: 0,
		Algorithm:   eigensolver.AlgorithmArnoldi,
		Polarity:    eigensolver.PolarityLowest,
	}
}

func (c Config) WithStage(n int) Config                { c.Stage = n; return c }
func (c Config) WithMaxBondDim(m int) Config           { c.MaxBondDim = m; return c }
func (c Config) WithTol(tol float32) Config            { c.Tol = tol; return c }
func (c Config) WithMaxIter(n int) Config              { c.MaxIter = n; return c }
func (c Config) WithMinIter(n int) Config              { c.MinIter = n; return c }
func (c Config) WithNStates(n int) Config              { c.NStates = n; return c }
func (c Config) WithTargetState(n int) Config          { c.TargetState = n; return c }
func (c Config) WithAlgorithm(a eigensolver.Algorithm) Config { c.Algorithm = a; return c }
func (c Config) WithPolarity(p eigensolver.Polarity) Config   { c.Polarity = p; return c }
func (c Config) WithPreserveState(b bool) Config       { c.PreserveState = b; return c }
func (c Config) WithOrthonormalize(b bool) Config      { c.Orthonormalize = b; return c }
func (c Config) WithNoiseAmplitude(a float32) Config   { c.NoiseAmplitude = a; return c }

// Result is the outcome of one bond-dimension stage.
type Result struct {
	Energy                complex64
	SpectralGap           complex64
	EntanglementEntropy   float32
	EntanglementSpectrum  []float32
	Converged             bool
	Iterations            int
	Diagnostics           []error
}

// Engine owns the MPS, MPO list, and environment cache for the lifetime of a
// run, per spec.md section 5's shared-resource policy.
type Engine struct {
	w  mpo.List
	ms mps.State
	c  *env.Cache
}

// New allocates a sweep engine for operator list w and initial state ms.
// ms need not be in canonical form: RunStage right-canonicalizes it (gauge
// at site 0) after growing its bonds and before the first sweep.
func New(w mpo.List, ms mps.State) *Engine {
	return &Engine{w: w, ms: ms, c: env.New(w, w.N())}
}

// State returns the engine's current MPS.
func (e *Engine) State() mps.State { return e.ms }

// Cache returns the engine's environment cache, built fresh at the start of
// the most recent RunStage call. Exposed so a caller wanting a second
// eigenvector (e.g. dmrg.Run's spectral-gap report) can run an extra
// eigensolver.SolveMulti against the converged state without re-deriving the
// environments sweep already built.
func (e *Engine) Cache() *env.Cache { return e.c }

// RunStage grows the MPS to cfg.MaxBondDim (if needed), then sweeps
// right/left pairs until convergence or cfg.MaxIter, per spec.md section
// 4.5's state machine.
func (e *Engine) RunStage(cfg Config) (Result, error) {
	n := len(e.ms)

	grown := mps.IncreaseBondDimension(e.ms, cfg.MaxBondDim, cfg.NoiseAmplitude)
	e.ms = grown
	e.c = env.New(e.w, n)

	bufs3 := [3]*tensor.Dense{tensor.Zeros(1), tensor.Zeros(1), tensor.Zeros(1)}
	if err := mps.RightCanonicalize(e.ms, bufs3); err != nil {
		return Result{}, errors.Wrap(err, "")
	}

	cbufs2 := [2]*tensor.Dense{tensor.Zeros(1), tensor.Zeros(1)}
	e.c.BuildFromRight(e.ms, cbufs2)

	res := Result{}
	var prevEnergy, lastDelta complex64
	haveEnergy := false

	for iter := 0; iter < cfg.MaxIter; iter++ {
		if err := e.rightSweep(cfg, &res); err != nil {
			return res, errors.Wrap(err, "")
		}
		if err := e.leftSweep(cfg, &res); err != nil {
			return res, errors.Wrap(err, "")
		}

		// <ms|H|ms> is gauge-invariant and must equal lambda_s at whichever
		// site currently holds the gauge to round-off (spec.md section
		// 4.6); BuildFromRight both gives the convergence criterion and
		// refreshes every R environment for the next right sweep.
		energy := e.c.BuildFromRight(e.ms, cbufs2)

		res.Iterations = iter + 1
		res.Energy = energy
		if haveEnergy {
			delta := energy - prevEnergy
			lastDelta = delta
			if absC(delta) < cfg.Tol*max32(absC(energy), 1) && iter+1 >= cfg.MinIter {
				res.Converged = true
				prevEnergy = energy
				break
			}
		}
		prevEnergy = energy
		haveEnergy = true
	}
	if !res.Converged {
		res.Diagnostics = append(res.Diagnostics, &dmrgerrors.NonConvergence{
			Stage: cfg.Stage, Iterations: res.Iterations, Delta: lastDelta, Tol: cfg.Tol,
		})
	}
	return res, nil
}

func (e *Engine) rightSweep(cfg Config, res *Result) error {
	n := len(e.ms)
	bufs4 := [4]*tensor.Dense{tensor.Zeros(1), tensor.Zeros(1), tensor.Zeros(1), tensor.Zeros(1)}
	cbufs2 := [2]*tensor.Dense{tensor.Zeros(1), tensor.Zeros(1)}

	for i := 0; i < n-1; i++ {
		opt := eigensolver.Options{Algorithm: cfg.Algorithm, Polarity: cfg.Polarity, Tol: 1e-5, Preserve: cfg.PreserveState}

		if cfg.NStates > 1 {
			if err := e.solveRDM(i, cfg, opt, bufs4); err != nil {
				return err
			}
		} else {
			lambda, vec, tracked, err := eigensolver.Solve(e.c, i, e.ms[i], opt)
			if err != nil {
				return err
			}
			if !tracked {
				res.Diagnostics = append(res.Diagnostics, &dmrgerrors.StateTrackingEvent{Site: i})
			}
			e.ms[i] = resetInto(e.ms[i], vec)
			_ = lambda
		}

		entropy, spectrum := mps.TruncateRight(e.ms, i, cfg.MaxBondDim, bufs4)
		res.EntanglementEntropy = entropy
		res.EntanglementSpectrum = spectrum

		e.c.ResetLeft(i)
		e.c.UpdateLeft(e.ms, i, cbufs2)
	}
	return nil
}

func (e *Engine) leftSweep(cfg Config, res *Result) error {
	n := len(e.ms)
	bufs4 := [4]*tensor.Dense{tensor.Zeros(1), tensor.Zeros(1), tensor.Zeros(1), tensor.Zeros(1)}
	cbufs2 := [2]*tensor.Dense{tensor.Zeros(1), tensor.Zeros(1)}

	for i := n - 1; i >= 1; i-- {
		opt := eigensolver.Options{Algorithm: cfg.Algorithm, Polarity: cfg.Polarity, Tol: 1e-5, Preserve: cfg.PreserveState}

		if cfg.NStates > 1 {
			if err := e.solveRDM(i, cfg, opt, bufs4); err != nil {
				return err
			}
		} else {
			lambda, vec, tracked, err := eigensolver.Solve(e.c, i, e.ms[i], opt)
			if err != nil {
				return err
			}
			if !tracked {
				res.Diagnostics = append(res.Diagnostics, &dmrgerrors.StateTrackingEvent{Site: i})
			}
			e.ms[i] = resetInto(e.ms[i], vec)
			_ = lambda
		}

		entropy, spectrum := mps.TruncateLeft(e.ms, i, cfg.MaxBondDim, bufs4)
		res.EntanglementEntropy = entropy
		res.EntanglementSpectrum = spectrum

		e.c.ResetRight(i)
		e.c.UpdateRight(e.ms, i, cbufs2)
	}
	return nil
}

// solveRDM implements spec.md section 4.5's reduced-density-matrix
// truncation path, required when cfg.NStates > 1: it builds rho =
// sum_k w_k v_k v_k^dagger with equal weights from the NStates lowest (or
// highest, by polarity) local eigenvectors, diagonalizes it, keeps its top
// eigenvectors (at most cfg.MaxBondDim of them) as a retained basis, and
// installs the cfg.TargetState eigenvector projected onto that basis and
// renormalized as the new site tensor. The open question of spec.md section
// 9 (propagating the guess for the next site using the full eigenvector
// block versus only the retained subspace) is resolved here in favor of the
// retained subspace: T_i is replaced by that projection, so the next site's
// guess is built from a state inside the RDM's retained eigenbasis rather
// than from any one of the nStates raw eigenvectors.
func (e *Engine) solveRDM(i int, cfg Config, opt eigensolver.Options, bufs [4]*tensor.Dense) error {
	vals, vecs, err := eigensolver.SolveMulti(e.c, i, e.ms[i], opt, cfg.NStates)
	if err != nil {
		return err
	}
	_ = vals

	shape := e.ms[i].Shape()
	dim := shape[mps.LeftAxis] * shape[mps.UpAxis] * shape[mps.RightAxis]
	weight := complex64(complex(1/float32(len(vecs)), 0))

	rho := tensor.Zeros(dim, dim)
	for _, v := range vecs {
		col := v.Reshape(dim, 1)
		outer := tensor.Product(tensor.Zeros(1), col, col.Conj(), [][2]int{})
		linalg.Mul(outer, weight, outer)
		linalg.Add(rho, rho, outer.Reshape(dim, dim))
	}

	eig := linalg.NewEig()
	rvals, rvecs, err := eig.Solve(rho)
	if err != nil {
		return errors.Wrap(err, "")
	}

	// linalg.Eig sorts ascending by real part; the RDM's top eigenvectors
	// (largest weight) are the highest-index columns.
	n := rvals.Shape()[0]
	keep := min(cfg.MaxBondDim, n)
	basis := tensor.Zeros(dim, keep)
	for j := 0; j < keep; j++ {
		src := n - 1 - j
		col := rvecs.Slice([][2]int{{0, dim}, {src, src + 1}})
		basis.Set([]int{0, j}, col)
	}
	if cfg.Orthonormalize {
		orthonormalizeColumns(basis)
	}

	// Replace T_i with the retained-subspace eigenvector closest to the
	// target state's raw eigenvector, reshaped like T_i: this is the
	// "propagate within the retained subspace" resolution of the section 9
	// open question. With a single retained column (keep==1, the common
	// nStates==1 fallthrough never reaches this path) this reduces exactly
	// to installing that column.
	target := min(cfg.TargetState, len(vecs)-1)
	targetVec := vecs[target].Reshape(dim, 1)
	coeffs := tensor.MatMul(tensor.Zeros(keep, 1), basis.H(), targetVec)
	approx := tensor.MatMul(tensor.Zeros(dim, 1), basis, coeffs)
	norm := approx.FrobeniusNorm()
	if norm > epsilonSweep {
		linalg.Mul(approx, complex(1/norm, 0), approx)
	}
	e.ms[i] = resetInto(e.ms[i], approx.Reshape(shape...))

	return nil
}

func orthonormalizeColumns(basis *tensor.Dense) {
	m, k := basis.Shape()[0], basis.Shape()[1]
	for j := 0; j < k; j++ {
		col := basis.Slice([][2]int{{0, m}, {j, j + 1}})
		for p := 0; p < j; p++ {
			prev := basis.Slice([][2]int{{0, m}, {p, p + 1}})
			var dot complex64
			for r := 0; r < m; r++ {
				dot += conjC(prev.At(r, 0)) * col.At(r, 0)
			}
			for r := 0; r < m; r++ {
				col.SetAt([]int{r, 0}, col.At(r, 0)-dot*prev.At(r, 0))
			}
		}
		var norm float32
		for r := 0; r < m; r++ {
			v := col.At(r, 0)
			norm += real(v)*real(v) + imag(v)*imag(v)
		}
		norm = sqrt32(norm)
		if norm > epsilonSweep {
			for r := 0; r < m; r++ {
				col.SetAt([]int{r, 0}, col.At(r, 0)/complex(norm, 0))
			}
		}
	}
}

const epsilonSweep = 0x1p-23

func sqrt32(x float32) float32 {
	if x <= 0 {
		return 0
	}
	return float32(math.Sqrt(float64(x)))
}

func resetInto(dst, src *tensor.Dense) *tensor.Dense {
	shape := src.Shape()
	dst.Reset(shape...).Set(make([]int, len(shape)), src)
	return dst
}

func conjC(x complex64) complex64 { return complex64(complex(real(x), -imag(x))) }

func absC(x complex64) float32 {
	r, i := real(x), imag(x)
	return sqrt32(r*r + i*i)
}

func max32(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}
