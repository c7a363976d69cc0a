// Package dmrg wires the MPS container, MPO operators, environment cache,
// local eigensolver, and sweep engine into the single entry point spec.md
// section 6 describes, replacing the teacher's ad hoc cmd/run/main.go
// wiring with a reusable Config/Result pair.
package dmrg

import (
	"github.com/pkg/errors"

	dmrgerrors "github.com/corvid-lab/dmrg/errors"

	"github.com/corvid-lab/dmrg/eigensolver"
	"github.com/corvid-lab/dmrg/mpo"
	"github.com/corvid-lab/dmrg/mps"
	"github.com/corvid-lab/dmrg/persist"
	"github.com/corvid-lab/dmrg/sweep"
	"github.com/fumin/tensor"
)

// Model selects which operator family Config.ModelParams is interpreted
// against, the same four 1D chains dmrg/exactdiag compares a run against.
type Model int

const (
	ModelIsing Model = iota
	ModelHeisenberg
	ModelTASEP
	ModelSEP
)

// ModelParams holds every model's parameters; only the fields relevant to
// Config.Model are read.
type ModelParams struct {
	// H is the Ising transverse field strength.
	H complex64
	// J is the Heisenberg coupling.
	J complex64
	// Alpha, Beta, Gamma, Delta are the SEP/TASEP boundary injection
	// (Alpha, Gamma) and extraction (Beta, Delta) rates.
	Alpha, Beta, Gamma, Delta complex64
	// P, Q are the SEP bulk forward/backward hop rates (TASEP fixes P=1, Q=0).
	P, Q complex64
	// S is the large-deviation counting field.
	S complex64
}

// InitialGuess selects Generate's seed policy for the initial MPS, mirroring
// mps.SeedPolicy with the solver's own default (a small constant, not
// uniform random) baked in.
type InitialGuess struct {
	Policy   mps.SeedPolicy
	Constant complex64
}

// DefaultInitialGuess is the constant(0.1) seed spec.md section 6 names as
// the default initial guess.
func DefaultInitialGuess() InitialGuess {
	return InitialGuess{Policy: mps.SeedConstant, Constant: 0.1}
}

// Config carries every named solver option of spec.md section 6. MaxBondDim,
// Tol, MaxIter, and MinIter are per-stage schedule vectors; all four must
// have equal length (the number of bond-dimension stages to run).
type Config struct {
	// N is the chain length. Required.
	N int
	// D is the local (physical) Hilbert-space dimension. Every model this
	// package builds is d=2 (spin-1/2 or occupation-number); D is carried
	// for forward compatibility with a future higher-spin model and
	// currently must be 2, or 0, which validate also accepts (spec.md
	// section 6, "d (=2): local dimension").
	D int

	MaxBondDim []int
	Tol        []float32
	MaxIter    []int
	MinIter    []int

	Model       Model
	ModelParams ModelParams

	InitialGuess InitialGuess

	Algorithm eigensolver.Algorithm
	Polarity  eigensolver.Polarity

	PreserveState  bool
	Orthonormalize bool

	NStates     int
	TargetState int

	GaugeSiteSave int
	GaugeSiteLoad int

	// PersistPath, when non-empty, saves an MPS snapshot to this SQLite file
	// after every stage (keyed by stage index) and tries to resume from it
	// before the first stage runs.
	PersistPath string
}

// NewConfig returns spec.md section 6's defaults: d=2, the three-stage
// [10,50,100] bond-dimension schedule with tol=1e-10/max_iter=10 at every
// stage, the transverse-field Ising model, a constant(0.1) initial guess,
// and Arnoldi/lowest-polarity/single-state solving.
func NewConfig(n int) Config {
	return Config{
		N:             n,
		D:             2,
		MaxBondDim:    []int{10, 50, 100},
		Tol:           []float32{1e-10, 1e-10, 1e-10},
		MaxIter:       []int{10, 10, 10},
		MinIter:       []int{0, 0, 0},
		Model:         ModelIsing,
		ModelParams:   ModelParams{H: 1},
		InitialGuess:  DefaultInitialGuess(),
		Algorithm:     eigensolver.AlgorithmArnoldi,
		Polarity:      eigensolver.PolarityLowest,
		NStates:       1,
		TargetState:   0,
		GaugeSiteSave: 0,
		GaugeSiteLoad: 0,
	}
}

// Result is the outcome of a full multi-stage run: the final stage's
// reported energy, diagnostics pooled across every stage, and (optionally)
// the converged MPS for reuse.
type Result struct {
	Energy               complex64
	EntanglementEntropy  float32
	EntanglementSpectrum []float32
	// SpectralGap is set only when Config.NStates >= 2: the gap between the
	// two lowest (or, under PolarityHighest, two highest) local eigenvalues
	// at the mid-chain site of the converged state.
	SpectralGap complex64
	MPS         mps.State
	Diagnostics []error
}

// Run builds the operator list for cfg.Model/cfg.ModelParams, generates (or
// loads) an initial MPS, and sweeps through every bond-dimension stage of
// cfg's schedule, returning the final stage's result.
func Run(cfg Config) (Result, error) {
	if err := validate(cfg); err != nil {
		return Result{}, err
	}
	w, err := buildOperator(cfg.Model, cfg.ModelParams, cfg.N)
	if err != nil {
		return Result{}, err
	}

	ms, resumeStage, err := initialState(cfg, w)
	if err != nil {
		return Result{}, err
	}

	eng := sweep.New(w, ms)
	var diagnostics []error
	var stageRes sweep.Result

	var store *persist.Store
	if cfg.PersistPath != "" {
		store, err = persist.Open(cfg.PersistPath)
		if err != nil {
			return Result{}, errors.Wrap(err, "")
		}
		defer store.Close()
	}

	nStages := len(cfg.MaxBondDim)
	for stage := resumeStage; stage < nStages; stage++ {
		scfg := sweep.NewConfig().
			WithStage(stage).
			WithMaxBondDim(cfg.MaxBondDim[stage]).
			WithTol(cfg.Tol[stage]).
			WithMaxIter(cfg.MaxIter[stage]).
			WithMinIter(cfg.MinIter[stage]).
			WithNStates(cfg.NStates).
			WithTargetState(cfg.TargetState).
			WithAlgorithm(cfg.Algorithm).
			WithPolarity(cfg.Polarity).
			WithPreserveState(cfg.PreserveState).
			WithOrthonormalize(cfg.Orthonormalize)

		stageRes, err = eng.RunStage(scfg)
		if err != nil {
			return Result{}, errors.Wrap(err, "")
		}
		diagnostics = append(diagnostics, stageRes.Diagnostics...)

		if store != nil {
			// RunStage ends its left sweep with the gauge at site 0; park it
			// at GaugeSiteSave so the saved gauge site is where it really is.
			if err := moveGaugeTo(eng.State(), 0, cfg.GaugeSiteSave); err != nil {
				return Result{}, errors.Wrap(err, "")
			}
			if err := store.Save(eng.State(), cfg.GaugeSiteSave, stage); err != nil {
				return Result{}, errors.Wrap(err, "")
			}
		}
	}

	out := Result{
		Energy:               stageRes.Energy,
		EntanglementEntropy:  stageRes.EntanglementEntropy,
		EntanglementSpectrum: stageRes.EntanglementSpectrum,
		MPS:                  eng.State(),
		Diagnostics:          diagnostics,
	}
	if cfg.NStates >= 2 {
		out.SpectralGap, err = spectralGap(eng, cfg)
		if err != nil {
			return Result{}, err
		}
	}
	return out, nil
}

func validate(cfg Config) error {
	if cfg.N < 1 {
		return dmrgerrors.NewConfigError("dmrg: N=%d must be positive", cfg.N)
	}
	if cfg.D != 0 && cfg.D != 2 {
		return dmrgerrors.NewConfigError("dmrg: D=%d unsupported, every model in this package is d=2", cfg.D)
	}
	n := len(cfg.MaxBondDim)
	if n == 0 {
		return dmrgerrors.NewConfigError("dmrg: MaxBondDim schedule must have at least one stage")
	}
	if len(cfg.Tol) != n || len(cfg.MaxIter) != n || len(cfg.MinIter) != n {
		return dmrgerrors.NewConfigError("dmrg: MaxBondDim, Tol, MaxIter, MinIter must have equal length (got %d, %d, %d, %d)",
			n, len(cfg.Tol), len(cfg.MaxIter), len(cfg.MinIter))
	}
	return nil
}

func buildOperator(model Model, p ModelParams, n int) (mpo.List, error) {
	switch model {
	case ModelIsing:
		return mpo.List{mpo.Ising(n, p.H)}, nil
	case ModelHeisenberg:
		return mpo.List{mpo.Heisenberg(n, p.J)}, nil
	case ModelTASEP:
		return mpo.List{mpo.TASEP(n, p.Alpha, p.Beta, p.S)}, nil
	case ModelSEP:
		return mpo.List{mpo.SEP(n, p.Alpha, p.Beta, p.Gamma, p.Delta, p.P, p.Q, p.S)}, nil
	default:
		return nil, dmrgerrors.NewConfigError("dmrg: unsupported model %d", model)
	}
}

func initialState(cfg Config, w mpo.List) (mps.State, int, error) {
	if cfg.PersistPath != "" {
		if store, err := persist.Open(cfg.PersistPath); err == nil {
			defer store.Close()
			for stage := len(cfg.MaxBondDim) - 1; stage >= 0; stage-- {
				if loaded, gaugeSite, err := store.Load(stage); err == nil {
					if err := moveGaugeTo(loaded, gaugeSite, cfg.GaugeSiteLoad); err != nil {
						return nil, 0, errors.Wrap(err, "")
					}
					// Resume at (not past) the last saved stage: re-running
					// it on the restored state re-derives a Result without
					// requiring a separate "already converged" code path.
					return loaded, stage, nil
				}
			}
		}
	}

	opt := mps.NewGenerateOptions().Policy(cfg.InitialGuess.Policy).Constant(cfg.InitialGuess.Constant)
	ms, err := mps.Generate(w, cfg.MaxBondDim[0], opt)
	if err != nil {
		return nil, 0, errors.Wrap(err, "")
	}
	return ms, 0, nil
}

// moveGaugeTo shifts ms's gauge from its current site to target, used after
// a persisted snapshot is restored at a different site than the caller
// requested (cfg.GaugeSiteLoad).
func moveGaugeTo(ms mps.State, from, target int) error {
	bufs := [3]*tensor.Dense{tensor.Zeros(1), tensor.Zeros(1), tensor.Zeros(1)}
	for from < target {
		if err := mps.MoveGaugeRight(ms, from, bufs); err != nil {
			return err
		}
		from++
	}
	for from > target {
		if err := mps.MoveGaugeLeft(ms, from, bufs); err != nil {
			return err
		}
		from--
	}
	return nil
}

// spectralGap re-solves the mid-chain site for its two lowest (or, under
// PolarityHighest, two highest) local eigenvalues against the converged
// state's environments, without perturbing the sweep result.
func spectralGap(eng *sweep.Engine, cfg Config) (complex64, error) {
	mid := len(eng.State()) / 2
	opt := eigensolver.Options{Algorithm: cfg.Algorithm, Polarity: cfg.Polarity, Tol: 1e-5}
	vals, _, err := eigensolver.SolveMulti(eng.Cache(), mid, eng.State()[mid], opt, 2)
	if err != nil {
		return 0, errors.Wrap(err, "")
	}
	if len(vals) < 2 {
		return 0, nil
	}
	gap := vals[1] - vals[0]
	if real(gap) < 0 {
		gap = -gap
	}
	return gap, nil
}
