// Package errors defines the solver's error kinds (spec.md section 7):
// configuration and numeric errors, which surface to the caller
// immediately, and non-convergence / state-tracking events, which are
// non-fatal and attached to a dmrg.Result's Diagnostics instead of
// returned as an error.
package errors

import (
	"fmt"

	"github.com/pkg/errors"
)

// ConfigError reports a malformed configuration detected before any
// computation: mismatched schedule vector lengths, an unsupported model for
// a comparator routine, or N exceeding a fixed ceiling for exact
// diagonalization.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string { return fmt.Sprintf("dmrg: config error: %s", e.Reason) }

// NewConfigError wraps reason as a *ConfigError, formatted with args like
// fmt.Sprintf.
func NewConfigError(format string, args ...any) error {
	return errors.WithStack(&ConfigError{Reason: fmt.Sprintf(format, args...)})
}

// NumericError reports a fatal NaN/Inf detection or isometry-check failure
// at a specific site, aborting the run immediately.
type NumericError struct {
	Site   int
	Reason string
}

func (e *NumericError) Error() string {
	return fmt.Sprintf("dmrg: numeric error at site %d: %s", e.Site, e.Reason)
}

// NewNumericError wraps reason as a *NumericError at the given site.
func NewNumericError(site int, format string, args ...any) error {
	return errors.WithStack(&NumericError{Site: site, Reason: fmt.Sprintf(format, args...)})
}

// NonConvergence records that a stage's sweep loop reached maxIter without
// |delta lambda| < tol. Not returned as an error; attached to
// dmrg.Result.Diagnostics so the caller can inspect the best-so-far result.
type NonConvergence struct {
	Stage      int
	Iterations int
	Delta      complex64
	Tol        float32
}

func (e *NonConvergence) Error() string {
	return fmt.Sprintf("dmrg: stage %d did not converge after %d iterations (delta=%v, tol=%v)",
		e.Stage, e.Iterations, e.Delta, e.Tol)
}

// StateTrackingEvent records that Options.Preserve could not lock onto the
// guess state (every candidate's overlap with the guess fell below the
// degeneracy threshold); the guess itself is retained and the run continues.
type StateTrackingEvent struct {
	Site int
}

func (e *StateTrackingEvent) Error() string {
	return fmt.Sprintf("dmrg: state tracking could not lock onto guess at site %d, guess retained", e.Site)
}
