package bec

import (
	"errors"
	"fmt"
)

// Domain errors for integration runs.
var (
	// ErrConfiguration indicates a shape or parameter mismatch detected at setup.
	ErrConfiguration = errors.New("bec: invalid configuration")

	// ErrDimensionMismatch indicates mismatched state layouts.
	ErrDimensionMismatch = errors.New("bec: dimension mismatch between states")

	// ErrDivergence indicates a non-finite amplitude after an accepted step.
	ErrDivergence = errors.New("bec: numerical divergence (NaN or Inf detected)")

	// ErrStepRejected indicates a step-doubling disagreement above tolerance.
	// It never leaves the integrator.
	ErrStepRejected = errors.New("bec: step rejected")

	// ErrConvergenceNotReached indicates the step-size reduction budget ran out
	// before the error tolerance was met.
	ErrConvergenceNotReached = errors.New("bec: step size reduction budget exhausted")

	// ErrCanceled indicates the integration was interrupted between segments.
	ErrCanceled = errors.New("bec: integration canceled by context")
)

// IntegrationError wraps a terminal failure with the last good step and time.
type IntegrationError struct {
	Step    int
	Time    float64
	Wrapped error
}

func (e *IntegrationError) Error() string {
	return fmt.Sprintf("step %d (t=%g): %v", e.Step, e.Time, e.Wrapped)
}

func (e *IntegrationError) Unwrap() error {
	return e.Wrapped
}
