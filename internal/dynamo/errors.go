package dynamo

import "errors"

// Domain errors for simulation operations.
var (
	// ErrConfiguration indicates degenerate physical parameters or
	// integration settings. Raised at construction time, never recovered.
	ErrConfiguration = errors.New("dynamo: invalid configuration")

	// ErrDimensionMismatch indicates matrices, gains and state vectors
	// that do not fit together.
	ErrDimensionMismatch = errors.New("dynamo: dimension mismatch between state and system")

	// ErrInvalidState indicates a state vector holding NaN or Inf. Only
	// caller-side watchdogs report it; stepping never does.
	ErrInvalidState = errors.New("dynamo: invalid state (NaN or Inf detected)")

	// ErrContextCanceled indicates the run was interrupted.
	ErrContextCanceled = errors.New("dynamo: simulation canceled by context")
)

// SimulationError wraps an error with simulation context.
type SimulationError struct {
	Step    int
	Time    float64
	State   State
	Wrapped error
}

func (e *SimulationError) Error() string {
	return e.Wrapped.Error()
}

func (e *SimulationError) Unwrap() error {
	return e.Wrapped
}
