// Package dynamo provides the shared primitives of the cone simulation.
//
// The package defines the fundamental types every other package speaks:
//
//   - [State]: vector representing system state (x1 position, x2 velocity,
//     x3 tilt angle, x4 angular velocity for the cone plant)
//   - [System]: interface for linear or nonlinear ODE systems (dX/dt = f(X, u, t))
//   - [Integrator]: numerical stepper interface
//   - [Metric]: per-step observer producing a scalar summary
//   - [Result]: recorded trajectory of a finished run
//
// # Errors
//
// Configuration problems are reported as [ErrConfiguration] and dimension
// problems as [ErrDimensionMismatch]. Numerical divergence is not an error:
// an unstable closed loop legitimately produces Inf or NaN states.
//
// # Thread Safety
//
// Nothing in this package is safe for concurrent mutation. Owners that
// share a simulation across goroutines synchronize externally.
package dynamo
