package sim

import (
	"fmt"

	"github.com/san-kum/conesim/internal/control"
	"github.com/san-kum/conesim/internal/dynamo"
	"github.com/san-kum/conesim/internal/integrators"
	"github.com/san-kum/conesim/internal/poles"
)

// DefaultInitialTilt seeds the default run with a small tilt so the
// controller has something to correct.
const DefaultInitialTilt = 0.05

type Config struct {
	// Dt is fixed for the lifetime of the integrator.
	Dt float64
	// SimLength is the step budget. Update is a no-op once it is spent.
	SimLength int
	// StepsPerFrame is the number of ministeps one Frame call runs.
	StepsPerFrame int

	InitState dynamo.State
	// Gains must have one entry per state. Nil means open loop.
	Gains []float64

	// Stepper defaults to explicit Euler.
	Stepper    dynamo.Integrator
	Classifier poles.Classifier
	// Input defaults to control.NoInput.
	Input control.Input
}

func DefaultConfig() Config {
	return Config{
		Dt:            0.01,
		SimLength:     2000,
		StepsPerFrame: 1,
		InitState:     dynamo.State{0, 0, DefaultInitialTilt, 0},
		Gains:         control.DefaultGains.Slice(),
		Stepper:       integrators.NewEuler(),
		Classifier:    poles.DefaultClassifier(),
		Input:         control.NoInput{},
	}
}

func (c Config) validate() error {
	if !(c.Dt > 0) {
		return fmt.Errorf("dt must be positive, got %v: %w", c.Dt, dynamo.ErrConfiguration)
	}
	if c.SimLength <= 0 {
		return fmt.Errorf("sim length must be positive, got %d: %w", c.SimLength, dynamo.ErrConfiguration)
	}
	if c.StepsPerFrame <= 0 {
		return fmt.Errorf("steps per frame must be positive, got %d: %w", c.StepsPerFrame, dynamo.ErrConfiguration)
	}
	return nil
}

// Duration is the simulated time covered by the full step budget.
func (c Config) Duration() float64 {
	return float64(c.SimLength) * c.Dt
}
