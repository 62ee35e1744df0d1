package experiment

import (
	"fmt"
	"sort"

	"github.com/san-kum/conesim/internal/control"
	"github.com/san-kum/conesim/internal/dynamo"
	"github.com/san-kum/conesim/internal/integrators"
	"github.com/san-kum/conesim/internal/metrics"
)

// InputFactory splits a configuration into the gains folded into A_cl and
// the external force source.
type InputFactory func(cfg Config) ([]float64, control.Input)

type Registry struct {
	steppers map[string]func() dynamo.Integrator
	inputs   map[string]InputFactory
}

func NewRegistry() *Registry {
	r := &Registry{
		steppers: make(map[string]func() dynamo.Integrator),
		inputs:   make(map[string]InputFactory),
	}

	r.steppers["euler"] = func() dynamo.Integrator { return integrators.NewEuler() }
	r.steppers["rk4"] = func() dynamo.Integrator { return integrators.NewRK4() }

	r.inputs[InputStateFeedback] = func(cfg Config) ([]float64, control.Input) {
		return cfg.Gains.Slice(), control.NoInput{}
	}
	r.inputs[InputFeedbackLaw] = func(cfg Config) ([]float64, control.Input) {
		return control.Gains{}.Slice(), control.NewFeedbackLaw(cfg.Gains, cfg.Reference)
	}
	r.inputs[InputManual] = func(cfg Config) ([]float64, control.Input) {
		return cfg.Gains.Slice(), control.ManualForce{Value: cfg.Force}
	}
	r.inputs[InputNone] = func(cfg Config) ([]float64, control.Input) {
		return control.Gains{}.Slice(), control.NoInput{}
	}

	return r
}

func (r *Registry) GetStepper(name string) (dynamo.Integrator, error) {
	if name == "" {
		name = "euler"
	}
	fn, ok := r.steppers[name]
	if !ok {
		return nil, fmt.Errorf("unknown stepper: %s", name)
	}
	return fn(), nil
}

func (r *Registry) GetInput(name string, cfg Config) ([]float64, control.Input, error) {
	if name == "" {
		name = InputStateFeedback
	}
	fn, ok := r.inputs[name]
	if !ok {
		return nil, nil, fmt.Errorf("unknown input: %s", name)
	}
	k, in := fn(cfg)
	return k, in, nil
}

func (r *Registry) ListSteppers() []string {
	return sortedKeys(r.steppers)
}

func (r *Registry) ListInputs() []string {
	return sortedKeys(r.inputs)
}

func sortedKeys[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) DefaultMetrics() []dynamo.Metric {
	return []dynamo.Metric{
		metrics.NewTiltStability(0.1),
		metrics.NewPeakTilt(),
		metrics.NewControlEffort(),
		metrics.NewPeakForce(),
		metrics.NewQuadraticCost(),
	}
}
