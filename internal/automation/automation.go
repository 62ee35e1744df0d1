package automation

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/san-kum/conesim/internal/config"
	"github.com/san-kum/conesim/internal/control"
	"github.com/san-kum/conesim/internal/dynamo"
	"github.com/san-kum/conesim/internal/experiment"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Scenario is a scripted sequence of runs.
type Scenario struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	Steps       []ScenarioStep `yaml:"steps"`
}

// ScenarioStep overlays a preset and explicit overrides on the base
// configuration. Zero values leave the base untouched.
type ScenarioStep struct {
	Preset       string                   `yaml:"preset"`
	Stepper      string                   `yaml:"stepper"`
	Input        string                   `yaml:"input"`
	Gains        []float64                `yaml:"gains"`
	Dt           float64                  `yaml:"dt"`
	SimLength    int                      `yaml:"sim_length"`
	InitState    []float64                `yaml:"init_state"`
	Disturbances []experiment.Disturbance `yaml:"disturbances"`
	SaveAs       string                   `yaml:"save_as"`
}

func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var scenario Scenario
	if err := yaml.Unmarshal(data, &scenario); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(scenario.Steps) == 0 {
		return nil, fmt.Errorf("%s has no steps: %w", path, dynamo.ErrConfiguration)
	}
	return &scenario, nil
}

// Label names the step in stored runs and progress output.
func (s ScenarioStep) Label(i int) string {
	switch {
	case s.SaveAs != "":
		return s.SaveAs
	case s.Preset != "":
		return s.Preset
	default:
		return fmt.Sprintf("step-%d", i+1)
	}
}

// Config resolves the step against base without modifying it.
func (s ScenarioStep) Config(base *config.Config) (*config.Config, error) {
	cfg := *base
	if s.Preset != "" && !config.Apply(&cfg, s.Preset) {
		return nil, fmt.Errorf("unknown preset %q: %w", s.Preset, dynamo.ErrConfiguration)
	}
	if s.Stepper != "" {
		cfg.Integration.Stepper = s.Stepper
	}
	if s.Input != "" {
		cfg.Controller.Input = s.Input
	}
	if s.Gains != nil {
		k, err := control.GainsFromSlice(s.Gains)
		if err != nil {
			return nil, fmt.Errorf("gains: %w", err)
		}
		cfg.Controller.Gains = k
	}
	if s.Dt != 0 {
		cfg.Integration.Dt = s.Dt
	}
	if s.SimLength != 0 {
		cfg.Integration.SimLength = s.SimLength
	}
	if s.InitState != nil {
		if len(s.InitState) != 4 {
			return nil, fmt.Errorf("init_state has %d entries, want 4: %w", len(s.InitState), dynamo.ErrDimensionMismatch)
		}
		cfg.InitState = config.InitStateConfig{
			Position: s.InitState[0],
			Velocity: s.InitState[1],
			Tilt:     s.InitState[2],
			TiltRate: s.InitState[3],
		}
	}
	if s.Disturbances != nil {
		cfg.Disturbances = append([]experiment.Disturbance(nil), s.Disturbances...)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type StepResult struct {
	Label  string
	Config *config.Config
	Result *dynamo.Result
}

// RunScenario executes all steps in order. A run stopped by the watchdog
// is a result, not an error; the first setup or cancellation error stops
// the scenario and the results gathered so far are returned with it.
func RunScenario(ctx context.Context, scenario *Scenario, base *config.Config, logger *zap.Logger) ([]StepResult, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	results := make([]StepResult, 0, len(scenario.Steps))

	for i, step := range scenario.Steps {
		label := step.Label(i)
		logger.Info("scenario step", zap.Int("step", i+1), zap.Int("of", len(scenario.Steps)), zap.String("label", label))

		cfg, err := step.Config(base)
		if err != nil {
			return results, fmt.Errorf("step %d (%s): %w", i+1, label, err)
		}

		exp := experiment.New(cfg.Experiment())
		exp.SetLogger(logger.With(zap.String("label", label)))
		if err := exp.Setup(); err != nil {
			return results, fmt.Errorf("step %d setup: %w", i+1, err)
		}

		result, err := exp.Run(ctx)
		if err != nil {
			return results, fmt.Errorf("step %d run: %w", i+1, err)
		}

		results = append(results, StepResult{Label: label, Config: cfg, Result: result})
	}

	return results, nil
}

// Trial is one Monte Carlo run from a random initial state.
type Trial struct {
	ID       int
	Seed     int64
	Init     dynamo.State
	Final    dynamo.State
	PeakTilt float64
	Failure  string
}

func (t Trial) Survived() bool { return t.Failure == "" }

// RunMonteCarlo runs trials from random initial states (see
// experiment.Config.RandomInit). Trial i is seeded with seed+i, so a trial
// can be replayed alone with run --random --seed.
func RunMonteCarlo(ctx context.Context, base experiment.Config, trials int, seed int64) ([]Trial, error) {
	if trials <= 0 {
		return nil, fmt.Errorf("trials must be positive, got %d: %w", trials, dynamo.ErrConfiguration)
	}

	results := make([]Trial, trials)
	errs := make([]error, trials)

	dynamo.ParallelFor(trials, 4, func(start, end int) {
		for i := start; i < end; i++ {
			if ctx.Err() != nil {
				errs[i] = ctx.Err()
				continue
			}
			results[i], errs[i] = runTrial(ctx, base, i, seed+int64(i))
		}
	})

	if err := errors.Join(errs...); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", dynamo.ErrContextCanceled, ctx.Err())
		}
		return nil, err
	}
	return results, nil
}

func runTrial(ctx context.Context, base experiment.Config, id int, seed int64) (Trial, error) {
	cfg := base
	cfg.RandomInit = true
	cfg.Seed = seed

	exp := experiment.New(cfg)
	if err := exp.Setup(); err != nil {
		return Trial{}, err
	}
	result, err := exp.Run(ctx)
	if err != nil {
		return Trial{}, err
	}

	return Trial{
		ID:       id,
		Seed:     seed,
		Init:     result.States[0],
		Final:    result.States[len(result.States)-1],
		PeakTilt: result.Metrics["peak_tilt"],
		Failure:  result.Failure,
	}, nil
}

// MonteCarloStats counts trials the watchdog let run to completion.
func MonteCarloStats(trials []Trial) (survived, failed int) {
	for _, t := range trials {
		if t.Survived() {
			survived++
		} else {
			failed++
		}
	}
	return
}
