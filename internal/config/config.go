package config

import (
	"fmt"
	"math/rand"
	"os"

	"github.com/san-kum/conesim/internal/control"
	"github.com/san-kum/conesim/internal/dynamo"
	"github.com/san-kum/conesim/internal/experiment"
	"github.com/san-kum/conesim/internal/metrics"
	"github.com/san-kum/conesim/internal/plant"
	"github.com/san-kum/conesim/internal/poles"
	"github.com/san-kum/conesim/internal/sim"
	"gopkg.in/yaml.v3"
)

const (
	DefaultDt            = 0.01
	DefaultSimLength     = 2000
	DefaultStepsPerFrame = 1
	DefaultStepper       = "euler"
)

type Config struct {
	Plant        PlantConfig              `yaml:"plant"`
	Motor        plant.Motor              `yaml:"motor"`
	Controller   ControllerConfig         `yaml:"controller"`
	InitState    InitStateConfig          `yaml:"init_state"`
	Integration  IntegrationConfig        `yaml:"integration"`
	Poles        poles.Classifier         `yaml:"poles"`
	Watchdog     metrics.Watchdog         `yaml:"watchdog"`
	Disturbances []experiment.Disturbance `yaml:"disturbances,omitempty"`
	Seed         int64                    `yaml:"seed"`
}

type PlantConfig struct {
	SphereMass float64 `yaml:"sphere_mass"`
	CartMass   float64 `yaml:"cart_mass"`
	Radius     float64 `yaml:"radius"`
	Thickness  float64 `yaml:"thickness"`
}

type ControllerConfig struct {
	// Input is one of state-feedback, feedback-law, manual or none.
	Input string        `yaml:"input"`
	Gains control.Gains `yaml:"gains"`
	// Reference is the (position, tilt) setpoint of the feedback law.
	Reference [2]float64 `yaml:"reference"`
	Force     float64    `yaml:"force"`
}

type InitStateConfig struct {
	Position float64 `yaml:"position"`
	Velocity float64 `yaml:"velocity"`
	Tilt     float64 `yaml:"tilt"`
	TiltRate float64 `yaml:"tilt_rate"`
	Random   bool    `yaml:"random"`
}

type IntegrationConfig struct {
	Dt            float64 `yaml:"dt"`
	SimLength     int     `yaml:"sim_length"`
	StepsPerFrame int     `yaml:"steps_per_frame"`
	Stepper       string  `yaml:"stepper"`
}

func DefaultConfig() *Config {
	p := plant.DefaultParameters()
	return &Config{
		Plant: PlantConfig{
			SphereMass: p.SphereMass,
			CartMass:   p.CartMass,
			Radius:     p.Radius,
			Thickness:  p.Thickness,
		},
		Motor: p.Motor,
		Controller: ControllerConfig{
			Input: experiment.InputStateFeedback,
			Gains: control.DefaultGains,
		},
		InitState: InitStateConfig{Tilt: sim.DefaultInitialTilt},
		Integration: IntegrationConfig{
			Dt:            DefaultDt,
			SimLength:     DefaultSimLength,
			StepsPerFrame: DefaultStepsPerFrame,
			Stepper:       DefaultStepper,
		},
		Poles:    poles.DefaultClassifier(),
		Watchdog: metrics.DefaultWatchdog(),
	}
}

// Load reads a YAML file over the defaults, so a file only needs the keys
// it changes.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func (c *Config) Validate() error {
	if err := c.PlantParameters().Validate(); err != nil {
		return err
	}
	in := c.Integration
	if !(in.Dt > 0) {
		return fmt.Errorf("integration.dt must be positive, got %v: %w", in.Dt, dynamo.ErrConfiguration)
	}
	if in.SimLength <= 0 {
		return fmt.Errorf("integration.sim_length must be positive, got %d: %w", in.SimLength, dynamo.ErrConfiguration)
	}
	if in.StepsPerFrame <= 0 {
		return fmt.Errorf("integration.steps_per_frame must be positive, got %d: %w", in.StepsPerFrame, dynamo.ErrConfiguration)
	}

	r := experiment.NewRegistry()
	if _, err := r.GetStepper(in.Stepper); err != nil {
		return fmt.Errorf("integration.stepper: %v: %w", err, dynamo.ErrConfiguration)
	}
	if _, _, err := r.GetInput(c.Controller.Input, experiment.Config{}); err != nil {
		return fmt.Errorf("controller.input: %v: %w", err, dynamo.ErrConfiguration)
	}
	if c.Poles.MarginalThreshold > c.Poles.AxisOffset {
		return fmt.Errorf("poles.marginal_threshold %v lies right of axis_offset %v: %w",
			c.Poles.MarginalThreshold, c.Poles.AxisOffset, dynamo.ErrConfiguration)
	}
	return nil
}

func (c *Config) PlantParameters() plant.PhysicalParameters {
	return plant.PhysicalParameters{
		SphereMass: c.Plant.SphereMass,
		CartMass:   c.Plant.CartMass,
		Radius:     c.Plant.Radius,
		Thickness:  c.Plant.Thickness,
		Motor:      c.Motor,
	}
}

func (c *Config) GetInitState() dynamo.State {
	s := c.InitState
	return dynamo.State{s.Position, s.Velocity, s.Tilt, s.TiltRate}
}

func (c *Config) reference() dynamo.State {
	return dynamo.State{c.Controller.Reference[0], 0, c.Controller.Reference[1], 0}
}

// Experiment maps the file layout onto an experiment configuration.
func (c *Config) Experiment() experiment.Config {
	return experiment.Config{
		Plant:         c.PlantParameters(),
		Stepper:       c.Integration.Stepper,
		Input:         c.Controller.Input,
		Force:         c.Controller.Force,
		Gains:         c.Controller.Gains,
		Reference:     c.reference(),
		InitState:     c.GetInitState(),
		RandomInit:    c.InitState.Random,
		Seed:          c.Seed,
		Dt:            c.Integration.Dt,
		SimLength:     c.Integration.SimLength,
		StepsPerFrame: c.Integration.StepsPerFrame,
		Classifier:    c.Poles,
		Watchdog:      c.Watchdog,
		Disturbances:  c.Disturbances,
	}
}

// SimConfig resolves the stepper and input names into an integrator
// configuration for interactive sessions. With init_state.random the
// initial state is drawn from Seed, the same way a batch run draws it.
func (c *Config) SimConfig() (sim.Config, error) {
	r := experiment.NewRegistry()
	stepper, err := r.GetStepper(c.Integration.Stepper)
	if err != nil {
		return sim.Config{}, fmt.Errorf("%v: %w", err, dynamo.ErrConfiguration)
	}
	gains, input, err := r.GetInput(c.Controller.Input, c.Experiment())
	if err != nil {
		return sim.Config{}, fmt.Errorf("%v: %w", err, dynamo.ErrConfiguration)
	}
	x0 := c.GetInitState()
	if c.InitState.Random {
		x0 = experiment.RandomState(rand.New(rand.NewSource(c.Seed)))
	}
	return sim.Config{
		Dt:            c.Integration.Dt,
		SimLength:     c.Integration.SimLength,
		StepsPerFrame: c.Integration.StepsPerFrame,
		InitState:     x0,
		Gains:         gains,
		Stepper:       stepper,
		Classifier:    c.Poles,
		Input:         input,
	}, nil
}

// NewIntegrator builds the plant and an integrator over it.
func (c *Config) NewIntegrator() (*sim.Integrator, error) {
	p, err := plant.Build(c.PlantParameters())
	if err != nil {
		return nil, err
	}
	sc, err := c.SimConfig()
	if err != nil {
		return nil, err
	}
	return sim.New(p, sc)
}
