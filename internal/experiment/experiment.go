package experiment

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/san-kum/conesim/internal/control"
	"github.com/san-kum/conesim/internal/dynamo"
	"github.com/san-kum/conesim/internal/metrics"
	"github.com/san-kum/conesim/internal/plant"
	"github.com/san-kum/conesim/internal/poles"
	"github.com/san-kum/conesim/internal/sim"
	"go.uber.org/zap"
)

const (
	InputStateFeedback = "state-feedback"
	InputFeedbackLaw   = "feedback-law"
	InputManual        = "manual"
	InputNone          = "none"
)

// Disturbance is a tilt-rate impulse applied at the frame that contains
// Step.
type Disturbance struct {
	Step    int     `yaml:"step" json:"step"`
	Impulse float64 `yaml:"impulse" json:"impulse"`
}

type Config struct {
	Plant   plant.PhysicalParameters
	Stepper string
	Input   string
	// Force is the constant push of the manual input.
	Force     float64
	Gains     control.Gains
	Reference dynamo.State

	InitState dynamo.State
	// RandomInit draws the initial state with RandomState, seeded by Seed.
	RandomInit bool
	Seed       int64

	Dt            float64
	SimLength     int
	StepsPerFrame int

	Classifier   poles.Classifier
	Watchdog     metrics.Watchdog
	Disturbances []Disturbance
}

type Experiment struct {
	cfg        Config
	registry   *Registry
	plant      *plant.Plant
	integrator *sim.Integrator
	metrics    []dynamo.Metric
	gains      []float64
	input      control.Input
	randSource *rand.Rand
	logger     *zap.Logger
}

func New(cfg Config) *Experiment {
	return &Experiment{
		cfg:        cfg,
		registry:   NewRegistry(),
		randSource: rand.New(rand.NewSource(cfg.Seed)),
		logger:     zap.NewNop(),
	}
}

func (e *Experiment) SetLogger(l *zap.Logger) {
	if l != nil {
		e.logger = l
	}
}

// Setup builds the plant and the integrator. Extra metrics are observed
// alongside the registry defaults.
func (e *Experiment) Setup(extra ...dynamo.Metric) error {
	p, err := plant.Build(e.cfg.Plant)
	if err != nil {
		return fmt.Errorf("build plant: %w", err)
	}

	stepper, err := e.registry.GetStepper(e.cfg.Stepper)
	if err != nil {
		return fmt.Errorf("%v: %w", err, dynamo.ErrConfiguration)
	}
	gains, input, err := e.registry.GetInput(e.cfg.Input, e.cfg)
	if err != nil {
		return fmt.Errorf("%v: %w", err, dynamo.ErrConfiguration)
	}

	in, err := sim.New(p, sim.Config{
		Dt:            e.cfg.Dt,
		SimLength:     e.cfg.SimLength,
		StepsPerFrame: e.cfg.StepsPerFrame,
		InitState:     e.initialState(),
		Gains:         gains,
		Stepper:       stepper,
		Classifier:    e.cfg.Classifier,
		Input:         input,
	})
	if err != nil {
		return err
	}

	e.plant = p
	e.integrator = in
	e.gains = gains
	e.input = input
	e.metrics = append(e.registry.DefaultMetrics(), extra...)
	return nil
}

// RandomState draws x1 from [-1, 1), x2 from [-2, 2), x3 from
// [-0.2, 0.2) and x4 from [-0.5, 0.5).
func RandomState(r *rand.Rand) dynamo.State {
	return dynamo.State{
		r.Float64()*2 - 1,
		r.Float64()*4 - 2,
		r.Float64()*0.4 - 0.2,
		r.Float64() - 0.5,
	}
}

func (e *Experiment) initialState() dynamo.State {
	if e.cfg.RandomInit {
		return RandomState(e.randSource)
	}
	if e.cfg.InitState != nil {
		return e.cfg.InitState.Clone()
	}
	return dynamo.State{0, 0, sim.DefaultInitialTilt, 0}
}

// Run drives frames until the step budget is spent or the watchdog fails
// the run. A failed run is not an error; it is reported in Result.Failure.
func (e *Experiment) Run(ctx context.Context) (*dynamo.Result, error) {
	if e.integrator == nil {
		return nil, fmt.Errorf("experiment not setup")
	}
	in := e.integrator
	in.Reset()
	in.SetGains(e.gains)
	in.SetInput(e.input)
	for _, m := range e.metrics {
		m.Reset()
	}

	capacity := in.SimLength()/max(e.cfg.StepsPerFrame, 1) + 1
	result := &dynamo.Result{
		States:   make([]dynamo.State, 0, capacity),
		Controls: make([]dynamo.Control, 0, capacity),
		Times:    make([]float64, 0, capacity),
		Metrics:  make(map[string]float64),
	}

	s := in.State()
	result.States = append(result.States, s.X)
	result.Controls = append(result.Controls, dynamo.Control{0})
	result.Times = append(result.Times, s.T)

	cut := false
	settleTime := -1.0
	for !in.Complete() && in.Phase() != sim.Failed {
		select {
		case <-ctx.Done():
			return result, &dynamo.SimulationError{
				Step:    s.Step,
				Time:    s.T,
				State:   s.X,
				Wrapped: fmt.Errorf("%w: %v", dynamo.ErrContextCanceled, ctx.Err()),
			}
		default:
		}

		in.Frame(e.disturbanceAt(s.Step))
		s = in.State()
		u := dynamo.Control{s.Force}

		for _, m := range e.metrics {
			m.Observe(s.X, u, s.T)
		}
		result.States = append(result.States, s.X)
		result.Controls = append(result.Controls, u)
		result.Times = append(result.Times, s.T)

		v := e.cfg.Watchdog.Evaluate(s.X)
		if v.CutControl && !cut {
			cut = true
			in.SetGains(make([]float64, plant.StateDim))
			in.SetInput(control.NoInput{})
			e.logger.Info("control cut", zap.Float64("t", s.T), zap.Float64("tilt", s.Tilt()))
		}
		if v.Failed {
			in.Fail(v.Reason)
			result.Failure = v.Reason
			e.logger.Warn("run failed", zap.Float64("t", s.T), zap.Int("step", s.Step), zap.String("reason", v.Reason))
		}
		if v.Settled && settleTime < 0 {
			settleTime = s.T
		} else if !v.Settled {
			settleTime = -1
		}
	}

	final := in.State()
	result.StepsTaken = final.Step
	for _, m := range e.metrics {
		result.Metrics[m.Name()] = m.Value()
	}
	result.Metrics["settle_time"] = settleTime
	// y = C·x + D·u, the cart position the reference is set against
	result.Metrics["final_output"] = e.plant.Output(final.X, final.Force)
	return result, nil
}

func (e *Experiment) disturbanceAt(step int) float64 {
	total := 0.0
	for _, d := range e.cfg.Disturbances {
		if d.Step >= step && d.Step < step+e.cfg.StepsPerFrame {
			total += d.Impulse
		}
	}
	return total
}

func (e *Experiment) Integrator() *sim.Integrator { return e.integrator }

func (e *Experiment) Plant() *plant.Plant { return e.plant }

func (e *Experiment) Config() Config { return e.cfg }
