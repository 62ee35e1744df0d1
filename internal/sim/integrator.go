package sim

import (
	"fmt"

	"github.com/san-kum/conesim/internal/control"
	"github.com/san-kum/conesim/internal/dynamo"
	"github.com/san-kum/conesim/internal/integrators"
	"github.com/san-kum/conesim/internal/plant"
	"github.com/san-kum/conesim/internal/poles"
	"gonum.org/v1/gonum/mat"
)

type Phase int

const (
	Ready Phase = iota
	Stepping
	Complete
	Failed
)

func (p Phase) String() string {
	switch p {
	case Ready:
		return "ready"
	case Stepping:
		return "stepping"
	case Complete:
		return "complete"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// Integrator steps x ← x + dt·(A_cl·x + B·u) over a fixed budget.
type Integrator struct {
	a, b *mat.Dense
	n    int

	dt         float64
	simLength  int
	perFrame   int
	stepper    dynamo.Integrator
	classifier poles.Classifier
	input      control.Input

	x0 dynamo.State
	x  dynamo.State
	t  float64
	// cursor counts Update calls that advanced the state.
	cursor int
	phase  Phase
	reason string

	gains []float64
	// push is an operator force added to the input, see SetPush.
	push float64
	// acl is derived from gains, poles from the loop gains; both are
	// rebuilt lazily.
	acl   *mat.Dense
	poles []poles.Pole
	dirty bool
	lastU float64
}

// New builds an integrator for the 4-state plant.
func New(p *plant.Plant, cfg Config) (*Integrator, error) {
	x0 := cfg.InitState
	if x0 == nil {
		x0 = dynamo.State{0, 0, DefaultInitialTilt, 0}
	}
	return NewFromMatrices(p.A(), p.B(), x0, cfg)
}

// NewFromMatrices builds an integrator over any n-state single-input
// system. A must be n×n, B n×1 and x0 and the gains of length n.
func NewFromMatrices(a, b mat.Matrix, x0 dynamo.State, cfg Config) (*Integrator, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	n, m := a.Dims()
	if n != m || n == 0 {
		return nil, fmt.Errorf("A is %dx%d: %w", n, m, dynamo.ErrDimensionMismatch)
	}
	if br, bc := b.Dims(); br != n || bc != 1 {
		return nil, fmt.Errorf("B is %dx%d, want %dx1: %w", br, bc, n, dynamo.ErrDimensionMismatch)
	}
	if len(x0) != n {
		return nil, fmt.Errorf("initial state has %d entries, want %d: %w", len(x0), n, dynamo.ErrDimensionMismatch)
	}

	gains := make([]float64, n)
	if cfg.Gains != nil {
		if len(cfg.Gains) != n {
			return nil, fmt.Errorf("%d gains for %d states: %w", len(cfg.Gains), n, dynamo.ErrDimensionMismatch)
		}
		copy(gains, cfg.Gains)
	}

	stepper := cfg.Stepper
	if stepper == nil {
		stepper = integrators.NewEuler()
	}
	input := cfg.Input
	if input == nil {
		input = control.NoInput{}
	}

	in := &Integrator{
		a:          mat.DenseCopyOf(a),
		b:          mat.DenseCopyOf(b),
		n:          n,
		dt:         cfg.Dt,
		simLength:  cfg.SimLength,
		perFrame:   cfg.StepsPerFrame,
		stepper:    stepper,
		classifier: cfg.Classifier,
		input:      input,
		x0:         x0.Clone(),
		x:          x0.Clone(),
		gains:      gains,
		dirty:      true,
	}
	return in, nil
}

// SetGains replaces K. The closed-loop matrix and the poles are rebuilt on
// the next Update or Poles call. It panics when len(k) does not match the
// state dimension.
func (in *Integrator) SetGains(k []float64) {
	if len(k) != in.n {
		panic(fmt.Sprintf("sim: %d gains for %d states", len(k), in.n))
	}
	g := make([]float64, in.n)
	copy(g, k)
	in.gains = g
	in.dirty = true
	in.poles = nil
}

// Gains returns a copy of the current K.
func (in *Integrator) Gains() []float64 {
	g := make([]float64, len(in.gains))
	copy(g, in.gains)
	return g
}

func (in *Integrator) SetInput(input control.Input) {
	if input == nil {
		input = control.NoInput{}
	}
	in.input = input
	in.poles = nil
}

// SetPush adds a constant force on top of the input until it is changed
// or the integrator is reset.
func (in *Integrator) SetPush(force float64) {
	in.push = force
}

func (in *Integrator) law() (control.LoopInput, bool) {
	law, ok := in.input.(control.LoopInput)
	return law, ok && in.n == len(control.Gains{})
}

// LoopGains returns the gains that close the loop: those of a feedback-law
// input when one is installed, otherwise K.
func (in *Integrator) LoopGains() []float64 {
	if law, ok := in.law(); ok {
		k := law.LoopGains()
		return k.Slice()
	}
	return in.Gains()
}

// SetLoopGains hands k to a feedback-law input when one is installed, so
// the loop is never closed twice, and sets K otherwise.
func (in *Integrator) SetLoopGains(k []float64) {
	law, ok := in.law()
	if !ok {
		in.SetGains(k)
		return
	}
	lk, err := control.GainsFromSlice(k)
	if err != nil {
		panic(fmt.Sprintf("sim: %v", err))
	}
	in.input = law.WithGains(lk)
	in.poles = nil
}

// poleGains is K plus the gains of a feedback-law input, the row whose
// A − B·row is the loop actually integrated.
func (in *Integrator) poleGains() []float64 {
	k := in.Gains()
	if law, ok := in.law(); ok {
		lk := law.LoopGains()
		for i := range k {
			k[i] += lk[i]
		}
	}
	return k
}

// feedback is the force −K·x that A_cl applies implicitly.
func (in *Integrator) feedback(x dynamo.State) float64 {
	u := 0.0
	for j, k := range in.gains {
		u -= k * x[j]
	}
	return u
}

func (in *Integrator) refresh() {
	if !in.dirty {
		return
	}
	in.acl = control.ClosedLoop(in.a, in.b, in.gains)
	in.dirty = false
}

// ClosedLoop returns a copy of A − B·K for the integrator gains. A
// feedback-law input is not part of it.
func (in *Integrator) ClosedLoop() *mat.Dense {
	in.refresh()
	return mat.DenseCopyOf(in.acl)
}

// Update advances the state by one step. Once the step budget is spent,
// or after Fail, it returns the terminal state unchanged.
func (in *Integrator) Update() dynamo.State {
	if in.phase == Complete || in.phase == Failed {
		return in.x.Clone()
	}
	in.refresh()

	fb := in.feedback(in.x)
	u := in.input.Force(in.x, in.t) + in.push
	next := in.stepper.Step(closedLoop{in}, in.x, dynamo.Control{u}, in.t, in.dt)
	if len(next) != in.n {
		panic(fmt.Sprintf("sim: stepper returned %d states, want %d", len(next), in.n))
	}

	in.x = next
	in.t += in.dt
	in.cursor++
	in.lastU = fb + u

	if in.cursor >= in.simLength {
		in.phase = Complete
	} else {
		in.phase = Stepping
	}
	return in.x.Clone()
}

// Frame runs StepsPerFrame updates. A non-zero disturbance is added to the
// last state component (the tilt rate of the plant) before the first one.
func (in *Integrator) Frame(disturbance float64) (dynamo.State, bool) {
	if disturbance != 0 && !in.Complete() && in.phase != Failed {
		in.x[in.n-1] += disturbance
	}
	for i := 0; i < in.perFrame && !in.Complete() && in.phase != Failed; i++ {
		in.Update()
	}
	return in.x.Clone(), in.Complete()
}

// Poles returns the eigenvalues of A − B·(K + K_law), sorted by real part,
// where K_law are the gains of a feedback-law input. The result is cached
// until the gains or the input change.
func (in *Integrator) Poles() ([]poles.Pole, error) {
	if in.poles == nil {
		ps, err := poles.Compute(control.ClosedLoop(in.a, in.b, in.poleGains()))
		if err != nil {
			return nil, err
		}
		in.poles = ps
	}
	out := make([]poles.Pole, len(in.poles))
	copy(out, in.poles)
	return out, nil
}

func (in *Integrator) Classifier() poles.Classifier { return in.classifier }

// Stability is the worst classification among the current poles.
func (in *Integrator) Stability() (poles.Stability, error) {
	ps, err := in.Poles()
	if err != nil {
		return poles.Stable, err
	}
	return in.classifier.Worst(ps), nil
}

func (in *Integrator) State() Snapshot {
	return Snapshot{
		X:      in.x.Clone(),
		T:      in.t,
		Step:   in.cursor,
		Force:  in.lastU,
		Phase:  in.phase,
		Reason: in.reason,
	}
}

func (in *Integrator) Complete() bool { return in.phase == Complete }

func (in *Integrator) Phase() Phase { return in.phase }

func (in *Integrator) Dt() float64 { return in.dt }

func (in *Integrator) SimLength() int { return in.simLength }

// Fail records a failure detected by the caller. The integrator never
// decides failure on its own.
func (in *Integrator) Fail(reason string) {
	if in.phase == Complete {
		return
	}
	in.phase = Failed
	in.reason = reason
}

// Reset restores the initial state and rewinds time and the cursor. Gains
// and input are kept.
func (in *Integrator) Reset() {
	in.x = in.x0.Clone()
	in.t = 0
	in.cursor = 0
	in.lastU = 0
	in.push = 0
	in.phase = Ready
	in.reason = ""
}

// closedLoop adapts the integrator's A_cl and B to dynamo.System so any
// stepper can advance it.
type closedLoop struct {
	in *Integrator
}

func (c closedLoop) Derive(x dynamo.State, u dynamo.Control, t float64) dynamo.State {
	if len(x) != c.in.n {
		panic(fmt.Sprintf("sim: state has %d entries, want %d", len(x), c.in.n))
	}
	force := 0.0
	if len(u) > 0 {
		force = u[0]
	}
	dx := make(dynamo.State, c.in.n)
	for i := range dx {
		sum := c.in.b.At(i, 0) * force
		for j := 0; j < c.in.n; j++ {
			sum += c.in.acl.At(i, j) * x[j]
		}
		dx[i] = sum
	}
	return dx
}

func (c closedLoop) StateDim() int   { return c.in.n }
func (c closedLoop) ControlDim() int { return 1 }
