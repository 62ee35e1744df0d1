package sim

import (
	"errors"
	"math"
	"testing"

	"github.com/san-kum/conesim/internal/control"
	"github.com/san-kum/conesim/internal/dynamo"
	"github.com/san-kum/conesim/internal/integrators"
	"github.com/san-kum/conesim/internal/plant"
	"github.com/san-kum/conesim/internal/poles"
	"gonum.org/v1/gonum/mat"
)

func doubleIntegrator(t *testing.T, steps int) *Integrator {
	t.Helper()
	a := mat.NewDense(2, 2, []float64{0, 1, 0, 0})
	b := mat.NewDense(2, 1, nil)
	cfg := Config{Dt: 0.01, SimLength: steps, StepsPerFrame: 1}
	in, err := NewFromMatrices(a, b, dynamo.State{0, 1}, cfg)
	if err != nil {
		t.Fatalf("NewFromMatrices: %v", err)
	}
	return in
}

func defaultIntegrator(t *testing.T, gains control.Gains, steps int) *Integrator {
	t.Helper()
	p, err := plant.Build(plant.DefaultParameters())
	if err != nil {
		t.Fatalf("build plant: %v", err)
	}
	cfg := DefaultConfig()
	cfg.Gains = gains.Slice()
	cfg.SimLength = steps
	in, err := New(p, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return in
}

func TestEulerStepOnDoubleIntegrator(t *testing.T) {
	in := doubleIntegrator(t, 100)

	for i := 0; i < 100; i++ {
		in.Update()
	}

	s := in.State()
	if math.Abs(s.X[0]-1) > 1e-9 {
		t.Errorf("x1 = %v, want 1", s.X[0])
	}
	if s.X[1] != 1 {
		t.Errorf("x2 = %v, want exactly 1", s.X[1])
	}
	if math.Abs(s.T-1) > 1e-9 {
		t.Errorf("t = %v, want 1", s.T)
	}
	if s.Step != 100 {
		t.Errorf("step = %d, want 100", s.Step)
	}
	if !in.Complete() {
		t.Error("expected completion after the step budget")
	}
}

func TestUpdateAfterCompletionIsNoOp(t *testing.T) {
	in := doubleIntegrator(t, 5)
	for !in.Complete() {
		in.Update()
	}
	terminal := in.State()

	for i := 0; i < 10; i++ {
		x := in.Update()
		if x[0] != terminal.X[0] || x[1] != terminal.X[1] {
			t.Fatalf("call %d changed state: %v -> %v", i, terminal.X, x)
		}
	}
	after := in.State()
	if after.T != terminal.T || after.Step != terminal.Step {
		t.Errorf("time or cursor moved: %+v -> %+v", terminal, after)
	}
}

func TestPhases(t *testing.T) {
	in := doubleIntegrator(t, 3)
	if in.Phase() != Ready {
		t.Errorf("initial phase = %v", in.Phase())
	}
	in.Update()
	if in.Phase() != Stepping {
		t.Errorf("phase after one step = %v", in.Phase())
	}
	in.Update()
	in.Update()
	if in.Phase() != Complete {
		t.Errorf("phase after budget = %v", in.Phase())
	}

	in.Reset()
	if in.Phase() != Ready || in.State().Step != 0 || in.State().T != 0 {
		t.Errorf("reset left %+v", in.State())
	}
	if in.State().X[0] != 0 || in.State().X[1] != 1 {
		t.Errorf("reset state = %v", in.State().X)
	}
}

func TestFailStopsStepping(t *testing.T) {
	in := doubleIntegrator(t, 100)
	in.Update()
	in.Fail("tilt limit")

	before := in.State()
	in.Update()
	in.Frame(1)
	after := in.State()

	if in.Phase() != Failed {
		t.Errorf("phase = %v, want failed", in.Phase())
	}
	if after.Step != before.Step || after.X[1] != before.X[1] {
		t.Errorf("failed integrator advanced: %+v -> %+v", before, after)
	}
	if after.Reason != "tilt limit" {
		t.Errorf("reason = %q", after.Reason)
	}
	if in.Complete() {
		t.Error("failed run should not report completion")
	}
}

func TestConfigurationErrors(t *testing.T) {
	a := mat.NewDense(2, 2, nil)
	b := mat.NewDense(2, 1, nil)
	x0 := dynamo.State{0, 0}

	tests := []struct {
		name string
		cfg  Config
	}{
		{"zero dt", Config{Dt: 0, SimLength: 10, StepsPerFrame: 1}},
		{"negative dt", Config{Dt: -0.01, SimLength: 10, StepsPerFrame: 1}},
		{"NaN dt", Config{Dt: math.NaN(), SimLength: 10, StepsPerFrame: 1}},
		{"zero budget", Config{Dt: 0.01, SimLength: 0, StepsPerFrame: 1}},
		{"zero ministeps", Config{Dt: 0.01, SimLength: 10, StepsPerFrame: 0}},
	}
	for _, tt := range tests {
		_, err := NewFromMatrices(a, b, x0, tt.cfg)
		if !errors.Is(err, dynamo.ErrConfiguration) {
			t.Errorf("%s: err = %v, want ErrConfiguration", tt.name, err)
		}
	}
}

func TestDimensionMismatch(t *testing.T) {
	cfg := Config{Dt: 0.01, SimLength: 10, StepsPerFrame: 1}

	tests := []struct {
		name string
		a, b mat.Matrix
		x0   dynamo.State
		k    []float64
	}{
		{"non-square A", mat.NewDense(2, 3, nil), mat.NewDense(2, 1, nil), dynamo.State{0, 0}, nil},
		{"B rows", mat.NewDense(2, 2, nil), mat.NewDense(3, 1, nil), dynamo.State{0, 0}, nil},
		{"B columns", mat.NewDense(2, 2, nil), mat.NewDense(2, 2, nil), dynamo.State{0, 0}, nil},
		{"state length", mat.NewDense(2, 2, nil), mat.NewDense(2, 1, nil), dynamo.State{0}, nil},
		{"gain length", mat.NewDense(2, 2, nil), mat.NewDense(2, 1, nil), dynamo.State{0, 0}, []float64{1}},
	}
	for _, tt := range tests {
		c := cfg
		c.Gains = tt.k
		_, err := NewFromMatrices(tt.a, tt.b, tt.x0, c)
		if !errors.Is(err, dynamo.ErrDimensionMismatch) {
			t.Errorf("%s: err = %v, want ErrDimensionMismatch", tt.name, err)
		}
	}
}

func TestSetGainsPanicsOnWrongLength(t *testing.T) {
	in := doubleIntegrator(t, 10)
	defer func() {
		if recover() == nil {
			t.Error("expected panic")
		}
	}()
	in.SetGains([]float64{1, 2, 3})
}

func TestSetGainsInvalidatesPoles(t *testing.T) {
	in := defaultIntegrator(t, control.DefaultGains, 10)

	before, err := in.Poles()
	if err != nil {
		t.Fatalf("poles: %v", err)
	}

	stiff := control.Gains{-2196.6, -4761.2, -51800, -18831}
	in.SetGains(stiff.Slice())

	after, err := in.Poles()
	if err != nil {
		t.Fatalf("poles: %v", err)
	}

	same := true
	for i := range before {
		if before[i].Value != after[i].Value {
			same = false
		}
	}
	if same {
		t.Errorf("poles unchanged after gain change: %v", after)
	}
	if got := after[0].Real(); math.Abs(got+4.2322) > 1e-3 {
		t.Errorf("leftmost stiff pole = %v, want about -4.2322", got)
	}
}

func TestSetGainsCopies(t *testing.T) {
	in := doubleIntegrator(t, 10)
	k := []float64{1, 2}
	in.SetGains(k)
	k[0] = 99
	if g := in.Gains(); g[0] != 1 {
		t.Errorf("gains aliased caller slice: %v", g)
	}
}

func TestDefaultGainsPoles(t *testing.T) {
	in := defaultIntegrator(t, control.DefaultGains, 10)
	ps, err := in.Poles()
	if err != nil {
		t.Fatalf("poles: %v", err)
	}
	if len(ps) != 4 {
		t.Fatalf("got %d poles", len(ps))
	}

	want := []complex128{
		complex(-1.7695, 0),
		complex(-0.8452, -2.826),
		complex(-0.8452, 2.826),
		complex(-0.5957, 0),
	}
	for i, p := range ps {
		if math.Abs(p.Real()-real(want[i])) > 2e-3 || math.Abs(p.Imag()-imag(want[i])) > 2e-3 {
			t.Errorf("pole %d = %v, want about %v", i, p, want[i])
		}
	}
	if s, _ := in.Stability(); s != poles.Stable {
		t.Errorf("stability = %v", s)
	}
}

func TestPresetsConvergeOrDiverge(t *testing.T) {
	tests := []struct {
		name     string
		gains    control.Gains
		stable   bool
		stepping poles.Stability
	}{
		{"default", control.DefaultGains, true, poles.Stable},
		{"stiff", control.Gains{-2196.6, -4761.2, -51800, -18831}, true, poles.Stable},
		{"soft", control.Gains{-1196.6, -3761.2, -11800, -8831}, false, poles.Unstable},
		{"fall", control.Gains{-9050, -3150, -4800, -9750}, false, poles.Unstable},
	}
	for _, tt := range tests {
		in := defaultIntegrator(t, tt.gains, 2000)
		for !in.Complete() {
			in.Update()
		}
		tilt := math.Abs(in.State().Tilt())
		if tt.stable && tilt > 1e-3 {
			t.Errorf("%s: final tilt %v, expected decay", tt.name, tilt)
		}
		if !tt.stable && !(tilt > 1) {
			t.Errorf("%s: final tilt %v, expected divergence", tt.name, tilt)
		}
		if s, err := in.Stability(); err != nil || s != tt.stepping {
			t.Errorf("%s: stability = %v, %v; want %v", tt.name, s, err, tt.stepping)
		}
	}
}

func TestOpenLoopFallsOver(t *testing.T) {
	in := defaultIntegrator(t, control.Gains{}, 500)
	for !in.Complete() {
		in.Update()
	}
	if tilt := in.State().Tilt(); !(tilt > 0.05) {
		t.Errorf("open loop tilt %v should grow", tilt)
	}
}

func TestFrameRunsMinisteps(t *testing.T) {
	a := mat.NewDense(2, 2, []float64{0, 1, 0, 0})
	b := mat.NewDense(2, 1, nil)
	in, err := NewFromMatrices(a, b, dynamo.State{0, 0}, Config{Dt: 0.01, SimLength: 25, StepsPerFrame: 10})
	if err != nil {
		t.Fatal(err)
	}

	x, done := in.Frame(2)
	if done {
		t.Error("done after first frame")
	}
	if in.State().Step != 10 {
		t.Errorf("step = %d, want 10", in.State().Step)
	}
	if x[1] != 2 {
		t.Errorf("impulse not applied to last state: %v", x)
	}
	if math.Abs(x[0]-0.2) > 1e-12 {
		t.Errorf("x1 = %v, want 0.2", x[0])
	}

	in.Frame(0)
	_, done = in.Frame(0)
	if !done || in.State().Step != 25 {
		t.Errorf("done=%v step=%d, want true/25", done, in.State().Step)
	}
}

func TestFeedbackLawMatchesGains(t *testing.T) {
	withGains := defaultIntegrator(t, control.DefaultGains, 200)
	withLaw := defaultIntegrator(t, control.Gains{}, 200)
	withLaw.SetInput(control.NewFeedbackLaw(control.DefaultGains, nil))

	for i := 0; i < 200; i++ {
		withGains.Update()
		withLaw.Update()
	}

	a, b := withGains.State().X, withLaw.State().X
	for i := range a {
		if math.Abs(a[i]-b[i]) > 1e-9*(1+math.Abs(a[i])) {
			t.Errorf("x%d: gains %v, feedback law %v", i+1, a[i], b[i])
		}
	}
}

func TestManualForceMovesCart(t *testing.T) {
	pushed := defaultIntegrator(t, control.Gains{}, 10)
	pushed.SetInput(control.ManualForce{Value: 100})
	free := defaultIntegrator(t, control.Gains{}, 10)
	pushed.Update()
	free.Update()

	s, f := pushed.State(), free.State()
	if s.Force != 100 {
		t.Errorf("force = %v", s.Force)
	}
	// b2 > 0 and b4 < 0: a push speeds the cart up and tips the ball back.
	if !(s.Velocity() > f.Velocity()) || !(s.TiltRate() < f.TiltRate()) {
		t.Errorf("pushed %v, free %v", s.X, f.X)
	}
	if s.Position() != f.Position() || s.Tilt() != f.Tilt() {
		t.Errorf("one step should only touch the rates: %v vs %v", s.X, f.X)
	}
}

func TestRK4Stepper(t *testing.T) {
	a := mat.NewDense(2, 2, []float64{0, 1, -1, 0})
	b := mat.NewDense(2, 1, nil)
	cfg := Config{Dt: 0.01, SimLength: 100, StepsPerFrame: 1, Stepper: integrators.NewRK4()}
	in, err := NewFromMatrices(a, b, dynamo.State{1, 0}, cfg)
	if err != nil {
		t.Fatal(err)
	}
	for !in.Complete() {
		in.Update()
	}
	if x := in.State().X[0]; math.Abs(x-math.Cos(1)) > 1e-7 {
		t.Errorf("x1 = %v, want cos(1)", x)
	}
}

func TestIndependentInstances(t *testing.T) {
	first := doubleIntegrator(t, 50)
	second := doubleIntegrator(t, 50)
	for i := 0; i < 20; i++ {
		first.Update()
	}
	if second.State().Step != 0 {
		t.Errorf("second integrator cursor = %d", second.State().Step)
	}
	second.Update()
	if second.State().Step != 1 || first.State().Step != 20 {
		t.Errorf("cursors = %d, %d", first.State().Step, second.State().Step)
	}
}

func mustMatrices(t *testing.T, a []float64) *Integrator {
	t.Helper()
	n := int(math.Sqrt(float64(len(a))))
	in, err := NewFromMatrices(mat.NewDense(n, n, a), mat.NewDense(n, 1, nil), make(dynamo.State, n),
		Config{Dt: 0.01, SimLength: 1000, StepsPerFrame: 1})
	if err != nil {
		t.Fatalf("NewFromMatrices: %v", err)
	}
	return in
}

func TestForceIncludesStateFeedback(t *testing.T) {
	tests := []struct {
		name  string
		input control.Input
		want  float64
	}{
		{"gains only", nil, 31800 * DefaultInitialTilt},
		{"gains and manual", control.ManualForce{Value: 100}, 31800*DefaultInitialTilt + 100},
	}
	for _, tt := range tests {
		in := defaultIntegrator(t, control.DefaultGains, 10)
		in.SetInput(tt.input)
		in.Update()
		if got := in.State().Force; math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("%s: force = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestFeedbackLawPoles(t *testing.T) {
	in := defaultIntegrator(t, control.Gains{}, 10)
	open, err := in.Poles()
	if err != nil {
		t.Fatalf("poles: %v", err)
	}
	if s := in.Classifier().Worst(open); s != poles.Unstable {
		t.Fatalf("open loop stability = %v", s)
	}

	in.SetInput(control.NewFeedbackLaw(control.DefaultGains, nil))
	ps, err := in.Poles()
	if err != nil {
		t.Fatalf("poles: %v", err)
	}
	if math.Abs(ps[0].Real()+1.7695) > 2e-3 || math.Abs(ps[3].Real()+0.5957) > 2e-3 {
		t.Errorf("feedback law poles = %v, want the default gain poles", ps)
	}
	if s, _ := in.Stability(); s != poles.Stable {
		t.Errorf("stability = %v", s)
	}
}

func TestSetLoopGainsTargetsFeedbackLaw(t *testing.T) {
	stiff := control.Gains{-2196.6, -4761.2, -51800, -18831}

	in := defaultIntegrator(t, control.Gains{}, 10)
	in.SetInput(control.NewFeedbackLaw(control.DefaultGains, nil))
	in.SetLoopGains(stiff[:])

	for i, g := range in.Gains() {
		if g != 0 {
			t.Errorf("integrator gain %d = %v, want 0", i, g)
		}
	}
	if g := in.LoopGains(); g[2] != stiff[2] {
		t.Errorf("loop gains = %v, want %v", g, stiff)
	}
	ps, err := in.Poles()
	if err != nil {
		t.Fatalf("poles: %v", err)
	}
	if math.Abs(ps[0].Real()+4.2322) > 1e-3 {
		t.Errorf("poles = %v, want the stiff set", ps)
	}

	plain := defaultIntegrator(t, control.Gains{}, 10)
	plain.SetLoopGains(stiff[:])
	if g := plain.Gains(); g[2] != stiff[2] {
		t.Errorf("without a law K = %v, want %v", g, stiff)
	}
}

func TestPushAddsToInput(t *testing.T) {
	in := defaultIntegrator(t, control.Gains{}, 10)
	in.SetInput(control.ManualForce{Value: 100})
	in.SetPush(50)
	in.Update()
	if f := in.State().Force; f != 150 {
		t.Errorf("force = %v, want 150", f)
	}

	in.Reset()
	in.Update()
	if f := in.State().Force; f != 100 {
		t.Errorf("push survived reset: force = %v", f)
	}
}
