package automation

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/san-kum/conesim/internal/config"
	"github.com/san-kum/conesim/internal/control"
	"github.com/san-kum/conesim/internal/dynamo"
)

const demoScenario = `
name: demo
description: settle, fall, then a poke from rest
steps:
  - preset: default
    sim_length: 300
  - preset: fall
    save_as: falling
  - gains: [-1296.6, -3161.2, -31800, -9831]
    init_state: [0, 0, 0, 0]
    sim_length: 100
    disturbances:
      - step: 10
        impulse: 0.2
`

func writeScenario(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadScenario(t *testing.T) {
	sc, err := LoadScenario(writeScenario(t, demoScenario))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if sc.Name != "demo" || len(sc.Steps) != 3 {
		t.Fatalf("got %q with %d steps", sc.Name, len(sc.Steps))
	}
	if got := sc.Steps[2].Disturbances; len(got) != 1 || got[0].Step != 10 || got[0].Impulse != 0.2 {
		t.Errorf("disturbances = %+v", got)
	}

	labels := []string{"default", "falling", "step-3"}
	for i, want := range labels {
		if got := sc.Steps[i].Label(i); got != want {
			t.Errorf("label %d = %q, want %q", i, got, want)
		}
	}
}

func TestLoadScenarioErrors(t *testing.T) {
	if _, err := LoadScenario(writeScenario(t, "name: empty\n")); !errors.Is(err, dynamo.ErrConfiguration) {
		t.Errorf("empty scenario: got %v", err)
	}
	if _, err := LoadScenario(writeScenario(t, "steps: [")); err == nil {
		t.Error("expected parse error")
	}
	if _, err := LoadScenario(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestStepConfig(t *testing.T) {
	base := config.DefaultConfig()

	tests := []struct {
		name    string
		step    ScenarioStep
		wantErr error
		check   func(*testing.T, *config.Config)
	}{
		{
			name: "preset",
			step: ScenarioStep{Preset: "fine"},
			check: func(t *testing.T, c *config.Config) {
				if c.Integration.Dt != 0.001 || c.Integration.StepsPerFrame != 10 {
					t.Errorf("integration = %+v", c.Integration)
				}
			},
		},
		{
			name: "overrides",
			step: ScenarioStep{Stepper: "rk4", Gains: []float64{1, 2, 3, 4}, Dt: 0.005, InitState: []float64{0.1, 0, 0, 0}},
			check: func(t *testing.T, c *config.Config) {
				if c.Integration.Stepper != "rk4" || c.Integration.Dt != 0.005 {
					t.Errorf("integration = %+v", c.Integration)
				}
				if c.Controller.Gains != (control.Gains{1, 2, 3, 4}) {
					t.Errorf("gains = %v", c.Controller.Gains)
				}
				if c.InitState.Position != 0.1 || c.InitState.Tilt != 0 {
					t.Errorf("init = %+v", c.InitState)
				}
			},
		},
		{name: "unknown preset", step: ScenarioStep{Preset: "nope"}, wantErr: dynamo.ErrConfiguration},
		{name: "short gains", step: ScenarioStep{Gains: []float64{1, 2}}, wantErr: dynamo.ErrDimensionMismatch},
		{name: "short init", step: ScenarioStep{InitState: []float64{0}}, wantErr: dynamo.ErrDimensionMismatch},
		{name: "bad stepper", step: ScenarioStep{Stepper: "leapfrog"}, wantErr: dynamo.ErrConfiguration},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := tt.step.Config(base)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("got %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("config: %v", err)
			}
			tt.check(t, cfg)
		})
	}

	if base.Integration.Dt != config.DefaultDt || base.Controller.Gains != control.DefaultGains {
		t.Errorf("base config was modified: %+v", base)
	}
}

func TestRunScenario(t *testing.T) {
	sc, err := LoadScenario(writeScenario(t, demoScenario))
	if err != nil {
		t.Fatal(err)
	}

	results, err := RunScenario(context.Background(), sc, config.DefaultConfig(), nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results", len(results))
	}

	if r := results[0].Result; r.Failure != "" || r.StepsTaken != 300 {
		t.Errorf("default step: failure %q after %d steps", r.Failure, r.StepsTaken)
	}
	if r := results[1]; r.Label != "falling" || r.Result.Failure == "" {
		t.Errorf("fall step: label %q failure %q", r.Label, r.Result.Failure)
	}
	if r := results[2].Result; r.Metrics["peak_tilt"] <= 0 {
		t.Errorf("poke from rest left tilt at %v", r.Metrics["peak_tilt"])
	}
}

func TestRunScenarioStopsOnBadStep(t *testing.T) {
	sc := &Scenario{Steps: []ScenarioStep{
		{SimLength: 10},
		{Preset: "missing"},
		{SimLength: 10},
	}}
	results, err := RunScenario(context.Background(), sc, config.DefaultConfig(), nil)
	if !errors.Is(err, dynamo.ErrConfiguration) {
		t.Fatalf("got %v", err)
	}
	if len(results) != 1 {
		t.Errorf("got %d results before the bad step, want 1", len(results))
	}
}

func TestMonteCarloDeterministic(t *testing.T) {
	base := config.DefaultConfig().Experiment()
	base.SimLength = 50

	a, err := RunMonteCarlo(context.Background(), base, 6, 42)
	if err != nil {
		t.Fatal(err)
	}
	b, err := RunMonteCarlo(context.Background(), base, 6, 42)
	if err != nil {
		t.Fatal(err)
	}

	for i := range a {
		if a[i].ID != i || a[i].Seed != 42+int64(i) {
			t.Errorf("trial %d: id %d seed %d", i, a[i].ID, a[i].Seed)
		}
		for j := range a[i].Init {
			if a[i].Init[j] != b[i].Init[j] {
				t.Errorf("trial %d init differs: %v vs %v", i, a[i].Init, b[i].Init)
				break
			}
		}
		if a[i].Init[2] < -0.2 || a[i].Init[2] > 0.2 {
			t.Errorf("trial %d tilt %v out of range", i, a[i].Init[2])
		}
	}
	if a[0].Init[0] == a[1].Init[0] {
		t.Error("trials share an initial state")
	}
}

func TestMonteCarloOpenLoopFalls(t *testing.T) {
	trials, err := RunMonteCarlo(context.Background(), config.GetPreset("open").Experiment(), 8, 1)
	if err != nil {
		t.Fatal(err)
	}
	survived, failed := MonteCarloStats(trials)
	if survived != 0 || failed != 8 {
		t.Errorf("survived %d failed %d, want 0 and 8", survived, failed)
	}
}

func TestMonteCarloErrors(t *testing.T) {
	base := config.DefaultConfig().Experiment()
	if _, err := RunMonteCarlo(context.Background(), base, 0, 1); !errors.Is(err, dynamo.ErrConfiguration) {
		t.Errorf("zero trials: got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := RunMonteCarlo(ctx, base, 4, 1); !errors.Is(err, dynamo.ErrContextCanceled) {
		t.Errorf("canceled: got %v", err)
	}
}
