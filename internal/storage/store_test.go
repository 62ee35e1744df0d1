package storage

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/san-kum/conesim/internal/dynamo"
	"github.com/san-kum/conesim/internal/poles"
)

func testResult() *dynamo.Result {
	return &dynamo.Result{
		States: []dynamo.State{
			{0, 0, 0.05, 0},
			{0.001, 0.1, 0.0499, -0.01},
			{0.002, 0.2, 1.5e-9, -0.02},
		},
		Controls: []dynamo.Control{{0}, {12.5}, {-3}},
		Times:    []float64{0, 0.01, 0.02},
		Metrics: map[string]float64{
			"peak_tilt": 0.05,
		},
		StepsTaken: 2,
	}
}

func TestStoreSaveLoad(t *testing.T) {
	st := New(t.TempDir())
	if err := st.Init(); err != nil {
		t.Fatalf("init failed: %v", err)
	}

	meta := RunMetadata{
		Preset:  "stiff",
		Seed:    42,
		Dt:      0.01,
		Stepper: "euler",
		Gains:   [4]float64{-1296.6, -3161.2, -31800, -9831},
		Poles: NewPoleRecords([]poles.Pole{{Value: complex(-0.8, 2.8)}, {Value: 0.3}},
			poles.DefaultClassifier()),
	}
	runID, err := st.Save(meta, testResult())
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if len(runID) != 36 {
		t.Errorf("expected uuid run id, got %q", runID)
	}

	got, err := st.Load(runID)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if got.Preset != "stiff" || got.Seed != 42 || got.StepsTaken != 2 {
		t.Errorf("metadata = %+v", got)
	}
	if got.Metrics["peak_tilt"] != 0.05 {
		t.Errorf("expected peak tilt 0.05, got %v", got.Metrics["peak_tilt"])
	}
	if len(got.Poles) != 2 || got.Poles[1].Stability != "unstable" {
		t.Errorf("poles = %+v", got.Poles)
	}

	traj, err := st.LoadStates(runID)
	if err != nil {
		t.Fatalf("load states failed: %v", err)
	}
	if traj.Len() != 3 || len(traj.States[0]) != 4 {
		t.Fatalf("trajectory = %+v", traj)
	}
	if traj.States[2][2] != 1.5e-9 {
		t.Errorf("small value lost: %v", traj.States[2][2])
	}
	if traj.Forces[1] != 12.5 {
		t.Errorf("force = %v", traj.Forces[1])
	}
	if col := traj.Column(1); col[2] != 0.2 {
		t.Errorf("velocity column = %v", col)
	}
}

func TestStatesHeader(t *testing.T) {
	dir := t.TempDir()
	st := New(dir)
	runID, err := st.Save(RunMetadata{}, testResult())
	if err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := st.CopyStates(&buf, runID); err != nil {
		t.Fatal(err)
	}
	first := strings.SplitN(buf.String(), "\n", 2)[0]
	if first != "time,x1,x2,x3,x4,u" {
		t.Errorf("header = %q", first)
	}
}

func TestStoreList(t *testing.T) {
	st := New(t.TempDir())
	if err := st.Init(); err != nil {
		t.Fatal(err)
	}

	first, _ := st.Save(RunMetadata{Preset: "a"}, testResult())
	second, _ := st.Save(RunMetadata{Preset: "b"}, testResult())

	runs, err := st.List()
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	ids := map[string]bool{runs[0].ID: true, runs[1].ID: true}
	if !ids[first] || !ids[second] {
		t.Errorf("listed %v", ids)
	}
	if runs[0].Timestamp.Before(runs[1].Timestamp) {
		t.Error("runs not sorted newest first")
	}
}

func TestListMissingDir(t *testing.T) {
	st := New(filepath.Join(t.TempDir(), "nope"))
	runs, err := st.List()
	if err != nil || len(runs) != 0 {
		t.Errorf("runs = %v, err = %v", runs, err)
	}
}

func TestResolve(t *testing.T) {
	dir := t.TempDir()
	st := New(dir)
	for _, name := range []string{"abc123", "abd456"} {
		if err := os.MkdirAll(filepath.Join(dir, name), 0755); err != nil {
			t.Fatal(err)
		}
	}

	tests := []struct {
		prefix string
		want   string
		err    error
	}{
		{"abc", "abc123", nil},
		{"abd456", "abd456", nil},
		{"ab", "", ErrAmbiguousRun},
		{"zz", "", ErrRunNotFound},
		{"", "", ErrRunNotFound},
	}
	for _, tt := range tests {
		got, err := st.Resolve(tt.prefix)
		if got != tt.want || !errors.Is(err, tt.err) {
			t.Errorf("Resolve(%q) = %q, %v; want %q, %v", tt.prefix, got, err, tt.want, tt.err)
		}
	}
}

func TestExportJSON(t *testing.T) {
	st := New(t.TempDir())
	runID, err := st.Save(RunMetadata{Preset: "default", Dt: 0.01}, testResult())
	if err != nil {
		t.Fatal(err)
	}
	meta, _ := st.Load(runID)
	traj, _ := st.LoadStates(runID)

	var buf bytes.Buffer
	if err := ExportJSON(&buf, meta, traj); err != nil {
		t.Fatalf("export: %v", err)
	}

	var got ExportData
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Steps != 3 || got.Run.ID != runID || got.Run.Preset != "default" {
		t.Errorf("export = %+v", got.Run)
	}
	if got.States[1][1] != 0.1 {
		t.Errorf("states = %v", got.States)
	}
}
