package storage

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/san-kum/conesim/internal/dynamo"
	"github.com/san-kum/conesim/internal/poles"
)

var (
	ErrRunNotFound  = errors.New("storage: run not found")
	ErrAmbiguousRun = errors.New("storage: run id prefix matches several runs")
)

const (
	metadataFile = "metadata.json"
	statesFile   = "states.csv"
)

// Store keeps one directory per run under baseDir.
type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

type PoleRecord struct {
	Real      float64 `json:"real"`
	Imag      float64 `json:"imag"`
	Stability string  `json:"stability"`
}

func NewPoleRecords(ps []poles.Pole, c poles.Classifier) []PoleRecord {
	out := make([]PoleRecord, len(ps))
	for i, p := range ps {
		out[i] = PoleRecord{Real: p.Real(), Imag: p.Imag(), Stability: c.Classify(p).String()}
	}
	return out
}

type RunMetadata struct {
	ID            string             `json:"id"`
	Preset        string             `json:"preset,omitempty"`
	Timestamp     time.Time          `json:"timestamp"`
	Seed          int64              `json:"seed"`
	Dt            float64            `json:"dt"`
	SimLength     int                `json:"sim_length"`
	StepsPerFrame int                `json:"steps_per_frame"`
	Stepper       string             `json:"stepper"`
	Input         string             `json:"input"`
	Gains         [4]float64         `json:"gains"`
	Poles         []PoleRecord       `json:"poles,omitempty"`
	Metrics       map[string]float64 `json:"metrics"`
	Failure       string             `json:"failure,omitempty"`
	StepsTaken    int                `json:"steps_taken"`
}

// Trajectory is the stored time series of a run.
type Trajectory struct {
	Times  []float64
	States []dynamo.State
	Forces []float64
}

func (t Trajectory) Len() int { return len(t.Times) }

// Column returns state component i over time.
func (t Trajectory) Column(i int) []float64 {
	out := make([]float64, len(t.States))
	for k, x := range t.States {
		if i < len(x) {
			out[k] = x[i]
		}
	}
	return out
}

// Save writes the metadata and the states of a run and returns the new
// run id. ID and Timestamp of meta are filled in.
func (s *Store) Save(meta RunMetadata, result *dynamo.Result) (string, error) {
	meta.ID = uuid.NewString()
	meta.Timestamp = time.Now().UTC()
	meta.Metrics = result.Metrics
	meta.Failure = result.Failure
	meta.StepsTaken = result.StepsTaken

	runDir := filepath.Join(s.baseDir, meta.ID)
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", err
	}

	if err := writeJSON(filepath.Join(runDir, metadataFile), meta); err != nil {
		return "", err
	}

	f, err := os.Create(filepath.Join(runDir, statesFile))
	if err != nil {
		return "", err
	}
	defer f.Close()

	if err := writeStates(f, result); err != nil {
		return "", err
	}
	return meta.ID, f.Close()
}

func writeJSON(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return err
	}
	return f.Close()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func writeStates(w io.Writer, result *dynamo.Result) error {
	cw := csv.NewWriter(w)

	n := 0
	if len(result.States) > 0 {
		n = len(result.States[0])
	}
	header := []string{"time"}
	for i := 0; i < n; i++ {
		header = append(header, fmt.Sprintf("x%d", i+1))
	}
	header = append(header, "u")
	if err := cw.Write(header); err != nil {
		return err
	}

	for i, x := range result.States {
		row := make([]string, 0, n+2)
		row = append(row, formatFloat(result.Times[i]))
		for _, v := range x {
			row = append(row, formatFloat(v))
		}
		u := 0.0
		if i < len(result.Controls) && len(result.Controls[i]) > 0 {
			u = result.Controls[i][0]
		}
		row = append(row, formatFloat(u))
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// List returns all readable runs, newest first.
func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunMetadata{}, nil
		}
		return nil, err
	}

	runs := make([]RunMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		meta, err := s.readMetadata(entry.Name())
		if err != nil {
			continue
		}
		runs = append(runs, *meta)
	}

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].Timestamp.After(runs[j].Timestamp)
	})
	return runs, nil
}

// Resolve expands a unique id prefix to the full run id.
func (s *Store) Resolve(prefix string) (string, error) {
	if prefix == "" {
		return "", ErrRunNotFound
	}
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%s: %w", prefix, ErrRunNotFound)
		}
		return "", err
	}

	var match string
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), prefix) {
			continue
		}
		if entry.Name() == prefix {
			return prefix, nil
		}
		if match != "" {
			return "", fmt.Errorf("%s: %w", prefix, ErrAmbiguousRun)
		}
		match = entry.Name()
	}
	if match == "" {
		return "", fmt.Errorf("%s: %w", prefix, ErrRunNotFound)
	}
	return match, nil
}

func (s *Store) readMetadata(runID string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, metadataFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: %w", runID, ErrRunNotFound)
		}
		return nil, err
	}

	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("%s: %w", runID, err)
	}
	return &meta, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	id, err := s.Resolve(runID)
	if err != nil {
		return nil, err
	}
	return s.readMetadata(id)
}

func (s *Store) LoadStates(runID string) (*Trajectory, error) {
	id, err := s.Resolve(runID)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(filepath.Join(s.baseDir, id, statesFile))
	if err != nil {
		return nil, err
	}
	defer file.Close()

	r := csv.NewReader(file)
	r.FieldsPerRecord = -1

	records, err := r.ReadAll()
	if err != nil {
		return nil, err
	}

	traj := &Trajectory{}
	if len(records) < 2 {
		return traj, nil
	}

	for _, record := range records[1:] {
		if len(record) < 2 {
			continue
		}
		vals := make([]float64, len(record))
		for j, field := range record {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, fmt.Errorf("%s: bad value %q: %w", statesFile, field, err)
			}
			vals[j] = v
		}
		traj.Times = append(traj.Times, vals[0])
		traj.States = append(traj.States, dynamo.State(vals[1:len(vals)-1]))
		traj.Forces = append(traj.Forces, vals[len(vals)-1])
	}
	return traj, nil
}

// CopyStates streams the raw states.csv of a run.
func (s *Store) CopyStates(w io.Writer, runID string) error {
	id, err := s.Resolve(runID)
	if err != nil {
		return err
	}
	f, err := os.Open(filepath.Join(s.baseDir, id, statesFile))
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(w, f)
	return err
}
