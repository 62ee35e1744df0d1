package storage

import (
	"encoding/json"
	"io"
)

type ExportData struct {
	Run    RunMetadata `json:"run"`
	Steps  int         `json:"steps"`
	Times  []float64   `json:"times"`
	States [][]float64 `json:"states"`
	Forces []float64   `json:"forces"`
}

// ExportJSON writes a run and its trajectory as one indented document.
func ExportJSON(w io.Writer, meta *RunMetadata, traj *Trajectory) error {
	data := ExportData{
		Run:    *meta,
		Steps:  traj.Len(),
		Times:  traj.Times,
		States: make([][]float64, len(traj.States)),
		Forces: traj.Forces,
	}
	for i, s := range traj.States {
		data.States[i] = s
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}
