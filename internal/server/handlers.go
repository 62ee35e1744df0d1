package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"

	"github.com/san-kum/conesim/internal/control"
	"github.com/san-kum/conesim/internal/dynamo"
	"github.com/san-kum/conesim/internal/poles"
	"github.com/san-kum/conesim/internal/sim"
)

// StateResponse is returned by GET /api/state.
type StateResponse struct {
	sim.Snapshot
	Frames int           `json:"frames"`
	Gains  control.Gains `json:"gains"`
	Cut    bool          `json:"control_cut"`
}

type PoleJSON struct {
	Re        float64 `json:"re"`
	Im        float64 `json:"im"`
	Stability string  `json:"stability"`
}

// PolesResponse is returned by GET /api/poles and PUT /api/gains.
type PolesResponse struct {
	Poles     []PoleJSON `json:"poles"`
	Stability string     `json:"stability"`
	Abscissa  float64    `json:"abscissa"`
}

type GainsRequest struct {
	Gains []float64 `json:"gains"`
}

// DisturbRequest carries either a tilt-rate impulse or a pointer offset
// in pixels that is converted the way a mouse poke is.
type DisturbRequest struct {
	Impulse float64 `json:"impulse,omitempty"`
	Offset  float64 `json:"offset,omitempty"`
}

type AckResponse struct {
	Status string `json:"status"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	gains, cut := s.gains, s.cut
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, StateResponse{
		Snapshot: s.session.Snapshot(),
		Frames:   s.session.Frames(),
		Gains:    gains,
		Cut:      cut,
	})
}

func (s *Server) polesResponse() (PolesResponse, error) {
	ps, c, err := s.session.Poles()
	if err != nil {
		return PolesResponse{}, err
	}
	resp := PolesResponse{
		Poles:     make([]PoleJSON, len(ps)),
		Stability: c.Worst(ps).String(),
		Abscissa:  poles.SpectralAbscissa(ps),
	}
	for i, p := range ps {
		resp.Poles[i] = PoleJSON{Re: p.Real(), Im: p.Imag(), Stability: c.Classify(p).String()}
	}
	return resp, nil
}

func (s *Server) handlePoles(w http.ResponseWriter, r *http.Request) {
	resp, err := s.polesResponse()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGains(w http.ResponseWriter, r *http.Request) {
	if !s.limiter.Allow() {
		http.Error(w, "gain updates too frequent", http.StatusTooManyRequests)
		return
	}

	var req GainsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	k, err := control.GainsFromSlice(req.Gains)
	if err == nil {
		err = checkFinite(req.Gains)
	}
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, dynamo.ErrDimensionMismatch) {
			status = http.StatusUnprocessableEntity
		}
		http.Error(w, err.Error(), status)
		return
	}

	s.setGains(k)
	resp, err := s.polesResponse()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func checkFinite(v []float64) error {
	for i, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return fmt.Errorf("gain %d is not finite", i+1)
		}
	}
	return nil
}

func (s *Server) handleDisturb(w http.ResponseWriter, r *http.Request) {
	var req DisturbRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	impulse := req.Impulse
	if req.Offset != 0 {
		impulse += control.PokeImpulse(req.Offset)
	}
	if impulse == 0 || math.IsNaN(impulse) || math.IsInf(impulse, 0) {
		http.Error(w, "impulse or offset required", http.StatusBadRequest)
		return
	}
	s.session.Disturb(impulse)
	writeJSON(w, http.StatusAccepted, AckResponse{Status: "queued"})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	s.reset()
	writeJSON(w, http.StatusOK, AckResponse{Status: "ok"})
}
