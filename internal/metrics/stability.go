package metrics

import (
	"math"

	"github.com/san-kum/conesim/internal/dynamo"
)

// TiltIndex is the position of the tilt angle in the plant state.
const TiltIndex = 2

// TiltStability is the fraction of samples whose tilt stayed within
// threshold radians. A run that never leaves the band scores 1.
type TiltStability struct {
	name       string
	threshold  float64
	violations int
	samples    int
}

func NewTiltStability(threshold float64) *TiltStability {
	return &TiltStability{
		name:      "tilt_stability",
		threshold: threshold,
	}
}

func (s *TiltStability) Name() string {
	return s.name
}

func (s *TiltStability) Observe(x dynamo.State, u dynamo.Control, t float64) {
	if len(x) <= TiltIndex {
		return
	}
	s.samples++
	if v := math.Abs(x[TiltIndex]); v > s.threshold || math.IsNaN(v) {
		s.violations++
	}
}

func (s *TiltStability) Value() float64 {
	if s.samples == 0 {
		return 1.0
	}
	return 1.0 - float64(s.violations)/float64(s.samples)
}

func (s *TiltStability) Reset() {
	s.violations = 0
	s.samples = 0
}

// PeakTilt tracks the largest absolute tilt seen.
type PeakTilt struct {
	peak float64
}

func NewPeakTilt() *PeakTilt { return &PeakTilt{} }

func (p *PeakTilt) Name() string { return "peak_tilt" }

func (p *PeakTilt) Observe(x dynamo.State, u dynamo.Control, t float64) {
	if len(x) <= TiltIndex {
		return
	}
	v := math.Abs(x[TiltIndex])
	if v > p.peak || math.IsNaN(v) {
		p.peak = v
	}
}

func (p *PeakTilt) Value() float64 { return p.peak }

func (p *PeakTilt) Reset() { p.peak = 0 }
