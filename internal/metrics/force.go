package metrics

import (
	"math"

	"github.com/san-kum/conesim/internal/dynamo"
)

// ForceIndex is the position of the cart force in the control vector.
const ForceIndex = 0

func cartForce(u dynamo.Control) (float64, bool) {
	if len(u) <= ForceIndex {
		return 0, false
	}
	return math.Abs(u[ForceIndex]), true
}

// ControlEffort is the mean absolute cart force over the observed frames,
// in the same units as the gains times the state.
type ControlEffort struct {
	total  float64
	frames int
}

func NewControlEffort() *ControlEffort { return &ControlEffort{} }

func (c *ControlEffort) Name() string { return "control_effort" }

// Observe counts every frame, so frames without a force entry lower the
// mean.
func (c *ControlEffort) Observe(x dynamo.State, u dynamo.Control, t float64) {
	c.frames++
	if f, ok := cartForce(u); ok {
		c.total += f
	}
}

func (c *ControlEffort) Value() float64 {
	if c.frames == 0 {
		return 0
	}
	return c.total / float64(c.frames)
}

func (c *ControlEffort) Reset() { *c = ControlEffort{} }

// PeakForce is the largest absolute cart force, the figure to hold
// against what the motor can deliver.
type PeakForce struct {
	peak float64
}

func NewPeakForce() *PeakForce { return &PeakForce{} }

func (p *PeakForce) Name() string { return "peak_force" }

func (p *PeakForce) Observe(x dynamo.State, u dynamo.Control, t float64) {
	if f, ok := cartForce(u); ok && (f > p.peak || math.IsNaN(f)) {
		p.peak = f
	}
}

func (p *PeakForce) Value() float64 { return p.peak }

func (p *PeakForce) Reset() { p.peak = 0 }
