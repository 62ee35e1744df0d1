package control

import (
	"math"

	"github.com/san-kum/conesim/internal/dynamo"
)

// ManualForce passes an operator-chosen force to the plant.
type ManualForce struct {
	Value float64
}

func (m ManualForce) Force(x dynamo.State, t float64) float64 { return m.Value }

// MaxMouseForce bounds the force a single cursor drag may produce.
const MaxMouseForce = 100_000

// MouseForce turns horizontal cursor motion into a force. It needs two
// samples before producing anything and only pushes while engaged.
type MouseForce struct {
	Sensitivity float64

	engaged bool
	prev    float64
	cur     float64
	samples int
	force   float64
}

func NewMouseForce(sensitivity float64) *MouseForce {
	return &MouseForce{Sensitivity: sensitivity}
}

// Engage starts or stops pushing, like holding the mouse button.
func (m *MouseForce) Engage(on bool) {
	m.engaged = on
	if !on {
		m.force = 0
	}
}

func (m *MouseForce) Engaged() bool { return m.engaged }

// Move records a new cursor x position and recomputes the force.
func (m *MouseForce) Move(x float64) {
	m.prev, m.cur = m.cur, x
	if m.samples < 2 {
		m.samples++
	}

	if !m.engaged || m.samples < 2 {
		m.force = 0
		return
	}

	f := (m.cur - m.prev) * m.Sensitivity
	if math.Abs(f) > MaxMouseForce {
		f = math.Copysign(MaxMouseForce, f)
	}
	m.force = f
}

// Manual snapshots the current force as an immutable input.
func (m *MouseForce) Manual() ManualForce {
	return ManualForce{Value: m.force}
}

func (m *MouseForce) Force(x dynamo.State, t float64) float64 { return m.force }

// PokeImpulse converts a poke offset (cursor distance from the cone axis,
// in pixels) into a tilt-rate impulse. Pokes right of the axis push the
// ball left.
func PokeImpulse(offset float64) float64 {
	return -offset * 1.0e-2
}
