package sim

import "github.com/san-kum/conesim/internal/dynamo"

// Snapshot is a read-only copy of the integrator state.
type Snapshot struct {
	X      dynamo.State `json:"x"`
	T      float64      `json:"t"`
	Step   int          `json:"step"`
	// Force is the total force on the cart during the last step: the state
	// feedback −K·x plus the input and any push.
	Force  float64      `json:"force"`
	Phase  Phase        `json:"phase"`
	Reason string       `json:"reason,omitempty"`
}

func (s Snapshot) at(i int) float64 {
	if i < len(s.X) {
		return s.X[i]
	}
	return 0
}

// Position is x1, the cart position in metres.
func (s Snapshot) Position() float64 { return s.at(0) }

func (s Snapshot) Velocity() float64 { return s.at(1) }

// Tilt is x3, the tilt angle in radians.
func (s Snapshot) Tilt() float64 { return s.at(2) }

func (s Snapshot) TiltRate() float64 { return s.at(3) }

func (s Snapshot) Complete() bool { return s.Phase == Complete }
