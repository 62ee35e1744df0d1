package metrics

import (
	"fmt"
	"math"

	"github.com/san-kum/conesim/internal/dynamo"
)

// Watchdog decides when a run has gone too far to keep controlling. The
// integrator itself never fails a run; the caller asks the watchdog.
type Watchdog struct {
	// CutoffAngle is the tilt in degrees beyond which control is dropped.
	CutoffAngle float64 `yaml:"cutoff_angle_deg" json:"cutoff_angle_deg"`
	// FailAngle is the tilt in degrees at which the ball rolls off.
	FailAngle float64 `yaml:"fail_angle_deg" json:"fail_angle_deg"`
	// MaxPosition is the cart travel limit in metres. Zero disables it.
	MaxPosition float64 `yaml:"max_position" json:"max_position"`
	// SettleAngle and SettlePosition bound the idle band around the
	// upright equilibrium.
	SettleAngle    float64 `yaml:"settle_angle_deg" json:"settle_angle_deg"`
	SettlePosition float64 `yaml:"settle_position" json:"settle_position"`
}

func DefaultWatchdog() Watchdog {
	return Watchdog{
		CutoffAngle:    30,
		FailAngle:      60,
		MaxPosition:    1.5,
		SettleAngle:    0.5,
		SettlePosition: 0.025,
	}
}

type Verdict struct {
	CutControl bool
	Failed     bool
	Settled    bool
	Reason     string
}

func (w Watchdog) Evaluate(x dynamo.State) Verdict {
	if len(x) <= TiltIndex {
		return Verdict{}
	}
	if !x.IsValid() {
		return Verdict{CutControl: true, Failed: true, Reason: "state diverged"}
	}

	tilt := math.Abs(x[TiltIndex]) * 180 / math.Pi
	pos := math.Abs(x[0])

	var v Verdict
	if w.CutoffAngle > 0 && tilt > w.CutoffAngle {
		v.CutControl = true
	}
	switch {
	case w.FailAngle > 0 && tilt > w.FailAngle:
		v.Failed = true
		v.Reason = fmt.Sprintf("tilt %.1f° beyond %.1f°", tilt, w.FailAngle)
	case w.MaxPosition > 0 && pos > w.MaxPosition:
		v.Failed = true
		v.Reason = fmt.Sprintf("position %.3f m beyond %.3f m", pos, w.MaxPosition)
	}
	if !v.Failed && tilt < w.SettleAngle && pos < w.SettlePosition {
		v.Settled = true
	}
	return v
}

// Check reports a failed verdict as an ErrInvalidState error.
func (w Watchdog) Check(x dynamo.State) error {
	if v := w.Evaluate(x); v.Failed {
		return fmt.Errorf("%s: %w", v.Reason, dynamo.ErrInvalidState)
	}
	return nil
}
