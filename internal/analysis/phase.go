package analysis

import (
	"math"

	"github.com/san-kum/conesim/internal/dynamo"
)

type Point struct{ X, Y float64 }

// PhasePortrait pairs two components of a recorded trajectory, usually
// tilt against tilt rate.
type PhasePortrait struct {
	XIndex, YIndex int
	Points         []Point
}

// NewPhasePortrait returns nil when either index is outside a state.
// Non-finite samples, as left by a diverged run, are dropped.
func NewPhasePortrait(states []dynamo.State, xIdx, yIdx int) *PhasePortrait {
	pp := &PhasePortrait{XIndex: xIdx, YIndex: yIdx, Points: make([]Point, 0, len(states))}
	for _, x := range states {
		if xIdx >= len(x) || yIdx >= len(x) {
			return nil
		}
		if finite(x[xIdx]) && finite(x[yIdx]) {
			pp.Points = append(pp.Points, Point{x[xIdx], x[yIdx]})
		}
	}
	return pp
}

// PhasePortraitToASCII plots the trajectory with '•', its first sample
// with 'o' and the last with '*'. The axes are drawn where they are in
// view. A stable run spirals into the crossing.
func PhasePortraitToASCII(pp *PhasePortrait, width, height int) string {
	if pp == nil || len(pp.Points) == 0 || width <= 0 || height <= 0 {
		return ""
	}

	minX, maxX := math.Inf(1), math.Inf(-1)
	minY, maxY := math.Inf(1), math.Inf(-1)
	for _, p := range pp.Points {
		minX, maxX = math.Min(minX, p.X), math.Max(maxX, p.X)
		minY, maxY = math.Min(minY, p.Y), math.Max(maxY, p.Y)
	}

	pl := newPlane(minX, maxX, minY, maxY, width, height)
	for _, p := range pp.Points {
		pl.set(p.X, p.Y, '•')
	}
	first, last := pp.Points[0], pp.Points[len(pp.Points)-1]
	pl.set(first.X, first.Y, 'o')
	pl.set(last.X, last.Y, '*')
	pl.vline(0)
	pl.hline(0)
	return pl.String()
}
