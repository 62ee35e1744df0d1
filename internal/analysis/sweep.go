package analysis

import (
	"fmt"
	"math"

	"github.com/san-kum/conesim/internal/control"
	"github.com/san-kum/conesim/internal/dynamo"
	"github.com/san-kum/conesim/internal/poles"
	"gonum.org/v1/gonum/mat"
)

// SweepPoint holds the closed-loop poles for one value of the swept gain.
type SweepPoint struct {
	Gain      float64
	Poles     []poles.Pole
	Abscissa  float64
	Stability poles.Stability
}

// GainSweep varies gain index of base between lo and hi in steps values
// and records the closed-loop poles of A − B·K at each one. Points are
// computed in parallel.
func GainSweep(a, b mat.Matrix, base control.Gains, index int, lo, hi float64, steps int, c poles.Classifier) ([]SweepPoint, error) {
	if index < 0 || index >= len(base) {
		return nil, fmt.Errorf("gain index %d out of range: %w", index, dynamo.ErrDimensionMismatch)
	}
	if steps < 2 {
		steps = 2
	}
	step := (hi - lo) / float64(steps-1)

	points := make([]SweepPoint, steps)
	errs := make([]error, steps)
	dynamo.ParallelFor(steps, 8, func(start, end int) {
		for i := start; i < end; i++ {
			k := base
			k[index] = lo + float64(i)*step
			ps, err := poles.Compute(control.ClosedLoop(a, b, k[:]))
			if err != nil {
				errs[i] = err
				continue
			}
			points[i] = SweepPoint{
				Gain:      k[index],
				Poles:     ps,
				Abscissa:  poles.SpectralAbscissa(ps),
				Stability: c.Worst(ps),
			}
		}
	})

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return points, nil
}

// StableRange returns the smallest and largest swept gain whose poles
// are all stable. ok is false when no point is stable.
func StableRange(points []SweepPoint) (lo, hi float64, ok bool) {
	for _, p := range points {
		if p.Stability != poles.Stable {
			continue
		}
		if !ok {
			lo, hi, ok = p.Gain, p.Gain, true
			continue
		}
		lo = math.Min(lo, p.Gain)
		hi = math.Max(hi, p.Gain)
	}
	return lo, hi, ok
}

// PoleMapToASCII plots poles in the complex plane. Unstable poles are
// drawn as 'X', marginal ones as 'x' and stable ones as '•'. The vertical
// line is the classifier's axis offset, not the imaginary axis.
func PoleMapToASCII(ps []poles.Pole, c poles.Classifier, width, height int) string {
	if len(ps) == 0 || width <= 0 || height <= 0 {
		return ""
	}

	minX, maxX := c.AxisOffset, c.AxisOffset
	minY, maxY := 0.0, 0.0
	for _, p := range ps {
		minX, maxX = math.Min(minX, p.Real()), math.Max(maxX, p.Real())
		minY, maxY = math.Min(minY, p.Imag()), math.Max(maxY, p.Imag())
	}

	pl := newPlane(minX, maxX, minY, maxY, width, height)
	marks := map[poles.Stability]rune{
		poles.Stable:   '•',
		poles.Marginal: 'x',
		poles.Unstable: 'X',
	}
	for _, p := range ps {
		pl.set(p.Real(), p.Imag(), marks[c.Classify(p)])
	}
	pl.vline(c.AxisOffset)
	pl.hline(0)
	return pl.String()
}
