package analysis

import (
	"math"
	"math/cmplx"

	"github.com/san-kum/conesim/internal/poles"
	"gonum.org/v1/gonum/stat"
)

// GrowthRate fits log|series| = c + σ·t by least squares and returns σ.
// Samples that are zero or not finite are skipped. For a linear system σ
// approaches the spectral abscissa of the stepping map.
func GrowthRate(times, series []float64) (float64, error) {
	xs := make([]float64, 0, len(series))
	ys := make([]float64, 0, len(series))
	for i, v := range series {
		if i >= len(times) {
			break
		}
		a := math.Abs(v)
		if a == 0 || math.IsInf(a, 0) || math.IsNaN(a) {
			continue
		}
		xs = append(xs, times[i])
		ys = append(ys, math.Log(a))
	}
	if len(xs) < 2 {
		return 0, ErrShortSeries
	}
	_, slope := stat.LinearRegression(xs, ys, nil, false)
	return slope, nil
}

// EulerGrowthRate is the per-second growth the explicit Euler map applies
// to pole p: ln|1 + dt·λ| / dt. It exceeds Re λ, which is why weakly
// damped poles can still grow in simulation.
func EulerGrowthRate(p poles.Pole, dt float64) float64 {
	return math.Log(cmplx.Abs(1+complex(dt, 0)*p.Value)) / dt
}
