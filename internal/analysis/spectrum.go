package analysis

import (
	"errors"
	"math"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
	"github.com/mjibson/go-dsp/window"
	"github.com/san-kum/conesim/internal/poles"
)

var ErrShortSeries = errors.New("analysis: series too short")

// PowerSpectrum returns |X(k)|² for the non-negative frequency bins of
// the mean-removed, Hann-windowed series.
func PowerSpectrum(data []float64) []float64 {
	n := len(data)
	if n < 2 {
		return nil
	}

	mean := 0.0
	for _, v := range data {
		mean += v
	}
	mean /= float64(n)

	x := make([]float64, n)
	for i, v := range data {
		x[i] = v - mean
	}
	window.Apply(x, window.Hann)

	spectrum := fft.FFTReal(x)
	ps := make([]float64, n/2+1)
	for i := range ps {
		a := cmplx.Abs(spectrum[i])
		ps[i] = a * a
	}
	return ps
}

// BinFrequency is the frequency in Hz of bin k for n samples taken dt
// apart.
func BinFrequency(k, n int, dt float64) float64 {
	return float64(k) / (float64(n) * dt)
}

// DominantFrequency returns the frequency of the largest non-DC bin,
// refined by parabolic interpolation over its neighbours.
func DominantFrequency(data []float64, dt float64) (float64, error) {
	if len(data) < 4 {
		return 0, ErrShortSeries
	}
	ps := PowerSpectrum(data)

	peak := 1
	for k := 2; k < len(ps); k++ {
		if ps[k] > ps[peak] {
			peak = k
		}
	}
	if ps[peak] == 0 {
		return 0, nil
	}

	offset := 0.0
	if peak > 0 && peak < len(ps)-1 {
		l, c, r := ps[peak-1], ps[peak], ps[peak+1]
		if d := l - 2*c + r; d != 0 {
			offset = 0.5 * (l - r) / d
		}
	}
	return (float64(peak) + offset) / (float64(len(data)) * dt), nil
}

// OscillationFrequency is |Im λ|/2π, the ringing frequency of a pole.
func OscillationFrequency(p poles.Pole) float64 {
	return math.Abs(p.Imag()) / (2 * math.Pi)
}
