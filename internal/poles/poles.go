// Package poles computes and classifies the eigenvalues of a closed-loop
// system matrix.
package poles

import (
	"errors"
	"fmt"
	"math"
	"math/cmplx"
	"sort"

	"gonum.org/v1/gonum/mat"
)

const (
	// DefaultMarginalThreshold is the real part below which a stable pole
	// is no longer shown as marginal. Display-only; source variants used
	// values between −0.016 and −0.022.
	DefaultMarginalThreshold = -0.022

	// EulerAxisCorrection shifts the stability boundary left to account
	// for the explicit Euler scheme turning weakly damped poles unstable.
	// Pass it as Classifier.AxisOffset to reproduce that display variant.
	EulerAxisCorrection = -0.0485
)

var ErrNoConvergence = errors.New("poles: eigen decomposition did not converge")

// Pole is one eigenvalue of the closed-loop matrix.
type Pole struct {
	Value complex128
}

func (p Pole) Real() float64 { return real(p.Value) }
func (p Pole) Imag() float64 { return imag(p.Value) }

func (p Pole) String() string {
	re, im := p.Real(), p.Imag()
	switch {
	case im > 0:
		return fmt.Sprintf("%.3f +%.3fi", re, im)
	case im == 0:
		return fmt.Sprintf("%.3f", re)
	default:
		return fmt.Sprintf("%.3f %.3fi", re, im)
	}
}

// EulerStable reports whether the pole stays inside the unit circle after
// the explicit Euler map z = 1 + dt·λ.
func (p Pole) EulerStable(dt float64) bool {
	return cmplx.Abs(1+complex(dt, 0)*p.Value) < 1
}

// Classifier maps poles to stability categories. A pole is unstable when
// its real part exceeds AxisOffset and marginal when it sits at or left of
// AxisOffset but still right of MarginalThreshold.
type Classifier struct {
	AxisOffset        float64 `yaml:"axis_offset" json:"axis_offset"`
	MarginalThreshold float64 `yaml:"marginal_threshold" json:"marginal_threshold"`
}

func DefaultClassifier() Classifier {
	return Classifier{MarginalThreshold: DefaultMarginalThreshold}
}

func (c Classifier) IsUnstable(p Pole) bool {
	return p.Real() > c.AxisOffset
}

func (c Classifier) IsMarginallyStable(p Pole) bool {
	return p.Real() <= c.AxisOffset && p.Real() > c.MarginalThreshold
}

type Stability int

const (
	Stable Stability = iota
	Marginal
	Unstable
)

func (s Stability) String() string {
	switch s {
	case Marginal:
		return "marginal"
	case Unstable:
		return "unstable"
	default:
		return "stable"
	}
}

func (c Classifier) Classify(p Pole) Stability {
	switch {
	case c.IsUnstable(p):
		return Unstable
	case c.IsMarginallyStable(p):
		return Marginal
	default:
		return Stable
	}
}

// Worst returns the least stable category among ps.
func (c Classifier) Worst(ps []Pole) Stability {
	worst := Stable
	for _, p := range ps {
		if s := c.Classify(p); s > worst {
			worst = s
		}
	}
	return worst
}

// Compute returns the eigenvalues of the square matrix m ordered by real
// part, then imaginary part.
func Compute(m mat.Matrix) ([]Pole, error) {
	r, c := m.Dims()
	if r != c {
		return nil, fmt.Errorf("poles: matrix is %dx%d, not square", r, c)
	}

	var eig mat.Eigen
	if ok := eig.Factorize(m, mat.EigenNone); !ok {
		return nil, ErrNoConvergence
	}

	values := eig.Values(nil)
	ps := make([]Pole, len(values))
	for i, v := range values {
		ps[i] = Pole{Value: v}
	}
	sort.Slice(ps, func(i, j int) bool {
		if ps[i].Real() != ps[j].Real() {
			return ps[i].Real() < ps[j].Real()
		}
		return ps[i].Imag() < ps[j].Imag()
	})
	return ps, nil
}

// SpectralAbscissa is the largest real part among ps.
func SpectralAbscissa(ps []Pole) float64 {
	max := math.Inf(-1)
	for _, p := range ps {
		if p.Real() > max {
			max = p.Real()
		}
	}
	return max
}
