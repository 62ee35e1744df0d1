package control

import (
	"fmt"

	"github.com/san-kum/conesim/internal/dynamo"
	"gonum.org/v1/gonum/mat"
)

// Gains is the state-feedback row vector K = (k1, k2, k3, k4).
type Gains [4]float64

// DefaultGains stabilise the default demonstrator with a damped pole pair
// near −0.85 ± 2.83i.
var DefaultGains = Gains{-1296.6, -3161.2, -31800, -9831}

// Row returns K as a 1×4 matrix.
func (k Gains) Row() *mat.Dense {
	return mat.NewDense(1, len(k), k[:])
}

func (k Gains) Slice() []float64 {
	s := make([]float64, len(k))
	copy(s, k[:])
	return s
}

// Sub returns k − other element-wise.
func (k Gains) Sub(other Gains) Gains {
	var d Gains
	for i := range k {
		d[i] = k[i] - other[i]
	}
	return d
}

// Scale multiplies every gain by the matching factor.
func (k Gains) Scale(factors Gains) Gains {
	var s Gains
	for i := range k {
		s[i] = k[i] * factors[i]
	}
	return s
}

func (k Gains) String() string {
	return fmt.Sprintf("[%.1f %.1f %.1f %.1f]", k[0], k[1], k[2], k[3])
}

// GainsFromSlice converts a slice of exactly four values.
func GainsFromSlice(v []float64) (Gains, error) {
	var k Gains
	if len(v) != len(k) {
		return k, fmt.Errorf("expected %d gains, got %d: %w", len(k), len(v), dynamo.ErrDimensionMismatch)
	}
	copy(k[:], v)
	return k, nil
}

// ClosedLoop returns A − B·K. It panics when the dimensions of A, B and K
// do not fit; that is a programming error, not a runtime condition.
func ClosedLoop(a, b mat.Matrix, k []float64) *mat.Dense {
	n, m := a.Dims()
	br, bc := b.Dims()
	if n != m || br != n || bc != 1 || len(k) != n {
		panic(fmt.Sprintf("control: closed loop of A %dx%d, B %dx%d, K 1x%d", n, m, br, bc, len(k)))
	}

	var bk mat.Dense
	bk.Mul(b, mat.NewDense(1, n, k))

	acl := mat.NewDense(n, n, nil)
	acl.Sub(a, &bk)
	return acl
}
