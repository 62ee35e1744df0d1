package metrics

import "github.com/san-kum/conesim/internal/dynamo"

// QuadraticCost is the mean of xᵀ·diag(Q)·x + R·u² over the run, the
// objective the gain search minimises.
type QuadraticCost struct {
	Q       []float64
	R       float64
	total   float64
	samples int
}

// NewQuadraticCost weights tilt heaviest, then position, then the rates.
func NewQuadraticCost() *QuadraticCost {
	return &QuadraticCost{
		Q: []float64{10, 1, 100, 1},
		R: 1e-8,
	}
}

func (c *QuadraticCost) Name() string { return "quadratic_cost" }

func (c *QuadraticCost) Observe(x dynamo.State, u dynamo.Control, t float64) {
	sum := 0.0
	for i, v := range x {
		if i < len(c.Q) {
			sum += c.Q[i] * v * v
		}
	}
	for _, v := range u {
		sum += c.R * v * v
	}
	c.total += sum
	c.samples++
}

func (c *QuadraticCost) Value() float64 {
	if c.samples == 0 {
		return 0
	}
	return c.total / float64(c.samples)
}

func (c *QuadraticCost) Reset() {
	c.total = 0
	c.samples = 0
}
