package plant

import (
	"fmt"
	"math"

	"github.com/san-kum/conesim/internal/dynamo"
	"gonum.org/v1/gonum/mat"
)

// StateDim is the number of plant states: position, velocity, tilt angle
// and angular velocity.
const StateDim = 4

// Plant is the linearised state-space model ẋ = A·x + B·u, y = C·x + D·u
// of the ball-on-cone demonstrator. It is immutable once built.
type Plant struct {
	params PhysicalParameters

	a, b, c, d *mat.Dense

	j      float64
	comdiv float64

	A23, A43, B2, B4 float64
}

// Build derives the state-space matrices from the physical parameters.
func Build(params PhysicalParameters) (*Plant, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	j, err := HollowSphereInertia(params.SphereMass, params.Radius, params.InnerRadius())
	if err != nil {
		return nil, err
	}

	ms, mc, r := params.SphereMass, params.CartMass, params.Radius
	comdiv := (j+ms*r*r)*(mc+ms) - ms*ms*r*r
	if comdiv == 0 || math.IsNaN(comdiv) || math.IsInf(comdiv, 0) {
		return nil, fmt.Errorf("common divisor is %g for sphere mass %g, cart mass %g, radius %g: %w",
			comdiv, ms, mc, r, dynamo.ErrConfiguration)
	}

	p := &Plant{
		params: params,
		j:      j,
		comdiv: comdiv,
		A23:    -(ms * ms * r * r * Gravity) / comdiv,
		A43:    (ms * r * Gravity * (mc + ms)) / comdiv,
		B2:     (j + ms*r*r) / comdiv,
		B4:     -(ms * r) / comdiv,
	}

	k1, k2 := params.Motor.K1(), params.Motor.K2()

	p.a = mat.NewDense(StateDim, StateDim, []float64{
		0, 1, 0, 0,
		0, -p.B2 * k2, p.A23, 0,
		0, 0, 0, 1,
		0, -p.B4 * k2, p.A43, 0,
	})
	p.b = mat.NewDense(StateDim, 1, []float64{0, p.B2 * k1, 0, p.B4 * k1})
	p.c = mat.NewDense(1, StateDim, []float64{1, 0, 0, 0})
	p.d = mat.NewDense(1, 1, []float64{0})

	return p, nil
}

// A returns a copy of the open-loop system matrix.
func (p *Plant) A() *mat.Dense { return mat.DenseCopyOf(p.a) }

// B returns a copy of the input matrix.
func (p *Plant) B() *mat.Dense { return mat.DenseCopyOf(p.b) }

// C returns a copy of the output matrix.
func (p *Plant) C() *mat.Dense { return mat.DenseCopyOf(p.c) }

// D returns a copy of the feedthrough matrix.
func (p *Plant) D() *mat.Dense { return mat.DenseCopyOf(p.d) }

// J is the sphere's moment of inertia.
func (p *Plant) J() float64 { return p.j }

// Comdiv is the shared divisor of the coupling coefficients.
func (p *Plant) Comdiv() float64 { return p.comdiv }

func (p *Plant) Parameters() PhysicalParameters { return p.params }

func (p *Plant) StateDim() int   { return StateDim }
func (p *Plant) ControlDim() int { return 1 }

// Derive evaluates the open-loop dynamics A·x + B·u.
func (p *Plant) Derive(x dynamo.State, u dynamo.Control, t float64) dynamo.State {
	force := 0.0
	if len(u) > 0 {
		force = u[0]
	}
	dx := make(dynamo.State, StateDim)
	for i := 0; i < StateDim; i++ {
		sum := p.b.At(i, 0) * force
		for j := 0; j < StateDim; j++ {
			sum += p.a.At(i, j) * x[j]
		}
		dx[i] = sum
	}
	return dx
}

// Output evaluates y = C·x + D·u.
func (p *Plant) Output(x dynamo.State, u float64) float64 {
	y := p.d.At(0, 0) * u
	for j := 0; j < StateDim; j++ {
		y += p.c.At(0, j) * x[j]
	}
	return y
}

// Prefilter returns the static gain P = −(C·A_cl⁻¹·B)⁻¹ that makes the
// closed loop track a position reference without steady-state error.
func (p *Plant) Prefilter(closedLoop mat.Matrix) (float64, error) {
	var inv mat.Dense
	if err := inv.Inverse(closedLoop); err != nil {
		return 0, fmt.Errorf("closed loop is singular: %v: %w", err, dynamo.ErrConfiguration)
	}

	var ca mat.Dense
	ca.Mul(p.c, &inv)
	var cab mat.Dense
	cab.Mul(&ca, p.b)

	g := cab.At(0, 0)
	if g == 0 {
		return 0, fmt.Errorf("closed-loop dc gain is zero: %w", dynamo.ErrConfiguration)
	}
	return -1 / g, nil
}
