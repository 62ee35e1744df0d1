package plant

import (
	"fmt"
	"math"

	"github.com/san-kum/conesim/internal/dynamo"
)

const Gravity = 9.81

// Motor holds the electromechanical constants of the cart drive.
type Motor struct {
	TorqueConstant float64 `yaml:"torque_constant" json:"torque_constant"`
	GearRatio      float64 `yaml:"gear_ratio" json:"gear_ratio"`
	Resistance     float64 `yaml:"resistance" json:"resistance"`
	WheelRadius    float64 `yaml:"wheel_radius" json:"wheel_radius"`
}

// K1 is the force-per-volt coupling (Kt·Kg)/(R·r_wheel).
func (m Motor) K1() float64 {
	return (m.TorqueConstant * m.GearRatio) / (m.Resistance * m.WheelRadius)
}

// K2 is the back-EMF damping coupling Kt²·Kg²/(R·r_wheel).
func (m Motor) K2() float64 {
	kt, kg := m.TorqueConstant, m.GearRatio
	return (kt * kt * kg * kg) / (m.Resistance * m.WheelRadius)
}

func (m Motor) validate() error {
	fields := []struct {
		name string
		v    float64
	}{
		{"torque constant", m.TorqueConstant},
		{"gear ratio", m.GearRatio},
		{"resistance", m.Resistance},
		{"wheel radius", m.WheelRadius},
	}
	for _, f := range fields {
		if err := positive("motor "+f.name, f.v); err != nil {
			return err
		}
	}
	return nil
}

// positive rejects zero, negative, NaN and infinite values.
func positive(name string, v float64) error {
	if !(v > 0) || math.IsInf(v, 0) {
		return fmt.Errorf("%s must be positive and finite, got %g: %w", name, v, dynamo.ErrConfiguration)
	}
	return nil
}

// PhysicalParameters describes the demonstrator: a hollow sphere resting on
// the apex of a cone carried by a motor-driven cart.
type PhysicalParameters struct {
	SphereMass float64 `yaml:"sphere_mass" json:"sphere_mass"`
	CartMass   float64 `yaml:"cart_mass" json:"cart_mass"`
	Radius     float64 `yaml:"radius" json:"radius"`
	Thickness  float64 `yaml:"thickness" json:"thickness"`
	Motor      Motor   `yaml:"motor" json:"motor"`
}

// DefaultParameters returns the laboratory demonstrator.
func DefaultParameters() PhysicalParameters {
	return PhysicalParameters{
		SphereMass: 19.5,
		CartMass:   84.2,
		Radius:     0.5,
		Thickness:  0.004,
		Motor: Motor{
			TorqueConstant: 0.0253,
			GearRatio:      0.005,
			Resistance:     0.228,
			WheelRadius:    0.006,
		},
	}
}

func (p PhysicalParameters) InnerRadius() float64 {
	return p.Radius - p.Thickness
}

// Validate checks that all masses and radii are finite and strictly
// positive and the shell has a positive wall thickness smaller than its
// radius. Finite values can still overflow the coupling terms; Build
// catches that.
func (p PhysicalParameters) Validate() error {
	if err := positive("sphere mass", p.SphereMass); err != nil {
		return err
	}
	if err := positive("cart mass", p.CartMass); err != nil {
		return err
	}
	if err := positive("radius", p.Radius); err != nil {
		return err
	}
	if !(p.Thickness > 0) || p.Thickness >= p.Radius {
		return fmt.Errorf("thickness %g must lie in (0, %g): %w", p.Thickness, p.Radius, dynamo.ErrConfiguration)
	}
	return p.Motor.validate()
}

// HollowSphereInertia is the moment of inertia of a spherical shell with
// outer radius ro and inner radius ri, taken about the contact point.
func HollowSphereInertia(mass, ro, ri float64) (float64, error) {
	if !(mass > 0) {
		return 0, fmt.Errorf("mass must be positive, got %g: %w", mass, dynamo.ErrConfiguration)
	}
	if ri < 0 || !(ro > ri) {
		return 0, fmt.Errorf("outer radius %g must exceed inner radius %g: %w", ro, ri, dynamo.ErrConfiguration)
	}
	shell := (2.0 / 5.0) * mass * (math.Pow(ro, 5) - math.Pow(ri, 5)) / (math.Pow(ro, 3) - math.Pow(ri, 3))
	return shell + mass*ro*ro, nil
}

// SolidSphereInertia is (2/5)·m·r² about the centre.
func SolidSphereInertia(mass, r float64) float64 {
	return (2.0 / 5.0) * mass * r * r
}
