package dynamo

import (
	"fmt"
	"math"
)

type State []float64

func (s State) Clone() State {
	c := make(State, len(s))
	copy(c, s)
	return c
}

func (s State) IsValid() bool {
	for _, v := range s {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func (s State) Norm() float64 {
	sum := 0.0
	for _, v := range s {
		sum += v * v
	}
	return math.Sqrt(sum)
}

func (s State) Sub(other State) State {
	result := make(State, len(s))
	for i := range s {
		if i < len(other) {
			result[i] = s[i] - other[i]
		} else {
			result[i] = s[i]
		}
	}
	return result
}

type Control []float64

// System is a continuous-time model dX/dt = f(X, u, t).
type System interface {
	Derive(x State, u Control, t float64) State
	StateDim() int
	ControlDim() int
}

type Integrator interface {
	Step(dyn System, x State, u Control, t float64, dt float64) State
}

type Metric interface {
	Name() string
	Observe(x State, u Control, t float64)
	Value() float64
	Reset()
}

type Result struct {
	States   []State
	Controls []Control
	Times    []float64
	Metrics  map[string]float64
	// Failure is empty unless a watchdog stopped the run.
	Failure    string
	StepsTaken int
}

type SimError struct {
	Time    float64
	Step    int
	Message string
}

func (e SimError) Error() string {
	return fmt.Sprintf("step %d (t=%.4f): %s", e.Step, e.Time, e.Message)
}
