package integrators

import "github.com/san-kum/conesim/internal/dynamo"

// Classical Runge-Kutta tableau: stage i is evaluated at t + rk4Nodes[i]·dt
// from x + rk4Nodes[i]·dt·k[i−1], and the stages are combined with
// rk4Weights/6.
var (
	rk4Nodes   = [4]float64{0, 0.5, 0.5, 1}
	rk4Weights = [4]float64{1, 2, 2, 1}
)

// RK4 is the classical fourth-order scheme. The force is held constant
// across the step, matching the zero-order hold of a sampled controller.
// Used as a reference to measure Euler truncation error.
type RK4 struct {
	k     [4]dynamo.State
	stage dynamo.State
}

func NewRK4() *RK4 {
	return &RK4{}
}

func (r *RK4) resize(n int) {
	if len(r.stage) == n {
		return
	}
	for i := range r.k {
		r.k[i] = make(dynamo.State, n)
	}
	r.stage = make(dynamo.State, n)
}

func (r *RK4) Step(dyn dynamo.System, x dynamo.State, u dynamo.Control, t, dt float64) dynamo.State {
	n := len(x)
	r.resize(n)

	for s, c := range rk4Nodes {
		in := x
		if s > 0 {
			prev := r.k[s-1]
			for i := range r.stage {
				r.stage[i] = x[i] + c*dt*prev[i]
			}
			in = r.stage
		}
		// Derive may reuse its result, so keep a copy per stage.
		copy(r.k[s], dyn.Derive(in, u, t+c*dt))
	}

	next := make(dynamo.State, n)
	for i := range next {
		sum := 0.0
		for s, w := range rk4Weights {
			sum += w * r.k[s][i]
		}
		next[i] = x[i] + dt/6*sum
	}
	return next
}
