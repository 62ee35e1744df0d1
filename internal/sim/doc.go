// Package sim advances a linear closed-loop system in fixed explicit Euler
// steps.
//
// An Integrator owns the state vector, the simulation time and the step
// cursor of one run. It is synchronous and not safe for concurrent use;
// hosts that tick it from one goroutine and read it from another go
// through a Session.
//
//	in, err := sim.New(p, sim.DefaultConfig())
//	for !in.Complete() {
//	    in.Update()
//	}
package sim
