// Package control provides the state-feedback law and the force inputs that
// drive the cone plant.
//
// The closed loop is A_cl = A − B·K for a gain row [Gains]. External force
// sources implement [Input] and are summed into the plant through B:
//
//   - [NoInput]: no external force
//   - [ManualForce]: a fixed operator force, e.g. from [MouseForce]
//   - [FeedbackLaw]: u = −K·(x − reference), for driving an open-loop plant
//
// # Usage
//
//	acl := control.ClosedLoop(p.A(), p.B(), control.DefaultGains)
//	var in control.Input = control.ManualForce{Value: 200}
//	u := in.Force(x, t)
package control
