// Package analysis inspects closed-loop runs and gain choices.
//
//   - [PowerSpectrum] and [DominantFrequency]: tilt oscillation from a
//     recorded trajectory
//   - [OscillationFrequency]: the same quantity predicted by a pole
//   - [GrowthRate]: exponential growth or decay fitted to a trajectory
//   - [GainSweep]: closed-loop poles while one gain varies, the data
//     behind a pole map
//   - [NewPhasePortrait]: tilt against tilt rate
//
// A run with a lightly damped pole pair shows a spectral peak close to
// |Im λ|/2π:
//
//	f, _ := analysis.DominantFrequency(traj.Column(2), dt)
//	want := analysis.OscillationFrequency(ps[1])
package analysis
