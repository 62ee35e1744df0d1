// Package viz drives a live closed-loop session in the terminal.
//
// [Model] is a Bubble Tea program that ticks a [sim.Session] at a fixed
// frame rate and shows the state, the gains and the closed-loop poles
// next to an asciigraph trace of the tilt.
//
// # Key Bindings
//
//	Space - Pause/Resume
//	R     - Reset to initial state
//	Tab   - Select gain
//	Up/K  - Increase |k| by 5%
//	Down/J- Decrease |k| by 5%
//	0     - Restore starting gains
//	←/→   - Poke the ball
//	?     - Show help overlay
//
// [WatchConfig] reloads gains from a YAML file whenever it is saved.
package viz
