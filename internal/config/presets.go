package config

import (
	"sort"

	"github.com/san-kum/conesim/internal/control"
	"github.com/san-kum/conesim/internal/experiment"
)

type preset struct {
	description string
	apply       func(*Config)
}

func withGains(k control.Gains) func(*Config) {
	return func(c *Config) { c.Controller.Gains = k }
}

// Presets are the gain sets of the pole map plus two integration variants.
var Presets = map[string]preset{
	"default": {"damped pair near -0.85±2.83i", withGains(control.DefaultGains)},
	"stiff":   {"fast poles, large actuator force", withGains(control.Gains{-2196.6, -4761.2, -51800, -18831})},
	"soft":    {"too little tilt gain, oscillation grows", withGains(control.Gains{-1196.6, -3761.2, -11800, -8831})},
	"fall":    {"position-heavy gains, ball falls", withGains(control.Gains{-9050, -3150, -4800, -9750})},
	"fine": {"dt 1 ms with 10 ministeps per frame", func(c *Config) {
		c.Integration.Dt = 0.001
		c.Integration.StepsPerFrame = 10
		c.Integration.SimLength = 20000
	}},
	"open": {"no control, open-loop fall", func(c *Config) {
		c.Controller.Input = experiment.InputNone
		c.Controller.Gains = control.Gains{}
	}},
}

// GetPreset returns a fresh default configuration with the preset applied,
// or nil when no such preset exists.
func GetPreset(name string) *Config {
	p, ok := Presets[name]
	if !ok {
		return nil
	}
	cfg := DefaultConfig()
	p.apply(cfg)
	return cfg
}

// Apply overlays a preset on an existing configuration.
func Apply(cfg *Config, name string) bool {
	p, ok := Presets[name]
	if !ok {
		return false
	}
	p.apply(cfg)
	return true
}

func Describe(name string) string {
	return Presets[name].description
}

func ListPresets() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
