package control

import "github.com/san-kum/conesim/internal/dynamo"

// Input is a source of scalar force applied to the plant through B.
type Input interface {
	Force(x dynamo.State, t float64) float64
}

// NoInput applies no external force.
type NoInput struct{}

func (NoInput) Force(x dynamo.State, t float64) float64 { return 0 }
