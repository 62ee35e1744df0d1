package control

import "github.com/san-kum/conesim/internal/dynamo"

// LoopInput is an input that closes the loop itself through its own gains.
// Gain changes and pole placement address those gains instead of K.
type LoopInput interface {
	Input
	LoopGains() Gains
	WithGains(k Gains) LoopInput
}

// FeedbackLaw computes u = −K·(x − Reference). Use it with zero integrator
// gains, otherwise the feedback is applied twice.
type FeedbackLaw struct {
	K         Gains
	Reference dynamo.State
}

func NewFeedbackLaw(k Gains, reference dynamo.State) FeedbackLaw {
	return FeedbackLaw{K: k, Reference: reference.Clone()}
}

func (f FeedbackLaw) Force(x dynamo.State, t float64) float64 {
	u := 0.0
	for j := range x {
		if j >= len(f.K) {
			break
		}
		target := 0.0
		if j < len(f.Reference) {
			target = f.Reference[j]
		}
		u -= f.K[j] * (x[j] - target)
	}
	return u
}

func (f FeedbackLaw) LoopGains() Gains { return f.K }

// WithGains returns a copy of the law closed with k.
func (f FeedbackLaw) WithGains(k Gains) LoopInput {
	return FeedbackLaw{K: k, Reference: f.Reference.Clone()}
}
