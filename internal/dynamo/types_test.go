package dynamo

import (
	"errors"
	"math"
	"testing"
)

func TestState_IsValid(t *testing.T) {
	tests := []struct {
		name  string
		state State
		valid bool
	}{
		{"empty", State{}, true},
		{"normal", State{1.0, 2.0, 3.0, 4.0}, true},
		{"with NaN", State{1.0, math.NaN()}, false},
		{"with +Inf", State{1.0, math.Inf(1)}, false},
		{"with -Inf", State{1.0, math.Inf(-1)}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.state.IsValid(); got != tt.valid {
				t.Errorf("IsValid() = %v, want %v", got, tt.valid)
			}
		})
	}
}

func TestState_Norm(t *testing.T) {
	tests := []struct {
		state    State
		expected float64
	}{
		{State{3, 4}, 5.0},
		{State{0, 0, 0, 0}, 0.0},
		{State{1, 1, 1, 1}, 2.0},
	}

	for _, tt := range tests {
		if got := tt.state.Norm(); math.Abs(got-tt.expected) > 1e-10 {
			t.Errorf("Norm(%v) = %v, want %v", tt.state, got, tt.expected)
		}
	}
}

func TestState_CloneIsIndependent(t *testing.T) {
	s := State{0, 0, 0.05, 0}
	c := s.Clone()
	c[2] = 1
	if s[2] != 0.05 {
		t.Errorf("Clone shares storage: source changed to %v", s[2])
	}

	diff := c.Sub(s)
	if diff[2] != 1-0.05 {
		t.Errorf("Sub = %v", diff)
	}
}

func TestSimError(t *testing.T) {
	err := SimError{Time: 1.5, Step: 150, Message: "tilt limit"}
	expected := "step 150 (t=1.5000): tilt limit"
	if err.Error() != expected {
		t.Errorf("SimError.Error() = %q, want %q", err.Error(), expected)
	}
}

func TestSimulationErrorUnwrap(t *testing.T) {
	err := &SimulationError{Step: 3, Time: 0.03, Wrapped: ErrInvalidState}
	if !errors.Is(err, ErrInvalidState) {
		t.Error("SimulationError should unwrap to ErrInvalidState")
	}
}
