package sim

import (
	"sync"

	"github.com/san-kum/conesim/internal/control"
	"github.com/san-kum/conesim/internal/dynamo"
	"github.com/san-kum/conesim/internal/poles"
)

// Guard inspects the state after every frame. A non-nil error marks the
// run as failed.
type Guard interface {
	Check(x dynamo.State) error
}

// Session is the single owner of an Integrator shared between goroutines.
// Gain changes and disturbances are queued and consumed by the next Tick.
type Session struct {
	mu    sync.Mutex
	in    *Integrator
	guard Guard

	pending     []float64
	disturbance float64
	frames      int
}

func NewSession(in *Integrator) *Session {
	return &Session{in: in}
}

func (s *Session) SetGuard(g Guard) {
	s.mu.Lock()
	s.guard = g
	s.mu.Unlock()
}

// SetGains queues K for the next frame. With a feedback-law input the
// gains go to the law instead of the integrator.
func (s *Session) SetGains(k control.Gains) {
	s.mu.Lock()
	s.pending = k.Slice()
	s.mu.Unlock()
}

func (s *Session) SetInput(input control.Input) {
	s.mu.Lock()
	s.in.SetInput(input)
	s.mu.Unlock()
}

// Push sets an operator force that acts until it is changed or the
// session is reset.
func (s *Session) Push(force float64) {
	s.mu.Lock()
	s.in.SetPush(force)
	s.mu.Unlock()
}

// Disturb queues an impulse on the tilt rate. Impulses queued between two
// frames add up.
func (s *Session) Disturb(impulse float64) {
	s.mu.Lock()
	s.disturbance += impulse
	s.mu.Unlock()
}

func (s *Session) applyPending() {
	if s.pending != nil {
		s.in.SetLoopGains(s.pending)
		s.pending = nil
	}
}

// Tick runs one frame and returns the resulting snapshot.
func (s *Session) Tick() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.applyPending()
	x, _ := s.in.Frame(s.disturbance)
	s.disturbance = 0
	s.frames++

	if s.guard != nil && s.in.Phase() == Stepping {
		if err := s.guard.Check(x); err != nil {
			s.in.Fail(err.Error())
		}
	}
	return s.in.State()
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.in.State()
}

// Poles reflects queued gains as well as applied ones.
func (s *Session) Poles() ([]poles.Pole, poles.Classifier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applyPending()
	ps, err := s.in.Poles()
	return ps, s.in.Classifier(), err
}

func (s *Session) Gains() []float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending != nil {
		g := make([]float64, len(s.pending))
		copy(g, s.pending)
		return g
	}
	return s.in.LoopGains()
}

func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.in.Reset()
	s.disturbance = 0
	s.frames = 0
}

// Frames counts Tick calls since construction or the last Reset.
func (s *Session) Frames() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames
}

func (s *Session) SimLength() int { return s.in.SimLength() }
