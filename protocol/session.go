package protocol

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Event is one progress notification. The stream is finite and
// non-restartable: it ends when the session reaches a terminal phase.
type Event struct {
	Seq     int    `json:"seq"`
	Phase   string `json:"phase"`
	Percent int    `json:"percent"`
	Message string `json:"message"`
}

// Session tracks one run of the exchange. All state is session-scoped;
// concurrent sessions share nothing.
type Session struct {
	mu sync.Mutex

	id    string
	m, k  int
	phase Phase
	seq   int

	failReason FailReason
	failErr    error
	estimate   *Estimate

	events chan Event
	closed bool
}

func newSession(m, k int) *Session {
	return &Session{
		id:     uuid.NewString(),
		m:      m,
		k:      k,
		phase:  PhaseCreated,
		events: make(chan Event, 16),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Params returns the Bloom parameters the session was created with.
func (s *Session) Params() (m, k int) { return s.m, s.k }

// Phase returns the current phase.
func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Events returns the progress stream. It is closed when the session
// terminates; a consumer draining it sees every transition exactly once.
func (s *Session) Events() <-chan Event { return s.events }

// Result returns the estimate once the session completed.
func (s *Session) Result() (*Estimate, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhaseCompleted {
		return nil, false
	}
	return s.estimate, true
}

// Failure returns the reason and error for a failed session.
func (s *Session) Failure() (FailReason, error, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhaseFailed {
		return "", nil, false
	}
	return s.failReason, s.failErr, true
}

// advance moves the session to next and emits a progress event. It
// rejects transitions on terminal sessions with ErrSessionClosed and
// out-of-order transitions with ErrPhaseOrder.
func (s *Session) advance(next Phase, msg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase.terminal() {
		return ErrSessionClosed
	}
	if next != s.phase+1 {
		return fmt.Errorf("%w: %s -> %s", ErrPhaseOrder, s.phase, next)
	}
	s.phase = next
	s.emit(next, msg)
	if next.terminal() {
		s.closeEvents()
	}
	return nil
}

// fail moves the session to Failed(reason). Failing an already-terminal
// session returns ErrSessionClosed; the first outcome stands.
func (s *Session) fail(reason FailReason, err error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase.terminal() {
		return ErrSessionClosed
	}
	s.phase = PhaseFailed
	s.failReason = reason
	s.failErr = err
	s.emit(PhaseFailed, fmt.Sprintf("failed: %s", reason))
	s.closeEvents()
	return nil
}

func (s *Session) setEstimate(est *Estimate) {
	s.mu.Lock()
	s.estimate = est
	s.mu.Unlock()
}

// emit appends an event without blocking the state machine; a consumer
// that stopped draining only loses trailing notifications, never state.
func (s *Session) emit(p Phase, msg string) {
	s.seq++
	ev := Event{Seq: s.seq, Phase: p.String(), Percent: p.percent(), Message: msg}
	select {
	case s.events <- ev:
	default:
	}
}

func (s *Session) closeEvents() {
	if !s.closed {
		s.closed = true
		close(s.events)
	}
}
