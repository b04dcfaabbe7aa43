package gate

import (
	"time"

	"github.com/google/uuid"

	"github.com/Tyrowin/chatgate/internal/auth"
)

// State is a session's position in the gate's state table.
type State int

const (
	StateUnauthenticated State = iota
	StateAuthenticated
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateAuthenticated:
		return "AUTHENTICATED"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNAUTHENTICATED"
	}
}

// Sink receives payloads routed to a session. Deliver must not block.
type Sink interface {
	Deliver(payload []byte) error
}

// Session is the server-side state of one connection. ID and Deliver may be
// called from any goroutine; everything else belongs to the goroutine that
// feeds the session's frames to the gate.
type Session struct {
	id        string
	createdAt time.Time
	sink      Sink

	auth   *auth.State
	opened bool
	closed bool
	subs   map[string]string
}

// NewSession returns an UNAUTHENTICATED session delivering to sink.
func NewSession(sink Sink) *Session {
	return &Session{
		id:        uuid.NewString(),
		createdAt: time.Now(),
		sink:      sink,
		subs:      make(map[string]string),
	}
}

// ID returns the unique session identifier.
func (s *Session) ID() string {
	return s.id
}

// CreatedAt returns when the session was created.
func (s *Session) CreatedAt() time.Time {
	return s.createdAt
}

// Deliver forwards a routed payload to the session's sink.
func (s *Session) Deliver(payload []byte) error {
	return s.sink.Deliver(payload)
}

// AuthState returns the attached identity, or nil before authentication.
func (s *Session) AuthState() *auth.State {
	return s.auth
}

// Principal returns the authenticated principal, or "".
func (s *Session) Principal() string {
	if s.auth == nil {
		return ""
	}
	return s.auth.Principal()
}

// Opened reports whether an OPEN frame was accepted, authenticated or not.
func (s *Session) Opened() bool {
	return s.opened
}

// State returns the session's current state.
func (s *Session) State() State {
	switch {
	case s.closed:
		return StateClosed
	case s.auth != nil:
		return StateAuthenticated
	default:
		return StateUnauthenticated
	}
}

// Subscriptions returns a copy of the session's subscription id → destination map.
func (s *Session) Subscriptions() map[string]string {
	out := make(map[string]string, len(s.subs))
	for id, dest := range s.subs {
		out[id] = dest
	}
	return out
}

// attach sets the identity once.
func (s *Session) attach(state *auth.State) error {
	if s.auth != nil {
		return ErrAlreadyAuthenticated
	}
	s.auth = state
	s.opened = true
	return nil
}

// subscribedTo reports whether any subscription id other than except
// points at destination.
func (s *Session) subscribedTo(destination, except string) bool {
	for id, dest := range s.subs {
		if id != except && dest == destination {
			return true
		}
	}
	return false
}

func (s *Session) release() {
	s.closed = true
	s.auth = nil
	s.subs = make(map[string]string)
}
