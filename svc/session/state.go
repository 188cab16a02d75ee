package session

import (
	"context"

	"github.com/dmitrymomot/profilekit/pkg/statemachine"
	"github.com/dmitrymomot/profilekit/svc/auth"
	"github.com/dmitrymomot/profilekit/svc/profile"
)

// Phase is the lifecycle position of the orchestrator.
type Phase string

const (
	PhaseInitializing    Phase = "initializing"
	PhaseUnauthenticated Phase = "unauthenticated"
	PhaseAuthenticating  Phase = "authenticating"
	PhaseProfileLoading  Phase = "profile_loading"
	PhaseAuthenticated   Phase = "authenticated"
)

func (p Phase) String() string { return string(p) }

// Event drives phase transitions.
type Event string

const (
	EventSessionMissing     Event = "session_missing"
	EventSessionEstablished Event = "session_established"
	EventProfileLoaded      Event = "profile_loaded"
	EventProfileFailed      Event = "profile_failed"
	EventMagicLinkRequested Event = "magic_link_requested"
	EventMagicLinkSettled   Event = "magic_link_settled"
	EventSignedOut          Event = "signed_out"
)

var allPhases = []Phase{
	PhaseInitializing,
	PhaseUnauthenticated,
	PhaseAuthenticating,
	PhaseProfileLoading,
	PhaseAuthenticated,
}

// State is an immutable snapshot of the signed-in state.
type State struct {
	Phase     Phase
	Session   *auth.Session
	Identity  *auth.Identity
	Profile   *profile.Profile
	IsLoading bool
	Err       error
}

// IsAuthenticated reports whether a session and its identity are held.
func (s State) IsAuthenticated() bool {
	return s.Session != nil && s.Identity != nil
}

// UserID returns the identity id, or an empty string.
func (s State) UserID() string {
	if s.Identity == nil {
		return ""
	}
	return s.Identity.ID
}

func (s State) clone() State {
	c := s
	if s.Session != nil {
		sess := *s.Session
		c.Session = &sess
	}
	if s.Identity != nil {
		id := *s.Identity
		c.Identity = &id
	}
	c.Profile = s.Profile.Clone()
	return c
}

func isLoading(p Phase) bool {
	return p == PhaseInitializing || p == PhaseAuthenticating || p == PhaseProfileLoading
}

// settledTo lets one event lead to several targets; the caller passes the
// intended target as event data.
func settledTo(to Phase) statemachine.TransitionOption[Phase, Event] {
	return statemachine.WithGuard(func(_ context.Context, _ Phase, _ Event, data any) bool {
		target, ok := data.(Phase)
		return ok && target == to
	})
}

func newMachine(listener statemachine.Listener[Phase, Event]) *statemachine.Machine[Phase, Event] {
	return statemachine.MustNew(PhaseInitializing,
		statemachine.WithTransitionFrom(allPhases, PhaseUnauthenticated, EventSessionMissing),
		statemachine.WithTransitionFrom(allPhases, PhaseProfileLoading, EventSessionEstablished),
		statemachine.WithTransition(PhaseProfileLoading, PhaseAuthenticated, EventProfileLoaded),
		statemachine.WithTransition(PhaseProfileLoading, PhaseUnauthenticated, EventProfileFailed),
		statemachine.WithTransitionFrom(allPhases, PhaseAuthenticating, EventMagicLinkRequested),
		statemachine.WithTransition(PhaseAuthenticating, PhaseUnauthenticated, EventMagicLinkSettled, settledTo(PhaseUnauthenticated)),
		statemachine.WithTransition(PhaseAuthenticating, PhaseAuthenticated, EventMagicLinkSettled, settledTo(PhaseAuthenticated)),
		statemachine.WithTransition(PhaseAuthenticating, PhaseProfileLoading, EventMagicLinkSettled, settledTo(PhaseProfileLoading)),
		statemachine.WithTransitionFrom(allPhases, PhaseUnauthenticated, EventSignedOut),
		statemachine.WithListener(listener),
	)
}
