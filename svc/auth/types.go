package auth

import (
	"context"
	"time"

	"github.com/dmitrymomot/profilekit/pkg/broadcast"
)

// Identity is the stable user identifier and email derived from a session.
type Identity struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// IsZero reports whether the identity carries no user id.
func (i Identity) IsZero() bool {
	return i.ID == ""
}

// Session is the credential bundle issued by the provider.
type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
	Identity     Identity  `json:"identity"`
}

// ExpiredAt reports whether the access token is expired at now. Sessions
// without an expiry never expire.
func (s *Session) ExpiredAt(now time.Time) bool {
	if s == nil {
		return true
	}
	return !s.ExpiresAt.IsZero() && !s.ExpiresAt.After(now)
}

// SameAs reports whether both sessions carry the same token pair.
func (s *Session) SameAs(other *Session) bool {
	if s == nil || other == nil {
		return s == other
	}
	return s.AccessToken == other.AccessToken && s.RefreshToken == other.RefreshToken
}

// EventKind classifies provider session changes.
type EventKind string

const (
	EventEstablished EventKind = "established"
	EventCleared     EventKind = "cleared"
)

// SessionEvent is pushed by the provider whenever the active session changes.
// Session is nil for EventCleared.
type SessionEvent struct {
	Kind    EventKind
	Session *Session
}

// Provider is the auth backend capability the gateway wraps.
type Provider interface {
	// SendMagicLink asks the provider to email a one-time sign-in link that
	// returns to redirectURL.
	SendMagicLink(ctx context.Context, email, redirectURL string) error

	// ExchangeToken installs the token pair as the active session.
	ExchangeToken(ctx context.Context, accessToken, refreshToken string) (*Session, error)

	// CurrentSession returns the active session, or nil, nil when there is none.
	CurrentSession(ctx context.Context) (*Session, error)

	// Subscribe streams session changes until ctx ends or the subscriber is closed.
	Subscribe(ctx context.Context) broadcast.Subscriber[SessionEvent]

	// RevokeSession ends the active session with the provider.
	RevokeSession(ctx context.Context) error
}
