package auth_test

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/profilekit/pkg/broadcast"
	"github.com/dmitrymomot/profilekit/pkg/validator"
	"github.com/dmitrymomot/profilekit/svc/auth"
)

var testConfig = auth.Config{
	Environment:    "production",
	RedirectURL:    "profilekit://auth/callback",
	DevRedirectURL: "exp://127.0.0.1:8081/--/auth/callback",
}

func session(id, email string) *auth.Session {
	return &auth.Session{
		AccessToken:  "access-" + id,
		RefreshToken: "refresh-" + id,
		ExpiresAt:    time.Now().Add(time.Hour),
		Identity:     auth.Identity{ID: id, Email: email},
	}
}

func TestGateway_RequestMagicLink(t *testing.T) {
	t.Parallel()

	t.Run("normalizes the email", func(t *testing.T) {
		t.Parallel()

		p := &MockProvider{}
		p.On("SendMagicLink", mock.Anything, "user@example.com", "profilekit://auth/callback").Return(nil)

		gw := auth.NewGateway(p, testConfig)
		require.NoError(t, gw.RequestMagicLink(context.Background(), "User@Example.com "))

		email, ok := gw.PendingEmail()
		assert.True(t, ok)
		assert.Equal(t, "user@example.com", email)
		p.AssertExpectations(t)
	})

	t.Run("uses dev redirect in development", func(t *testing.T) {
		t.Parallel()

		cfg := testConfig
		cfg.Environment = "development"

		p := &MockProvider{}
		p.On("SendMagicLink", mock.Anything, "a@example.com", cfg.DevRedirectURL).Return(nil)

		gw := auth.NewGateway(p, cfg)
		require.NoError(t, gw.RequestMagicLink(context.Background(), "a@example.com"))
		p.AssertExpectations(t)
	})

	t.Run("falls back to production redirect when dev redirect is unset", func(t *testing.T) {
		t.Parallel()

		cfg := testConfig
		cfg.Environment = "development"
		cfg.DevRedirectURL = ""

		gw := auth.NewGateway(&MockProvider{}, cfg)
		assert.Equal(t, cfg.RedirectURL, gw.RedirectURL())
	})

	t.Run("per request redirect", func(t *testing.T) {
		t.Parallel()

		p := &MockProvider{}
		p.On("SendMagicLink", mock.Anything, "a@example.com", "http://127.0.0.1:5000/callback").Return(nil)

		gw := auth.NewGateway(p, testConfig)
		require.NoError(t, gw.RequestMagicLink(context.Background(), "a@example.com",
			auth.WithRedirect("http://127.0.0.1:5000/callback")))
		p.AssertExpectations(t)
	})

	t.Run("invalid email is rejected before the provider", func(t *testing.T) {
		t.Parallel()

		p := &MockProvider{}
		gw := auth.NewGateway(p, testConfig)

		err := gw.RequestMagicLink(context.Background(), "not-an-email")
		require.Error(t, err)
		assert.ErrorIs(t, err, auth.ErrProviderRejected)
		assert.True(t, validator.IsValidationError(err))
		p.AssertNotCalled(t, "SendMagicLink", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("provider refusal", func(t *testing.T) {
		t.Parallel()

		p := &MockProvider{}
		p.On("SendMagicLink", mock.Anything, mock.Anything, mock.Anything).
			Return(errors.New("For security purposes, you can only request this once every 60 seconds"))

		gw := auth.NewGateway(p, testConfig)
		err := gw.RequestMagicLink(context.Background(), "a@example.com")
		assert.ErrorIs(t, err, auth.ErrProviderRejected)

		_, pending := gw.PendingEmail()
		assert.False(t, pending)
	})

	t.Run("transport failure", func(t *testing.T) {
		t.Parallel()

		p := &MockProvider{}
		p.On("SendMagicLink", mock.Anything, mock.Anything, mock.Anything).
			Return(&net.OpError{Op: "dial", Err: errors.New("connection refused")})

		gw := auth.NewGateway(p, testConfig)
		err := gw.RequestMagicLink(context.Background(), "a@example.com")
		assert.ErrorIs(t, err, auth.ErrNetwork)
		assert.False(t, auth.IsRejected(err))
	})

	t.Run("deadline is a network failure", func(t *testing.T) {
		t.Parallel()

		p := &MockProvider{}
		p.On("SendMagicLink", mock.Anything, mock.Anything, mock.Anything).Return(context.DeadlineExceeded)

		gw := auth.NewGateway(p, testConfig)
		err := gw.RequestMagicLink(context.Background(), "a@example.com")
		assert.ErrorIs(t, err, auth.ErrNetwork)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

func TestGateway_ExchangeCallback(t *testing.T) {
	t.Parallel()

	t.Run("exchanges tokens from the fragment", func(t *testing.T) {
		t.Parallel()

		want := session("u1", "a@example.com")
		p := &MockProvider{}
		p.On("ExchangeToken", mock.Anything, "at", "rt").Return(want, nil)

		gw := auth.NewGateway(p, testConfig)
		got, err := gw.ExchangeCallback(context.Background(), "profilekit://auth/callback#access_token=at&refresh_token=rt")
		require.NoError(t, err)
		assert.Equal(t, want, got)
		p.AssertNotCalled(t, "CurrentSession", mock.Anything)
	})

	t.Run("falls back to the current session without tokens", func(t *testing.T) {
		t.Parallel()

		want := session("u1", "a@example.com")
		p := &MockProvider{}
		p.On("CurrentSession", mock.Anything).Return(want, nil)

		gw := auth.NewGateway(p, testConfig)
		got, err := gw.ExchangeCallback(context.Background(), "profilekit://auth/callback")
		require.NoError(t, err)
		assert.Equal(t, want, got)
	})

	t.Run("one token is not enough", func(t *testing.T) {
		t.Parallel()

		p := &MockProvider{}
		p.On("CurrentSession", mock.Anything).Return(nil, nil)

		gw := auth.NewGateway(p, testConfig)
		_, err := gw.ExchangeCallback(context.Background(), "x://cb#access_token=at")
		assert.ErrorIs(t, err, auth.ErrInvalidCallback)
		p.AssertNotCalled(t, "ExchangeToken", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("no tokens and no session", func(t *testing.T) {
		t.Parallel()

		p := &MockProvider{}
		p.On("CurrentSession", mock.Anything).Return(nil, nil)

		gw := auth.NewGateway(p, testConfig)
		_, err := gw.ExchangeCallback(context.Background(), "garbage")
		assert.ErrorIs(t, err, auth.ErrInvalidCallback)
	})

	t.Run("provider error redirect skips the fallback", func(t *testing.T) {
		t.Parallel()

		p := &MockProvider{}
		gw := auth.NewGateway(p, testConfig)

		_, err := gw.ExchangeCallback(context.Background(),
			"x://cb#error=access_denied&error_code=otp_expired&error_description=Email+link+is+invalid+or+has+expired")
		require.Error(t, err)
		assert.ErrorIs(t, err, auth.ErrInvalidCallback)

		var cbErr *auth.CallbackError
		require.ErrorAs(t, err, &cbErr)
		assert.Equal(t, "otp_expired", cbErr.ErrorCode)
		assert.Equal(t, "Email link is invalid or has expired", cbErr.Description)
		assert.Contains(t, err.Error(), "otp_expired")
		p.AssertNotCalled(t, "CurrentSession", mock.Anything)
	})

	t.Run("rejected tokens are an invalid callback", func(t *testing.T) {
		t.Parallel()

		p := &MockProvider{}
		p.On("ExchangeToken", mock.Anything, "at", "rt").Return(nil, errors.New("invalid JWT"))

		gw := auth.NewGateway(p, testConfig)
		_, err := gw.ExchangeCallback(context.Background(), "x://cb#access_token=at&refresh_token=rt")
		assert.ErrorIs(t, err, auth.ErrInvalidCallback)
	})

	t.Run("transport failure during exchange", func(t *testing.T) {
		t.Parallel()

		p := &MockProvider{}
		p.On("ExchangeToken", mock.Anything, "at", "rt").Return(nil, context.DeadlineExceeded)

		gw := auth.NewGateway(p, testConfig)
		_, err := gw.ExchangeCallback(context.Background(), "x://cb#access_token=at&refresh_token=rt")
		assert.ErrorIs(t, err, auth.ErrNetwork)
		assert.NotErrorIs(t, err, auth.ErrInvalidCallback)
	})
}

func TestGateway_StrictCallback(t *testing.T) {
	t.Parallel()

	newGateway := func(p auth.Provider, now func() time.Time) *auth.Gateway {
		return auth.NewGateway(p, testConfig, auth.WithStrictCallback(), auth.WithClock(now))
	}

	t.Run("matching session", func(t *testing.T) {
		t.Parallel()

		want := session("u1", "a@example.com")
		p := &MockProvider{}
		p.On("SendMagicLink", mock.Anything, "a@example.com", mock.Anything).Return(nil)
		p.On("ExchangeToken", mock.Anything, "at", "rt").Return(want, nil)

		gw := newGateway(p, time.Now)
		require.NoError(t, gw.RequestMagicLink(context.Background(), "A@example.com"))

		got, err := gw.ExchangeCallback(context.Background(), "x://cb#access_token=at&refresh_token=rt")
		require.NoError(t, err)
		assert.Equal(t, want, got)

		_, pending := gw.PendingEmail()
		assert.False(t, pending)
	})

	t.Run("no fallback without tokens", func(t *testing.T) {
		t.Parallel()

		p := &MockProvider{}
		gw := newGateway(p, time.Now)

		_, err := gw.ExchangeCallback(context.Background(), "x://cb")
		assert.ErrorIs(t, err, auth.ErrInvalidCallback)
		p.AssertNotCalled(t, "CurrentSession", mock.Anything)
	})

	t.Run("no pending request", func(t *testing.T) {
		t.Parallel()

		p := &MockProvider{}
		gw := newGateway(p, time.Now)

		_, err := gw.ExchangeCallback(context.Background(), "x://cb#access_token=at&refresh_token=rt")
		assert.ErrorIs(t, err, auth.ErrInvalidCallback)
		p.AssertNotCalled(t, "ExchangeToken", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("expired pending request", func(t *testing.T) {
		t.Parallel()

		now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
		clock := func() time.Time { return now }

		p := &MockProvider{}
		p.On("SendMagicLink", mock.Anything, mock.Anything, mock.Anything).Return(nil)

		gw := newGateway(p, clock)
		require.NoError(t, gw.RequestMagicLink(context.Background(), "a@example.com"))

		now = now.Add(2 * time.Hour)
		_, err := gw.ExchangeCallback(context.Background(), "x://cb#access_token=at&refresh_token=rt")
		assert.ErrorIs(t, err, auth.ErrInvalidCallback)
	})

	t.Run("mismatched session is revoked", func(t *testing.T) {
		t.Parallel()

		p := &MockProvider{}
		p.On("SendMagicLink", mock.Anything, "a@example.com", mock.Anything).Return(nil)
		p.On("ExchangeToken", mock.Anything, "at", "rt").Return(session("u2", "b@example.com"), nil)
		p.On("RevokeSession", mock.Anything).Return(nil).Once()

		gw := newGateway(p, time.Now)
		require.NoError(t, gw.RequestMagicLink(context.Background(), "a@example.com"))

		_, err := gw.ExchangeCallback(context.Background(), "x://cb#access_token=at&refresh_token=rt")
		assert.ErrorIs(t, err, auth.ErrInvalidCallback)
		p.AssertExpectations(t)
	})
}

func TestGateway_SignOut(t *testing.T) {
	t.Parallel()

	t.Run("success", func(t *testing.T) {
		t.Parallel()

		p := &MockProvider{}
		p.On("RevokeSession", mock.Anything).Return(nil)

		gw := auth.NewGateway(p, testConfig)
		require.NoError(t, gw.SignOut(context.Background()))
		p.AssertExpectations(t)
	})

	t.Run("provider failure is returned", func(t *testing.T) {
		t.Parallel()

		p := &MockProvider{}
		p.On("RevokeSession", mock.Anything).Return(&net.DNSError{Err: "no such host", IsTimeout: true})

		gw := auth.NewGateway(p, testConfig)
		err := gw.SignOut(context.Background())
		assert.ErrorIs(t, err, auth.ErrNetwork)
	})
}

func TestGateway_PassThrough(t *testing.T) {
	t.Parallel()

	want := session("u1", "a@example.com")
	b := broadcast.NewMemoryBroadcaster[auth.SessionEvent](4)
	t.Cleanup(func() { _ = b.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	sub := b.Subscribe(ctx)

	p := &MockProvider{}
	p.On("CurrentSession", mock.Anything).Return(want, nil)
	p.On("Subscribe", mock.Anything).Return(sub)

	gw := auth.NewGateway(p, testConfig)

	got, err := gw.CurrentSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	events := gw.Subscribe(ctx)
	require.NoError(t, b.Broadcast(ctx, broadcast.Message[auth.SessionEvent]{
		Data: auth.SessionEvent{Kind: auth.EventEstablished, Session: want},
	}))

	select {
	case msg := <-events.Receive(ctx):
		assert.Equal(t, auth.EventEstablished, msg.Data.Kind)
		assert.Equal(t, want, msg.Data.Session)
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

func TestSession(t *testing.T) {
	t.Parallel()

	now := time.Now()
	s := &auth.Session{AccessToken: "a", RefreshToken: "r", ExpiresAt: now}
	assert.True(t, s.ExpiredAt(now))
	assert.False(t, s.ExpiredAt(now.Add(-time.Second)))
	assert.False(t, (&auth.Session{}).ExpiredAt(now))

	var nilSession *auth.Session
	assert.True(t, nilSession.ExpiredAt(now))

	assert.True(t, s.SameAs(&auth.Session{AccessToken: "a", RefreshToken: "r"}))
	assert.False(t, s.SameAs(&auth.Session{AccessToken: "b", RefreshToken: "r"}))
	assert.False(t, s.SameAs(nil))
	assert.True(t, nilSession.SameAs(nil))
}
