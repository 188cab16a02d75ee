package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/dmitrymomot/profilekit/pkg/broadcast"
	"github.com/dmitrymomot/profilekit/pkg/callback"
	"github.com/dmitrymomot/profilekit/pkg/environment"
	"github.com/dmitrymomot/profilekit/pkg/logger"
	"github.com/dmitrymomot/profilekit/pkg/metrics"
	"github.com/dmitrymomot/profilekit/pkg/sanitizer"
	"github.com/dmitrymomot/profilekit/pkg/validator"
)

// Gateway wraps a Provider: it normalizes input, picks redirect targets and
// maps provider failures onto ErrProviderRejected, ErrNetwork and
// ErrInvalidCallback.
type Gateway struct {
	provider   Provider
	cfg        Config
	env        environment.Environment
	strict     bool
	pendingTTL time.Duration
	logger     *slog.Logger
	metrics    metrics.Recorder
	now        func() time.Time

	mu      sync.Mutex
	pending *pendingRequest
}

type pendingRequest struct {
	email       string
	requestedAt time.Time
}

// Option configures a Gateway.
type Option func(*Gateway)

func WithLogger(l *slog.Logger) Option {
	return func(g *Gateway) {
		if l != nil {
			g.logger = l
		}
	}
}

func WithMetrics(r metrics.Recorder) Option {
	return func(g *Gateway) {
		if r != nil {
			g.metrics = r
		}
	}
}

// WithStrictCallback requires callback URLs to carry both tokens and the
// resulting session to belong to the address of the pending magic link
// request. There is no fallback to an already active session.
func WithStrictCallback() Option {
	return func(g *Gateway) { g.strict = true }
}

// WithPendingTTL bounds how long a magic link request stays pending for
// strict callbacks. Default is one hour.
func WithPendingTTL(ttl time.Duration) Option {
	return func(g *Gateway) {
		if ttl > 0 {
			g.pendingTTL = ttl
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(g *Gateway) {
		if now != nil {
			g.now = now
		}
	}
}

// NewGateway creates a gateway over provider.
func NewGateway(provider Provider, cfg Config, opts ...Option) *Gateway {
	g := &Gateway{
		provider:   provider,
		cfg:        cfg,
		env:        environment.Parse(cfg.Environment),
		strict:     cfg.StrictCallback,
		pendingTTL: time.Hour,
		logger:     logger.Discard(),
		metrics:    metrics.Nop(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	g.logger = g.logger.With(logger.Component("auth"))
	return g
}

// RequestOption adjusts a single magic link request.
type RequestOption func(*requestOptions)

type requestOptions struct {
	redirectURL string
}

// WithRedirect overrides the configured redirect for one request, for example
// a loopback listener started by a CLI.
func WithRedirect(url string) RequestOption {
	return func(o *requestOptions) { o.redirectURL = strings.TrimSpace(url) }
}

// RedirectURL returns the callback target for the current environment.
func (g *Gateway) RedirectURL() string {
	if g.env.IsDevelopment() && g.cfg.DevRedirectURL != "" {
		return g.cfg.DevRedirectURL
	}
	return g.cfg.RedirectURL
}

// RequestMagicLink asks the provider to email a sign-in link to the
// normalized address. It returns once the provider accepted the request.
func (g *Gateway) RequestMagicLink(ctx context.Context, email string, opts ...RequestOption) error {
	o := requestOptions{redirectURL: g.RedirectURL()}
	for _, opt := range opts {
		opt(&o)
	}

	email = sanitizer.NormalizeEmail(email)
	if err := validator.Apply(
		validator.Required("email", email),
		validator.ValidEmail("email", email),
		validator.Required("redirect_url", o.redirectURL),
	); err != nil {
		g.metrics.RecordMagicLink(metrics.OutcomeRejected)
		return errors.Join(ErrProviderRejected, err)
	}

	if err := g.provider.SendMagicLink(ctx, email, o.redirectURL); err != nil {
		err = classify(err)
		g.metrics.RecordMagicLink(metrics.Outcome(err, IsRejected))
		g.logger.WarnContext(ctx, "magic link request failed",
			logger.Email(email),
			logger.Error(err),
		)
		return err
	}

	g.mu.Lock()
	g.pending = &pendingRequest{email: email, requestedAt: g.now()}
	g.mu.Unlock()

	g.metrics.RecordMagicLink(metrics.OutcomeSuccess)
	g.logger.InfoContext(ctx, "magic link requested",
		logger.Email(email),
		slog.String("redirect_url", o.redirectURL),
	)
	return nil
}

// ExchangeCallback turns the deep-link URL the provider redirected to into an
// active session. Without tokens in the URL it falls back to the session the
// provider already holds, unless strict callbacks are enabled.
func (g *Gateway) ExchangeCallback(ctx context.Context, rawURL string) (*Session, error) {
	session, err := g.exchange(ctx, rawURL)
	g.metrics.RecordCallback(metrics.Outcome(err, func(err error) bool {
		return errors.Is(err, ErrInvalidCallback) || errors.Is(err, ErrProviderRejected)
	}))
	if err != nil {
		g.logger.WarnContext(ctx, "callback exchange failed", logger.Error(err))
		return nil, err
	}

	g.logger.InfoContext(ctx, "session established",
		logger.UserID(session.Identity.ID),
		logger.Email(session.Identity.Email),
	)
	return session, nil
}

func (g *Gateway) exchange(ctx context.Context, rawURL string) (*Session, error) {
	tokens := callback.Parse(rawURL)
	if tokens.HasError() {
		return nil, &CallbackError{
			Code:        tokens.Error,
			ErrorCode:   tokens.ErrorCode,
			Description: tokens.ErrorDescription,
		}
	}

	if g.strict {
		return g.exchangeStrict(ctx, tokens)
	}

	if tokens.HasSession() {
		session, err := g.provider.ExchangeToken(ctx, tokens.AccessToken, tokens.RefreshToken)
		if err != nil {
			return nil, exchangeError(err)
		}
		if session == nil {
			return nil, ErrInvalidCallback
		}
		g.clearPending()
		return session, nil
	}

	// The provider may have consumed the link itself.
	session, err := g.provider.CurrentSession(ctx)
	if err != nil {
		return nil, exchangeError(err)
	}
	if session == nil {
		return nil, ErrInvalidCallback
	}
	g.clearPending()
	return session, nil
}

func (g *Gateway) exchangeStrict(ctx context.Context, tokens callback.Tokens) (*Session, error) {
	if !tokens.HasSession() {
		return nil, ErrInvalidCallback
	}

	g.mu.Lock()
	pending := g.pending
	g.mu.Unlock()
	if pending == nil || g.now().Sub(pending.requestedAt) > g.pendingTTL {
		return nil, errors.Join(ErrInvalidCallback, errors.New("no pending magic link request"))
	}

	session, err := g.provider.ExchangeToken(ctx, tokens.AccessToken, tokens.RefreshToken)
	if err != nil {
		return nil, exchangeError(err)
	}
	if session == nil {
		return nil, ErrInvalidCallback
	}

	if sanitizer.NormalizeEmail(session.Identity.Email) != pending.email {
		if rerr := g.provider.RevokeSession(ctx); rerr != nil {
			g.logger.WarnContext(ctx, "failed to revoke mismatched session",
				logger.UserID(session.Identity.ID),
				logger.Error(rerr),
			)
		}
		return nil, errors.Join(ErrInvalidCallback, errors.New("session does not match the pending request"))
	}

	g.clearPending()
	return session, nil
}

// SignOut revokes the session with the provider. On failure the caller must
// keep its local state.
func (g *Gateway) SignOut(ctx context.Context) error {
	if err := g.provider.RevokeSession(ctx); err != nil {
		err = classify(err)
		g.logger.WarnContext(ctx, "sign out failed", logger.Error(err))
		return err
	}
	g.clearPending()
	g.logger.InfoContext(ctx, "signed out")
	return nil
}

// CurrentSession returns the provider's active session, or nil when there is none.
func (g *Gateway) CurrentSession(ctx context.Context) (*Session, error) {
	session, err := g.provider.CurrentSession(ctx)
	if err != nil {
		return nil, classify(err)
	}
	return session, nil
}

// Subscribe streams provider session changes.
func (g *Gateway) Subscribe(ctx context.Context) broadcast.Subscriber[SessionEvent] {
	return g.provider.Subscribe(ctx)
}

// PendingEmail returns the address of the outstanding magic link request.
func (g *Gateway) PendingEmail() (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.pending == nil {
		return "", false
	}
	return g.pending.email, true
}

func (g *Gateway) clearPending() {
	g.mu.Lock()
	g.pending = nil
	g.mu.Unlock()
}

// exchangeError keeps transport failures as ErrNetwork and reports everything
// else as an invalid callback.
func exchangeError(err error) error {
	if errors.Is(err, ErrNetwork) || errors.Is(err, ErrInvalidCallback) || isTransport(err) {
		return classify(err)
	}
	return errors.Join(ErrInvalidCallback, err)
}
