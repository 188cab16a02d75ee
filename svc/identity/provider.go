package identity

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/dmitrymomot/profilekit/pkg/broadcast"
	"github.com/dmitrymomot/profilekit/pkg/email"
	"github.com/dmitrymomot/profilekit/pkg/logger"
	"github.com/dmitrymomot/profilekit/pkg/validator"
	"github.com/dmitrymomot/profilekit/svc/auth"
	"github.com/dmitrymomot/profilekit/svc/credential"
)

// DefaultRefreshSkew refreshes sessions slightly before they expire.
const DefaultRefreshSkew = 30 * time.Second

// Client is an auth.Provider backed by a Service in the same process. The
// active session is persisted in a credential.Store.
type Client struct {
	service *Service
	store   credential.Store
	events  *broadcast.MemoryBroadcaster[auth.SessionEvent]
	logger  *slog.Logger
	skew    time.Duration

	mu sync.Mutex
}

var _ auth.Provider = (*Client)(nil)

// ClientOption configures a Client.
type ClientOption func(*Client)

func WithClientLogger(l *slog.Logger) ClientOption {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithRefreshSkew sets how long before expiry a stored session is refreshed.
func WithRefreshSkew(d time.Duration) ClientOption {
	return func(c *Client) {
		if d >= 0 {
			c.skew = d
		}
	}
}

func NewClient(service *Service, store credential.Store, opts ...ClientOption) *Client {
	c := &Client{
		service: service,
		store:   store,
		events:  broadcast.NewMemoryBroadcaster[auth.SessionEvent](16),
		logger:  logger.Discard(),
		skew:    DefaultRefreshSkew,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(logger.Component("identity_client"))
	return c
}

func (c *Client) SendMagicLink(ctx context.Context, address, redirectURL string) error {
	return providerError(c.service.RequestMagicLink(ctx, address, redirectURL))
}

func (c *Client) ExchangeToken(ctx context.Context, accessToken, refreshToken string) (*auth.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	session, err := c.service.Validate(ctx, accessToken, refreshToken)
	if err != nil {
		return nil, tokenError(err)
	}
	if err := c.store.Save(ctx, session); err != nil {
		return nil, errors.Join(auth.ErrNetwork, err)
	}
	c.publish(ctx, auth.EventEstablished, session)
	return session, nil
}

// CurrentSession returns the stored session, refreshing it when it is about
// to expire. A session that cannot be refreshed is cleared.
func (c *Client) CurrentSession(ctx context.Context) (*auth.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	session, err := credential.LoadOrClear(ctx, c.store)
	if err != nil {
		return nil, errors.Join(auth.ErrNetwork, err)
	}
	if session == nil {
		return nil, nil
	}
	if !session.ExpiredAt(c.service.now().Add(c.skew)) {
		return session, nil
	}

	refreshed, err := c.service.Refresh(ctx, session.RefreshToken)
	if err != nil {
		if errors.Is(err, ErrStorage) {
			return nil, errors.Join(auth.ErrNetwork, err)
		}
		c.logger.InfoContext(ctx, "stored session could not be refreshed",
			logger.UserID(session.Identity.ID),
			logger.Error(err),
		)
		if cerr := c.store.Clear(ctx); cerr != nil {
			return nil, errors.Join(auth.ErrNetwork, cerr)
		}
		c.publish(ctx, auth.EventCleared, nil)
		return nil, nil
	}

	if err := c.store.Save(ctx, refreshed); err != nil {
		return nil, errors.Join(auth.ErrNetwork, err)
	}
	c.publish(ctx, auth.EventEstablished, refreshed)
	return refreshed, nil
}

func (c *Client) Subscribe(ctx context.Context) broadcast.Subscriber[auth.SessionEvent] {
	return c.events.Subscribe(ctx)
}

// RevokeSession revokes the stored refresh token and clears the store.
func (c *Client) RevokeSession(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	session, err := credential.LoadOrClear(ctx, c.store)
	if err != nil {
		return errors.Join(auth.ErrNetwork, err)
	}
	if session != nil {
		if err := c.service.Revoke(ctx, session.RefreshToken); err != nil {
			return errors.Join(auth.ErrNetwork, err)
		}
	}
	if err := c.store.Clear(ctx); err != nil {
		return errors.Join(auth.ErrNetwork, err)
	}
	c.publish(ctx, auth.EventCleared, nil)
	return nil
}

// Close stops delivering session events.
func (c *Client) Close() error {
	return c.events.Close()
}

func (c *Client) publish(ctx context.Context, kind auth.EventKind, session *auth.Session) {
	if err := c.events.Broadcast(ctx, broadcast.Message[auth.SessionEvent]{
		Data: auth.SessionEvent{Kind: kind, Session: session},
	}); err != nil && !errors.Is(err, broadcast.ErrClosed) {
		c.logger.WarnContext(ctx, "failed to publish session event", logger.Error(err))
	}
}

func providerError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, email.ErrFailedToSendEmail), errors.Is(err, ErrStorage):
		return errors.Join(auth.ErrNetwork, err)
	case validator.IsValidationError(err),
		errors.Is(err, ErrRateLimited),
		errors.Is(err, ErrRedirectNotAllowed):
		return errors.Join(auth.ErrProviderRejected, err)
	}
	return err
}

func tokenError(err error) error {
	if errors.Is(err, ErrStorage) {
		return errors.Join(auth.ErrNetwork, err)
	}
	return errors.Join(auth.ErrInvalidCallback, err)
}
