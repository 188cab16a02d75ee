package identity

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/profilekit/pkg/callback"
	"github.com/dmitrymomot/profilekit/pkg/email"
	"github.com/dmitrymomot/profilekit/pkg/jwt"
	"github.com/dmitrymomot/profilekit/pkg/logger"
	"github.com/dmitrymomot/profilekit/pkg/sanitizer"
	"github.com/dmitrymomot/profilekit/pkg/token"
	"github.com/dmitrymomot/profilekit/pkg/validator"
	"github.com/dmitrymomot/profilekit/svc/auth"
)

const (
	subjectMagicLink = "magic_link"
	tokenTypeBearer  = "bearer"
	refreshTokenSize = 32
)

// linkPayload is signed into magic link tokens.
type linkPayload struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Redirect string `json:"redirect"`
	Subject  string `json:"sub"`
	ExpireAt int64  `json:"exp"`
}

func (p linkPayload) ExpiresAt() time.Time { return time.Unix(p.ExpireAt, 0) }

// Grant is the outcome of a verified magic link.
type Grant struct {
	Session     *auth.Session
	RedirectURL string
}

// Service is a self-hosted magic link identity provider.
type Service struct {
	storage Storage
	sender  email.Sender
	tokens  *jwt.Service
	cfg     Config
	limiter *resendLimiter
	logger  *slog.Logger
	now     func() time.Time
}

// Option configures a Service.
type Option func(*Service)

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides the time source for tokens and rate limits.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService creates a Service. Zero durations in cfg fall back to the
// defaults; both secrets are required.
func NewService(storage Storage, sender email.Sender, cfg Config, opts ...Option) (*Service, error) {
	if cfg.JWTSecret == "" || cfg.LinkSecret == "" {
		return nil, ErrMissingSecret
	}
	cfg = withDefaults(cfg)
	if err := validator.Apply(
		validator.OneOf("redirect_mode", cfg.RedirectMode, RedirectModeAuto, RedirectModeFragment, RedirectModeQuery),
	); err != nil {
		return nil, errors.Join(ErrInvalidConfig, err)
	}

	s := &Service{
		storage: storage,
		sender:  sender,
		cfg:     cfg,
		limiter: newResendLimiter(cfg.ResendInterval),
		logger:  logger.Discard(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(logger.Component("identity"))

	tokens, err := jwt.NewFromString(cfg.JWTSecret, jwt.WithIssuer(cfg.Issuer), jwt.WithClock(s.now))
	if err != nil {
		return nil, err
	}
	s.tokens = tokens
	return s, nil
}

func withDefaults(cfg Config) Config {
	def := DefaultConfig()
	if cfg.AppName == "" {
		cfg.AppName = def.AppName
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.Issuer == "" {
		cfg.Issuer = def.Issuer
	}
	if cfg.LinkTTL <= 0 {
		cfg.LinkTTL = def.LinkTTL
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = def.AccessTTL
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = def.RefreshTTL
	}
	if cfg.RedirectMode == "" {
		cfg.RedirectMode = def.RedirectMode
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return cfg
}

// Config returns the effective configuration.
func (s *Service) Config() Config { return s.cfg }

// Tokens exposes the access token signer.
func (s *Service) Tokens() *jwt.Service { return s.tokens }

// RequestMagicLink registers email on first use and sends it a single-use
// sign-in link that redirects to redirectURL.
func (s *Service) RequestMagicLink(ctx context.Context, address, redirectURL string) error {
	address = sanitizer.NormalizeEmail(address)
	redirectURL = strings.TrimSpace(redirectURL)
	if err := validator.Apply(
		validator.Required("email", address),
		validator.ValidEmail("email", address),
		validator.Required("redirect_url", redirectURL),
	); err != nil {
		return err
	}
	if !s.redirectAllowed(redirectURL) {
		return fmt.Errorf("%w: %s", ErrRedirectNotAllowed, redirectURL)
	}

	now := s.now()
	if ok, wait := s.limiter.allow(address, now); !ok {
		return fmt.Errorf("%w: retry in %s", ErrRateLimited, wait.Round(time.Second))
	}

	if _, err := s.ensureAccount(ctx, address, now); err != nil {
		return err
	}

	expiresAt := now.Add(s.cfg.LinkTTL)
	tok, err := token.Generate(linkPayload{
		ID:       uuid.NewString(),
		Email:    address,
		Redirect: redirectURL,
		Subject:  subjectMagicLink,
		ExpireAt: expiresAt.Unix(),
	}, s.cfg.LinkSecret)
	if err != nil {
		return fmt.Errorf("generate magic link: %w", err)
	}

	msg, err := email.MagicLinkMessage(address, email.MagicLinkData{
		AppName: s.cfg.AppName,
		Link:    s.VerifyURL(tok),
		TTL:     s.cfg.LinkTTL,
	})
	if err != nil {
		return err
	}
	msg.Tag = subjectMagicLink

	if err := s.sender.Send(ctx, msg); err != nil {
		s.logger.ErrorContext(ctx, "failed to send magic link", logger.Email(address), logger.Error(err))
		return err
	}

	s.logger.InfoContext(ctx, "magic link sent", logger.Email(address))
	return nil
}

// VerifyURL is the link embedded in the email.
func (s *Service) VerifyURL(linkToken string) string {
	return s.cfg.BaseURL + "/verify?token=" + url.QueryEscape(linkToken)
}

func (s *Service) ensureAccount(ctx context.Context, address string, now time.Time) (*Account, error) {
	account, err := s.storage.GetAccountByEmail(ctx, address)
	if err == nil {
		return account, nil
	}
	if !errors.Is(err, ErrAccountNotFound) {
		return nil, errors.Join(ErrStorage, err)
	}

	account = &Account{ID: uuid.NewString(), Email: address, CreatedAt: now}
	switch err := s.storage.CreateAccount(ctx, account); {
	case err == nil:
		s.logger.InfoContext(ctx, "account registered", logger.UserID(account.ID), logger.Email(address))
		return account, nil
	case errors.Is(err, ErrAccountExists):
		return s.storage.GetAccountByEmail(ctx, address)
	default:
		return nil, errors.Join(ErrStorage, err)
	}
}

func (s *Service) redirectAllowed(redirectURL string) bool {
	if len(s.cfg.AllowedRedirects) == 0 {
		return true
	}
	for _, prefix := range s.cfg.AllowedRedirects {
		if prefix = strings.TrimSpace(prefix); prefix != "" && strings.HasPrefix(redirectURL, prefix) {
			return true
		}
	}
	return false
}

// Verify consumes a magic link token and issues a session. The returned
// redirect URL is set whenever the token carried a readable one, including on
// expiry or reuse, so callers can report the failure to the application.
func (s *Service) Verify(ctx context.Context, linkToken string) (*Grant, error) {
	payload, err := token.ParseAt[linkPayload](linkToken, s.cfg.LinkSecret, s.now())
	switch {
	case errors.Is(err, token.ErrExpired):
		return &Grant{RedirectURL: payload.Redirect}, ErrLinkExpired
	case err != nil:
		return nil, errors.Join(ErrLinkInvalid, err)
	case payload.Subject != subjectMagicLink || payload.ID == "" || payload.Email == "":
		return nil, ErrLinkInvalid
	}
	grant := &Grant{RedirectURL: payload.Redirect}

	if err := s.storage.ConsumeMagicLink(ctx, payload.ID, payload.ExpiresAt()); err != nil {
		if errors.Is(err, ErrLinkUsed) {
			return grant, err
		}
		return grant, errors.Join(ErrStorage, err)
	}

	account, err := s.storage.GetAccountByEmail(ctx, payload.Email)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return grant, errors.Join(ErrLinkInvalid, err)
		}
		return grant, errors.Join(ErrStorage, err)
	}

	if account.VerifiedAt == nil {
		if err := s.storage.MarkVerified(ctx, account.ID, s.now()); err != nil {
			s.logger.WarnContext(ctx, "failed to mark account verified",
				logger.UserID(account.ID),
				logger.Error(err),
			)
		}
	}

	session, err := s.issue(ctx, account.ID, account.Email)
	if err != nil {
		return grant, err
	}
	grant.Session = session

	s.logger.InfoContext(ctx, "magic link verified", logger.UserID(account.ID))
	return grant, nil
}

// Refresh rotates a refresh token: the old one is consumed and a new pair
// is issued.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*auth.Session, error) {
	if refreshToken == "" {
		return nil, ErrRefreshTokenInvalid
	}
	hash := HashToken(refreshToken)

	stored, err := s.storage.GetRefreshToken(ctx, hash)
	if err != nil {
		return nil, storageError(err, ErrRefreshTokenInvalid)
	}
	deleted, err := s.storage.DeleteRefreshToken(ctx, hash)
	if err != nil {
		return nil, errors.Join(ErrStorage, err)
	}
	if !deleted {
		return nil, ErrRefreshTokenInvalid
	}

	account, err := s.storage.GetAccount(ctx, stored.AccountID)
	if err != nil {
		return nil, storageError(err, ErrAccountNotFound)
	}

	s.logger.DebugContext(ctx, "refresh token rotated", logger.UserID(account.ID))
	return s.issue(ctx, account.ID, account.Email)
}

// Validate checks a token pair presented by a client. An expired access
// token is accepted when the refresh token is valid; the pair is rotated in
// that case.
func (s *Service) Validate(ctx context.Context, accessToken, refreshToken string) (*auth.Session, error) {
	claims, err := s.tokens.ParseExpired(accessToken)
	if errors.Is(err, jwt.ErrExpiredToken) {
		session, err := s.Refresh(ctx, refreshToken)
		if err != nil {
			return nil, err
		}
		if session.Identity.ID != claims.Subject {
			return nil, ErrAccessTokenInvalid
		}
		return session, nil
	}
	if err != nil {
		return nil, errors.Join(ErrAccessTokenInvalid, err)
	}

	stored, err := s.storage.GetRefreshToken(ctx, HashToken(refreshToken))
	if err != nil {
		return nil, storageError(err, ErrRefreshTokenInvalid)
	}
	if stored.AccountID != claims.Subject {
		return nil, ErrRefreshTokenInvalid
	}

	return &auth.Session{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    tokenTypeBearer,
		ExpiresAt:    claims.Expiry(),
		Identity:     auth.Identity{ID: claims.Subject, Email: claims.Email},
	}, nil
}

// Revoke invalidates a refresh token. Unknown tokens are ignored.
func (s *Service) Revoke(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	if _, err := s.storage.DeleteRefreshToken(ctx, HashToken(refreshToken)); err != nil {
		return errors.Join(ErrStorage, err)
	}
	return nil
}

// Account returns the account behind a valid access token.
func (s *Service) Account(ctx context.Context, accessToken string) (*Account, error) {
	claims, err := s.tokens.Parse(accessToken)
	if err != nil {
		return nil, errors.Join(ErrAccessTokenInvalid, err)
	}
	account, err := s.storage.GetAccount(ctx, claims.Subject)
	if err != nil {
		return nil, storageError(err, ErrAccountNotFound)
	}
	return account, nil
}

func (s *Service) issue(ctx context.Context, accountID, address string) (*auth.Session, error) {
	access, claims, err := s.tokens.Issue(accountID, address, s.cfg.AccessTTL)
	if err != nil {
		return nil, err
	}

	refresh, err := newRefreshToken()
	if err != nil {
		return nil, err
	}
	now := s.now()
	if err := s.storage.SaveRefreshToken(ctx, RefreshToken{
		Hash:      HashToken(refresh),
		AccountID: accountID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.cfg.RefreshTTL),
	}); err != nil {
		return nil, errors.Join(ErrStorage, err)
	}

	return &auth.Session{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    tokenTypeBearer,
		ExpiresAt:    claims.Expiry(),
		Identity:     auth.Identity{ID: accountID, Email: address},
	}, nil
}

// RedirectWithSession renders the callback URL carrying session.
func (s *Service) RedirectWithSession(redirectURL string, session *auth.Session) string {
	return s.redirect(redirectURL, callback.Tokens{
		AccessToken:  session.AccessToken,
		RefreshToken: session.RefreshToken,
		ExpiresIn:    int(session.ExpiresAt.Sub(s.now()).Seconds()),
		TokenType:    session.TokenType,
		Type:         subjectMagicLink,
	})
}

// RedirectWithError renders the callback URL reporting err.
func (s *Service) RedirectWithError(redirectURL string, err error) string {
	code, errorCode, description := "server_error", "unexpected_failure", "Sign-in failed, please try again"
	switch {
	case errors.Is(err, ErrLinkExpired), errors.Is(err, ErrLinkUsed), errors.Is(err, ErrLinkInvalid):
		code, errorCode, description = "access_denied", "otp_expired", "Email link is invalid or has expired"
	case errors.Is(err, ErrAccountNotFound):
		code, errorCode, description = "access_denied", "user_not_found", "Account not found"
	}
	return s.redirect(redirectURL, callback.Tokens{
		Error:            code,
		ErrorCode:        errorCode,
		ErrorDescription: description,
	})
}

func (s *Service) redirect(redirectURL string, t callback.Tokens) string {
	encoded := callback.Encode(t)
	base, _, _ := strings.Cut(redirectURL, "#")

	if s.useQuery(base) {
		sep := "?"
		if strings.Contains(base, "?") {
			sep = "&"
		}
		return base + sep + encoded
	}
	return base + "#" + encoded
}

func (s *Service) useQuery(redirectURL string) bool {
	switch s.cfg.RedirectMode {
	case RedirectModeQuery:
		return true
	case RedirectModeFragment:
		return false
	}
	u, err := url.Parse(redirectURL)
	if err != nil || u.Scheme != "http" {
		return false
	}
	host := u.Hostname()
	return host == "localhost" || host == "127.0.0.1" || host == "::1"
}

func newRefreshToken() (string, error) {
	b := make([]byte, refreshTokenSize)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate refresh token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// storageError keeps domain sentinels and marks everything else as a storage
// failure.
func storageError(err, sentinel error) error {
	if errors.Is(err, sentinel) {
		return err
	}
	return errors.Join(ErrStorage, err)
}
