package jwt

import (
	"errors"
	"fmt"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"
)

// Claims are the access token claims: the registered set plus the email of
// the subject.
type Claims struct {
	Email string `json:"email,omitempty"`
	gojwt.RegisteredClaims
}

// Expiry returns the exp claim, or the zero time when unset.
func (c *Claims) Expiry() time.Time {
	if c == nil || c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}

// Service signs and verifies HS256 tokens.
type Service struct {
	signingKey []byte
	issuer     string
	now        func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithIssuer sets the iss claim on generated tokens and requires it on
// parsed ones.
func WithIssuer(iss string) Option {
	return func(s *Service) { s.issuer = iss }
}

// WithClock overrides the time source used for iat and expiry checks.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// New creates a service. The key should be at least 32 bytes.
func New(signingKey []byte, opts ...Option) (*Service, error) {
	if len(signingKey) == 0 {
		return nil, ErrMissingSigningKey
	}
	s := &Service{signingKey: signingKey, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// NewFromString is New for string keys.
func NewFromString(signingKey string, opts ...Option) (*Service, error) {
	return New([]byte(signingKey), opts...)
}

// Issue signs a token for subject that expires after ttl.
func (s *Service) Issue(subject, email string, ttl time.Duration) (string, *Claims, error) {
	if subject == "" || ttl <= 0 {
		return "", nil, ErrMissingClaims
	}
	now := s.now().Truncate(time.Second)
	claims := &Claims{
		Email: email,
		RegisteredClaims: gojwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    s.issuer,
			IssuedAt:  gojwt.NewNumericDate(now),
			ExpiresAt: gojwt.NewNumericDate(now.Add(ttl)),
		},
	}
	tok, err := s.Generate(claims)
	if err != nil {
		return "", nil, err
	}
	return tok, claims, nil
}

// Generate signs claims as they are.
func (s *Service) Generate(claims *Claims) (string, error) {
	if claims == nil {
		return "", ErrMissingClaims
	}
	tok, err := gojwt.NewWithClaims(gojwt.SigningMethodHS256, claims).SignedString(s.signingKey)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidSigningKey, err)
	}
	return tok, nil
}

// Parse verifies the signature, algorithm, issuer and expiry of tok.
func (s *Service) Parse(tok string) (*Claims, error) {
	return s.parse(tok,
		gojwt.WithTimeFunc(s.now),
		gojwt.WithExpirationRequired(),
	)
}

// ParseExpired verifies everything Parse does except expiry. An expired
// token yields its claims together with ErrExpiredToken.
func (s *Service) ParseExpired(tok string) (*Claims, error) {
	claims, err := s.parse(tok, gojwt.WithoutClaimsValidation())
	if err != nil {
		return nil, err
	}
	if exp := claims.Expiry(); !exp.IsZero() && !s.now().Before(exp) {
		return claims, ErrExpiredToken
	}
	return claims, nil
}

func (s *Service) parse(tok string, opts ...gojwt.ParserOption) (*Claims, error) {
	if tok == "" {
		return nil, ErrInvalidToken
	}
	opts = append(opts, gojwt.WithValidMethods([]string{gojwt.SigningMethodHS256.Alg()}))
	if s.issuer != "" {
		opts = append(opts, gojwt.WithIssuer(s.issuer))
	}

	claims := &Claims{}
	token, err := gojwt.ParseWithClaims(tok, claims, func(*gojwt.Token) (any, error) {
		return s.signingKey, nil
	}, opts...)
	if err != nil {
		return nil, mapError(err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Subject == "" {
		return nil, ErrInvalidClaims
	}
	// WithoutClaimsValidation skips the issuer option too.
	if s.issuer != "" && claims.Issuer != s.issuer {
		return nil, ErrInvalidClaims
	}
	return claims, nil
}

func mapError(err error) error {
	switch {
	case errors.Is(err, gojwt.ErrTokenExpired):
		return errors.Join(ErrExpiredToken, err)
	case errors.Is(err, gojwt.ErrTokenSignatureInvalid):
		return errors.Join(ErrInvalidSignature, err)
	case errors.Is(err, gojwt.ErrTokenUnverifiable):
		return errors.Join(ErrUnexpectedSigningMethod, err)
	case errors.Is(err, gojwt.ErrTokenInvalidIssuer),
		errors.Is(err, gojwt.ErrTokenRequiredClaimMissing),
		errors.Is(err, gojwt.ErrTokenInvalidClaims):
		return errors.Join(ErrInvalidClaims, err)
	default:
		return errors.Join(ErrInvalidToken, err)
	}
}
