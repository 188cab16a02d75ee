// Package redisstore implements identity.Storage on Redis. Link markers and
// refresh tokens expire with native key TTLs.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/profilekit/svc/identity"
)

// Client is the subset of the go-redis API the store uses.
type Client interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

type Store struct {
	client Client
	prefix string
	now    func() time.Time
}

var _ identity.Storage = (*Store)(nil)

type Option func(*Store)

// WithClock overrides the time source used to derive key TTLs.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// New creates a store whose keys all start with prefix, e.g. "identity:".
func New(client Client, prefix string, opts ...Option) *Store {
	s := &Store{client: client, prefix: prefix, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) accountKey(id string) string   { return s.prefix + "account:" + id }
func (s *Store) emailKey(email string) string  { return s.prefix + "email:" + email }
func (s *Store) linkKey(id string) string      { return s.prefix + "link:" + id }
func (s *Store) refreshKey(hash string) string { return s.prefix + "refresh:" + hash }

func (s *Store) GetAccount(ctx context.Context, id string) (*identity.Account, error) {
	var account identity.Account
	if err := s.getJSON(ctx, s.accountKey(id), &account); err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, identity.ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

func (s *Store) GetAccountByEmail(ctx context.Context, email string) (*identity.Account, error) {
	id, err := s.client.Get(ctx, s.emailKey(email)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, identity.ErrAccountNotFound
		}
		return nil, fmt.Errorf("get account id: %w", err)
	}
	return s.GetAccount(ctx, id)
}

// CreateAccount claims the email index first so concurrent registrations of
// the same address resolve to one account.
func (s *Store) CreateAccount(ctx context.Context, account *identity.Account) error {
	ok, err := s.client.SetNX(ctx, s.emailKey(account.Email), account.ID, 0).Result()
	if err != nil {
		return fmt.Errorf("claim email: %w", err)
	}
	if !ok {
		return identity.ErrAccountExists
	}
	if err := s.setJSON(ctx, s.accountKey(account.ID), account, 0); err != nil {
		_ = s.client.Del(ctx, s.emailKey(account.Email)).Err()
		return err
	}
	return nil
}

func (s *Store) MarkVerified(ctx context.Context, id string, at time.Time) error {
	account, err := s.GetAccount(ctx, id)
	if err != nil {
		return err
	}
	account.VerifiedAt = &at
	return s.setJSON(ctx, s.accountKey(id), account, 0)
}

func (s *Store) ConsumeMagicLink(ctx context.Context, linkID string, expiresAt time.Time) error {
	ok, err := s.client.SetNX(ctx, s.linkKey(linkID), 1, s.ttl(expiresAt)).Result()
	if err != nil {
		return fmt.Errorf("consume magic link: %w", err)
	}
	if !ok {
		return identity.ErrLinkUsed
	}
	return nil
}

func (s *Store) SaveRefreshToken(ctx context.Context, token identity.RefreshToken) error {
	return s.setJSON(ctx, s.refreshKey(token.Hash), token, s.ttl(token.ExpiresAt))
}

func (s *Store) GetRefreshToken(ctx context.Context, hash string) (*identity.RefreshToken, error) {
	var token identity.RefreshToken
	if err := s.getJSON(ctx, s.refreshKey(hash), &token); err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, identity.ErrRefreshTokenInvalid
		}
		return nil, err
	}
	if !token.ExpiresAt.After(s.now()) {
		return nil, identity.ErrRefreshTokenInvalid
	}
	return &token, nil
}

func (s *Store) DeleteRefreshToken(ctx context.Context, hash string) (bool, error) {
	n, err := s.client.Del(ctx, s.refreshKey(hash)).Result()
	if err != nil {
		return false, fmt.Errorf("delete refresh token: %w", err)
	}
	return n > 0, nil
}

// ttl never returns zero so an already expired entry does not become
// permanent.
func (s *Store) ttl(expiresAt time.Time) time.Duration {
	if d := expiresAt.Sub(s.now()); d > time.Second {
		return d
	}
	return time.Second
}

func (s *Store) getJSON(ctx context.Context, key string, v any) error {
	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return err
		}
		return fmt.Errorf("get %s: %w", key, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

func (s *Store) setJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := s.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}
