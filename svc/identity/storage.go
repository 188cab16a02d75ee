package identity

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
)

// Account is a registered email address. Accounts are created on the first
// magic link request and verified on the first successful sign-in.
type Account struct {
	ID         string     `json:"id"`
	Email      string     `json:"email"`
	CreatedAt  time.Time  `json:"created_at"`
	VerifiedAt *time.Time `json:"verified_at,omitempty"`
}

// RefreshToken is the stored half of a refresh token. Only the hash of the
// token value is kept.
type RefreshToken struct {
	Hash      string    `json:"hash"`
	AccountID string    `json:"account_id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Storage persists accounts, single-use link markers and refresh tokens.
type Storage interface {
	GetAccount(ctx context.Context, id string) (*Account, error)
	GetAccountByEmail(ctx context.Context, email string) (*Account, error)
	// CreateAccount fails with ErrAccountExists when the email is taken.
	CreateAccount(ctx context.Context, account *Account) error
	MarkVerified(ctx context.Context, id string, at time.Time) error

	// ConsumeMagicLink marks linkID as used until expiresAt. It fails with
	// ErrLinkUsed when the link was consumed before.
	ConsumeMagicLink(ctx context.Context, linkID string, expiresAt time.Time) error

	SaveRefreshToken(ctx context.Context, token RefreshToken) error
	// GetRefreshToken fails with ErrRefreshTokenInvalid for unknown or
	// expired tokens.
	GetRefreshToken(ctx context.Context, hash string) (*RefreshToken, error)
	// DeleteRefreshToken reports whether the token existed.
	DeleteRefreshToken(ctx context.Context, hash string) (bool, error)
}

// HashToken returns the storage key of a refresh token value.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// MemoryStorage is an in-process Storage.
type MemoryStorage struct {
	mu       sync.Mutex
	accounts map[string]Account
	byEmail  map[string]string
	links    map[string]time.Time
	refresh  map[string]RefreshToken
	now      func() time.Time
}

// MemoryOption configures a MemoryStorage.
type MemoryOption func(*MemoryStorage)

// WithMemoryClock overrides the time source used for expiry.
func WithMemoryClock(now func() time.Time) MemoryOption {
	return func(m *MemoryStorage) {
		if now != nil {
			m.now = now
		}
	}
}

func NewMemoryStorage(opts ...MemoryOption) *MemoryStorage {
	m := &MemoryStorage{
		accounts: make(map[string]Account),
		byEmail:  make(map[string]string),
		links:    make(map[string]time.Time),
		refresh:  make(map[string]RefreshToken),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *MemoryStorage) GetAccount(ctx context.Context, id string) (*Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok {
		return nil, ErrAccountNotFound
	}
	return &a, nil
}

func (m *MemoryStorage) GetAccountByEmail(ctx context.Context, email string) (*Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byEmail[email]
	if !ok {
		return nil, ErrAccountNotFound
	}
	a := m.accounts[id]
	return &a, nil
}

func (m *MemoryStorage) CreateAccount(ctx context.Context, account *Account) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byEmail[account.Email]; ok {
		return ErrAccountExists
	}
	if _, ok := m.accounts[account.ID]; ok {
		return ErrAccountExists
	}
	m.accounts[account.ID] = *account
	m.byEmail[account.Email] = account.ID
	return nil
}

func (m *MemoryStorage) MarkVerified(ctx context.Context, id string, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok {
		return ErrAccountNotFound
	}
	a.VerifiedAt = &at
	m.accounts[id] = a
	return nil
}

func (m *MemoryStorage) ConsumeMagicLink(ctx context.Context, linkID string, expiresAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for id, exp := range m.links {
		if !exp.After(now) {
			delete(m.links, id)
		}
	}
	if _, used := m.links[linkID]; used {
		return ErrLinkUsed
	}
	m.links[linkID] = expiresAt
	return nil
}

func (m *MemoryStorage) SaveRefreshToken(ctx context.Context, token RefreshToken) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refresh[token.Hash] = token
	return nil
}

func (m *MemoryStorage) GetRefreshToken(ctx context.Context, hash string) (*RefreshToken, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.refresh[hash]
	if !ok {
		return nil, ErrRefreshTokenInvalid
	}
	if !t.ExpiresAt.After(m.now()) {
		delete(m.refresh, hash)
		return nil, ErrRefreshTokenInvalid
	}
	return &t, nil
}

func (m *MemoryStorage) DeleteRefreshToken(ctx context.Context, hash string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.refresh[hash]
	delete(m.refresh, hash)
	return ok, nil
}
