package credential

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/dmitrymomot/profilekit/svc/auth"
)

var (
	ErrNotFound       = errors.New("credential: no stored session")
	ErrCorrupted      = errors.New("credential: stored session is corrupted")
	ErrInvalidSession = errors.New("credential: invalid session")
	ErrStorage        = errors.New("credential: storage failure")
)

// Store persists the provider session across process restarts.
type Store interface {
	// Load returns the stored session or ErrNotFound.
	Load(ctx context.Context) (*auth.Session, error)

	// Save replaces the stored session.
	Save(ctx context.Context, session *auth.Session) error

	// Clear removes the stored session. Clearing an empty store is not an error.
	Clear(ctx context.Context) error
}

// Config selects and configures the persistent store.
type Config struct {
	Path     string `env:"CREDENTIALS_PATH" envDefault:".profilekit/session.enc"`
	Key      string `env:"CREDENTIALS_KEY"`
	RedisKey string `env:"CREDENTIALS_REDIS_KEY" envDefault:"credential:default"`
}

// LoadOrClear loads the stored session and clears it when it is corrupted, so
// callers can treat a corrupt store as an empty one. Returns nil, nil when
// nothing usable is stored.
func LoadOrClear(ctx context.Context, s Store) (*auth.Session, error) {
	session, err := s.Load(ctx)
	switch {
	case err == nil:
		return session, nil
	case errors.Is(err, ErrNotFound):
		return nil, nil
	case errors.Is(err, ErrCorrupted):
		if cerr := s.Clear(ctx); cerr != nil {
			return nil, errors.Join(err, cerr)
		}
		return nil, nil
	default:
		return nil, err
	}
}

// MemoryStore keeps the session in process memory.
type MemoryStore struct {
	mu   sync.RWMutex
	data []byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Load(context.Context) (*auth.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.data == nil {
		return nil, ErrNotFound
	}
	return decode(m.data)
}

func (m *MemoryStore) Save(_ context.Context, session *auth.Session) error {
	data, err := encode(session)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.data = data
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Clear(context.Context) error {
	m.mu.Lock()
	m.data = nil
	m.mu.Unlock()
	return nil
}

func encode(session *auth.Session) ([]byte, error) {
	if session == nil || session.AccessToken == "" || session.RefreshToken == "" {
		return nil, ErrInvalidSession
	}
	data, err := json.Marshal(session)
	if err != nil {
		return nil, errors.Join(ErrInvalidSession, err)
	}
	return data, nil
}

func decode(data []byte) (*auth.Session, error) {
	var session auth.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, errors.Join(ErrCorrupted, err)
	}
	if session.AccessToken == "" || session.RefreshToken == "" {
		return nil, ErrCorrupted
	}
	return &session, nil
}
