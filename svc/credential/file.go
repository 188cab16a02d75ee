package credential

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/dmitrymomot/profilekit/pkg/secrets"
	"github.com/dmitrymomot/profilekit/svc/auth"
)

const cipherLabel = "profilekit/credential/v1"

// FileStore keeps the session in a single AES-GCM encrypted file readable
// only by the owner.
type FileStore struct {
	path   string
	cipher *secrets.Cipher
	mu     sync.Mutex
}

// NewFileStore creates a store writing to path, encrypted under a key derived
// from masterKey.
func NewFileStore(path string, masterKey []byte) (*FileStore, error) {
	if path == "" {
		return nil, fmt.Errorf("credential: empty path")
	}
	c, err := secrets.NewCipher(masterKey, cipherLabel)
	if err != nil {
		return nil, fmt.Errorf("credential: %w", err)
	}
	return &FileStore{path: filepath.Clean(path), cipher: c}, nil
}

// NewFileStoreFromConfig decodes cfg.Key and opens cfg.Path.
func NewFileStoreFromConfig(cfg Config) (*FileStore, error) {
	key, err := secrets.DecodeKey(cfg.Key)
	if err != nil {
		return nil, fmt.Errorf("credential: CREDENTIALS_KEY: %w", err)
	}
	return NewFileStore(cfg.Path, key)
}

func (s *FileStore) Path() string { return s.path }

func (s *FileStore) Load(context.Context) (*auth.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sealed, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, errors.Join(ErrStorage, err)
	}

	data, err := s.cipher.Open(sealed)
	if err != nil {
		return nil, errors.Join(ErrCorrupted, err)
	}
	return decode(data)
}

func (s *FileStore) Save(_ context.Context, session *auth.Session) error {
	data, err := encode(session)
	if err != nil {
		return err
	}
	sealed, err := s.cipher.Seal(data)
	if err != nil {
		return errors.Join(ErrStorage, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := writeFileAtomic(s.path, sealed); err != nil {
		return errors.Join(ErrStorage, err)
	}
	return nil
}

func (s *FileStore) Clear(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return errors.Join(ErrStorage, err)
	}
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
