package credential_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/profilekit/pkg/secrets"
	"github.com/dmitrymomot/profilekit/svc/auth"
	"github.com/dmitrymomot/profilekit/svc/credential"
)

func testSession() *auth.Session {
	return &auth.Session{
		AccessToken:  "access",
		RefreshToken: "refresh",
		TokenType:    "bearer",
		ExpiresAt:    time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC),
		Identity:     auth.Identity{ID: "u1", Email: "a@example.com"},
	}
}

func testKey(t *testing.T) []byte {
	t.Helper()
	key, err := secrets.GenerateKey()
	require.NoError(t, err)
	return key
}

// storeContract runs the behaviour every Store must share.
func storeContract(t *testing.T, s credential.Store) {
	t.Helper()
	ctx := context.Background()

	_, err := s.Load(ctx)
	require.ErrorIs(t, err, credential.ErrNotFound)

	require.ErrorIs(t, s.Save(ctx, nil), credential.ErrInvalidSession)
	require.ErrorIs(t, s.Save(ctx, &auth.Session{AccessToken: "only"}), credential.ErrInvalidSession)

	require.NoError(t, s.Save(ctx, testSession()))
	got, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, testSession(), got)

	replaced := testSession()
	replaced.AccessToken = "access-2"
	require.NoError(t, s.Save(ctx, replaced))
	got, err = s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "access-2", got.AccessToken)

	require.NoError(t, s.Clear(ctx))
	_, err = s.Load(ctx)
	require.ErrorIs(t, err, credential.ErrNotFound)
	require.NoError(t, s.Clear(ctx))
}

func TestMemoryStore(t *testing.T) {
	t.Parallel()
	storeContract(t, credential.NewMemoryStore())
}

func TestFileStore(t *testing.T) {
	t.Parallel()

	t.Run("contract", func(t *testing.T) {
		t.Parallel()
		s, err := credential.NewFileStore(filepath.Join(t.TempDir(), "nested", "session.enc"), testKey(t))
		require.NoError(t, err)
		storeContract(t, s)
	})

	t.Run("file is encrypted and private", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "session.enc")
		s, err := credential.NewFileStore(path, testKey(t))
		require.NoError(t, err)
		require.NoError(t, s.Save(context.Background(), testSession()))

		raw, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.NotContains(t, string(raw), "access")
		assert.NotContains(t, string(raw), "a@example.com")

		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

		entries, err := os.ReadDir(filepath.Dir(path))
		require.NoError(t, err)
		assert.Len(t, entries, 1, "temp files must not be left behind")
	})

	t.Run("survives reopening", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "session.enc")
		key := testKey(t)

		first, err := credential.NewFileStore(path, key)
		require.NoError(t, err)
		require.NoError(t, first.Save(context.Background(), testSession()))

		second, err := credential.NewFileStore(path, key)
		require.NoError(t, err)
		got, err := second.Load(context.Background())
		require.NoError(t, err)
		assert.Equal(t, testSession(), got)
	})

	t.Run("wrong key is corrupted", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "session.enc")
		s, err := credential.NewFileStore(path, testKey(t))
		require.NoError(t, err)
		require.NoError(t, s.Save(context.Background(), testSession()))

		other, err := credential.NewFileStore(path, testKey(t))
		require.NoError(t, err)
		_, err = other.Load(context.Background())
		assert.ErrorIs(t, err, credential.ErrCorrupted)
	})

	t.Run("garbage is corrupted", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "session.enc")
		require.NoError(t, os.WriteFile(path, []byte("garbage"), 0o600))

		s, err := credential.NewFileStore(path, testKey(t))
		require.NoError(t, err)
		_, err = s.Load(context.Background())
		assert.ErrorIs(t, err, credential.ErrCorrupted)
	})

	t.Run("invalid key", func(t *testing.T) {
		t.Parallel()
		_, err := credential.NewFileStore("session.enc", []byte("short"))
		assert.ErrorIs(t, err, secrets.ErrInvalidKey)
	})

	t.Run("from config", func(t *testing.T) {
		t.Parallel()

		cfg := credential.Config{
			Path: filepath.Join(t.TempDir(), "session.enc"),
			Key:  secrets.EncodeKey(testKey(t)),
		}
		s, err := credential.NewFileStoreFromConfig(cfg)
		require.NoError(t, err)
		assert.Equal(t, cfg.Path, s.Path())

		_, err = credential.NewFileStoreFromConfig(credential.Config{Path: cfg.Path, Key: "nope"})
		assert.Error(t, err)
	})
}

func TestLoadOrClear(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "session.enc")
	s, err := credential.NewFileStore(path, testKey(t))
	require.NoError(t, err)

	got, err := credential.LoadOrClear(ctx, s)
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, s.Save(ctx, testSession()))
	got, err = credential.LoadOrClear(ctx, s)
	require.NoError(t, err)
	assert.Equal(t, testSession(), got)

	require.NoError(t, os.WriteFile(path, []byte("tampered"), 0o600))
	got, err = credential.LoadOrClear(ctx, s)
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.NoFileExists(t, path)
}
