package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/profilekit/pkg/clientip"
	"github.com/dmitrymomot/profilekit/pkg/config"
	"github.com/dmitrymomot/profilekit/pkg/email"
	"github.com/dmitrymomot/profilekit/pkg/environment"
	"github.com/dmitrymomot/profilekit/pkg/file"
	"github.com/dmitrymomot/profilekit/pkg/logger"
	"github.com/dmitrymomot/profilekit/pkg/metrics"
	"github.com/dmitrymomot/profilekit/pkg/mongo"
	"github.com/dmitrymomot/profilekit/pkg/pg"
	"github.com/dmitrymomot/profilekit/pkg/redis"
	"github.com/dmitrymomot/profilekit/pkg/requestid"
	"github.com/dmitrymomot/profilekit/pkg/secrets"
	"github.com/dmitrymomot/profilekit/svc/auth"
	"github.com/dmitrymomot/profilekit/svc/credential"
	"github.com/dmitrymomot/profilekit/svc/identity"
	"github.com/dmitrymomot/profilekit/svc/identity/redisstore"
	"github.com/dmitrymomot/profilekit/svc/media"
	"github.com/dmitrymomot/profilekit/svc/profile"
	"github.com/dmitrymomot/profilekit/svc/profile/mongostore"
	"github.com/dmitrymomot/profilekit/svc/profile/pgstore"
	"github.com/dmitrymomot/profilekit/svc/session"
)

var errUnknownBackend = errors.New("unknown backend")

// app is the wired object graph for one invocation.
type app struct {
	cfg      settings
	env      environment.Environment
	out      io.Writer
	log      *slog.Logger
	registry *prometheus.Registry
	recorder metrics.Recorder

	identity *identity.Service
	client   *identity.Client
	gateway  *auth.Gateway
	profiles *profile.Service
	media    *media.Repository
	storage  file.Storage
	session  *session.Orchestrator

	checks  []func(context.Context) error
	closers []func() error
	redis   *goredis.Client
}

// deps overrides backends; zero fields are built from configuration.
type deps struct {
	profiles    profile.Repository
	storage     file.Storage
	sender      email.Sender
	identity    identity.Storage
	credentials credential.Store
	logOutput   io.Writer
}

func newApp(ctx context.Context, cfg settings, out io.Writer, d deps) (_ *app, err error) {
	a := &app{
		cfg:      cfg,
		env:      environment.Parse(cfg.Auth.Environment),
		out:      out,
		registry: prometheus.NewRegistry(),
	}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	a.log = a.newLogger(d.logOutput)
	a.recorder = metrics.NewCollector(a.registry)

	repo := d.profiles
	if repo == nil {
		if repo, err = a.profileRepository(ctx); err != nil {
			return nil, fmt.Errorf("profile storage: %w", err)
		}
	}
	a.storage = d.storage
	if a.storage == nil {
		if a.storage, err = a.fileStorage(ctx); err != nil {
			return nil, fmt.Errorf("media storage: %w", err)
		}
	}
	sender := d.sender
	if sender == nil {
		if sender, err = a.emailSender(); err != nil {
			return nil, fmt.Errorf("email: %w", err)
		}
	}
	idStorage := d.identity
	if idStorage == nil {
		if idStorage, err = a.identityStorage(ctx); err != nil {
			return nil, fmt.Errorf("identity storage: %w", err)
		}
	}
	creds := d.credentials
	if creds == nil {
		if creds, err = a.credentialStore(ctx); err != nil {
			return nil, fmt.Errorf("credential storage: %w", err)
		}
	}

	idCfg, err := a.identityConfig()
	if err != nil {
		return nil, err
	}
	if a.identity, err = identity.NewService(idStorage, sender, idCfg, identity.WithLogger(a.log)); err != nil {
		return nil, err
	}
	a.client = identity.NewClient(a.identity, creds, identity.WithClientLogger(a.log))
	a.closers = append(a.closers, a.client.Close)

	a.gateway = auth.NewGateway(a.client, cfg.Auth, auth.WithLogger(a.log), auth.WithMetrics(a.recorder))
	a.profiles = profile.NewService(repo, profile.WithLogger(a.log), profile.WithMetrics(a.recorder))
	a.media = media.NewRepository(a.storage, cfg.Media, media.WithLogger(a.log), media.WithMetrics(a.recorder))
	a.session = session.New(a.gateway, a.profiles, a.media,
		session.WithLogger(a.log),
		session.WithMetrics(a.recorder),
	)
	a.closers = append(a.closers, a.session.Close)
	return a, nil
}

// Close releases every backend in reverse order of creation.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *app) newLogger(w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	opts := []logger.Option{
		logger.WithEnvironment(a.env, a.cfg.App.ServiceName),
		logger.WithOutput(w),
		logger.WithContextExtractors(requestid.LoggerExtractor(), clientip.LoggerExtractor()),
	}
	if a.cfg.App.LogLevel != "" {
		var level slog.Level
		if err := level.UnmarshalText([]byte(a.cfg.App.LogLevel)); err == nil {
			opts = append(opts, logger.WithLevel(level))
		}
	}
	return logger.New(opts...)
}

func (a *app) profileRepository(ctx context.Context) (profile.Repository, error) {
	switch a.cfg.App.ProfileStorage {
	case backendMemory:
		return profile.NewMemoryRepository(), nil

	case backendPostgres:
		var pgCfg pg.Config
		if err := config.Load(&pgCfg); err != nil {
			return nil, err
		}
		pool, err := pg.Connect(ctx, pgCfg)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() error { pool.Close(); return nil })
		a.checks = append(a.checks, pg.Healthcheck(pool))
		if err := pgstore.Migrate(ctx, pool, pgCfg, a.log); err != nil {
			return nil, err
		}
		return pgstore.New(pool), nil

	case backendMongo:
		var mongoCfg mongo.Config
		if err := config.Load(&mongoCfg); err != nil {
			return nil, err
		}
		client, err := mongo.Connect(ctx, mongoCfg)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() error { return client.Disconnect(context.Background()) })
		a.checks = append(a.checks, mongo.Healthcheck(client))
		return mongostore.Open(ctx, client.Database(mongoCfg.Database))
	}
	return nil, fmt.Errorf("%w %q", errUnknownBackend, a.cfg.App.ProfileStorage)
}

// fileStorage keeps objects under a bucket directory so that public URLs
// carry the bucket segment media references are resolved by.
func (a *app) fileStorage(ctx context.Context) (file.Storage, error) {
	bucket := a.cfg.Media.Bucket
	baseURL := strings.TrimRight(a.cfg.App.MediaBaseURL, "/") + "/" + bucket

	switch a.cfg.App.MediaStorage {
	case backendLocal:
		return file.NewLocalStorage(filepath.Join(a.cfg.App.MediaLocalDir, bucket), baseURL)
	case backendMemory:
		return file.NewMemoryStorage(baseURL), nil
	case backendS3:
		var s3Cfg file.S3Config
		if err := config.Load(&s3Cfg); err != nil {
			return nil, err
		}
		s3Cfg.Bucket = bucket
		return file.NewS3Storage(ctx, s3Cfg)
	}
	return nil, fmt.Errorf("%w %q", errUnknownBackend, a.cfg.App.MediaStorage)
}

func (a *app) emailSender() (email.Sender, error) {
	switch a.cfg.App.EmailBackend {
	case backendDev:
		return email.NewDevSender(a.cfg.Email.DevOutputDir), nil
	case backendPostmark:
		return email.NewPostmarkSender(a.cfg.Email)
	}
	return nil, fmt.Errorf("%w %q", errUnknownBackend, a.cfg.App.EmailBackend)
}

func (a *app) identityStorage(ctx context.Context) (identity.Storage, error) {
	switch a.cfg.Identity.Storage {
	case backendMemory:
		return identity.NewMemoryStorage(), nil
	case backendRedis:
		client, prefix, err := a.redisClient(ctx)
		if err != nil {
			return nil, err
		}
		return redisstore.New(client, prefix+a.cfg.Identity.RedisPrefix), nil
	}
	return nil, fmt.Errorf("%w %q", errUnknownBackend, a.cfg.Identity.Storage)
}

func (a *app) credentialStore(ctx context.Context) (credential.Store, error) {
	switch a.cfg.App.CredentialKind {
	case backendFile:
		key, err := credentialKey(a.cfg.Credential)
		if err != nil {
			return nil, err
		}
		return credential.NewFileStore(a.cfg.Credential.Path, key)
	case backendRedis:
		client, prefix, err := a.redisClient(ctx)
		if err != nil {
			return nil, err
		}
		return credential.NewRedisStore(client, prefix+a.cfg.Credential.RedisKey), nil
	case backendMemory:
		return credential.NewMemoryStore(), nil
	}
	return nil, fmt.Errorf("%w %q", errUnknownBackend, a.cfg.App.CredentialKind)
}

// redisClient connects once and shares the client between backends.
func (a *app) redisClient(ctx context.Context) (*goredis.Client, string, error) {
	var redisCfg redis.Config
	if err := config.Load(&redisCfg); err != nil {
		return nil, "", err
	}
	if a.redis == nil {
		client, err := redis.Connect(ctx, redisCfg)
		if err != nil {
			return nil, "", err
		}
		a.redis = client
		a.closers = append(a.closers, client.Close)
		a.checks = append(a.checks, redis.Healthcheck(client))
	}
	return a.redis, redisCfg.KeyPrefix, nil
}

// identityConfig fills missing signing secrets with per-process random ones
// in development. Tokens signed with them do not survive a restart.
func (a *app) identityConfig() (identity.Config, error) {
	cfg := a.cfg.Identity
	if cfg.JWTSecret != "" && cfg.LinkSecret != "" {
		return cfg, nil
	}
	if !a.env.IsDevelopment() {
		return cfg, fmt.Errorf("%w: set IDENTITY_JWT_SECRET and IDENTITY_LINK_SECRET", identity.ErrMissingSecret)
	}
	for _, secret := range []*string{&cfg.JWTSecret, &cfg.LinkSecret} {
		if *secret != "" {
			continue
		}
		key, err := secrets.GenerateKey()
		if err != nil {
			return cfg, err
		}
		*secret = secrets.EncodeKey(key)
	}
	a.log.Warn("identity secrets not configured, using ephemeral ones")
	return cfg, nil
}

// credentialKey returns CREDENTIALS_KEY, or a key kept next to the session
// file, created on first use.
func credentialKey(cfg credential.Config) ([]byte, error) {
	if cfg.Key != "" {
		return secrets.DecodeKey(cfg.Key)
	}

	keyPath := cfg.Path + ".key"
	if data, err := os.ReadFile(keyPath); err == nil {
		return secrets.DecodeKey(strings.TrimSpace(string(data)))
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	key, err := secrets.GenerateKey()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(keyPath), 0o700); err != nil {
		return nil, err
	}
	if err := os.WriteFile(keyPath, []byte(secrets.EncodeKey(key)), 0o600); err != nil {
		return nil, err
	}
	return key, nil
}
