package main

import (
	"time"

	"github.com/dmitrymomot/profilekit/pkg/config"
	"github.com/dmitrymomot/profilekit/pkg/email"
	"github.com/dmitrymomot/profilekit/pkg/httpserver"
	"github.com/dmitrymomot/profilekit/svc/auth"
	"github.com/dmitrymomot/profilekit/svc/credential"
	"github.com/dmitrymomot/profilekit/svc/identity"
	"github.com/dmitrymomot/profilekit/svc/media"
)

// Backend names accepted by the *_STORAGE and EMAIL_BACKEND variables.
const (
	backendMemory   = "memory"
	backendPostgres = "postgres"
	backendMongo    = "mongo"
	backendLocal    = "local"
	backendS3       = "s3"
	backendRedis    = "redis"
	backendPostmark = "postmark"
	backendDev      = "dev"
	backendFile     = "file"
)

type appConfig struct {
	ServiceName    string        `env:"SERVICE_NAME" envDefault:"profilectl"`
	LogLevel       string        `env:"LOG_LEVEL"`
	ProfileStorage string        `env:"PROFILE_STORAGE" envDefault:"memory"`
	MediaStorage   string        `env:"MEDIA_STORAGE" envDefault:"local"`
	MediaLocalDir  string        `env:"MEDIA_LOCAL_DIR" envDefault:".profilekit/media"`
	MediaBaseURL   string        `env:"MEDIA_BASE_URL" envDefault:"http://localhost:8080/files"`
	EmailBackend   string        `env:"EMAIL_BACKEND" envDefault:"dev"`
	CredentialKind string        `env:"CREDENTIAL_STORAGE" envDefault:"file"`
	LoginAddr      string        `env:"LOGIN_CALLBACK_ADDR" envDefault:"127.0.0.1:0"`
	LoginTimeout   time.Duration `env:"LOGIN_TIMEOUT" envDefault:"10m"`
	MetricsPath    string        `env:"METRICS_PATH" envDefault:"/metrics"`
}

// settings is every configuration section the binary reads.
type settings struct {
	App        appConfig
	Auth       auth.Config
	Identity   identity.Config
	Media      media.Config
	Credential credential.Config
	Email      email.Config
	HTTP       httpserver.Config
}

func loadSettings() (settings, error) {
	var s settings
	for _, load := range []func() error{
		func() error { return config.Load(&s.App) },
		func() error { return config.Load(&s.Auth) },
		func() error { return config.Load(&s.Identity) },
		func() error { return config.Load(&s.Media) },
		func() error { return config.Load(&s.Credential) },
		func() error { return config.Load(&s.Email) },
		func() error { return config.Load(&s.HTTP) },
	} {
		if err := load(); err != nil {
			return settings{}, err
		}
	}
	return s, nil
}
