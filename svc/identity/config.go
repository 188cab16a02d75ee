package identity

import "time"

// Redirect modes for the verify endpoint.
const (
	// RedirectModeAuto uses the query for loopback http redirects and the
	// fragment otherwise.
	RedirectModeAuto     = "auto"
	RedirectModeFragment = "fragment"
	RedirectModeQuery    = "query"
)

// Config configures the identity service.
type Config struct {
	AppName          string        `env:"IDENTITY_APP_NAME" envDefault:"ProfileKit"`
	BaseURL          string        `env:"IDENTITY_BASE_URL" envDefault:"http://localhost:8080"`
	Issuer           string        `env:"IDENTITY_ISSUER" envDefault:"profilekit"`
	JWTSecret        string        `env:"IDENTITY_JWT_SECRET"`
	LinkSecret       string        `env:"IDENTITY_LINK_SECRET"`
	LinkTTL          time.Duration `env:"IDENTITY_LINK_TTL" envDefault:"15m"`
	AccessTTL        time.Duration `env:"IDENTITY_ACCESS_TTL" envDefault:"1h"`
	RefreshTTL       time.Duration `env:"IDENTITY_REFRESH_TTL" envDefault:"720h"`
	ResendInterval   time.Duration `env:"IDENTITY_RESEND_INTERVAL" envDefault:"60s"`
	AllowedRedirects []string      `env:"IDENTITY_ALLOWED_REDIRECTS" envDefault:"profilekit://,http://127.0.0.1:,http://localhost:" envSeparator:","`
	RedirectMode     string        `env:"IDENTITY_REDIRECT_MODE" envDefault:"auto"`
	TrustedIPHeaders []string      `env:"IDENTITY_TRUSTED_IP_HEADERS" envSeparator:","`
	Storage          string        `env:"IDENTITY_STORAGE" envDefault:"memory"`
	RedisPrefix      string        `env:"IDENTITY_REDIS_PREFIX" envDefault:"identity:"`
}

// DefaultConfig mirrors the env defaults. Secrets are left empty.
func DefaultConfig() Config {
	return Config{
		AppName:          "ProfileKit",
		BaseURL:          "http://localhost:8080",
		Issuer:           "profilekit",
		LinkTTL:          15 * time.Minute,
		AccessTTL:        time.Hour,
		RefreshTTL:       30 * 24 * time.Hour,
		ResendInterval:   time.Minute,
		AllowedRedirects: []string{"profilekit://", "http://127.0.0.1:", "http://localhost:"},
		RedirectMode:     RedirectModeAuto,
		Storage:          "memory",
		RedisPrefix:      "identity:",
	}
}
