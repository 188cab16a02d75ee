package auth

// Config holds the redirect targets magic links return to.
type Config struct {
	Environment    string `env:"APP_ENV" envDefault:"production"`
	RedirectURL    string `env:"AUTH_REDIRECT_URL" envDefault:"profilekit://auth/callback"`
	DevRedirectURL string `env:"AUTH_DEV_REDIRECT_URL"`
	StrictCallback bool   `env:"AUTH_STRICT_CALLBACK" envDefault:"false"`
}
