// Package config loads typed configuration from environment variables.
//
// It wraps github.com/caarlos0/env/v11 for struct parsing and
// github.com/joho/godotenv for optional .env files. Every service package
// declares its own Config struct with `env` tags; the command wires them with
// Load:
//
//	var cfg media.Config
//	if err := config.Load(&cfg); err != nil {
//		return err
//	}
//
// Parsed configs are cached by type, so repeated loads of the same struct are
// cheap and consistent. Tests call Reset after changing the environment.
package config
