package environment

import (
	"context"
	"strings"
)

// Environment represents the runtime environment the application runs in.
type Environment string

const (
	Development Environment = "development"
	Staging     Environment = "staging"
	Production  Environment = "production"
)

// Parse maps a configuration value to an Environment.
// Short aliases ("dev", "stage", "prod") are accepted; anything unknown is
// treated as Production so a misconfigured deployment never picks up
// development-only redirect targets.
func Parse(value string) Environment {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "development", "dev", "local":
		return Development
	case "staging", "stage":
		return Staging
	default:
		return Production
	}
}

func (e Environment) String() string {
	return string(e)
}

func (e Environment) IsDevelopment() bool { return e == Development }
func (e Environment) IsStaging() bool     { return e == Staging }
func (e Environment) IsProduction() bool  { return e == Production }

type contextKey struct{}

// WithContext stores the environment in ctx.
func WithContext(ctx context.Context, env Environment) context.Context {
	return context.WithValue(ctx, contextKey{}, env)
}

// FromContext returns the environment stored in ctx, or "" when absent.
func FromContext(ctx context.Context) Environment {
	if ctx == nil {
		return ""
	}
	env, _ := ctx.Value(contextKey{}).(Environment)
	return env
}
