// Package auth wraps a magic-link auth provider behind a small gateway.
//
// The Provider interface is the capability consumed from the backend: send a
// link, exchange callback tokens, report the current session, push session
// changes and revoke. The Gateway adds email normalization, environment-aware
// redirect targets and a fixed error taxonomy:
//
//   - ErrProviderRejected: validation failures, rate limits, refusals.
//   - ErrNetwork: transport failures (net.Error, deadlines, resets).
//   - ErrInvalidCallback: the callback URL did not yield a session. Provider
//     error redirects are reported as *CallbackError, which unwraps to
//     ErrInvalidCallback.
//
// Usage:
//
//	gw := auth.NewGateway(provider, cfg, auth.WithLogger(log))
//	if err := gw.RequestMagicLink(ctx, "User@Example.com "); err != nil {
//		return err
//	}
//	// later, from the deep-link handler
//	session, err := gw.ExchangeCallback(ctx, callbackURL)
//
// By default a callback without tokens falls back to the session the provider
// already holds, which covers links the provider consumed on its own. With
// WithStrictCallback tokens are mandatory and the session email must match the
// pending request made through the same gateway.
package auth
