// Package identity is a self-hosted magic link identity provider.
//
// Service registers accounts on their first sign-in request, emails signed
// single-use links and exchanges them for a JWT access token plus a rotating
// refresh token. NewHandler serves the flow over HTTP; the verify endpoint
// redirects back to the application with the tokens encoded the way
// pkg/callback parses them.
//
// Client adapts a Service to auth.Provider so the auth gateway and the
// session orchestrator can run against it in-process, persisting the active
// session in a credential.Store.
//
// Storage has an in-memory implementation here and a Redis one in
// subpackage redisstore.
package identity
