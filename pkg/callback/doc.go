// Package callback extracts session tokens from the deep-link URL a magic-link
// provider redirects to after sign-in.
//
// Providers put the tokens either in the URL fragment
// (myapp://auth#access_token=...&refresh_token=...) or, for listeners that never
// see fragments, in the query string. Parse handles both and is total: it never
// panics and never returns an error.
//
//	t := callback.Parse(raw)
//	if t.HasError() {
//		// the provider rejected the link (expired, already used)
//	}
//	if t.HasSession() {
//		// exchange t.AccessToken and t.RefreshToken for a session
//	}
package callback
