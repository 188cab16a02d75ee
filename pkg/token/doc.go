// Package token issues compact signed tokens carrying a JSON payload.
//
// Tokens are base64url(payload) "." base64url(hmac), signed with
// HMAC-SHA256. They are tamper-evident, not encrypted: never put secrets in
// the payload. Payloads that implement Expirer are rejected once expired.
package token
