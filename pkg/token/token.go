package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

const signatureSize = 16

// Expirer is implemented by payloads that carry an expiry. Parse rejects
// tokens whose payload reports an expiry in the past.
type Expirer interface {
	ExpiresAt() time.Time
}

// Generate encodes payload as JSON and appends a truncated HMAC-SHA256
// signature: base64url(payload) "." base64url(sig).
func Generate[T any](payload T, secret string) (string, error) {
	if secret == "" {
		return "", ErrEmptySecret
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", errors.Join(ErrInvalidToken, err)
	}

	return base64.RawURLEncoding.EncodeToString(data) + "." +
		base64.RawURLEncoding.EncodeToString(sign(data, secret)), nil
}

// Parse verifies the signature and decodes the payload. Payloads implementing
// Expirer are checked against now.
func Parse[T any](tok, secret string) (T, error) {
	return ParseAt[T](tok, secret, time.Now())
}

// ParseAt is Parse with an explicit clock reading.
func ParseAt[T any](tok, secret string, now time.Time) (T, error) {
	var payload T
	if secret == "" {
		return payload, ErrEmptySecret
	}

	encData, encSig, ok := strings.Cut(tok, ".")
	if !ok || encData == "" || encSig == "" {
		return payload, ErrInvalidToken
	}

	data, err := base64.RawURLEncoding.DecodeString(encData)
	if err != nil {
		return payload, errors.Join(ErrInvalidToken, err)
	}
	sig, err := base64.RawURLEncoding.DecodeString(encSig)
	if err != nil {
		return payload, errors.Join(ErrInvalidToken, err)
	}

	if subtle.ConstantTimeCompare(sig, sign(data, secret)) != 1 {
		return payload, ErrSignatureInvalid
	}

	if err := json.Unmarshal(data, &payload); err != nil {
		return payload, errors.Join(ErrInvalidToken, err)
	}

	if exp, ok := any(payload).(Expirer); ok && !exp.ExpiresAt().After(now) {
		return payload, ErrExpired
	}
	return payload, nil
}

func sign(data []byte, secret string) []byte {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(data)
	return h.Sum(nil)[:signatureSize]
}
