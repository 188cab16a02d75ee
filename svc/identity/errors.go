package identity

import "errors"

var (
	ErrAccountNotFound     = errors.New("identity: account not found")
	ErrAccountExists       = errors.New("identity: account already exists")
	ErrLinkInvalid         = errors.New("identity: magic link is invalid")
	ErrLinkExpired         = errors.New("identity: magic link has expired")
	ErrLinkUsed            = errors.New("identity: magic link was already used")
	ErrRedirectNotAllowed  = errors.New("identity: redirect url is not allowed")
	ErrRateLimited         = errors.New("identity: too many magic link requests")
	ErrRefreshTokenInvalid = errors.New("identity: refresh token is invalid or expired")
	ErrAccessTokenInvalid  = errors.New("identity: access token is invalid")
	ErrMissingSecret       = errors.New("identity: signing secrets are required")
	ErrInvalidConfig       = errors.New("identity: invalid configuration")
	ErrStorage             = errors.New("identity: storage failure")
)
