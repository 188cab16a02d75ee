package session

import "errors"

var (
	ErrNotAuthenticated = errors.New("session: not authenticated")
	ErrAlreadyStarted   = errors.New("session: orchestrator already started")
	ErrClosed           = errors.New("session: orchestrator closed")
	ErrSuperseded       = errors.New("session: identity changed before the profile load completed")
)
