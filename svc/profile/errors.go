package profile

import "errors"

var (
	ErrNotFound = errors.New("profile: not found")
	ErrConflict = errors.New("profile: already exists")
	ErrNetwork  = errors.New("profile: store unavailable")
)
