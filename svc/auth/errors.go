package auth

import (
	"context"
	"errors"
	"io"
	"net"
	"syscall"
)

var (
	ErrProviderRejected = errors.New("auth: provider rejected the request")
	ErrNetwork          = errors.New("auth: network failure")
	ErrInvalidCallback  = errors.New("auth: invalid callback")
)

// CallbackError carries the error a provider put in the callback URL, such as
// an expired or already used link.
type CallbackError struct {
	Code        string
	ErrorCode   string
	Description string
}

func (e *CallbackError) Error() string {
	msg := "auth: invalid callback"
	if e.ErrorCode != "" {
		msg += ": " + e.ErrorCode
	} else if e.Code != "" {
		msg += ": " + e.Code
	}
	if e.Description != "" {
		msg += ": " + e.Description
	}
	return msg
}

func (e *CallbackError) Unwrap() error { return ErrInvalidCallback }

// IsRejected reports whether err is a provider rejection.
func IsRejected(err error) bool {
	return errors.Is(err, ErrProviderRejected)
}

// classify maps a provider error onto the gateway taxonomy. Errors already
// classified are returned as is; transport failures become ErrNetwork and
// anything else ErrProviderRejected. The cause is kept in the chain.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrProviderRejected) || errors.Is(err, ErrNetwork) || errors.Is(err, ErrInvalidCallback) {
		return err
	}
	if isTransport(err) {
		return errors.Join(ErrNetwork, err)
	}
	return errors.Join(ErrProviderRejected, err)
}

func isTransport(err error) bool {
	var netErr net.Error
	switch {
	case errors.As(err, &netErr):
		return true
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return true
	case errors.Is(err, syscall.ECONNRESET), errors.Is(err, syscall.ECONNREFUSED), errors.Is(err, syscall.EPIPE):
		return true
	case errors.Is(err, io.ErrUnexpectedEOF):
		return true
	}
	return false
}
