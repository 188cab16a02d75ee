package logger

import (
	"log/slog"
	"strings"
)

// Error records err under "error". Returns an empty Attr for nil errors so
// callers can pass it unconditionally.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// UserID records the identity the log line is about.
func UserID(id string) slog.Attr {
	if id == "" {
		return slog.Attr{}
	}
	return slog.String("user_id", id)
}

// Email records a masked email address: the first character of the local part
// and the full domain stay visible.
func Email(email string) slog.Attr {
	return slog.String("email", maskEmail(email))
}

func Component(name string) slog.Attr {
	return slog.String("component", name)
}

func Event(name string) slog.Attr {
	return slog.String("event", name)
}

// Phase records an orchestrator phase.
func Phase(name string) slog.Attr {
	return slog.String("phase", name)
}

// Slot records an image slot.
func Slot(name string) slog.Attr {
	return slog.String("slot", name)
}

// Path records an object storage path.
func Path(p string) slog.Attr {
	return slog.String("path", p)
}

// Paths records a list of object storage paths.
func Paths(ps []string) slog.Attr {
	return slog.Any("paths", ps)
}

func Duration(d any) slog.Attr {
	return slog.Any("duration", d)
}

func maskEmail(email string) string {
	local, domain, ok := strings.Cut(strings.TrimSpace(email), "@")
	if !ok || local == "" {
		return email
	}
	if len(local) == 1 {
		return "*@" + domain
	}
	return local[:1] + strings.Repeat("*", len(local)-1) + "@" + domain
}
