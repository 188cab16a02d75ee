package sanitizer

import (
	"strings"
	"unicode"
)

// NormalizeEmail trims surrounding whitespace and lowercases the address.
// The local part is otherwise left untouched.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// RemoveControlChars drops control characters, keeping newlines and tabs.
func RemoveControlChars(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && r != '\n' && r != '\r' && r != '\t' {
			return -1
		}
		return r
	}, s)
}

// SingleLine collapses line breaks and runs of whitespace into single spaces.
func SingleLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Text cleans free-form user text: control characters are removed and
// surrounding whitespace trimmed. Line breaks inside the text survive.
func Text(s string) string {
	return strings.TrimSpace(RemoveControlChars(s))
}

// Line cleans single-line user input such as a display name.
func Line(s string) string {
	return SingleLine(RemoveControlChars(s))
}
