package callback_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dmitrymomot/profilekit/pkg/callback"
)

func TestParse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
		want callback.Tokens
	}{
		{
			name: "fragment",
			raw:  "profilekit://auth/callback#access_token=at&refresh_token=rt&expires_in=3600&token_type=bearer&type=magiclink",
			want: callback.Tokens{AccessToken: "at", RefreshToken: "rt", ExpiresIn: 3600, TokenType: "bearer", Type: "magiclink"},
		},
		{
			name: "query",
			raw:  "http://127.0.0.1:53682/callback?access_token=at&refresh_token=rt",
			want: callback.Tokens{AccessToken: "at", RefreshToken: "rt"},
		},
		{
			name: "fragment wins over query",
			raw:  "https://app.example.com/cb?access_token=q&refresh_token=q#access_token=f&refresh_token=f",
			want: callback.Tokens{AccessToken: "f", RefreshToken: "f"},
		},
		{
			name: "bare query string",
			raw:  "?access_token=at&refresh_token=rt",
			want: callback.Tokens{AccessToken: "at", RefreshToken: "rt"},
		},
		{
			name: "bare fragment",
			raw:  "#access_token=at",
			want: callback.Tokens{AccessToken: "at"},
		},
		{
			name: "provider error redirect",
			raw:  "profilekit://auth/callback#error=access_denied&error_code=otp_expired&error_description=Email+link+is+invalid+or+has+expired",
			want: callback.Tokens{
				Error:            "access_denied",
				ErrorCode:        "otp_expired",
				ErrorDescription: "Email link is invalid or has expired",
			},
		},
		{
			name: "percent encoded values",
			raw:  "x://cb#access_token=a%2Bb%3D&refresh_token=r%20t",
			want: callback.Tokens{AccessToken: "a+b=", RefreshToken: "r t"},
		},
		{
			name: "malformed pair is dropped",
			raw:  "x://cb#access_token=%zz&refresh_token=rt",
			want: callback.Tokens{RefreshToken: "rt"},
		},
		{
			name: "invalid expires_in ignored",
			raw:  "x://cb#access_token=at&expires_in=soon",
			want: callback.Tokens{AccessToken: "at"},
		},
		{name: "no tokens", raw: "profilekit://auth/callback", want: callback.Tokens{}},
		{name: "empty", raw: "", want: callback.Tokens{}},
		{name: "whitespace", raw: "   ", want: callback.Tokens{}},
		{name: "garbage", raw: "%%%not a url::", want: callback.Tokens{}},
		{name: "empty fragment", raw: "x://cb#", want: callback.Tokens{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, callback.Parse(tt.raw))
		})
	}
}

func TestParseIsIdempotent(t *testing.T) {
	t.Parallel()

	inputs := []string{
		"x://cb#access_token=at&refresh_token=rt",
		"plain text without markers",
		"",
		"\x00\x01",
	}
	for _, in := range inputs {
		assert.NotPanics(t, func() {
			assert.Equal(t, callback.Parse(in), callback.Parse(in))
		})
	}
}

func TestTokens(t *testing.T) {
	t.Parallel()

	assert.True(t, callback.Tokens{AccessToken: "a", RefreshToken: "r"}.HasSession())
	assert.False(t, callback.Tokens{AccessToken: "a"}.HasSession())
	assert.False(t, callback.Tokens{RefreshToken: "r"}.HasSession())

	assert.True(t, callback.Tokens{ErrorCode: "otp_expired"}.HasError())
	assert.False(t, callback.Tokens{AccessToken: "a"}.HasError())

	assert.True(t, callback.Tokens{}.IsEmpty())
	assert.False(t, callback.Tokens{Type: "magiclink"}.IsEmpty())
}

func TestEncode(t *testing.T) {
	t.Parallel()

	in := callback.Tokens{AccessToken: "a+b", RefreshToken: "r", ExpiresIn: 900, TokenType: "bearer"}
	encoded := callback.Encode(in)
	assert.NotContains(t, encoded, "error")
	assert.Equal(t, in, callback.Parse("x://cb#"+encoded))

	assert.Empty(t, callback.Encode(callback.Tokens{}))
}
