package clientip_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/profilekit/pkg/clientip"
)

func TestResolve(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		remote  string
		headers map[string]string
		trusted []string
		want    string
	}{
		{name: "remote addr with port", remote: "10.0.0.1:5555", want: "10.0.0.1"},
		{name: "remote addr without port", remote: "10.0.0.2", want: "10.0.0.2"},
		{name: "ipv6 remote", remote: "[::1]:8080", want: "::1"},
		{name: "invalid remote", remote: "not-an-ip", want: ""},
		{
			name:    "untrusted header ignored",
			remote:  "127.0.0.1:1",
			headers: map[string]string{"X-Forwarded-For": "203.0.113.9"},
			want:    "127.0.0.1",
		},
		{
			name:    "first valid forwarded address",
			remote:  "127.0.0.1:1",
			headers: map[string]string{"X-Forwarded-For": "garbage, 203.0.113.9, 198.51.100.1"},
			trusted: []string{"X-Forwarded-For"},
			want:    "203.0.113.9",
		},
		{
			name:   "header order",
			remote: "127.0.0.1:1",
			headers: map[string]string{
				"CF-Connecting-IP": "198.51.100.7",
				"X-Forwarded-For":  "203.0.113.9",
			},
			trusted: []string{"CF-Connecting-IP", "X-Forwarded-For"},
			want:    "198.51.100.7",
		},
		{
			name:    "invalid header falls back",
			remote:  "127.0.0.1:1",
			headers: map[string]string{"X-Real-IP": "999.1.1.1"},
			trusted: []string{"X-Real-IP"},
			want:    "127.0.0.1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, clientip.Resolve(r, tt.trusted...))
		})
	}
}

func TestMiddleware(t *testing.T) {
	t.Parallel()

	var got string
	h := clientip.Middleware("X-Real-IP")(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		got = clientip.FromContext(r.Context())
	}))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("X-Real-IP", "203.0.113.5")
	h.ServeHTTP(httptest.NewRecorder(), r)
	assert.Equal(t, "203.0.113.5", got)
}

func TestLoggerExtractor(t *testing.T) {
	t.Parallel()

	extract := clientip.LoggerExtractor()

	_, ok := extract(context.Background())
	assert.False(t, ok)

	attr, ok := extract(clientip.WithContext(context.Background(), "10.1.1.1"))
	require.True(t, ok)
	assert.Equal(t, "client_ip", attr.Key)
	assert.Equal(t, "10.1.1.1", attr.Value.String())
}
