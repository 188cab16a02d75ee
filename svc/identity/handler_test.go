package identity_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/profilekit/pkg/callback"
	"github.com/dmitrymomot/profilekit/pkg/requestid"
	"github.com/dmitrymomot/profilekit/svc/identity"
)

func serve(h http.Handler, method, target, body string, header ...string) *httptest.ResponseRecorder {
	var r *http.Request
	if body != "" {
		r = httptest.NewRequest(method, target, strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
	} else {
		r = httptest.NewRequest(method, target, nil)
	}
	for i := 0; i+1 < len(header); i += 2 {
		r.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	return rec
}

func TestHandler_Verify(t *testing.T) {
	t.Parallel()

	t.Run("redirects with tokens", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		srv := identity.NewHandler(h.svc)

		require.NoError(t, h.svc.RequestMagicLink(context.Background(), "a@example.com", loopbackRedirect))
		rec := serve(srv, http.MethodGet, "/verify?token="+url.QueryEscape(h.lastLink(t)), "")

		require.Equal(t, http.StatusSeeOther, rec.Code)
		location := rec.Header().Get("Location")
		assert.True(t, strings.HasPrefix(location, loopbackRedirect+"?"))
		tokens := callback.Parse(location)
		assert.True(t, tokens.HasSession())
		assert.NotEmpty(t, rec.Header().Get(requestid.Header))
	})

	t.Run("reused link redirects with an error", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		srv := identity.NewHandler(h.svc)

		require.NoError(t, h.svc.RequestMagicLink(context.Background(), "a@example.com", appRedirect))
		target := "/verify?token=" + url.QueryEscape(h.lastLink(t))
		require.Equal(t, http.StatusSeeOther, serve(srv, http.MethodGet, target, "").Code)

		rec := serve(srv, http.MethodGet, target, "")
		require.Equal(t, http.StatusSeeOther, rec.Code)
		tokens := callback.Parse(rec.Header().Get("Location"))
		assert.Equal(t, "otp_expired", tokens.ErrorCode)
		assert.False(t, tokens.HasSession())
	})

	t.Run("unreadable token", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		rec := serve(identity.NewHandler(h.svc), http.MethodGet, "/verify?token=garbage", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestHandler_MagicLink(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	srv := identity.NewHandler(h.svc)

	rec := serve(srv, http.MethodPost, "/magic-link", `{"email":"a@example.com","redirect_to":"profilekit://auth/callback"}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Len(t, h.sender.Sent(), 1)

	rec = serve(srv, http.MethodPost, "/magic-link", `{"email":"a@example.com","redirect_to":"profilekit://auth/callback"}`)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	rec = serve(srv, http.MethodPost, "/magic-link", `{"email":"nope","redirect_to":"profilekit://auth/callback"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body["fields"], "email")

	rec = serve(srv, http.MethodPost, "/magic-link", `{"email":"b@example.com","redirect_to":"https://evil.example.com"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(srv, http.MethodPost, "/magic-link", `{`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_TokenLifecycle(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	srv := identity.NewHandler(h.svc)
	sess := h.signIn(t, "a@example.com").Session

	rec := serve(srv, http.MethodGet, "/user", "", "Authorization", "Bearer "+sess.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code)
	var account identity.Account
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &account))
	assert.Equal(t, "a@example.com", account.Email)

	rec = serve(srv, http.MethodGet, "/user", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = serve(srv, http.MethodPost, "/token", `{"refresh_token":"`+sess.RefreshToken+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var tokens struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int    `json:"expires_in"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tokens))
	assert.NotEqual(t, sess.RefreshToken, tokens.RefreshToken)
	assert.Equal(t, 3600, tokens.ExpiresIn)

	rec = serve(srv, http.MethodPost, "/token", `{"refresh_token":"`+sess.RefreshToken+`"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = serve(srv, http.MethodPost, "/logout", `{"refresh_token":"`+tokens.RefreshToken+`"}`)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = serve(srv, http.MethodPost, "/token", `{"refresh_token":"`+tokens.RefreshToken+`"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandler_Healthz(t *testing.T) {
	t.Parallel()

	h := newHarness(t)

	rec := serve(identity.NewHandler(h.svc), http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ALIVE", rec.Body.String())

	failing := identity.NewHandler(h.svc, identity.WithReadiness(func(context.Context) error {
		return errors.New("redis down")
	}))
	rec = serve(failing, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
