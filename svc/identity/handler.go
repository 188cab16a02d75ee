package identity

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dmitrymomot/profilekit/pkg/clientip"
	"github.com/dmitrymomot/profilekit/pkg/httpserver"
	"github.com/dmitrymomot/profilekit/pkg/jwt"
	"github.com/dmitrymomot/profilekit/pkg/logger"
	"github.com/dmitrymomot/profilekit/pkg/requestid"
	"github.com/dmitrymomot/profilekit/pkg/validator"
	"github.com/dmitrymomot/profilekit/svc/auth"
)

type magicLinkRequest struct {
	Email      string `json:"email"`
	RedirectTo string `json:"redirect_to"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type tokenResponse struct {
	AccessToken  string        `json:"access_token"`
	RefreshToken string        `json:"refresh_token"`
	TokenType    string        `json:"token_type"`
	ExpiresIn    int           `json:"expires_in"`
	ExpiresAt    int64         `json:"expires_at"`
	User         auth.Identity `json:"user"`
}

type errorResponse struct {
	Error       string              `json:"error"`
	Description string              `json:"error_description,omitempty"`
	Fields      map[string][]string `json:"fields,omitempty"`
}

// HandlerOption configures the HTTP handler.
type HandlerOption func(*handler)

func WithHandlerLogger(l *slog.Logger) HandlerOption {
	return func(h *handler) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithReadiness adds dependency checks to the /healthz endpoint.
func WithReadiness(checks ...func(context.Context) error) HandlerOption {
	return func(h *handler) { h.checks = append(h.checks, checks...) }
}

type handler struct {
	service        *Service
	logger         *slog.Logger
	checks         []func(context.Context) error
	trustedHeaders []string
}

// NewHandler exposes the service over HTTP:
//
//	GET  /verify?token=   consume a magic link and redirect to the app
//	POST /magic-link      request a magic link
//	POST /token           rotate a refresh token
//	POST /logout          revoke a refresh token
//	GET  /user            current account, bearer token required
//	GET  /healthz         liveness and readiness
func NewHandler(service *Service, opts ...HandlerOption) http.Handler {
	h := &handler{
		service:        service,
		logger:         logger.Discard(),
		trustedHeaders: service.Config().TrustedIPHeaders,
	}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = h.logger.With(logger.Component("identity_http"))

	r := chi.NewRouter()
	r.Use(requestid.Middleware)
	r.Use(clientip.Middleware(h.trustedHeaders...))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", httpserver.HealthCheckHandler(h.logger, h.checks...))
	r.Get("/verify", h.verify)
	r.Post("/magic-link", h.requestMagicLink)
	r.Post("/token", h.refresh)
	r.Post("/logout", h.logout)
	r.Group(func(r chi.Router) {
		r.Use(jwt.MiddlewareWithConfig(jwt.MiddlewareConfig{
			Service: service.Tokens(),
			ErrorHandler: func(w http.ResponseWriter, _ *http.Request, err error) {
				writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "invalid_token", Description: err.Error()})
			},
		}))
		r.Get("/user", h.user)
	})
	return r
}

func (h *handler) verify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	grant, err := h.service.Verify(ctx, r.URL.Query().Get("token"))
	if err != nil {
		h.logger.WarnContext(ctx, "magic link rejected",
			slog.String("client_ip", clientip.FromContext(ctx)),
			logger.Error(err),
		)
		if grant == nil || grant.RedirectURL == "" {
			writeJSON(w, http.StatusBadRequest, errorResponse{
				Error:       "invalid_request",
				Description: "Email link is invalid or has expired",
			})
			return
		}
		http.Redirect(w, r, h.service.RedirectWithError(grant.RedirectURL, err), http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, h.service.RedirectWithSession(grant.RedirectURL, grant.Session), http.StatusSeeOther)
}

func (h *handler) requestMagicLink(w http.ResponseWriter, r *http.Request) {
	var req magicLinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid_request", Description: "malformed JSON body"})
		return
	}

	err := h.service.RequestMagicLink(r.Context(), req.Email, req.RedirectTo)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusAccepted)
	case validator.IsValidationError(err):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{
			Error:  "validation_failed",
			Fields: fieldErrors(validator.ExtractValidationErrors(err)),
		})
	case errors.Is(err, ErrRateLimited):
		writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "over_email_send_rate_limit", Description: err.Error()})
	case errors.Is(err, ErrRedirectNotAllowed):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "redirect_not_allowed", Description: err.Error()})
	default:
		h.serverError(w, r, err)
	}
}

func (h *handler) refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid_request", Description: "malformed JSON body"})
		return
	}

	session, err := h.service.Refresh(r.Context(), req.RefreshToken)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, tokenResponse{
			AccessToken:  session.AccessToken,
			RefreshToken: session.RefreshToken,
			TokenType:    session.TokenType,
			ExpiresIn:    int(session.ExpiresAt.Sub(h.service.now()) / time.Second),
			ExpiresAt:    session.ExpiresAt.Unix(),
			User:         session.Identity,
		})
	case errors.Is(err, ErrRefreshTokenInvalid), errors.Is(err, ErrAccountNotFound):
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "invalid_grant", Description: "Invalid refresh token"})
	default:
		h.serverError(w, r, err)
	}
}

func (h *handler) logout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid_request", Description: "malformed JSON body"})
		return
	}
	if err := h.service.Revoke(r.Context(), req.RefreshToken); err != nil {
		h.serverError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) user(w http.ResponseWriter, r *http.Request) {
	token, _ := jwt.GetToken(r.Context())
	account, err := h.service.Account(r.Context(), token)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, account)
	case errors.Is(err, ErrAccountNotFound), errors.Is(err, ErrAccessTokenInvalid):
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "invalid_token"})
	default:
		h.serverError(w, r, err)
	}
}

func (h *handler) serverError(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.ErrorContext(r.Context(), "request failed", logger.Error(err))
	writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "server_error"})
}

func fieldErrors(errs validator.ValidationErrors) map[string][]string {
	fields := make(map[string][]string, len(errs))
	for _, e := range errs {
		fields[e.Field] = append(fields[e.Field], e.Message)
	}
	return fields
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
