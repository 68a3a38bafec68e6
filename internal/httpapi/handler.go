// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Holding Console Contributors

// Package httpapi is the JSON front door of the credential service.
//
// Routes:
//
//	POST    /api/login            {login, password}
//	POST    /api/change-password  {userId, currentPassword, newPassword}
//	OPTIONS /api/...              204, CORS preflight
//
// Every response carries CORS headers and, except for 204, a JSON envelope
// {ok, user?, message?}.
package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/samber/oops"

	"github.com/holding-console/holding/internal/auth"
	"github.com/holding-console/holding/internal/observability"
	"github.com/holding-console/holding/pkg/errutil"
)

// DefaultMaxBodyBytes is the request body ceiling used when none is set.
const DefaultMaxBodyBytes int64 = 50 * 1024

// Operation names used in metrics.
const (
	OperationLogin          = "login"
	OperationChangePassword = "change_password"
)

// Authenticator is the credential service as seen by the front door.
type Authenticator interface {
	Authenticate(ctx context.Context, login, password string) (*auth.User, error)
	RotatePassword(ctx context.Context, userID int64, currentPassword, newPassword string) error
}

// Recorder receives request and credential metrics.
type Recorder interface {
	ObserveRequest(route string, status int, elapsed time.Duration)
	ObserveAuth(operation, outcome string)
}

type nopRecorder struct{}

func (nopRecorder) ObserveRequest(string, int, time.Duration) {}
func (nopRecorder) ObserveAuth(string, string)                {}

// messages is the client-facing copy of one operation.
type messages struct {
	missingFields      string
	weakPassword       string
	invalidCredentials string
	unavailable        string
}

var (
	loginMessages = messages{
		missingFields:      "Укажите логин и пароль",
		invalidCredentials: "Неверный логин или пароль",
		unavailable:        "Сервер авторизации недоступен",
	}
	changePasswordMessages = messages{
		missingFields:      "Укажите все необходимые данные",
		weakPassword:       "Новый пароль должен содержать минимум 8 символов",
		invalidCredentials: "Текущий пароль указан неверно",
		unavailable:        "Не удалось обработать запрос",
	}
)

const (
	passwordChangedMessage = "Пароль обновлен"
	notFoundMessage        = "Endpoint not found"
)

// Handler serves the auth API.
type Handler struct {
	auth         Authenticator
	cors         *corsPolicy
	origins      []string
	maxBodyBytes int64
	logger       *slog.Logger
	recorder     Recorder
	root         http.Handler
}

// Option configures a Handler.
type Option func(*Handler)

// WithMaxBodyBytes sets the request body ceiling.
func WithMaxBodyBytes(n int64) Option {
	return func(h *Handler) {
		h.maxBodyBytes = n
	}
}

// WithAllowedOrigins sets the CORS origin patterns. The default is "*".
func WithAllowedOrigins(origins []string) Option {
	return func(h *Handler) {
		h.origins = origins
	}
}

// WithLogger sets the handler logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) {
		h.logger = logger
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(h *Handler) {
		h.recorder = r
	}
}

// NewHandler creates the auth API handler.
func NewHandler(authenticator Authenticator, opts ...Option) (*Handler, error) {
	if authenticator == nil {
		return nil, oops.Code("HTTP_INVALID_CONFIG").Errorf("authenticator is required")
	}

	h := &Handler{
		auth:         authenticator,
		origins:      []string{"*"},
		maxBodyBytes: DefaultMaxBodyBytes,
		logger:       slog.Default(),
		recorder:     nopRecorder{},
	}
	for _, opt := range opts {
		opt(h)
	}

	if h.maxBodyBytes <= 0 {
		return nil, oops.Code("HTTP_INVALID_CONFIG").With("max_body_bytes", h.maxBodyBytes).Errorf("body limit must be positive")
	}
	if h.logger == nil {
		return nil, oops.Code("HTTP_INVALID_CONFIG").Errorf("logger is required")
	}
	if h.recorder == nil {
		h.recorder = nopRecorder{}
	}

	cors, err := newCORSPolicy(h.origins)
	if err != nil {
		return nil, err
	}
	h.cors = cors

	h.root = withRequestID(h.instrument(h.withCORS(http.HandlerFunc(h.route))))
	return h, nil
}

// Route patterns, also used as metrics labels.
const (
	routeLogin          = "POST /api/login"
	routeChangePassword = "POST /api/change-password"
	routePreflight      = "OPTIONS /api/"
)

// route dispatches on the raw method and path. Paths are matched exactly:
// nothing is cleaned or redirected, and every miss is a JSON 404.
func (h *Handler) route(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	switch {
	case r.Method == http.MethodPost && path == "/api/login":
		r.Pattern = routeLogin
		h.handleLogin(w, r)
	case r.Method == http.MethodPost && path == "/api/change-password":
		r.Pattern = routeChangePassword
		h.handleChangePassword(w, r)
	case r.Method == http.MethodOptions && strings.HasPrefix(path, "/api/"):
		r.Pattern = routePreflight
		h.handlePreflight(w, r)
	default:
		h.handleNotFound(w, r)
	}
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.root.ServeHTTP(w, r)
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeBody(w, r, h.maxBodyBytes, &req); err != nil {
		h.fail(w, r, OperationLogin, loginMessages, err)
		return
	}

	// Store calls finish even if the client goes away.
	ctx := context.WithoutCancel(r.Context())
	user, err := h.auth.Authenticate(ctx, req.Login, req.Password)
	if err != nil {
		h.recorder.ObserveAuth(OperationLogin, outcome(err))
		h.fail(w, r, OperationLogin, loginMessages, err)
		return
	}

	h.recorder.ObserveAuth(OperationLogin, observability.OutcomeSuccess)
	h.write(w, r, http.StatusOK, envelope{OK: true, User: newUserView(user)})
}

func (h *Handler) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if err := decodeBody(w, r, h.maxBodyBytes, &req); err != nil {
		h.fail(w, r, OperationChangePassword, changePasswordMessages, err)
		return
	}

	ctx := context.WithoutCancel(r.Context())
	err := h.auth.RotatePassword(ctx, int64(req.UserID), req.CurrentPassword, req.NewPassword)
	if err != nil {
		h.recorder.ObserveAuth(OperationChangePassword, outcome(err))
		h.fail(w, r, OperationChangePassword, changePasswordMessages, err)
		return
	}

	h.recorder.ObserveAuth(OperationChangePassword, observability.OutcomeSuccess)
	h.write(w, r, http.StatusOK, envelope{OK: true, Message: passwordChangedMessage})
}

func (h *Handler) handlePreflight(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleNotFound(w http.ResponseWriter, r *http.Request) {
	h.write(w, r, http.StatusNotFound, failure(notFoundMessage))
}

// fail maps err onto a status code and client message. Details of server
// side failures are logged and never sent.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, operation string, msgs messages, err error) {
	status, message := classify(err, msgs)

	switch {
	case status >= http.StatusInternalServerError:
		errutil.LogErrorContext(r.Context(), h.logger, operation+" failed", err)
	case errors.Is(err, ErrPayloadTooLarge), errors.Is(err, ErrMalformedRequest):
		h.logger.WarnContext(r.Context(), "request rejected",
			"operation", operation, "code", errutil.Code(err), "error", err)
	}

	if status == http.StatusRequestEntityTooLarge {
		w.Header().Set("Connection", "close")
	}
	h.write(w, r, status, failure(message))
}

func (h *Handler) write(w http.ResponseWriter, r *http.Request, status int, body envelope) {
	if err := writeJSON(w, status, body); err != nil {
		h.logger.WarnContext(r.Context(), "failed to write response", "status", status, "error", err)
	}
}

// classify returns the HTTP status and message for err.
func classify(err error, msgs messages) (int, string) {
	switch {
	case errors.Is(err, ErrPayloadTooLarge):
		return http.StatusRequestEntityTooLarge, msgs.unavailable
	case errors.Is(err, ErrMalformedRequest):
		return http.StatusBadRequest, msgs.unavailable
	case errors.Is(err, auth.ErrWeakPassword) && msgs.weakPassword != "":
		return http.StatusBadRequest, msgs.weakPassword
	case errors.Is(err, auth.ErrInvalidInput):
		return http.StatusBadRequest, msgs.missingFields
	case errors.Is(err, auth.ErrInvalidCredentials):
		return http.StatusUnauthorized, msgs.invalidCredentials
	default:
		return http.StatusInternalServerError, msgs.unavailable
	}
}

// outcome names a credential service error for metrics.
func outcome(err error) string {
	switch {
	case errors.Is(err, auth.ErrWeakPassword):
		return observability.OutcomeWeakPassword
	case errors.Is(err, auth.ErrInvalidInput):
		return observability.OutcomeInvalidInput
	case errors.Is(err, auth.ErrInvalidCredentials):
		return observability.OutcomeInvalidCredentials
	default:
		return observability.OutcomeError
	}
}
