// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Holding Console Contributors

package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/holding-console/holding/internal/auth"
	"github.com/holding-console/holding/internal/httpapi"
	"github.com/holding-console/holding/internal/httpapi/mocks"
	"github.com/holding-console/holding/internal/observability"
)

type recordedRequest struct {
	route  string
	status int
}

type fakeRecorder struct {
	mu       sync.Mutex
	requests []recordedRequest
	auths    []string
}

func (f *fakeRecorder) ObserveRequest(route string, status int, _ time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, recordedRequest{route: route, status: status})
}

func (f *fakeRecorder) ObserveAuth(operation, outcome string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.auths = append(f.auths, operation+"/"+outcome)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newHandler(t *testing.T, authn httpapi.Authenticator, opts ...httpapi.Option) *httpapi.Handler {
	t.Helper()
	opts = append([]httpapi.Option{httpapi.WithLogger(discardLogger())}, opts...)
	h, err := httpapi.NewHandler(authn, opts...)
	require.NoError(t, err)
	return h
}

func serve(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), "body: %s", rec.Body.String())
	return body
}

func assertCORS(t *testing.T, rec *httptest.ResponseRecorder) {
	t.Helper()
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "Content-Type", rec.Header().Get("Access-Control-Allow-Headers"))
	assert.Equal(t, "POST,OPTIONS", rec.Header().Get("Access-Control-Allow-Methods"))
}

func TestNewHandler_Validation(t *testing.T) {
	authn := &mocks.MockAuthenticator{}

	_, err := httpapi.NewHandler(nil)
	assert.Error(t, err)

	_, err = httpapi.NewHandler(authn, httpapi.WithMaxBodyBytes(0))
	assert.Error(t, err)

	_, err = httpapi.NewHandler(authn, httpapi.WithAllowedOrigins([]string{"https://[ops"}))
	assert.Error(t, err)

	_, err = httpapi.NewHandler(authn, httpapi.WithAllowedOrigins([]string{""}))
	assert.Error(t, err)

	_, err = httpapi.NewHandler(authn, httpapi.WithLogger(nil))
	assert.Error(t, err)
}

func TestLogin_Success(t *testing.T) {
	authn := mocks.NewMockAuthenticator(t)
	at := time.Date(2025, 11, 3, 8, 15, 30, 250_000_000, time.UTC)
	authn.On("Authenticate", mock.Anything, "operator@holding", "s3cret-pass").
		Return(&auth.User{ID: 1, Login: "Operator@Holding", DisplayName: "Дежурный оператор", LastLoginAt: &at}, nil)

	rec := serve(newHandler(t, authn), http.MethodPost, "/api/login",
		`{"login":"operator@holding","password":"s3cret-pass"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))
	assertCORS(t, rec)
	assert.JSONEq(t, `{"ok":true,"user":{"id":1,"name":"Дежурный оператор","login":"Operator@Holding","lastLoginAt":"2025-11-03T08:15:30.250Z"}}`,
		rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "hash")

	_, err := ulid.ParseStrict(rec.Header().Get(httpapi.RequestIDHeader))
	assert.NoError(t, err, "response should carry a ULID request id")
}

func TestLogin_Errors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantMsg    string
	}{
		{
			name:       "missing fields",
			err:        oops.Code(auth.CodeInvalidInput).Wrap(auth.ErrInvalidInput),
			wantStatus: http.StatusBadRequest,
			wantMsg:    "Укажите логин и пароль",
		},
		{
			name:       "invalid credentials",
			err:        oops.Code(auth.CodeInvalidCredentials).Wrap(auth.ErrInvalidCredentials),
			wantStatus: http.StatusUnauthorized,
			wantMsg:    "Неверный логин или пароль",
		},
		{
			name:       "store unavailable",
			err:        oops.Code(auth.CodeStoreUnavailable).Wrap(errors.Join(auth.ErrStoreUnavailable, errors.New("dial tcp: connection refused"))),
			wantStatus: http.StatusInternalServerError,
			wantMsg:    "Сервер авторизации недоступен",
		},
		{
			name:       "unclassified error",
			err:        errors.New("boom"),
			wantStatus: http.StatusInternalServerError,
			wantMsg:    "Сервер авторизации недоступен",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			authn := mocks.NewMockAuthenticator(t)
			authn.On("Authenticate", mock.Anything, "operator@holding", "wrong").Return(nil, tt.err)

			rec := serve(newHandler(t, authn), http.MethodPost, "/api/login",
				`{"login":"operator@holding","password":"wrong"}`)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assertCORS(t, rec)
			body := decodeEnvelope(t, rec)
			assert.Equal(t, false, body["ok"])
			assert.Equal(t, tt.wantMsg, body["message"])
			assert.NotContains(t, rec.Body.String(), "connection refused")
		})
	}
}

func TestLogin_EmptyBodyIsEmptyObject(t *testing.T) {
	authn := mocks.NewMockAuthenticator(t)
	authn.On("Authenticate", mock.Anything, "", "").
		Return(nil, oops.Code(auth.CodeInvalidInput).Wrap(auth.ErrInvalidInput))

	rec := serve(newHandler(t, authn), http.MethodPost, "/api/login", "")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Укажите логин и пароль", decodeEnvelope(t, rec)["message"])
}

func TestLogin_NullBodyReadsAsMissingFields(t *testing.T) {
	authn := mocks.NewMockAuthenticator(t)
	authn.On("Authenticate", mock.Anything, "", "").
		Return(nil, oops.Code(auth.CodeInvalidInput).Wrap(auth.ErrInvalidInput))

	rec := serve(newHandler(t, authn), http.MethodPost, "/api/login", "null")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLogin_MalformedJSON(t *testing.T) {
	for _, body := range []string{`{"login":`, `not json`, `   `, `{"login":"a"} trailing`, `{"login":42,"password":"x"}`} {
		t.Run(body, func(t *testing.T) {
			// No expectations: the service must not be called.
			authn := mocks.NewMockAuthenticator(t)

			rec := serve(newHandler(t, authn), http.MethodPost, "/api/login", body)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assertCORS(t, rec)
			assert.Equal(t, "Сервер авторизации недоступен", decodeEnvelope(t, rec)["message"])
		})
	}
}

func TestBodyLimit(t *testing.T) {
	const limit = 64
	prefix := `{"login":"operator@holding","password":"pw"}`

	t.Run("exactly at the limit is accepted", func(t *testing.T) {
		authn := mocks.NewMockAuthenticator(t)
		authn.On("Authenticate", mock.Anything, "operator@holding", "pw").
			Return(&auth.User{ID: 1, Login: "operator@holding"}, nil)

		body := prefix + strings.Repeat(" ", limit-len(prefix))
		require.Len(t, body, limit)
		rec := serve(newHandler(t, authn, httpapi.WithMaxBodyBytes(limit)), http.MethodPost, "/api/login", body)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("one byte over is rejected without calling the service", func(t *testing.T) {
		authn := mocks.NewMockAuthenticator(t)

		body := prefix + strings.Repeat(" ", limit-len(prefix)+1)
		rec := serve(newHandler(t, authn, httpapi.WithMaxBodyBytes(limit)), http.MethodPost, "/api/login", body)

		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
		assert.Equal(t, "close", rec.Header().Get("Connection"))
		assertCORS(t, rec)
		assert.Equal(t, "Сервер авторизации недоступен", decodeEnvelope(t, rec)["message"])
	})

	t.Run("change-password uses its own message", func(t *testing.T) {
		authn := mocks.NewMockAuthenticator(t)

		rec := serve(newHandler(t, authn, httpapi.WithMaxBodyBytes(limit)), http.MethodPost, "/api/change-password",
			strings.Repeat("x", limit+1))

		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
		assert.Equal(t, "Не удалось обработать запрос", decodeEnvelope(t, rec)["message"])
	})

	t.Run("default limit is 50 KiB", func(t *testing.T) {
		authn := mocks.NewMockAuthenticator(t)

		body := `{"login":"` + strings.Repeat("a", 51200) + `"}`
		rec := serve(newHandler(t, authn), http.MethodPost, "/api/login", body)
		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	})
}

func TestLogin_DetachedFromClientCancellation(t *testing.T) {
	authn := mocks.NewMockAuthenticator(t)
	authn.On("Authenticate", mock.MatchedBy(func(ctx context.Context) bool {
		return ctx.Err() == nil
	}), "operator@holding", "operator@holding").
		Return(&auth.User{ID: 1, Login: "operator@holding"}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequestWithContext(ctx, http.MethodPost, "/api/login",
		strings.NewReader(`{"login":"operator@holding","password":"operator@holding"}`))
	rec := httptest.NewRecorder()
	newHandler(t, authn).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestChangePassword_Success(t *testing.T) {
	authn := mocks.NewMockAuthenticator(t)
	authn.On("RotatePassword", mock.Anything, int64(1), "operator@holding", "newpassword1").Return(nil)

	rec := serve(newHandler(t, authn), http.MethodPost, "/api/change-password",
		`{"userId":1,"currentPassword":"operator@holding","newPassword":"newpassword1"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assertCORS(t, rec)
	assert.JSONEq(t, `{"ok":true,"message":"Пароль обновлен"}`, rec.Body.String())
}

func TestChangePassword_UserIDForms(t *testing.T) {
	tests := []struct {
		name   string
		userID string
		want   int64
	}{
		{"number", `7`, 7},
		{"numeric string", `"7"`, 7},
		{"padded string", `" 7 "`, 7},
		{"integral float", `7.0`, 7},
		{"exponent", `7e2`, 700},
		{"fractional", `7.5`, 0},
		{"negative", `-3`, 0},
		{"zero", `0`, 0},
		{"word", `"seven"`, 0},
		{"empty string", `""`, 0},
		{"bool", `true`, 0},
		{"null", `null`, 0},
		{"object", `{"id":7}`, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			authn := mocks.NewMockAuthenticator(t)
			authn.On("RotatePassword", mock.Anything, tt.want, "current-pw", "newpassword1").Return(nil)

			rec := serve(newHandler(t, authn), http.MethodPost, "/api/change-password",
				`{"userId":`+tt.userID+`,"currentPassword":"current-pw","newPassword":"newpassword1"}`)
			assert.Equal(t, http.StatusOK, rec.Code)
		})
	}
}

func TestChangePassword_Errors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantMsg    string
	}{
		{"missing fields", oops.Code(auth.CodeInvalidInput).Wrap(auth.ErrInvalidInput), http.StatusBadRequest, "Укажите все необходимые данные"},
		{"weak password", oops.Code(auth.CodeWeakPassword).Wrap(auth.ErrWeakPassword), http.StatusBadRequest, "Новый пароль должен содержать минимум 8 символов"},
		{"wrong current password", oops.Code(auth.CodeInvalidCredentials).Wrap(auth.ErrInvalidCredentials), http.StatusUnauthorized, "Текущий пароль указан неверно"},
		{"store unavailable", oops.Code(auth.CodeStoreUnavailable).Wrap(auth.ErrStoreUnavailable), http.StatusInternalServerError, "Не удалось обработать запрос"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			authn := mocks.NewMockAuthenticator(t)
			authn.On("RotatePassword", mock.Anything, int64(1), "current-pw", "short").Return(tt.err)

			rec := serve(newHandler(t, authn), http.MethodPost, "/api/change-password",
				`{"userId":"1","currentPassword":"current-pw","newPassword":"short"}`)

			assert.Equal(t, tt.wantStatus, rec.Code)
			body := decodeEnvelope(t, rec)
			assert.Equal(t, false, body["ok"])
			assert.Equal(t, tt.wantMsg, body["message"])
		})
	}
}

func TestChangePassword_MalformedJSON(t *testing.T) {
	authn := mocks.NewMockAuthenticator(t)

	rec := serve(newHandler(t, authn), http.MethodPost, "/api/change-password", `{"userId":1,`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Не удалось обработать запрос", decodeEnvelope(t, rec)["message"])
}

func TestPreflight(t *testing.T) {
	for _, path := range []string{"/api/login", "/api/change-password", "/api/anything/else"} {
		t.Run(path, func(t *testing.T) {
			authn := mocks.NewMockAuthenticator(t)

			rec := serve(newHandler(t, authn), http.MethodOptions, path, "")

			assert.Equal(t, http.StatusNoContent, rec.Code)
			assert.Empty(t, rec.Body.String())
			assertCORS(t, rec)
		})
	}
}

func TestNotFound(t *testing.T) {
	tests := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/login"},
		{http.MethodPut, "/api/change-password"},
		{http.MethodPost, "/api/unknown"},
		{http.MethodGet, "/"},
		{http.MethodOptions, "/health"},
		{http.MethodOptions, "/api"},
		{http.MethodPost, "//api/login"},
		{http.MethodPost, "/api/./login"},
		{http.MethodPost, "/api/login/"},
		{http.MethodGet, "/api/../x"},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			authn := mocks.NewMockAuthenticator(t)

			rec := serve(newHandler(t, authn), tt.method, tt.path, `{"login":"a","password":"b"}`)

			assert.Equal(t, http.StatusNotFound, rec.Code)
			assert.Empty(t, rec.Header().Get("Location"), "paths are never redirected")
			assertCORS(t, rec)
			assert.JSONEq(t, `{"ok":false,"message":"Endpoint not found"}`, rec.Body.String())
		})
	}
}

func TestCORS_OriginPatterns(t *testing.T) {
	authn := mocks.NewMockAuthenticator(t)
	h := newHandler(t, authn, httpapi.WithAllowedOrigins([]string{"https://*.holding.local", "http://localhost:*"}))

	tests := []struct {
		origin string
		want   string
	}{
		{"https://ops.holding.local", "https://ops.holding.local"},
		{"http://localhost:5173", "http://localhost:5173"},
		{"https://a.b.holding.local", ""},
		{"https://evil.example", ""},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.origin, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodOptions, "/api/login", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusNoContent, rec.Code)
			assert.Equal(t, tt.want, rec.Header().Get("Access-Control-Allow-Origin"))
			assert.Equal(t, "Origin", rec.Header().Get("Vary"))
			assert.Equal(t, "POST,OPTIONS", rec.Header().Get("Access-Control-Allow-Methods"))
		})
	}
}

func TestRequestID(t *testing.T) {
	authn := mocks.NewMockAuthenticator(t)
	h := newHandler(t, authn)

	incoming := ulid.Make().String()
	req := httptest.NewRequest(http.MethodGet, "/nowhere", nil)
	req.Header.Set(httpapi.RequestIDHeader, incoming)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, incoming, rec.Header().Get(httpapi.RequestIDHeader))

	req = httptest.NewRequest(http.MethodGet, "/nowhere", nil)
	req.Header.Set(httpapi.RequestIDHeader, "not-a-ulid")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	got := rec.Header().Get(httpapi.RequestIDHeader)
	assert.NotEqual(t, "not-a-ulid", got)
	_, err := ulid.ParseStrict(got)
	assert.NoError(t, err)
}

func TestMetrics(t *testing.T) {
	authn := mocks.NewMockAuthenticator(t)
	authn.On("Authenticate", mock.Anything, "operator@holding", "wrong").
		Return(nil, oops.Code(auth.CodeInvalidCredentials).Wrap(auth.ErrInvalidCredentials))
	authn.On("RotatePassword", mock.Anything, int64(1), "current-pw", "short").
		Return(oops.Code(auth.CodeWeakPassword).Wrap(auth.ErrWeakPassword))

	recorder := &fakeRecorder{}
	h := newHandler(t, authn, httpapi.WithRecorder(recorder))

	serve(h, http.MethodPost, "/api/login", `{"login":"operator@holding","password":"wrong"}`)
	serve(h, http.MethodPost, "/api/change-password", `{"userId":1,"currentPassword":"current-pw","newPassword":"short"}`)
	serve(h, http.MethodPost, "/api/login", `{`)
	serve(h, http.MethodOptions, "/api/login", "")
	serve(h, http.MethodGet, "/missing", "")

	assert.Equal(t, []recordedRequest{
		{"POST /api/login", http.StatusUnauthorized},
		{"POST /api/change-password", http.StatusBadRequest},
		{"POST /api/login", http.StatusBadRequest},
		{"OPTIONS /api/", http.StatusNoContent},
		{"unmatched", http.StatusNotFound},
	}, recorder.requests)
	assert.Equal(t, []string{
		"login/" + observability.OutcomeInvalidCredentials,
		"change_password/" + observability.OutcomeWeakPassword,
	}, recorder.auths)
}

func TestLogging_NeverLogsPasswords(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	authn := mocks.NewMockAuthenticator(t)
	authn.On("Authenticate", mock.Anything, "operator@holding", "Smelter#2026").
		Return(nil, oops.Code(auth.CodeStoreUnavailable).With("operation", "find user by login").Wrap(auth.ErrStoreUnavailable))

	h, err := httpapi.NewHandler(authn, httpapi.WithLogger(logger))
	require.NoError(t, err)
	rec := serve(h, http.MethodPost, "/api/login", `{"login":"operator@holding","password":"Smelter#2026"}`)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, buf.String(), "login failed")
	assert.Contains(t, buf.String(), auth.CodeStoreUnavailable)
	assert.Contains(t, buf.String(), "request completed")
	assert.NotContains(t, buf.String(), "Smelter#2026")
}
