// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Holding Console Contributors

package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/holding-console/holding/internal/auth"
)

// timestampLayout is ISO-8601 in UTC with milliseconds.
const timestampLayout = "2006-01-02T15:04:05.000Z"

// envelope is the body of every JSON response.
type envelope struct {
	OK      bool      `json:"ok"`
	User    *userView `json:"user,omitempty"`
	Message string    `json:"message,omitempty"`
}

type userView struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	Login       string  `json:"login"`
	LastLoginAt *string `json:"lastLoginAt"`
}

func newUserView(u *auth.User) *userView {
	v := &userView{
		ID:    u.ID,
		Name:  u.DisplayName,
		Login: u.Login,
	}
	if u.LastLoginAt != nil {
		ts := formatTimestamp(*u.LastLoginAt)
		v.LastLoginAt = &ts
	}
	return v
}

func failure(message string) envelope {
	return envelope{OK: false, Message: message}
}

// formatTimestamp renders t the way lastLoginAt is sent to clients.
func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, statusCode int, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode JSON response: %w", err)
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(statusCode)
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("failed to write JSON response: %w", err)
	}
	return nil
}
