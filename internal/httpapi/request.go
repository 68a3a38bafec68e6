// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Holding Console Contributors

package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/samber/oops"
)

// Request decoding errors.
var (
	ErrPayloadTooLarge  = errors.New("request body too large")
	ErrMalformedRequest = errors.New("malformed request body")
)

// Error codes attached to decoding errors.
const (
	CodePayloadTooLarge  = "HTTP_PAYLOAD_TOO_LARGE"
	CodeMalformedRequest = "HTTP_MALFORMED_REQUEST"
)

type loginRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

type changePasswordRequest struct {
	UserID          userID `json:"userId"`
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

// userID accepts a JSON number or a numeric string. Anything that is not a
// positive integer decodes to 0, which the service rejects as missing.
type userID int64

// UnmarshalJSON implements json.Unmarshaler. It never fails.
func (id *userID) UnmarshalJSON(data []byte) error {
	*id = 0

	var raw any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return nil //nolint:nilerr // undecodable ids read as missing
	}

	var text string
	switch v := raw.(type) {
	case json.Number:
		text = v.String()
	case string:
		text = strings.TrimSpace(v)
	default:
		return nil
	}

	if n, err := strconv.ParseInt(text, 10, 64); err == nil {
		if n > 0 {
			*id = userID(n)
		}
		return nil
	}
	// 12.0 and 1e3 are integers too.
	f, err := strconv.ParseFloat(text, 64)
	if err != nil || f <= 0 || f != math.Trunc(f) || f > math.MaxInt64 {
		return nil //nolint:nilerr // non-integers read as missing
	}
	*id = userID(f)
	return nil
}

// decodeBody reads at most limit bytes of the request body into dst. An
// empty body decodes as {}.
func decodeBody(w http.ResponseWriter, r *http.Request, limit int64, dst any) error {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return oops.Code(CodePayloadTooLarge).With("limit", limit).Wrap(ErrPayloadTooLarge)
		}
		return oops.Code(CodeMalformedRequest).Wrap(errors.Join(ErrMalformedRequest, err))
	}
	if len(data) == 0 {
		data = []byte("{}")
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return oops.Code(CodeMalformedRequest).Wrap(errors.Join(ErrMalformedRequest, err))
	}
	return nil
}
