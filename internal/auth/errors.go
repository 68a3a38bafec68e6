// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Holding Console Contributors

package auth

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrAlreadyExists is returned when provisioning a login that is already taken.
var ErrAlreadyExists = errors.New("already exists")

// Sentinel errors returned by CredentialService. Callers classify failures
// with errors.Is; the oops codes below carry the same classification into logs.
var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrWeakPassword       = fmt.Errorf("%w: new password is too short", ErrInvalidInput)
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrStoreUnavailable   = errors.New("user store unavailable")
)

// Error codes attached to CredentialService errors.
const (
	CodeInvalidInput       = "AUTH_INVALID_INPUT"
	CodeWeakPassword       = "AUTH_WEAK_PASSWORD"
	CodeInvalidCredentials = "AUTH_INVALID_CREDENTIALS"
	CodeStoreUnavailable   = "AUTH_STORE_UNAVAILABLE"
	CodeHashFailed         = "AUTH_HASH_FAILED"
)
