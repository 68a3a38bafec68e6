// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Holding Console Contributors

package auth

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/samber/oops"
)

// DefaultDisplayName is shown for accounts provisioned without a name.
const DefaultDisplayName = "Оператор производственного холдинга"

// MaxLoginLength bounds logins accepted by provisioning.
const MaxLoginLength = 254

// UserRecord is an operator account as persisted by a UserStore.
type UserRecord struct {
	ID          int64
	Login       string
	DisplayName string
	// PasswordHash is nil while the account is in bootstrap state.
	PasswordHash *string
	LastLoginAt  *time.Time
}

// IsBootstrap reports whether the record has no password set.
func (r *UserRecord) IsBootstrap() bool {
	return r.PasswordHash == nil
}

// User is the hash-free view of a UserRecord.
type User struct {
	ID          int64
	Login       string
	DisplayName string
	LastLoginAt *time.Time
}

// View returns the public view of r. An empty display name is replaced by
// fallbackName.
func (r *UserRecord) View(fallbackName string) User {
	name := r.DisplayName
	if name == "" {
		name = fallbackName
	}
	return User{
		ID:          r.ID,
		Login:       r.Login,
		DisplayName: name,
		LastLoginAt: r.LastLoginAt,
	}
}

// NormalizeLogin trims surrounding whitespace from a login.
func NormalizeLogin(login string) string {
	return strings.TrimSpace(login)
}

// ValidateLogin checks a login before provisioning.
func ValidateLogin(login string) error {
	if login == "" {
		return oops.Code("AUTH_INVALID_LOGIN").Errorf("login cannot be empty")
	}
	if login != NormalizeLogin(login) {
		return oops.Code("AUTH_INVALID_LOGIN").Errorf("login cannot start or end with whitespace")
	}
	if utf8.RuneCountInString(login) > MaxLoginLength {
		return oops.Code("AUTH_INVALID_LOGIN").
			With("max", MaxLoginLength).
			Errorf("login must be at most %d characters", MaxLoginLength)
	}
	return nil
}

// NewUser describes an account to provision.
type NewUser struct {
	Login       string
	DisplayName string
	// PasswordHash may be nil to create the account in bootstrap state.
	PasswordHash *string
}

// UserStore manages operator account persistence.
type UserStore interface {
	// FindByLogin retrieves a record by login (case-insensitive).
	// Returns ErrNotFound if no record matches.
	FindByLogin(ctx context.Context, login string) (*UserRecord, error)

	// FindByID retrieves a record by ID.
	// Returns ErrNotFound if no record matches.
	FindByID(ctx context.Context, id int64) (*UserRecord, error)

	// UpdateLastLogin sets the last successful login time.
	UpdateLastLogin(ctx context.Context, id int64, at time.Time) error

	// UpdatePasswordHash replaces the stored password hash.
	UpdatePasswordHash(ctx context.Context, id int64, hash string) error
}

// Provisioner creates accounts out-of-band. It is not used by
// CredentialService.
type Provisioner interface {
	// CreateUser stores a new account.
	// Returns ErrAlreadyExists if the login is taken (case-insensitive).
	CreateUser(ctx context.Context, user NewUser) (*UserRecord, error)
}
