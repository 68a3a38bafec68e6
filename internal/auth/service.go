// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Holding Console Contributors

package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// MinPasswordLength is the default minimum length, in characters, of a new password.
const MinPasswordLength = 8

// dummyPasswordHash is verified when a login does not exist so that unknown
// and known logins take comparable time. It never matches any password.
//
//nolint:gosec // G101: fake hash, not a credential.
const dummyPasswordHash = "sha256:0000000000000000000000000000000000000000000000000000000000000000"

// Policy holds the tunable rules of CredentialService.
type Policy struct {
	// MinPasswordLength is the minimum rune count of a new password.
	MinPasswordLength int
	// AllowBootstrapLogin accepts password == login for records without a hash.
	AllowBootstrapLogin bool
	// UpgradeOnLogin rehashes the password with the primary scheme after a
	// successful login when the stored scheme differs.
	UpgradeOnLogin bool
	// DefaultDisplayName replaces an empty display name in returned views.
	DefaultDisplayName string
}

// DefaultPolicy returns the policy used when none is configured.
func DefaultPolicy() Policy {
	return Policy{
		MinPasswordLength:   MinPasswordLength,
		AllowBootstrapLogin: true,
		DefaultDisplayName:  DefaultDisplayName,
	}
}

// CredentialService verifies logins and rotates passwords.
type CredentialService struct {
	users  UserStore
	hasher PasswordHasher
	policy Policy
	now    func() time.Time
	logger *slog.Logger
	tracer trace.Tracer
}

// ServiceOption configures a CredentialService.
type ServiceOption func(*CredentialService)

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *CredentialService) {
		s.logger = logger
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *CredentialService) {
		s.now = now
	}
}

// WithPolicy replaces DefaultPolicy.
func WithPolicy(p Policy) ServiceOption {
	return func(s *CredentialService) {
		s.policy = p
	}
}

// NewCredentialService creates a CredentialService.
func NewCredentialService(users UserStore, hasher PasswordHasher, opts ...ServiceOption) (*CredentialService, error) {
	if users == nil {
		return nil, oops.Code("AUTH_INVALID_CONFIG").Errorf("user store is required")
	}
	if hasher == nil {
		return nil, oops.Code("AUTH_INVALID_CONFIG").Errorf("password hasher is required")
	}

	s := &CredentialService{
		users:  users,
		hasher: hasher,
		policy: DefaultPolicy(),
		now:    time.Now,
		logger: slog.Default(),
		tracer: otel.Tracer("github.com/holding-console/holding/internal/auth"),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.logger == nil {
		return nil, oops.Code("AUTH_INVALID_CONFIG").Errorf("logger is required")
	}
	if s.now == nil {
		return nil, oops.Code("AUTH_INVALID_CONFIG").Errorf("clock is required")
	}
	if s.policy.MinPasswordLength < 1 {
		return nil, oops.Code("AUTH_INVALID_CONFIG").
			With("min_password_length", s.policy.MinPasswordLength).
			Errorf("minimum password length must be positive")
	}
	return s, nil
}

// Authenticate verifies a login attempt. On success the last-login time is
// persisted and the updated view is returned.
//
// An unknown login and a wrong password produce the same ErrInvalidCredentials.
func (s *CredentialService) Authenticate(ctx context.Context, login, password string) (*User, error) {
	ctx, span := s.tracer.Start(ctx, "auth.Authenticate")
	defer span.End()

	login = NormalizeLogin(login)
	if login == "" || password == "" {
		return nil, s.fail(span, oops.Code(CodeInvalidInput).Wrapf(ErrInvalidInput, "login and password are required"))
	}

	rec, err := s.users.FindByLogin(ctx, login)
	if errors.Is(err, ErrNotFound) {
		// Keep the timing of unknown logins close to that of known ones.
		_, _ = s.hasher.Verify(password, dummyPasswordHash) //nolint:errcheck // result intentionally unused
		s.logger.InfoContext(ctx, "login rejected", "reason", "unknown login")
		return nil, s.fail(span, invalidCredentials())
	}
	if err != nil {
		return nil, s.fail(span, storeUnavailable("find user by login", err))
	}
	span.SetAttributes(attribute.Int64("user.id", rec.ID))

	if !s.verify(ctx, rec, password) {
		s.logger.InfoContext(ctx, "login rejected", "user_id", rec.ID, "reason", "password mismatch")
		return nil, s.fail(span, invalidCredentials())
	}

	at := s.loginTime(rec)
	if err := s.users.UpdateLastLogin(ctx, rec.ID, at); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, s.fail(span, invalidCredentials())
		}
		return nil, s.fail(span, storeUnavailable("update last login", err))
	}
	rec.LastLoginAt = &at

	s.upgradeHash(ctx, rec, password)

	s.logger.InfoContext(ctx, "login succeeded", "user_id", rec.ID, "bootstrap", rec.IsBootstrap())
	view := rec.View(s.policy.DefaultDisplayName)
	return &view, nil
}

// RotatePassword replaces the password of userID after verifying the current
// one. Reusing the current password is allowed; the last-login time is not
// touched.
func (s *CredentialService) RotatePassword(ctx context.Context, userID int64, currentPassword, newPassword string) error {
	ctx, span := s.tracer.Start(ctx, "auth.RotatePassword", trace.WithAttributes(attribute.Int64("user.id", userID)))
	defer span.End()

	if userID <= 0 || currentPassword == "" || newPassword == "" {
		return s.fail(span, oops.Code(CodeInvalidInput).Wrapf(ErrInvalidInput, "user id, current and new password are required"))
	}
	if utf8.RuneCountInString(newPassword) < s.policy.MinPasswordLength {
		return s.fail(span, oops.Code(CodeWeakPassword).
			With("min_length", s.policy.MinPasswordLength).
			Wrap(ErrWeakPassword))
	}

	rec, err := s.users.FindByID(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		s.logger.InfoContext(ctx, "password rotation rejected", "user_id", userID, "reason", "unknown user")
		return s.fail(span, invalidCredentials())
	}
	if err != nil {
		return s.fail(span, storeUnavailable("find user by id", err))
	}

	if !s.verify(ctx, rec, currentPassword) {
		s.logger.InfoContext(ctx, "password rotation rejected", "user_id", userID, "reason", "password mismatch")
		return s.fail(span, invalidCredentials())
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		if errors.Is(err, ErrInvalidInput) {
			return s.fail(span, oops.Code(CodeInvalidInput).Wrap(err))
		}
		return s.fail(span, oops.Code(CodeHashFailed).With("user_id", userID).Wrap(err))
	}

	if err := s.users.UpdatePasswordHash(ctx, rec.ID, hash); err != nil {
		if errors.Is(err, ErrNotFound) {
			return s.fail(span, invalidCredentials())
		}
		return s.fail(span, storeUnavailable("update password hash", err))
	}

	s.logger.InfoContext(ctx, "password rotated", "user_id", rec.ID, "was_bootstrap", rec.IsBootstrap())
	return nil
}

// verify applies the bootstrap rule or the hasher to a candidate password.
func (s *CredentialService) verify(ctx context.Context, rec *UserRecord, password string) bool {
	if rec.PasswordHash == nil {
		if !s.policy.AllowBootstrapLogin {
			return false
		}
		return subtle.ConstantTimeCompare([]byte(password), []byte(rec.Login)) == 1
	}

	ok, err := s.hasher.Verify(password, *rec.PasswordHash)
	if err != nil {
		s.logger.WarnContext(ctx, "stored password hash is malformed", "user_id", rec.ID, "error", err)
		return false
	}
	return ok
}

// loginTime returns the timestamp to record for a successful login, never
// earlier than the one already stored.
func (s *CredentialService) loginTime(rec *UserRecord) time.Time {
	at := s.now().UTC().Truncate(time.Millisecond)
	if rec.LastLoginAt != nil && at.Before(*rec.LastLoginAt) {
		return rec.LastLoginAt.UTC()
	}
	return at
}

// upgradeHash rehashes a verified password with the primary scheme. Failures
// are logged and never fail the login.
func (s *CredentialService) upgradeHash(ctx context.Context, rec *UserRecord, password string) {
	if !s.policy.UpgradeOnLogin || rec.PasswordHash == nil || !s.hasher.NeedsUpgrade(*rec.PasswordHash) {
		return
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		s.logger.WarnContext(ctx, "password hash upgrade failed", "user_id", rec.ID, "operation", "hash", "error", err)
		return
	}
	if err := s.users.UpdatePasswordHash(ctx, rec.ID, hash); err != nil {
		s.logger.WarnContext(ctx, "password hash upgrade failed", "user_id", rec.ID, "operation", "store", "error", err)
		return
	}
	s.logger.InfoContext(ctx, "password hash upgraded", "user_id", rec.ID)
}

func (s *CredentialService) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

func invalidCredentials() error {
	return oops.Code(CodeInvalidCredentials).Wrapf(ErrInvalidCredentials, "invalid login or password")
}

func storeUnavailable(operation string, err error) error {
	return oops.Code(CodeStoreUnavailable).
		With("operation", operation).
		Wrap(fmt.Errorf("%w: %w", ErrStoreUnavailable, err))
}
