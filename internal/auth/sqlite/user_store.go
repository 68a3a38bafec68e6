// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Holding Console Contributors

// Package sqlite implements auth.UserStore on a SQLite database file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/samber/oops"
	msqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/holding-console/holding/internal/auth"
	"github.com/holding-console/holding/internal/store"
)

// timeLayout matches the ISO-8601 strings already present in console databases.
const timeLayout = "2006-01-02T15:04:05.000Z07:00"

// legacyTimeLayout is SQLite's CURRENT_TIMESTAMP format.
const legacyTimeLayout = "2006-01-02 15:04:05"

// DBTX is the subset of *sql.DB and *sql.Tx used by UserStore.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// UserStore implements auth.UserStore over the holding_users table.
type UserStore struct {
	db DBTX
}

// NewUserStore creates a new UserStore.
func NewUserStore(db DBTX) *UserStore {
	return &UserStore{db: db}
}

const selectUser = `
	SELECT id, full_name, login, password_hash, last_login_at
	FROM holding_users
`

// findByLogin matches the expression of the unique login index.
var findByLogin = selectUser + `WHERE ` + store.LowerFunc + `(login) = ? LIMIT 1`

// FindByLogin retrieves a record by login, folding case the same way for
// every script.
func (s *UserStore) FindByLogin(ctx context.Context, login string) (*auth.UserRecord, error) {
	row := s.db.QueryRowContext(ctx, findByLogin, strings.ToLower(login))

	rec, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").
			With("login", login).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_GET_BY_LOGIN_FAILED").
			With("operation", "get user by login").
			Wrap(err)
	}
	return rec, nil
}

// FindByID retrieves a record by ID.
func (s *UserStore) FindByID(ctx context.Context, id int64) (*auth.UserRecord, error) {
	row := s.db.QueryRowContext(ctx, selectUser+`WHERE id = ? LIMIT 1`, id)

	rec, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").
			With("id", id).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_GET_BY_ID_FAILED").
			With("operation", "get user by id").
			With("id", id).
			Wrap(err)
	}
	return rec, nil
}

// UpdateLastLogin sets the last successful login time.
func (s *UserStore) UpdateLastLogin(ctx context.Context, id int64, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `UPDATE holding_users SET last_login_at = ? WHERE id = ?`,
		at.UTC().Format(timeLayout), id)
	if err != nil {
		return oops.Code("USER_UPDATE_LAST_LOGIN_FAILED").
			With("operation", "update last login").
			With("id", id).
			Wrap(err)
	}
	return requireRow(res, id)
}

// UpdatePasswordHash replaces the stored password hash.
func (s *UserStore) UpdatePasswordHash(ctx context.Context, id int64, hash string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE holding_users SET password_hash = ? WHERE id = ?`, hash, id)
	if err != nil {
		return oops.Code("USER_UPDATE_PASSWORD_FAILED").
			With("operation", "update password hash").
			With("id", id).
			Wrap(err)
	}
	return requireRow(res, id)
}

// CreateUser stores a new account.
func (s *UserStore) CreateUser(ctx context.Context, user auth.NewUser) (*auth.UserRecord, error) {
	var name sql.NullString
	if user.DisplayName != "" {
		name = sql.NullString{String: user.DisplayName, Valid: true}
	}
	var hash sql.NullString
	if user.PasswordHash != nil {
		hash = sql.NullString{String: *user.PasswordHash, Valid: true}
	}

	row := s.db.QueryRowContext(ctx, `
		INSERT INTO holding_users (full_name, login, password_hash)
		VALUES (?, ?, ?)
		RETURNING id, full_name, login, password_hash, last_login_at
	`, name, user.Login, hash)

	rec, err := scanUser(row)
	if err != nil {
		var sqliteErr *msqlite.Error
		if errors.As(err, &sqliteErr) && sqliteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE {
			return nil, oops.Code("USER_ALREADY_EXISTS").
				With("login", user.Login).
				Wrap(auth.ErrAlreadyExists)
		}
		return nil, oops.Code("USER_CREATE_FAILED").
			With("operation", "insert user").
			With("login", user.Login).
			Wrap(err)
	}
	return rec, nil
}

func requireRow(res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return oops.Code("USER_UPDATE_FAILED").With("operation", "rows affected").With("id", id).Wrap(err)
	}
	if n == 0 {
		return oops.Code("USER_NOT_FOUND").With("id", id).Wrap(auth.ErrNotFound)
	}
	return nil
}

func scanUser(row *sql.Row) (*auth.UserRecord, error) {
	var (
		rec       auth.UserRecord
		name      sql.NullString
		hash      sql.NullString
		lastLogin sql.NullString
	)
	if err := row.Scan(&rec.ID, &name, &rec.Login, &hash, &lastLogin); err != nil {
		return nil, err //nolint:wrapcheck // callers wrap with operation context
	}
	rec.DisplayName = name.String
	if hash.Valid {
		rec.PasswordHash = &hash.String
	}
	if lastLogin.Valid && lastLogin.String != "" {
		at, err := parseTime(lastLogin.String)
		if err != nil {
			return nil, oops.Code("USER_CORRUPT_ROW").
				With("id", rec.ID).
				With("last_login_at", lastLogin.String).
				Wrap(err)
		}
		rec.LastLoginAt = &at
	}
	return &rec, nil
}

func parseTime(s string) (time.Time, error) {
	at, err := time.Parse(time.RFC3339Nano, s)
	if err == nil {
		return at.UTC(), nil
	}
	at, legacyErr := time.Parse(legacyTimeLayout, s)
	if legacyErr == nil {
		return at.UTC(), nil
	}
	return time.Time{}, err //nolint:wrapcheck // wrapped by scanUser
}

// Compile-time interface checks.
var (
	_ auth.UserStore   = (*UserStore)(nil)
	_ auth.Provisioner = (*UserStore)(nil)
)
