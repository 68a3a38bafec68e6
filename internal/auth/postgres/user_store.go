// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Holding Console Contributors

// Package postgres implements auth.UserStore on PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/samber/oops"

	"github.com/holding-console/holding/internal/auth"
)

// poolIface is the subset of *pgxpool.Pool used by UserStore.
// pgxmock.PgxPoolIface satisfies it as well.
type poolIface interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

// UserStore implements auth.UserStore using PostgreSQL.
type UserStore struct {
	pool poolIface
}

// NewUserStore creates a new UserStore.
func NewUserStore(pool poolIface) *UserStore {
	return &UserStore{pool: pool}
}

const selectUser = `
	SELECT id, full_name, login, password_hash, last_login_at
	FROM holding_users
`

// FindByLogin retrieves a record by login (case-insensitive).
func (s *UserStore) FindByLogin(ctx context.Context, login string) (*auth.UserRecord, error) {
	row := s.pool.QueryRow(ctx, selectUser+`WHERE LOWER(login) = LOWER($1) LIMIT 1`, login)

	rec, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
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
	row := s.pool.QueryRow(ctx, selectUser+`WHERE id = $1`, id)

	rec, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
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
	tag, err := s.pool.Exec(ctx, `UPDATE holding_users SET last_login_at = $2 WHERE id = $1`, id, at.UTC())
	if err != nil {
		return oops.Code("USER_UPDATE_LAST_LOGIN_FAILED").
			With("operation", "update last login").
			With("id", id).
			Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return oops.Code("USER_NOT_FOUND").With("id", id).Wrap(auth.ErrNotFound)
	}
	return nil
}

// UpdatePasswordHash replaces the stored password hash.
func (s *UserStore) UpdatePasswordHash(ctx context.Context, id int64, hash string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE holding_users SET password_hash = $2 WHERE id = $1`, id, hash)
	if err != nil {
		return oops.Code("USER_UPDATE_PASSWORD_FAILED").
			With("operation", "update password hash").
			With("id", id).
			Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return oops.Code("USER_NOT_FOUND").With("id", id).Wrap(auth.ErrNotFound)
	}
	return nil
}

// CreateUser stores a new account.
func (s *UserStore) CreateUser(ctx context.Context, user auth.NewUser) (*auth.UserRecord, error) {
	var name *string
	if user.DisplayName != "" {
		name = &user.DisplayName
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO holding_users (full_name, login, password_hash)
		VALUES ($1, $2, $3)
		RETURNING id, full_name, login, password_hash, last_login_at
	`, name, user.Login, user.PasswordHash)

	rec, err := scanUser(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
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

// Ping checks connectivity.
func (s *UserStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return oops.Code("USER_STORE_PING_FAILED").Wrap(err)
	}
	return nil
}

func scanUser(row pgx.Row) (*auth.UserRecord, error) {
	var (
		rec       auth.UserRecord
		name      *string
		lastLogin *time.Time
	)
	if err := row.Scan(&rec.ID, &name, &rec.Login, &rec.PasswordHash, &lastLogin); err != nil {
		return nil, err //nolint:wrapcheck // callers wrap with operation context
	}
	if name != nil {
		rec.DisplayName = *name
	}
	if lastLogin != nil {
		utc := lastLogin.UTC()
		rec.LastLoginAt = &utc
	}
	return &rec, nil
}

// Compile-time interface checks.
var (
	_ auth.UserStore   = (*UserStore)(nil)
	_ auth.Provisioner = (*UserStore)(nil)
)
