// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Holding Console Contributors

// Package store opens the databases behind the credential store and manages
// their schema.
package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// DefaultConnectTimeout bounds the startup retry loop when none is configured.
const DefaultConnectTimeout = 30 * time.Second

// UsersTable is the table holding operator accounts.
const UsersTable = "holding_users"

// ConnectPostgres opens a pgx pool and waits until the server answers a ping.
// Connection attempts back off on a fibonacci schedule for at most timeout.
func ConnectPostgres(ctx context.Context, dsn string, timeout time.Duration) (*pgxpool.Pool, error) {
	if timeout <= 0 {
		timeout = DefaultConnectTimeout
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, oops.Code("DB_CONFIG_INVALID").With("operation", "parse database url").Wrap(err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, oops.Code("DB_CONNECT_FAILED").With("operation", "create pool").Wrap(err)
	}

	backoff := retry.NewFibonacci(250 * time.Millisecond)
	backoff = retry.WithCappedDuration(5*time.Second, backoff)
	backoff = retry.WithMaxDuration(timeout, backoff)

	attempt := 0
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		if pingErr := pool.Ping(ctx); pingErr != nil {
			slog.WarnContext(ctx, "database not reachable, retrying",
				"attempt", attempt,
				"host", cfg.ConnConfig.Host,
				"error", pingErr)
			return retry.RetryableError(pingErr)
		}
		return nil
	})
	if err != nil {
		pool.Close()
		return nil, oops.Code("DB_CONNECT_FAILED").
			With("operation", "ping database").
			With("attempts", attempt).
			With("host", cfg.ConnConfig.Host).
			Wrap(err)
	}
	return pool, nil
}

// RequirePostgresSchema fails when the user table is missing, which means
// migrations have not been applied.
func RequirePostgresSchema(ctx context.Context, pool *pgxpool.Pool) error {
	var exists bool
	err := pool.QueryRow(ctx, `SELECT to_regclass($1) IS NOT NULL`, UsersTable).Scan(&exists)
	if err != nil {
		return oops.Code("DB_SCHEMA_CHECK_FAILED").With("table", UsersTable).Wrap(err)
	}
	if !exists {
		return schemaMissing(DriverPostgres)
	}
	return nil
}

func schemaMissing(driver string) error {
	return oops.Code("DB_SCHEMA_MISSING").
		With("driver", driver).
		With("table", UsersTable).
		Hint("run `holding migrate` before starting the server").
		Wrap(ErrSchemaMissing)
}
