// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Holding Console Contributors

package main

import (
	"context"
	"log/slog"

	"github.com/samber/oops"

	"github.com/holding-console/holding/internal/auth"
	"github.com/holding-console/holding/internal/auth/postgres"
	"github.com/holding-console/holding/internal/auth/sqlite"
	"github.com/holding-console/holding/internal/config"
	"github.com/holding-console/holding/internal/store"
)

// Backend is an opened credential store.
type Backend struct {
	Users       auth.UserStore
	Provisioner auth.Provisioner
	// Ping reports whether the store is reachable.
	Ping  func(ctx context.Context) error
	Close func()
}

// openBackend opens the configured store and checks that it is migrated.
// Nothing is created: a missing SQLite file or schema is an error.
func openBackend(ctx context.Context, cfg config.StoreConfig) (*Backend, error) {
	switch cfg.Driver {
	case store.DriverSQLite:
		db, err := store.OpenSQLite(ctx, cfg.SQLitePath, false)
		if err != nil {
			return nil, err //nolint:wrapcheck // store errors carry their own codes
		}
		if err := store.RequireSQLiteSchema(ctx, db); err != nil {
			_ = db.Close()
			return nil, err //nolint:wrapcheck // store errors carry their own codes
		}
		users := sqlite.NewUserStore(db)
		slog.Info("opened credential store", "driver", cfg.Driver, "path", cfg.SQLitePath)
		return &Backend{
			Users:       users,
			Provisioner: users,
			Ping:        db.PingContext,
			Close: func() {
				if err := db.Close(); err != nil {
					slog.Warn("failed to close sqlite database", "error", err)
				}
			},
		}, nil

	case store.DriverPostgres:
		pool, err := store.ConnectPostgres(ctx, cfg.PostgresURL, cfg.ConnectTimeout)
		if err != nil {
			return nil, err //nolint:wrapcheck // store errors carry their own codes
		}
		if err := store.RequirePostgresSchema(ctx, pool); err != nil {
			pool.Close()
			return nil, err //nolint:wrapcheck // store errors carry their own codes
		}
		users := postgres.NewUserStore(pool)
		slog.Info("opened credential store", "driver", cfg.Driver)
		return &Backend{
			Users:       users,
			Provisioner: users,
			Ping:        users.Ping,
			Close:       pool.Close,
		}, nil

	default:
		return nil, oops.Code("UNKNOWN_DRIVER").With("driver", cfg.Driver).Errorf("unsupported store driver %q", cfg.Driver)
	}
}

// migrationTarget returns the migrate target of the configured store.
func migrationTarget(cfg config.StoreConfig) string {
	if cfg.Driver == store.DriverPostgres {
		return cfg.PostgresURL
	}
	return cfg.SQLitePath
}

// newHasher builds the password hasher described by cfg.
func newHasher(cfg config.AuthConfig) (*auth.SchemeHasher, error) {
	opts := []auth.HasherOption{auth.WithLegacyPlaintext(cfg.AllowLegacyPlaintext)}
	if cfg.BcryptCost > 0 {
		opts = append(opts, auth.WithBcryptCost(cfg.BcryptCost))
	}
	//nolint:wrapcheck // hasher errors carry their own codes
	return auth.NewSchemeHasher(cfg.HashScheme, opts...)
}
