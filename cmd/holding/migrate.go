// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Holding Console Contributors

package main

import (
	"context"
	"strconv"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holding-console/holding/internal/config"
	"github.com/holding-console/holding/internal/store"
)

// migrator wraps the methods used from store.Migrator.
type migrator interface {
	Up() error
	Down() error
	Steps(n int) error
	Version() (uint, bool, error)
	Force(version int) error
	PendingMigrations() ([]uint, error)
	AppliedMigrations() ([]uint, error)
	Driver() string
	Close() error
}

// openMigrator prepares migrations for the configured store. A SQLite file
// and its directory are created when missing.
func openMigrator(ctx context.Context, cfg config.StoreConfig) (migrator, error) {
	if cfg.Driver == store.DriverSQLite {
		db, err := store.OpenSQLite(ctx, cfg.SQLitePath, true)
		if err != nil {
			return nil, err //nolint:wrapcheck // store errors carry their own codes
		}
		if err := db.Close(); err != nil {
			return nil, oops.Code("DB_CLOSE_FAILED").Wrap(err)
		}
	}
	//nolint:wrapcheck // store errors carry their own codes
	return store.NewMigrator(cfg.Driver, migrationTarget(cfg))
}

// NewMigrateCmd creates the migrate subcommand.
func NewMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage credential store schema migrations",
		Long: `Apply schema migrations to the configured credential store.
Without a subcommand all pending migrations are applied. A missing SQLite
file is created.`,
		RunE: runMigrateSub(migrateUp),
	}

	config.RegisterStoreFlags(cmd.PersistentFlags())

	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		RunE:  runMigrateSub(migrateDown),
	}
	down.Flags().Int("steps", 1, "number of migrations to roll back (0 = all)")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			RunE:  runMigrateSub(migrateUp),
		},
		down,
		&cobra.Command{
			Use:   "status",
			Short: "Show the applied version and pending migrations",
			RunE:  runMigrateSub(migrateStatus),
		},
		&cobra.Command{
			Use:   "force VERSION",
			Short: "Set the recorded version without running migrations",
			Long: `Set the recorded schema version and clear the dirty flag. Use it to
recover after a failed migration has been repaired by hand.`,
			Args: cobra.ExactArgs(1),
			RunE: runMigrateSub(migrateForce),
		},
	)

	return cmd
}

type migrateAction func(cmd *cobra.Command, args []string, m migrator) error

func runMigrateSub(action migrateAction) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		loaded, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		closer, err := setupLogging(loaded.Log)
		if err != nil {
			return err
		}
		defer func() { _ = closer.Close() }()

		m, err := openMigrator(cmd.Context(), loaded.Store)
		if err != nil {
			return err
		}
		defer func() { _ = m.Close() }()

		return action(cmd, args, m)
	}
}

func migrateUp(cmd *cobra.Command, _ []string, m migrator) error {
	pending, err := m.PendingMigrations()
	if err != nil {
		return err //nolint:wrapcheck // store errors carry their own codes
	}
	if len(pending) == 0 {
		cmd.Println("No pending migrations")
		return nil
	}

	cmd.Printf("Applying %d migration(s) to %s...\n", len(pending), m.Driver())
	if err := m.Up(); err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "up").Wrap(err)
	}
	for _, v := range pending {
		name, _ := store.MigrationName(m.Driver(), v) //nolint:errcheck // name is informational
		cmd.Printf("  applied %s\n", orVersion(name, v))
	}
	cmd.Println("Migrations completed successfully")
	return nil
}

func migrateDown(cmd *cobra.Command, _ []string, m migrator) error {
	steps, err := cmd.Flags().GetInt("steps")
	if err != nil {
		return oops.Code("INVALID_FLAG").Wrap(err)
	}
	if steps < 0 {
		return oops.Code("INVALID_FLAG").With("steps", steps).Errorf("steps must not be negative")
	}

	if steps == 0 {
		err = m.Down()
	} else {
		err = m.Steps(-steps)
	}
	if err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "down").With("steps", steps).Wrap(err)
	}

	version, _, err := m.Version()
	if err != nil {
		return err //nolint:wrapcheck // store errors carry their own codes
	}
	cmd.Printf("Rolled back; schema version is now %d\n", version)
	return nil
}

func migrateStatus(cmd *cobra.Command, _ []string, m migrator) error {
	version, dirty, err := m.Version()
	if err != nil {
		return err //nolint:wrapcheck // store errors carry their own codes
	}
	applied, err := m.AppliedMigrations()
	if err != nil {
		return err //nolint:wrapcheck // store errors carry their own codes
	}
	pending, err := m.PendingMigrations()
	if err != nil {
		return err //nolint:wrapcheck // store errors carry their own codes
	}

	cmd.Printf("Driver: %s\n", m.Driver())
	cmd.Printf("Version: %d\n", version)
	if dirty {
		cmd.Println("Dirty: true (repair the schema, then run 'holding migrate force VERSION')")
	}
	cmd.Printf("Applied: %d\n", len(applied))
	if len(pending) == 0 {
		cmd.Println("Pending: none")
		return nil
	}
	cmd.Println("Pending:")
	for _, v := range pending {
		name, _ := store.MigrationName(m.Driver(), v) //nolint:errcheck // name is informational
		cmd.Printf("  %s\n", orVersion(name, v))
	}
	return nil
}

func migrateForce(cmd *cobra.Command, args []string, m migrator) error {
	version, err := parseForceVersion(args[0])
	if err != nil {
		return err
	}
	if err := m.Force(version); err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "force").With("version", version).Wrap(err)
	}
	cmd.Printf("Forced schema version to %d\n", version)
	return nil
}

// parseForceVersion parses a non-negative version argument.
func parseForceVersion(arg string) (int, error) {
	v, err := strconv.Atoi(strings.TrimSpace(arg))
	if err != nil {
		return 0, oops.Code("INVALID_VERSION").With("input", arg).Wrap(err)
	}
	if v < 0 {
		return 0, oops.Code("INVALID_VERSION").With("input", arg).Errorf("version must be non-negative")
	}
	return v, nil
}

func orVersion(name string, v uint) string {
	if name != "" {
		return name
	}
	return strconv.FormatUint(uint64(v), 10)
}
