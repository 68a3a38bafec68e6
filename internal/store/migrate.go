// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Holding Console Contributors

package store

import (
	"embed"
	"errors"
	"io/fs"
	"log/slog"
	"maps"
	"path"
	"slices"
	"strconv"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	// Register database drivers for golang-migrate.
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/samber/oops"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrationsFS embed.FS

// Supported store drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// migrateIface abstracts golang-migrate so the Migrator can be tested
// without a database.
type migrateIface interface {
	Up() error
	Down() error
	Steps(n int) error
	Version() (version uint, dirty bool, err error)
	Force(version int) error
	Close() (source error, database error)
}

// Migrator wraps golang-migrate for schema management of the user table.
type Migrator struct {
	m      migrateIface
	driver string
}

// NewMigrator creates a Migrator for the given driver.
// For postgres, target is a connection URL (postgres://, postgresql:// or pgx5://).
// For sqlite, target is a filesystem path; the file is created if missing.
func NewMigrator(driver, target string) (*Migrator, error) {
	dir, err := migrationsDir(driver)
	if err != nil {
		return nil, err
	}

	migrateURL, err := migrationURL(driver, target)
	if err != nil {
		return nil, err
	}

	source, err := iofs.New(migrationsFS, dir)
	if err != nil {
		return nil, oops.Code("MIGRATION_SOURCE_FAILED").With("operation", "create migration source").Wrap(err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, migrateURL)
	if err != nil {
		_ = source.Close() //nolint:errcheck // init error takes precedence
		return nil, oops.Code("MIGRATION_INIT_FAILED").
			With("operation", "initialize migrator").
			With("driver", driver).
			Wrap(err)
	}

	return &Migrator{m: m, driver: driver}, nil
}

func migrationsDir(driver string) (string, error) {
	switch driver {
	case DriverPostgres, DriverSQLite:
		return path.Join("migrations", driver), nil
	default:
		return "", oops.Code("UNKNOWN_DRIVER").With("driver", driver).Errorf("unsupported store driver %q", driver)
	}
}

// migrationURL converts a store target into the URL form golang-migrate expects.
func migrationURL(driver, target string) (string, error) {
	if target == "" {
		return "", oops.Code("MIGRATION_INIT_FAILED").With("driver", driver).Errorf("migration target is required")
	}
	if driver == DriverSQLite {
		if strings.HasPrefix(target, "sqlite://") {
			return target, nil
		}
		return "sqlite://" + target, nil
	}
	if rest, found := strings.CutPrefix(target, "postgres://"); found {
		return "pgx5://" + rest, nil
	}
	if rest, found := strings.CutPrefix(target, "postgresql://"); found {
		return "pgx5://" + rest, nil
	}
	return target, nil
}

// Driver reports which store driver the migrator targets.
func (m *Migrator) Driver() string {
	return m.driver
}

// Up applies all pending migrations.
func (m *Migrator) Up() error {
	if err := m.m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return oops.Code("MIGRATION_UP_FAILED").Wrap(err)
	}
	return nil
}

// Down rolls back every migration. This drops the user table.
func (m *Migrator) Down() error {
	if err := m.m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return oops.Code("MIGRATION_DOWN_FAILED").Wrap(err)
	}
	return nil
}

// Steps applies n migrations. Negative n migrates down.
func (m *Migrator) Steps(n int) error {
	if err := m.m.Steps(n); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return oops.Code("MIGRATION_STEPS_FAILED").With("steps", n).Wrap(err)
	}
	return nil
}

// Version returns the current migration version and dirty state.
// Version 0 means nothing has been applied.
func (m *Migrator) Version() (version uint, dirty bool, err error) {
	version, dirty, err = m.m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, oops.Code("MIGRATION_VERSION_FAILED").Wrap(err)
	}
	return version, dirty, nil
}

// Force sets the migration version without running migrations.
// Use only to recover from a dirty state after fixing the schema by hand.
func (m *Migrator) Force(version int) error {
	if version < 0 {
		return oops.Code("INVALID_VERSION").Errorf("version must be non-negative, got %d", version)
	}
	if err := m.m.Force(version); err != nil {
		return oops.Code("MIGRATION_FORCE_FAILED").With("version", version).Wrap(err)
	}
	return nil
}

// Close releases resources.
func (m *Migrator) Close() error {
	srcErr, dbErr := m.m.Close()
	switch {
	case srcErr != nil && dbErr != nil:
		return oops.Code("MIGRATION_CLOSE_FAILED").
			With("component", "both").
			Errorf("source: %v; database: %v", srcErr, dbErr)
	case srcErr != nil:
		return oops.Code("MIGRATION_CLOSE_FAILED").With("component", "source").Wrap(srcErr)
	case dbErr != nil:
		return oops.Code("MIGRATION_CLOSE_FAILED").With("component", "database").Wrap(dbErr)
	}
	return nil
}

// PendingMigrations returns the versions Up would apply, ascending.
func (m *Migrator) PendingMigrations() ([]uint, error) {
	_, pending, err := m.partition()
	if err != nil {
		return nil, oops.With("operation", "get pending migrations").Wrap(err)
	}
	return pending, nil
}

// AppliedMigrations returns the versions already applied, ascending.
func (m *Migrator) AppliedMigrations() ([]uint, error) {
	applied, _, err := m.partition()
	if err != nil {
		return nil, oops.With("operation", "get applied migrations").Wrap(err)
	}
	return applied, nil
}

// partition splits the embedded versions around the current one.
func (m *Migrator) partition() (applied, pending []uint, err error) {
	current, _, err := m.Version()
	if err != nil {
		return nil, nil, err
	}
	index, err := indexMigrations(migrationsFS, m.driver)
	if err != nil {
		return nil, nil, err
	}
	for _, v := range index.versions() {
		if v <= current {
			applied = append(applied, v)
		} else {
			pending = append(pending, v)
		}
	}
	return applied, pending, nil
}

// MigrationName returns the NNNNNN_name form of a migration version for the
// driver, or "" when the version is unknown.
func MigrationName(driver string, version uint) (string, error) {
	index, err := indexMigrations(migrationsFS, driver)
	if err != nil {
		return "", err
	}
	return index[version], nil
}

// migrationIndex maps an up-migration version to its NNNNNN_name stem.
type migrationIndex map[uint]string

func (idx migrationIndex) versions() []uint {
	return slices.Sorted(maps.Keys(idx))
}

// indexMigrations reads the up-migrations embedded for a driver.
// Files that do not follow NNNNNN_name.up.sql are skipped with a warning.
func indexMigrations(fsys fs.FS, driver string) (migrationIndex, error) {
	dir, err := migrationsDir(driver)
	if err != nil {
		return nil, err
	}
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, oops.Code("MIGRATION_LIST_FAILED").With("driver", driver).Wrap(err)
	}

	index := make(migrationIndex)
	for _, entry := range entries {
		stem, ok := strings.CutSuffix(entry.Name(), ".up.sql")
		if !ok {
			continue
		}
		prefix, _, _ := strings.Cut(stem, "_")
		version, err := strconv.ParseUint(prefix, 10, 64)
		if err != nil || len(prefix) != 6 {
			slog.Warn("skipping migration with unexpected file name",
				"driver", driver,
				"filename", entry.Name(),
				"expected_format", "NNNNNN_name.up.sql")
			continue
		}
		index[uint(version)] = stem
	}
	return index, nil
}
