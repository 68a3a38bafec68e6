// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Holding Console Contributors

package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/samber/oops"
	msqlite "modernc.org/sqlite"
)

// ErrStoreMissing is returned when the SQLite database file does not exist.
var ErrStoreMissing = errors.New("database file not found")

// ErrSchemaMissing is returned when the user table has not been created.
var ErrSchemaMissing = errors.New("user table not found")

// LowerFunc is a Unicode-aware lower() available on every SQLite
// connection opened by this process. SQLite's built-in lower() folds ASCII
// only; the login index and lookups use this one instead.
const LowerFunc = "holding_lower"

func init() {
	msqlite.MustRegisterDeterministicScalarFunction(LowerFunc, 1, foldCase)
}

func foldCase(_ *msqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	switch v := args[0].(type) {
	case string:
		return strings.ToLower(v), nil
	case []byte:
		return strings.ToLower(string(v)), nil
	default:
		return v, nil
	}
}

// sqliteBusyTimeout is how long a writer waits on a locked database.
const sqliteBusyTimeout = 5 * time.Second

// OpenSQLite opens the SQLite database at path.
//
// Unless create is set, the file must already exist: the server never
// creates an empty credential store on its own. The migrate and seed
// commands pass create=true.
func OpenSQLite(ctx context.Context, path string, create bool) (*sql.DB, error) {
	if path == "" {
		return nil, oops.Code("DB_CONFIG_INVALID").Errorf("sqlite path is required")
	}

	if create {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, oops.Code("DB_OPEN_FAILED").With("path", path).With("operation", "create directory").Wrap(err)
			}
		}
	} else {
		if _, err := os.Stat(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, oops.Code("DB_NOT_FOUND").
					With("path", path).
					Hint("set HOLDING_DB_PATH to an existing database or run `holding migrate`").
					Wrap(ErrStoreMissing)
			}
			return nil, oops.Code("DB_OPEN_FAILED").With("path", path).Wrap(err)
		}
	}

	db, err := sql.Open("sqlite", sqliteDSN(path, create))
	if err != nil {
		return nil, oops.Code("DB_OPEN_FAILED").With("path", path).Wrap(err)
	}
	// SQLite serializes writers; a single connection avoids SQLITE_BUSY churn.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, oops.Code("DB_OPEN_FAILED").With("path", path).With("operation", "ping").Wrap(err)
	}
	return db, nil
}

func sqliteDSN(path string, create bool) string {
	q := url.Values{}
	if create {
		q.Set("mode", "rwc")
	} else {
		q.Set("mode", "rw")
	}
	q.Add("_pragma", "busy_timeout("+strconv.FormatInt(sqliteBusyTimeout.Milliseconds(), 10)+")")
	u := url.URL{Scheme: "file", Opaque: escapePath(path), RawQuery: q.Encode()}
	return u.String()
}

// escapePath percent-encodes the characters that would end or corrupt the
// path part of a file: URI, keeping separators readable.
func escapePath(path string) string {
	var b strings.Builder
	for _, r := range filepath.ToSlash(path) {
		switch r {
		case '%', '?', '#':
			b.WriteString(url.QueryEscape(string(r)))
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// RequireSQLiteSchema fails when the user table is missing.
func RequireSQLiteSchema(ctx context.Context, db *sql.DB) error {
	var one int
	err := db.QueryRowContext(ctx,
		`SELECT 1 FROM sqlite_master WHERE type = 'table' AND name = ?`, UsersTable).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return schemaMissing(DriverSQLite)
	}
	if err != nil {
		return oops.Code("DB_SCHEMA_CHECK_FAILED").With("table", UsersTable).Wrap(err)
	}
	return nil
}
