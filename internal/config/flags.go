// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Holding Console Contributors

package config

import "github.com/spf13/pflag"

// RegisterStoreFlags adds the flags selecting the credential store.
// Defaults are shown for help output only; Load ignores flags the user did not set.
func RegisterStoreFlags(fs *pflag.FlagSet) {
	d := Defaults()
	fs.String("store", d.Store.Driver, "credential store driver (sqlite or postgres)")
	fs.String("db-path", d.Store.SQLitePath, "sqlite database file")
	fs.String("database-url", "", "postgres connection URL")
}

// RegisterServeFlags adds the flags of the serve command.
func RegisterServeFlags(fs *pflag.FlagSet) {
	d := Defaults()
	fs.String("addr", d.HTTP.Addr, "auth API listen address")
	fs.String("metrics-addr", "", "metrics/health listen address (empty = disabled)")
	fs.Int64("max-body-size", d.HTTP.MaxBodyBytes, "request body ceiling in bytes")
	fs.String("hash-scheme", d.Auth.HashScheme, "scheme for newly written password hashes")
}

// RegisterLogFlags adds logging flags.
func RegisterLogFlags(fs *pflag.FlagSet) {
	d := Defaults()
	fs.String("log-format", d.Log.Format, "log format (json or text)")
	fs.String("log-level", d.Log.Level, "log level (debug, info, warn, error)")
	fs.String("log-file", "", "also write logs to this file, rotated by size")
}
