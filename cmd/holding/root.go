// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Holding Console Contributors

package main

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/holding-console/holding/internal/config"
	"github.com/holding-console/holding/internal/logging"
)

const serviceName = "holding"

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the holding CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "holding",
		Short: "holding - credential service for the operations console",
		Long: `holding serves the login and password-change API of the holding
operations console, backed by a SQLite file or a PostgreSQL database.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (default: $XDG_CONFIG_HOME/holding/config.yaml)")
	config.RegisterLogFlags(cmd.PersistentFlags())

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewSeedCmd())
	cmd.AddCommand(NewHashCmd())
	cmd.AddCommand(NewConfigCmd())

	return cmd
}

// loadConfig reads the layered configuration for cmd.
func loadConfig(cmd *cobra.Command) (*config.Loaded, error) {
	//nolint:wrapcheck // config errors carry their own codes
	return config.Load(config.Options{Path: configFile, Flags: cmd.Flags()})
}

// setupLogging installs the process logger described by cfg. The returned
// closer flushes the log file, if any.
func setupLogging(cfg config.LogConfig) (io.Closer, error) {
	//nolint:wrapcheck // logging errors carry their own codes
	return logging.SetDefault(serviceName, version, logging.Options{
		Format:     cfg.Format,
		Level:      cfg.Level,
		File:       cfg.File,
		MaxSizeMB:  cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAgeDays: cfg.MaxAgeDays,
	})
}
