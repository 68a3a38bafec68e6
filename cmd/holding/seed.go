// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Holding Console Contributors

package main

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holding-console/holding/internal/auth"
	"github.com/holding-console/holding/internal/config"
)

// Default timeout for seed command.
const defaultSeedTimeout = 30 * time.Second

// defaultSeedLogin is the operator account of a fresh installation.
const defaultSeedLogin = "operator@holding"

// seedConfig holds configuration for the seed command.
type seedConfig struct {
	login   string
	name    string
	timeout time.Duration
}

// NewSeedCmd creates the seed subcommand.
func NewSeedCmd() *cobra.Command {
	cfg := &seedConfig{}

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Provision an operator account",
		Long: `Creates an operator account with no password. Until the operator
changes it, the account accepts its own login as the password.
This command is idempotent - an existing login is left untouched.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(cmd, args, cfg)
		},
	}

	cmd.Flags().StringVar(&cfg.login, "login", defaultSeedLogin, "login of the account")
	cmd.Flags().StringVar(&cfg.name, "name", "", "display name (default: placeholder)")
	cmd.Flags().DurationVar(&cfg.timeout, "timeout", defaultSeedTimeout, "timeout for database operations (e.g., 30s, 1m)")
	config.RegisterStoreFlags(cmd.Flags())

	return cmd
}

func runSeed(cmd *cobra.Command, _ []string, cfg *seedConfig) error {
	if err := auth.ValidateLogin(cfg.login); err != nil {
		return err //nolint:wrapcheck // validation errors carry their own codes
	}

	loaded, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	closer, err := setupLogging(loaded.Log)
	if err != nil {
		return err
	}
	defer func() { _ = closer.Close() }()

	// Use cmd.Context() to respect SIGINT/SIGTERM signals
	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.timeout)
	defer cancel()

	backend, err := openBackend(ctx, loaded.Store)
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").With("operation", "open credential store").Wrap(err)
	}
	defer backend.Close()

	rec, err := backend.Provisioner.CreateUser(ctx, auth.NewUser{
		Login:       cfg.login,
		DisplayName: cfg.name,
	})
	if errors.Is(err, auth.ErrAlreadyExists) {
		cmd.Printf("Account %s already exists, skipping seed\n", cfg.login)
		slog.Info("account already seeded", "login", cfg.login)
		return nil
	}
	if err != nil {
		return oops.Code("SEED_FAILED").With("operation", "create account").Wrap(err)
	}

	cmd.Printf("Created account %s (id %d); its initial password is its login\n", rec.Login, rec.ID)
	slog.Info("created account", "id", rec.ID, "login", rec.Login)
	return nil
}
