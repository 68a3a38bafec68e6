// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Holding Console Contributors

package main

import (
	"context"
	"log/slog"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holding-console/holding/internal/auth"
	"github.com/holding-console/holding/internal/config"
	"github.com/holding-console/holding/internal/httpapi"
	"github.com/holding-console/holding/pkg/errutil"
)

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the auth API",
		Long: `Run the login and password-change API. The credential store must
already exist and be migrated; an unreachable store stops startup.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			loaded, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			closer, err := setupLogging(loaded.Log)
			if err != nil {
				return err
			}
			defer func() { _ = closer.Close() }()

			if err := runServeWithDeps(cmd.Context(), cmd, loaded, nil); err != nil {
				errutil.LogError(slog.Default(), "serve failed", err)
				return err
			}
			return nil
		},
	}

	config.RegisterStoreFlags(cmd.Flags())
	config.RegisterServeFlags(cmd.Flags())

	return cmd
}

// runServeWithDeps runs the API until a signal arrives, ctx is cancelled or
// a server fails. If deps is nil, default implementations are used.
func runServeWithDeps(ctx context.Context, cmd *cobra.Command, loaded *config.Loaded, deps *ServeDeps) error {
	deps = deps.withDefaults()
	cfg := loaded.Config

	slog.Info("starting holding",
		"addr", cfg.HTTP.Addr,
		"store", cfg.Store.Driver,
		"config", loaded.Source,
	)

	backend, err := deps.BackendOpener(ctx, cfg.Store)
	if err != nil {
		return oops.Code("STORE_UNAVAILABLE").With("driver", cfg.Store.Driver).Wrap(err)
	}
	defer backend.Close()

	hasher, err := newHasher(cfg.Auth)
	if err != nil {
		return err
	}
	svc, err := auth.NewCredentialService(backend.Users, hasher,
		auth.WithLogger(slog.Default().With("component", "auth")),
		auth.WithPolicy(auth.Policy{
			MinPasswordLength:   cfg.Auth.MinPasswordLength,
			AllowBootstrapLogin: cfg.Auth.AllowBootstrapLogin,
			UpgradeOnLogin:      cfg.Auth.UpgradeOnLogin,
			DefaultDisplayName:  cfg.Auth.DefaultDisplayName,
		}),
	)
	if err != nil {
		return oops.With("operation", "create credential service").Wrap(err)
	}

	// Metrics are recorded even when the endpoint is disabled.
	obsServer := deps.ObservabilityServerFactory(cfg.Metrics, backend.Ping)

	handler, err := httpapi.NewHandler(svc,
		httpapi.WithMaxBodyBytes(cfg.HTTP.MaxBodyBytes),
		httpapi.WithAllowedOrigins(cfg.HTTP.CORS.AllowedOrigins),
		httpapi.WithLogger(slog.Default().With("component", "httpapi")),
		httpapi.WithRecorder(obsServer.Metrics()),
	)
	if err != nil {
		return oops.With("operation", "create api handler").Wrap(err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	apiServer := deps.APIServerFactory(cfg.HTTP, handler)
	apiErrCh, err := apiServer.Start()
	if err != nil {
		return oops.With("operation", "start api server").Wrap(err)
	}
	go monitorServerErrors(ctx, cancel, apiErrCh, "api")

	metricsEnabled := cfg.Metrics.Addr != ""
	if metricsEnabled {
		obsErrCh, err := obsServer.Start()
		if err != nil {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
			defer shutdownCancel()
			if stopErr := apiServer.Stop(shutdownCtx); stopErr != nil {
				slog.Warn("failed to stop api server during cleanup", "error", stopErr)
			}
			return oops.With("operation", "start observability server").Wrap(err)
		}
		go monitorServerErrors(ctx, cancel, obsErrCh, "observability")
	}

	sigCh, stopSignals := deps.SignalNotifier()
	defer stopSignals()

	cmd.Println("holding auth API listening on " + apiServer.Addr())
	slog.Info("holding ready", "addr", apiServer.Addr())

	select {
	case sig := <-sigCh:
		slog.Info("received shutdown signal", "signal", sig)
	case <-ctx.Done():
		slog.Info("context cancelled, shutting down")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer shutdownCancel()

	if err := apiServer.Stop(shutdownCtx); err != nil {
		slog.Warn("error stopping api server", "error", err)
	}
	if metricsEnabled {
		if err := obsServer.Stop(shutdownCtx); err != nil {
			slog.Warn("error stopping observability server", "error", err)
		}
	}

	slog.Info("shutdown complete")
	return nil
}

// monitorServerErrors cancels ctx when a server reports an error. It exits
// when an error arrives, the channel closes, or ctx is done.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			slog.Error("server error, triggering shutdown",
				"server", serverName,
				"error", err,
			)
			cancel()
		}
	case <-ctx.Done():
	}
}
