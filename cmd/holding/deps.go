// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Holding Console Contributors

package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/holding-console/holding/internal/config"
	"github.com/holding-console/holding/internal/httpapi"
	"github.com/holding-console/holding/internal/observability"
)

// ServeDeps contains injectable dependencies for the serve command.
// All fields with nil values will use their default implementations.
type ServeDeps struct {
	// BackendOpener opens the credential store.
	// Default: openBackend
	BackendOpener func(ctx context.Context, cfg config.StoreConfig) (*Backend, error)

	// APIServerFactory creates the auth API server.
	// Default: httpapi.NewServer
	APIServerFactory func(cfg config.HTTPConfig, handler http.Handler) APIServer

	// ObservabilityServerFactory creates an observability server.
	// Default: observability.NewServer
	ObservabilityServerFactory func(cfg config.MetricsConfig, readinessChecker observability.ReadinessChecker) ObservabilityServer

	// SignalNotifier delivers shutdown signals. The returned func stops delivery.
	// Default: signal.Notify for SIGINT and SIGTERM
	SignalNotifier func() (<-chan os.Signal, func())
}

// APIServer wraps the methods used from httpapi.Server.
type APIServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
}

// ObservabilityServer wraps the methods used from observability.Server.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
	Metrics() *observability.Metrics
}

func (d *ServeDeps) withDefaults() *ServeDeps {
	out := ServeDeps{}
	if d != nil {
		out = *d
	}
	if out.BackendOpener == nil {
		out.BackendOpener = openBackend
	}
	if out.APIServerFactory == nil {
		out.APIServerFactory = func(cfg config.HTTPConfig, handler http.Handler) APIServer {
			return httpapi.NewServer(cfg, handler)
		}
	}
	if out.ObservabilityServerFactory == nil {
		out.ObservabilityServerFactory = func(cfg config.MetricsConfig, checker observability.ReadinessChecker) ObservabilityServer {
			return observability.NewServer(cfg.Addr, checker,
				observability.WithReadinessTimeout(cfg.ReadinessTimeout),
				observability.WithLogger(slog.Default().With("component", "observability")))
		}
	}
	if out.SignalNotifier == nil {
		out.SignalNotifier = func() (<-chan os.Signal, func()) {
			ch := make(chan os.Signal, 1)
			signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
			return ch, func() { signal.Stop(ch) }
		}
	}
	return &out
}
