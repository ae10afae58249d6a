// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"net/http"

	"github.com/holomush/warden/internal/auth"
	"github.com/holomush/warden/internal/broadcast"
	"github.com/holomush/warden/internal/cache"
	"github.com/holomush/warden/internal/observability"
)

// ServeDeps contains injectable dependencies for the serve command.
// All fields with nil values will use their default implementations.
type ServeDeps struct {
	// BackendFactory connects the session cache and the event bus.
	// Default: openBackend
	BackendFactory func(ctx context.Context, cfg *Config, metrics *broadcast.Metrics) (*Backend, error)

	// DirectoryFactory opens the user directory.
	// Default: openDirectory
	DirectoryFactory func(ctx context.Context, cfg DatabaseConfig) (auth.UserDirectory, func(), error)

	// ObservabilityServerFactory creates an observability server.
	// Default: observability.NewServer
	ObservabilityServerFactory func(addr string, readinessChecker observability.ReadinessChecker) ObservabilityServer

	// HTTPServerFactory creates the API server.
	// Default: httpapi.NewServer
	HTTPServerFactory func(addr string, handler http.Handler) HTTPServer
}

// Backend bundles the shared session state of a deployment.
type Backend struct {
	Cache      cache.Store
	Publisher  auth.Broadcaster
	Subscriber broadcast.Subscriber
	Close      func()
}

// ObservabilityServer interface wraps the methods used from observability.Server.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
	Metrics() *observability.Metrics
}

// HTTPServer interface wraps the methods used from httpapi.Server.
type HTTPServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
}

// AutoMigrator is the subset of store.Migrator used at startup.
type AutoMigrator interface {
	Up() error
	Close() error
}
