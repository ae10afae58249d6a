// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/warden/internal/auth"
	authpg "github.com/holomush/warden/internal/auth/postgres"
	"github.com/holomush/warden/internal/broadcast"
	"github.com/holomush/warden/internal/cache"
	"github.com/holomush/warden/internal/httpapi"
	"github.com/holomush/warden/internal/logging"
	"github.com/holomush/warden/internal/observability"
	"github.com/holomush/warden/internal/presence"
	"github.com/holomush/warden/internal/store"
	"github.com/holomush/warden/internal/token"
)

const shutdownTimeout = 5 * time.Second

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the session authority API",
		Long: `Run the HTTP API together with the presence subscriber and the
metrics/health server. Stops on SIGINT or SIGTERM.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := configFromCommand(cmd)
			if err != nil {
				return err
			}
			return runServeWithDeps(cmd.Context(), cfg, cmd, nil)
		},
	}

	cmd.Flags().String("http-addr", ":8080", "API listen address")
	cmd.Flags().String("metrics-addr", "127.0.0.1:9100", "metrics/health HTTP address (empty = disabled)")
	cmd.Flags().String("log-format", "json", "log format (json or text)")
	cmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
	cmd.Flags().String("cache-backend", backendRedis, "session cache backend (redis or memory)")
	cmd.Flags().String("redis-addr", "localhost:6379", "redis address")
	cmd.Flags().String("database-url", "", "PostgreSQL URL (empty = in-memory users)")

	return cmd
}

// runServeWithDeps runs the service with injectable dependencies.
// If deps is nil, default implementations are used.
func runServeWithDeps(ctx context.Context, cfg *Config, cmd *cobra.Command, deps *ServeDeps) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if deps == nil {
		deps = &ServeDeps{}
	}
	if deps.BackendFactory == nil {
		deps.BackendFactory = openBackend
	}
	if deps.DirectoryFactory == nil {
		deps.DirectoryFactory = openDirectory
	}
	if deps.ObservabilityServerFactory == nil {
		deps.ObservabilityServerFactory = func(addr string, readinessChecker observability.ReadinessChecker) ObservabilityServer {
			return observability.NewServer(addr, readinessChecker)
		}
	}
	if deps.HTTPServerFactory == nil {
		deps.HTTPServerFactory = func(addr string, handler http.Handler) HTTPServer {
			return httpapi.NewServer(addr, handler)
		}
	}

	if err := cfg.ValidateServe(); err != nil {
		return err
	}
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	logger := logging.SetDefault("warden", version, cfg.Log.Format, level)

	logger.Info("starting warden",
		"http_addr", cfg.HTTP.Addr,
		"cache_backend", cfg.Cache.Backend,
		"log_format", cfg.Log.Format,
	)

	tokens, err := token.NewAuthority(token.Config{
		SigningKey: []byte(cfg.Token.Key),
		Issuer:     cfg.Token.Issuer,
		Audience:   cfg.Token.Audience,
		TTL:        cfg.Token.TTL,
	})
	if err != nil {
		return err
	}

	var ready atomic.Bool
	var metrics *observability.Metrics
	var obsServer ObservabilityServer
	if cfg.Metrics.Addr != "" {
		obsServer = deps.ObservabilityServerFactory(cfg.Metrics.Addr, ready.Load)
		metrics = obsServer.Metrics()
	} else {
		metrics = observability.NewMetrics(prometheus.NewRegistry())
	}

	backend, err := deps.BackendFactory(ctx, cfg, metrics.Broadcast)
	if err != nil {
		return err
	}
	defer backend.Close()

	directory, closeDirectory, err := deps.DirectoryFactory(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer closeDirectory()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	registry := presence.NewRegistry(
		presence.WithGauge(metrics.PresenceOnline),
		presence.WithAppliedCounter(metrics.PresenceApplied),
		presence.WithTTL(cfg.Session.TTL),
	)
	// Events published while no subscription was live are lost, so the
	// view is rebuilt from the cache on every (re)subscribe.
	reconcile := broadcast.OnSubscribed(func(ctx context.Context) {
		if recErr := registry.Reconcile(ctx, backend.Cache); recErr != nil {
			logger.Warn("presence reconcile failed", "error", recErr)
			return
		}
		logger.Debug("presence reconciled", "online", registry.Len())
	})

	manager, err := auth.NewManager(auth.Deps{
		Directory:   directory,
		Hasher:      auth.NewArgon2idHasher(),
		Tokens:      tokens,
		Cache:       backend.Cache,
		Broadcaster: backend.Publisher,
	},
		auth.WithSessionTTL(cfg.Session.TTL),
		auth.WithChannel(cfg.Session.Channel),
		auth.WithLogger(logger),
		auth.WithRecorder(metrics),
	)
	if err != nil {
		return err
	}

	handler, err := httpapi.NewHandler(httpapi.Deps{
		Sessions: manager,
		Verifier: tokens,
		Presence: registry,
	}, httpapi.WithLogger(logger), httpapi.WithRequestCounter(metrics.HTTPRequests))
	if err != nil {
		return err
	}
	gin.SetMode(gin.ReleaseMode)

	var subscriberDone sync.WaitGroup
	subscriberDone.Add(1)
	go func() {
		defer subscriberDone.Done()
		if subErr := backend.Subscriber.Subscribe(ctx, cfg.Session.Channel, registry.Apply, reconcile); subErr != nil {
			logger.Error("presence subscriber stopped, triggering shutdown", "error", subErr)
			cancel()
		}
	}()
	defer subscriberDone.Wait()
	defer cancel()

	shutdownCtx := func() (context.Context, context.CancelFunc) {
		return context.WithTimeout(context.Background(), shutdownTimeout)
	}

	if obsServer != nil {
		obsErrChan, startErr := obsServer.Start()
		if startErr != nil {
			return oops.Code("OBSERVABILITY_START_FAILED").With("addr", cfg.Metrics.Addr).Wrap(startErr)
		}
		defer func() {
			sctx, scancel := shutdownCtx()
			defer scancel()
			if stopErr := obsServer.Stop(sctx); stopErr != nil {
				logger.Warn("error stopping observability server", "error", stopErr)
			}
		}()
		go monitorServerErrors(ctx, cancel, obsErrChan, "observability")
	}

	apiServer := deps.HTTPServerFactory(cfg.HTTP.Addr, handler.Router())
	apiErrChan, err := apiServer.Start()
	if err != nil {
		return oops.Code("HTTP_START_FAILED").With("addr", cfg.HTTP.Addr).Wrap(err)
	}
	defer func() {
		sctx, scancel := shutdownCtx()
		defer scancel()
		if stopErr := apiServer.Stop(sctx); stopErr != nil {
			logger.Warn("error stopping http server", "error", stopErr)
		}
	}()
	go monitorServerErrors(ctx, cancel, apiErrChan, "http")

	ready.Store(true)
	if cmd != nil {
		cmd.Println("Warden started")
	}
	logger.Info("warden ready", "http_addr", apiServer.Addr())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", "signal", sig)
	case <-ctx.Done():
		logger.Info("context cancelled, shutting down")
	}
	ready.Store(false)
	return nil
}

// openBackend connects the configured cache and event bus.
func openBackend(ctx context.Context, cfg *Config, metrics *broadcast.Metrics) (*Backend, error) {
	switch cfg.Cache.Backend {
	case backendMemory:
		slog.Warn("memory backend selected; sessions are not shared between instances")
		bus := broadcast.NewLocal(broadcast.WithLocalMetrics(metrics))
		return &Backend{Cache: cache.NewMemory(), Publisher: bus, Subscriber: bus, Close: func() {}}, nil
	case backendRedis:
		client, err := cache.Dial(ctx, cache.RedisOptions{
			Addr:         cfg.Redis.Addr,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PingAttempts: uint64(cfg.Redis.PingAttempts),
		})
		if err != nil {
			return nil, err
		}
		bus := broadcast.NewRedis(client, broadcast.WithRedisMetrics(metrics))
		return &Backend{
			Cache:      cache.NewRedis(client),
			Publisher:  bus,
			Subscriber: bus,
			Close: func() {
				if err := client.Close(); err != nil {
					slog.Debug("error closing redis client", "error", err)
				}
			},
		}, nil
	default:
		return nil, invalid("cache.backend", "unknown cache backend %q", cfg.Cache.Backend)
	}
}

// openDirectory opens the PostgreSQL directory, migrating first when
// enabled. An empty URL selects the in-memory directory.
func openDirectory(ctx context.Context, cfg DatabaseConfig) (auth.UserDirectory, func(), error) {
	if cfg.URL == "" {
		slog.Warn("database.url is empty; users are kept in memory and lost on restart")
		return auth.NewMemoryDirectory(), func() {}, nil
	}

	if cfg.AutoMigrate {
		err := runAutoMigration(cfg.URL, func(url string) (AutoMigrator, error) {
			return store.NewMigrator(url)
		})
		if err != nil {
			return nil, nil, err
		}
	}

	pool, err := store.Connect(ctx, cfg.URL, store.PoolOptions{MaxConns: cfg.MaxConns})
	if err != nil {
		return nil, nil, err
	}
	slog.Info("connected to database")
	return authpg.NewUserRepository(pool), pool.Close, nil
}

// runAutoMigration applies pending migrations. A failure to close the
// migrator is logged and does not fail startup.
func runAutoMigration(databaseURL string, factory func(string) (AutoMigrator, error)) error {
	migrator, err := factory(databaseURL)
	if err != nil {
		return oops.Code("MIGRATION_INIT_FAILED").Wrap(err)
	}
	defer func() {
		if closeErr := migrator.Close(); closeErr != nil {
			slog.Warn("error closing migrator, connection may leak", "error", closeErr)
		}
	}()

	slog.Info("running database migrations")
	if err := migrator.Up(); err != nil {
		return oops.Code("AUTO_MIGRATION_FAILED").Wrap(err)
	}
	slog.Info("database migrations complete")
	return nil
}

// monitorServerErrors cancels ctx when a server reports an error. It
// returns when the channel closes or ctx ends.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("server error, triggering shutdown",
				"server", serverName,
				"error", err,
			)
			cancel()
		}
	case <-ctx.Done():
	}
}
