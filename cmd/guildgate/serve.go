// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 GuildGate Contributors

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/guildgate/guildgate/internal/admission"
	"github.com/guildgate/guildgate/internal/bus"
	"github.com/guildgate/guildgate/internal/config"
	"github.com/guildgate/guildgate/internal/directory"
	"github.com/guildgate/guildgate/internal/linking"
	"github.com/guildgate/guildgate/internal/linking/flatfile"
	"github.com/guildgate/guildgate/internal/linking/postgres"
	"github.com/guildgate/guildgate/internal/logging"
	"github.com/guildgate/guildgate/internal/observability"
	"github.com/guildgate/guildgate/internal/session"
	"github.com/guildgate/guildgate/internal/xdg"
	"github.com/guildgate/guildgate/pkg/errutil"
)

const defaultLogFormat = "json"

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the GuildGate service",
		Long: `Run the GuildGate service: the pairing-code store, the link store
over the configured backend, lifecycle hooks, the admission gate, and
the observability endpoint.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServeWithDeps(cmd.Context(), cmd, nil)
		},
	}

	// Dotted flag names overlay the matching config file options.
	cmd.Flags().String("log.format", defaultLogFormat, "log format (json or text)")
	cmd.Flags().String("storage.backend", "", "link storage backend (file or postgres)")
	cmd.Flags().String("storage.file.path", "", "flat-file link store path")
	cmd.Flags().String("storage.postgres.dsn", "", "postgres DSN for the link store")
	cmd.Flags().String("observability.addr", "", "metrics/health HTTP address (empty = disabled)")

	return cmd
}

// runServeWithDeps starts the service with injectable dependencies.
// If deps is nil, default implementations are used.
func runServeWithDeps(ctx context.Context, cmd *cobra.Command, deps *ServeDeps) error {
	if deps == nil {
		deps = &ServeDeps{}
	}
	if deps.RepositoryFactory == nil {
		deps.RepositoryFactory = newRepository
	}
	if deps.Directory == nil {
		deps.Directory = directory.Disconnected{}
	}
	if deps.ObservabilityServerFactory == nil {
		deps.ObservabilityServerFactory = func(addr string, readinessChecker observability.ReadinessChecker, outstandingCodes func() int) ObservabilityServer {
			return observability.NewServer(addr, readinessChecker, outstandingCodes)
		}
	}

	cfg, err := config.Load(resolveConfigPath(), cmd.Flags())
	if err != nil {
		return err
	}

	logFormat := cfg.String(config.KeyLogFormat)
	if logFormat == "" {
		logFormat = defaultLogFormat
	}
	logging.SetDefault("guildgate", version, logFormat)

	slog.Info("starting guildgate",
		"version", version,
		"log_format", logFormat,
	)

	var ready atomic.Bool

	repo, err := deps.RepositoryFactory(ctx, cfg)
	if err != nil {
		return err
	}

	codes := linking.NewCodeStore(cfg.Duration(config.KeyCodeTTL, config.DefaultCodeTTL))
	eventBus := bus.New()
	sessions := session.NewRegistry()

	hooks := linking.NewHooks(linking.HooksConfig{
		Config:     cfg,
		Directory:  deps.Directory,
		Dispatcher: deps.Dispatcher,
		Bus:        eventBus,
		Sessions:   sessions,
	})
	links := linking.NewService(repo, codes, linking.WithLifecycle(hooks))

	gate := admission.NewGate(admission.GateConfig{
		Config:    cfg,
		Links:     links,
		Sessions:  sessions,
		Directory: deps.Directory,
		Ready:     ready.Load,
	})
	hooks.SetUnlinkNotifier(gate)

	pipeline := admission.NewPipeline()
	gate.Register(pipeline)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var obsServer ObservabilityServer
	if addr := cfg.String(config.KeyObservabilityAddr); addr != "" {
		obsServer = deps.ObservabilityServerFactory(addr, ready.Load, links.Outstanding)
		obsErrChan, err := obsServer.Start()
		if err != nil {
			links.Close()
			return err
		}
		go monitorServerErrors(ctx, cancel, obsErrChan, "observability")
		slog.Info("observability server started", "addr", obsServer.Addr())
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	ready.Store(true)
	cmd.Println("GuildGate started")
	slog.Info("guildgate ready",
		"backend", cfg.String(config.KeyStorageBackend),
		"require_link", cfg.Bool(config.KeyEnabled),
	)

	select {
	case sig := <-sigChan:
		slog.Info("received shutdown signal", "signal", sig)
	case <-ctx.Done():
		slog.Info("context cancelled, shutting down")
	}

	slog.Info("shutting down...")
	ready.Store(false)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if obsServer != nil {
		if err := obsServer.Stop(shutdownCtx); err != nil {
			slog.Warn("error stopping observability server", "error", err)
		}
	}

	if err := links.Save(shutdownCtx); err != nil {
		errutil.LogError(slog.Default(), "failed to flush link store", err)
	}
	links.Close()

	slog.Info("shutdown complete")
	return nil
}

// newRepository selects the link repository from configuration. A
// postgres backend that cannot be reached downgrades to the flat file
// with a single warning; startup never aborts on relational failure.
func newRepository(ctx context.Context, cfg *config.Config) (linking.Repository, error) {
	backend := cfg.String(config.KeyStorageBackend)
	if backend == "postgres" {
		dsn := cfg.String(config.KeyStoragePostgres)
		if dsn == "" {
			slog.Warn("storage.postgres.dsn not configured, falling back to flat file")
		} else {
			pool, err := postgres.Connect(ctx, dsn)
			if err == nil {
				slog.Info("link store backend ready", "backend", "postgres")
				return postgres.NewRepository(pool), nil
			}
			errutil.LogWarn(slog.Default(), "postgres unavailable, falling back to flat file", err)
		}
	}

	path := cfg.String(config.KeyStorageFilePath)
	if path == "" {
		path = xdg.DefaultLinksPath()
	}
	repo, err := flatfile.New(path, slog.Default())
	if err != nil {
		return nil, err
	}
	slog.Info("link store backend ready", "backend", "file", "path", path)
	return repo, nil
}

// monitorServerErrors cancels the context when a background server
// reports an error, triggering graceful shutdown of the whole process.
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
