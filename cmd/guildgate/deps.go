// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 GuildGate Contributors

package main

import (
	"context"

	"github.com/guildgate/guildgate/internal/config"
	"github.com/guildgate/guildgate/internal/directory"
	"github.com/guildgate/guildgate/internal/linking"
	"github.com/guildgate/guildgate/internal/observability"
)

// ServeDeps contains injectable dependencies for the serve command.
// All fields with nil values will use their default implementations.
type ServeDeps struct {
	// RepositoryFactory selects and builds the link repository. The
	// default probes the configured backend and falls back per policy.
	// Default: newRepository
	RepositoryFactory func(ctx context.Context, cfg *config.Config) (linking.Repository, error)

	// Directory is the chat-platform directory client.
	// Default: directory.Disconnected
	Directory directory.Client

	// Dispatcher runs lifecycle console commands.
	// Default: nil (commands are skipped)
	Dispatcher linking.CommandDispatcher

	// ObservabilityServerFactory creates an observability server.
	// Default: observability.NewServer
	ObservabilityServerFactory func(addr string, readinessChecker observability.ReadinessChecker, outstandingCodes func() int) ObservabilityServer
}

// ObservabilityServer interface wraps the methods used from observability.Server.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
}
