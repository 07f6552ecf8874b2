// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 GuildGate Contributors

package main

import (
	"github.com/spf13/cobra"

	"github.com/guildgate/guildgate/internal/xdg"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the GuildGate CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "guildgate",
		Short: "GuildGate - account linking and admission gating",
		Long: `GuildGate bridges game-session identities and chat-guild identities.
It issues pairing codes, maintains the durable 1:1 account link, and
gates session admission on the link plus guild membership and role
conditions.`,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())

	return cmd
}

// resolveConfigPath returns the --config flag value, falling back to the
// XDG default location.
func resolveConfigPath() string {
	if configFile != "" {
		return configFile
	}
	return xdg.DefaultConfigPath()
}
