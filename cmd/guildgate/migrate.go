// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 GuildGate Contributors

package main

import (
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/guildgate/guildgate/internal/config"
	"github.com/guildgate/guildgate/internal/linking/postgres"
)

// NewMigrateCmd creates the migrate subcommand family.
func NewMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the link store database schema",
		Long: `Manage the PostgreSQL schema for the relational link store.
The database URL comes from storage.postgres.dsn in the config file, or
the DATABASE_URL environment variable when no config file is readable.`,
	}

	cmd.AddCommand(newMigrateUpCmd())
	cmd.AddCommand(newMigrateDownCmd())
	cmd.AddCommand(newMigrateStatusCmd())
	cmd.AddCommand(newMigrateForceCmd())

	return cmd
}

func newMigrateUpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(func(m *postgres.Migrator) error {
				if err := m.Up(); err != nil {
					return err
				}
				cmd.Println("Migrations applied")
				return nil
			})
		},
	}
}

func newMigrateDownCmd() *cobra.Command {
	var confirmed bool

	cmd := &cobra.Command{
		Use:   "down",
		Short: "Roll back all migrations",
		Long: `Roll back every migration, dropping the account_links table and all
link data. Requires --yes.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !confirmed {
				return oops.Code("CONFIRMATION_REQUIRED").
					Errorf("migrate down drops all link data; re-run with --yes to confirm")
			}
			return withMigrator(func(m *postgres.Migrator) error {
				if err := m.Down(); err != nil {
					return err
				}
				cmd.Println("Migrations rolled back")
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&confirmed, "yes", false, "confirm the destructive rollback")

	return cmd
}

func newMigrateStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the current schema version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(func(m *postgres.Migrator) error {
				version, dirty, err := m.Version()
				if err != nil {
					return err
				}
				if version == 0 {
					cmd.Println("No migrations applied")
					return nil
				}
				cmd.Printf("Version: %d\n", version)
				if dirty {
					cmd.Println("State: dirty (a migration failed partway; fix the database and use 'migrate force')")
				} else {
					cmd.Println("State: clean")
				}
				return nil
			})
		},
	}
}

func newMigrateForceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "force <version>",
		Short: "Set the schema version without running migrations",
		Long: `Set the recorded schema version without running any migration. Use
only to recover from a dirty state after repairing the database by hand.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := parseForceVersion(args[0])
			if err != nil {
				return err
			}
			return withMigrator(func(m *postgres.Migrator) error {
				if err := m.Force(version); err != nil {
					return err
				}
				cmd.Printf("Forced version to %d\n", version)
				return nil
			})
		},
	}
}

// parseForceVersion parses a schema version argument. Negative versions
// are rejected here rather than handed to the migrator.
func parseForceVersion(s string) (int, error) {
	version, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || version < 0 {
		return 0, oops.Code("INVALID_VERSION").
			With("version", s).
			Errorf("version must be a non-negative integer")
	}
	return version, nil
}

// withMigrator resolves the database URL, runs fn against a migrator,
// and releases it.
func withMigrator(fn func(*postgres.Migrator) error) error {
	databaseURL, err := resolveDatabaseURL()
	if err != nil {
		return err
	}

	migrator, err := postgres.NewMigrator(databaseURL)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := migrator.Close(); closeErr != nil {
			slog.Warn("error closing migrator", "error", closeErr)
		}
	}()

	return fn(migrator)
}

// resolveDatabaseURL prefers the config file, then DATABASE_URL.
func resolveDatabaseURL() (string, error) {
	if cfg, err := config.Load(resolveConfigPath(), nil); err == nil {
		if dsn := cfg.String(config.KeyStoragePostgres); dsn != "" {
			return dsn, nil
		}
	}
	if url := os.Getenv("DATABASE_URL"); url != "" {
		return url, nil
	}
	return "", oops.Code("CONFIG_INVALID").
		Errorf("no database URL: set storage.postgres.dsn or DATABASE_URL")
}
