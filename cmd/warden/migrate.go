// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/warden/internal/store"
)

// SchemaMigrator is the subset of store.Migrator the migrate command uses.
type SchemaMigrator interface {
	Up() error
	Down() error
	Steps(n int) error
	Force(version int) error
	Status() (store.MigrationStatus, error)
	Close() error
}

type migratorFactory func(databaseURL string) (SchemaMigrator, error)

func defaultMigratorFactory(databaseURL string) (SchemaMigrator, error) {
	return store.NewMigrator(databaseURL)
}

// NewMigrateCmd creates the migrate subcommand.
func NewMigrateCmd() *cobra.Command {
	return newMigrateCmd(defaultMigratorFactory)
}

func newMigrateCmd(factory migratorFactory) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the users schema",
		Long: `Apply or roll back the embedded migrations against database.url.
Without a subcommand, applies every pending migration.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, factory, func(m SchemaMigrator) error {
				if err := m.Up(); err != nil {
					return err
				}
				cmd.Println("Migrations completed successfully")
				return nil
			})
		},
	}
	cmd.PersistentFlags().String("database-url", "", "PostgreSQL URL")

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, factory, func(m SchemaMigrator) error {
				if err := m.Up(); err != nil {
					return err
				}
				cmd.Println("Migrations completed successfully")
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back every migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, factory, func(m SchemaMigrator) error {
				if err := m.Down(); err != nil {
					return err
				}
				cmd.Println("All migrations rolled back")
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "steps N",
		Short: "Apply N migrations; roll back with a negative N (after --)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := strconv.Atoi(args[0])
			if err != nil {
				return oops.Code("INVALID_STEPS").With("input", args[0]).Wrap(err)
			}
			return withMigrator(cmd, factory, func(m SchemaMigrator) error {
				if err := m.Steps(n); err != nil {
					return err
				}
				cmd.Printf("Applied %d step(s)\n", n)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "force VERSION",
		Short: "Set the schema version without running migrations",
		Long: `Record VERSION as the current schema version and clear the dirty
flag. Use after repairing a failed migration by hand.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := parseForceVersion(args[0])
			if err != nil {
				return err
			}
			return withMigrator(cmd, factory, func(m SchemaMigrator) error {
				if err := m.Force(version); err != nil {
					return err
				}
				cmd.Printf("Forced schema version %d\n", version)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show applied and pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, factory, func(m SchemaMigrator) error {
				status, err := m.Status()
				if err != nil {
					return err
				}
				cmd.Print(formatMigrationStatus(status))
				return nil
			})
		},
	})

	return cmd
}

// withMigrator opens a migrator against the configured database, runs fn
// and closes it.
func withMigrator(cmd *cobra.Command, factory migratorFactory, fn func(SchemaMigrator) error) error {
	cfg, err := configFromCommand(cmd)
	if err != nil {
		return err
	}
	if cfg.Database.URL == "" {
		return invalid("database.url", "database.url is required (set WARDEN_DATABASE__URL or --database-url)")
	}

	migrator, err := factory(cfg.Database.URL)
	if err != nil {
		return oops.Code("MIGRATION_INIT_FAILED").Wrap(err)
	}
	defer func() {
		if closeErr := migrator.Close(); closeErr != nil {
			cmd.PrintErrf("warning: closing migrator: %v\n", closeErr)
		}
	}()

	if err := fn(migrator); err != nil {
		return oops.Code("MIGRATION_FAILED").Wrap(err)
	}
	return nil
}

// parseForceVersion reads the leading integer of input. Trailing
// characters are ignored.
func parseForceVersion(input string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(strings.TrimSpace(input), "%d", &version); err != nil {
		return 0, oops.Code("INVALID_VERSION").With("input", input).Wrap(err)
	}
	return version, nil
}

func formatMigrationStatus(status store.MigrationStatus) string {
	var b strings.Builder
	state := "clean"
	if status.Dirty {
		state = "dirty"
	}
	fmt.Fprintf(&b, "Current version: %d (%s)\n", status.Version, state)
	for _, v := range status.Applied {
		name, _ := store.MigrationName(v) //nolint:errcheck // name is cosmetic
		fmt.Fprintf(&b, "  applied  %s\n", nameOrVersion(name, v))
	}
	for _, v := range status.Pending {
		name, _ := store.MigrationName(v) //nolint:errcheck // name is cosmetic
		fmt.Fprintf(&b, "  pending  %s\n", nameOrVersion(name, v))
	}
	return b.String()
}

func nameOrVersion(name string, version uint) string {
	if name != "" {
		return name
	}
	return strconv.FormatUint(uint64(version), 10)
}
