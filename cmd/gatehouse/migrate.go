// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package main

import (
	"fmt"
	"strconv"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/gatehouse/gatehouse/internal/config"
	"github.com/gatehouse/gatehouse/internal/store"
)

// newMigrator creates the migrator used by the migrate subcommands.
var newMigrator = func(url string) (Migrator, error) {
	return store.NewMigrator(url)
}

// NewMigrateCmd creates the migrate command group.
func NewMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
		Long: `Apply, roll back, inspect, or repair the PostgreSQL schema.
Running migrate without a subcommand applies all pending migrations.`,
		RunE: runMigrateUp,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE:  runMigrateUp,
	})

	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migration",
		Long: `Roll back the most recent migration. With --all, roll back every
migration, dropping all users and sessions.`,
		Args: cobra.NoArgs,
		RunE: runMigrateDown,
	}
	down.Flags().Bool("all", false, "roll back every migration")
	cmd.AddCommand(down)

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show applied and pending migrations",
		Args:  cobra.NoArgs,
		RunE:  runMigrateStatus,
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "force VERSION",
		Short: "Set the schema version without running migrations",
		Long: `Record VERSION as applied and clear the dirty flag. Use this
after repairing a migration that failed partway.`,
		Args: cobra.ExactArgs(1),
		RunE: runMigrateForce,
	})

	return cmd
}

// withMigrator opens a migrator for the configured database, runs fn, and
// closes it.
func withMigrator(cmd *cobra.Command, fn func(Migrator) error) (err error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.Database.URL == "" {
		return oops.Code("CONFIG_INVALID").
			With("key", "database.url").
			Errorf("database url is required (set DATABASE_URL or %sDATABASE_URL)", config.EnvPrefix)
	}

	migrator, err := newMigrator(cfg.Database.URL)
	if err != nil {
		return oops.With("operation", "create migrator").Wrap(err)
	}
	defer func() {
		if closeErr := migrator.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	return fn(migrator)
}

func runMigrateUp(cmd *cobra.Command, _ []string) error {
	return withMigrator(cmd, func(m Migrator) error {
		cmd.Println("Running migrations...")
		if err := m.Up(); err != nil {
			return oops.With("operation", "run migrations").Wrap(err)
		}
		cmd.Println("Migrations completed successfully")
		return nil
	})
}

func runMigrateDown(cmd *cobra.Command, _ []string) error {
	all, err := cmd.Flags().GetBool("all")
	if err != nil {
		return oops.Wrap(err)
	}
	return withMigrator(cmd, func(m Migrator) error {
		if all {
			cmd.Println("Rolling back all migrations...")
			if err := m.Down(); err != nil {
				return oops.With("operation", "roll back migrations").Wrap(err)
			}
			cmd.Println("All migrations rolled back")
			return nil
		}

		cmd.Println("Rolling back one migration...")
		if err := m.Steps(-1); err != nil {
			return oops.With("operation", "roll back migration").Wrap(err)
		}
		cmd.Println("Rollback completed successfully")
		return nil
	})
}

func runMigrateStatus(cmd *cobra.Command, _ []string) error {
	return withMigrator(cmd, func(m Migrator) error {
		status, err := m.Status()
		if err != nil {
			return err
		}

		cmd.Printf("Current version: %d\n", status.Version)
		if status.Dirty {
			cmd.Println("WARNING: database is dirty; repair it and run 'gatehouse migrate force VERSION'")
		}

		printVersions(cmd, "Applied", status.Applied)
		printVersions(cmd, "Pending", status.Pending)
		return nil
	})
}

func printVersions(cmd *cobra.Command, label string, versions []uint) {
	if len(versions) == 0 {
		cmd.Printf("%s: none\n", label)
		return
	}
	cmd.Printf("%s:\n", label)
	for _, v := range versions {
		name, err := store.MigrationName(v)
		if err != nil || name == "" {
			name = fmt.Sprintf("%06d", v)
		}
		cmd.Printf("  %s\n", name)
	}
}

func runMigrateForce(cmd *cobra.Command, args []string) error {
	version, err := parseForceVersion(args[0])
	if err != nil {
		return err
	}
	return withMigrator(cmd, func(m Migrator) error {
		if err := m.Force(version); err != nil {
			return oops.With("operation", "force version").Wrap(err)
		}
		cmd.Printf("Forced schema version to %d\n", version)
		return nil
	})
}

// parseForceVersion parses a non-negative schema version.
func parseForceVersion(arg string) (int, error) {
	version, err := strconv.Atoi(arg)
	if err != nil {
		return 0, oops.Code("INVALID_VERSION").
			With("version", arg).
			Errorf("version must be an integer, got %q", arg)
	}
	if version < 0 {
		return 0, oops.Code("INVALID_VERSION").
			With("version", arg).
			Errorf("version must be non-negative, got %d", version)
	}
	return version, nil
}
