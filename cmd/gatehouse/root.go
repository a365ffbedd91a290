// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package main

import (
	"errors"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/gatehouse/gatehouse/internal/config"
	"github.com/gatehouse/gatehouse/internal/xdg"
)

// Global flags available to all subcommands.
var (
	configFile string
	envFile    string
)

// NewRootCmd creates the root command for the Gatehouse CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gatehouse",
		Short: "Gatehouse - user authentication service",
		Long: `Gatehouse registers users, verifies credentials, and issues
session-backed bearer tokens over HTTP.`,
		SilenceUsage: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return loadDotEnv(envFile)
		},
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (default: XDG_CONFIG_HOME/gatehouse/config.yaml when present)")
	cmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before configuration (missing file is ignored)")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewSessionsCmd())
	cmd.AddCommand(NewCertsCmd())

	return cmd
}

// loadDotEnv populates the environment from path without overriding
// variables that are already set.
func loadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return oops.Code("DOTENV_LOAD_FAILED").With("path", path).Wrap(err)
	}
	return nil
}

// loadConfig resolves configuration for cmd from the config file, the
// environment, and any flags cmd has bound. Without --config the XDG config
// file is used when it exists.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path := configFile
	if path == "" {
		if p, ok := xdg.ConfigFile(); ok {
			path = p
		}
	}
	return config.Load(path, cmd.Flags())
}
