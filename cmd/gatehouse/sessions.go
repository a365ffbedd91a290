// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package main

import (
	"context"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/gatehouse/gatehouse/internal/auth/postgres"
	"github.com/gatehouse/gatehouse/internal/config"
)

// SessionPruner deletes sessions that expired before now.
type SessionPruner interface {
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// openPruner connects to the configured database and returns a pruner with
// its cleanup function.
var openPruner = func(ctx context.Context, cfg *config.Config) (SessionPruner, func(), error) {
	deps := (&BackendDeps{}).withDefaults()
	db, err := connectDB(ctx, cfg, deps)
	if err != nil {
		return nil, nil, err
	}
	return postgres.NewSessionRepository(db), db.Close, nil
}

// NewSessionsCmd creates the sessions command group.
func NewSessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Maintain stored sessions",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "prune",
		Short: "Delete expired sessions",
		Long: `Delete every session whose expiry has passed. Expired sessions
are already rejected at authentication; pruning reclaims their storage.`,
		Args: cobra.NoArgs,
		RunE: runSessionsPrune,
	})

	return cmd
}

func runSessionsPrune(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.Store != config.StorePostgres {
		return oops.Code("CONFIG_INVALID").
			With("key", "store").
			With("value", cfg.Store).
			Errorf("sessions prune requires the postgres store")
	}
	if cfg.Database.URL == "" {
		return oops.Code("CONFIG_INVALID").
			With("key", "database.url").
			Errorf("database url is required (set DATABASE_URL or %sDATABASE_URL)", config.EnvPrefix)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	pruner, closeFn, err := openPruner(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeFn()

	n, err := pruner.DeleteExpired(ctx, time.Now())
	if err != nil {
		return oops.With("operation", "prune sessions").Wrap(err)
	}

	cmd.Printf("Pruned %d expired sessions\n", n)
	return nil
}
