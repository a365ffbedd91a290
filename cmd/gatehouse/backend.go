// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package main

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/samber/oops"

	"github.com/gatehouse/gatehouse/internal/auth"
	"github.com/gatehouse/gatehouse/internal/auth/memory"
	"github.com/gatehouse/gatehouse/internal/auth/postgres"
	"github.com/gatehouse/gatehouse/internal/config"
	"github.com/gatehouse/gatehouse/internal/observability"
	"github.com/gatehouse/gatehouse/internal/store"
)

// DB is the subset of *pgxpool.Pool the commands use.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// Backend bundles the stores the service runs on.
type Backend struct {
	Users    auth.UserRepository
	Sessions auth.SessionRepository
	Ready    observability.ReadinessChecker
	Close    func()
}

func (d *BackendDeps) withDefaults() *BackendDeps {
	out := BackendDeps{}
	if d != nil {
		out = *d
	}
	if out.Connect == nil {
		out.Connect = func(ctx context.Context, url string, opts store.ConnectOptions) (DB, error) {
			return store.Connect(ctx, url, opts)
		}
	}
	if out.MigratorFactory == nil {
		out.MigratorFactory = func(url string) (Migrator, error) {
			return store.NewMigrator(url)
		}
	}
	return &out
}

// openBackend builds the stores selected by cfg.Store. The postgres store
// waits for the database and, with database.auto_migrate, applies pending
// migrations first.
func openBackend(ctx context.Context, cfg *config.Config, deps *BackendDeps) (*Backend, error) {
	deps = deps.withDefaults()

	switch cfg.Store {
	case config.StoreMemory:
		slog.WarnContext(ctx, "using in-memory store; data is lost on exit")
		return &Backend{
			Users:    memory.NewUserRepository(),
			Sessions: memory.NewSessionRepository(),
			Close:    func() {},
		}, nil

	case config.StorePostgres:
		db, err := connectDB(ctx, cfg, deps)
		if err != nil {
			return nil, err
		}

		if cfg.Database.AutoMigrate {
			if err := runAutoMigration(ctx, cfg.Database.URL, deps.MigratorFactory); err != nil {
				db.Close()
				return nil, err
			}
		}

		return &Backend{
			Users:    postgres.NewUserRepository(db),
			Sessions: postgres.NewSessionRepository(db),
			Ready:    db.Ping,
			Close:    db.Close,
		}, nil

	default:
		return nil, oops.Code("CONFIG_INVALID").
			With("key", "store").
			With("value", cfg.Store).
			Errorf("unknown store %q", cfg.Store)
	}
}

func connectDB(ctx context.Context, cfg *config.Config, deps *BackendDeps) (DB, error) {
	db, err := deps.Connect(ctx, cfg.Database.URL, store.ConnectOptions{
		MaxConns:  cfg.Database.MaxConns,
		Retries:   cfg.Database.ConnectRetries,
		RetryBase: cfg.Database.RetryBase,
	})
	if err != nil {
		return nil, oops.With("operation", "connect to database").Wrap(err)
	}
	slog.InfoContext(ctx, "connected to database")
	return db, nil
}

// runAutoMigration applies pending migrations and always closes the migrator.
func runAutoMigration(ctx context.Context, url string, factory func(string) (Migrator, error)) (err error) {
	migrator, err := factory(url)
	if err != nil {
		return oops.Code("AUTO_MIGRATE_FAILED").With("operation", "create migrator").Wrap(err)
	}
	defer func() {
		if closeErr := migrator.Close(); closeErr != nil {
			slog.WarnContext(ctx, "failed to close migrator", "error", closeErr)
		}
	}()

	if err := migrator.Up(); err != nil {
		return oops.Code("AUTO_MIGRATE_FAILED").With("operation", "apply migrations").Wrap(err)
	}
	slog.InfoContext(ctx, "database migrations applied")
	return nil
}
