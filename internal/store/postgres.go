// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

// Package store owns the PostgreSQL connection pool and schema migrations.
package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// Connection defaults.
const (
	DefaultConnectRetries = 5
	DefaultRetryBase      = 250 * time.Millisecond
)

// ConnectOptions tunes Connect.
type ConnectOptions struct {
	// MaxConns caps the pool size. Zero keeps the pgxpool default.
	MaxConns int32

	// Retries is the number of extra ping attempts after the first failure.
	Retries uint64

	// RetryBase is the first backoff interval; it doubles on each attempt.
	RetryBase time.Duration
}

// pinger is the subset of *pgxpool.Pool that Connect waits on.
type pinger interface {
	Ping(ctx context.Context) error
}

// Connect opens a pool for databaseURL and waits until the server answers a
// ping, backing off exponentially between attempts.
func Connect(ctx context.Context, databaseURL string, opts ConnectOptions) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, oops.Code("DB_CONFIG_INVALID").With("operation", "parse database url").Wrap(err)
	}
	if opts.MaxConns > 0 {
		cfg.MaxConns = opts.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, oops.Code("DB_CONNECT_FAILED").With("operation", "create pool").Wrap(err)
	}

	if err := waitForPing(ctx, pool, opts); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

func waitForPing(ctx context.Context, db pinger, opts ConnectOptions) error {
	base := opts.RetryBase
	if base <= 0 {
		base = DefaultRetryBase
	}
	backoff := retry.WithMaxRetries(opts.Retries, retry.NewExponential(base))

	attempts := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempts++
		if err := db.Ping(ctx); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").
			With("operation", "ping database").
			With("attempts", attempts).
			Wrap(err)
	}
	return nil
}
