// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatehouse/gatehouse/internal/config"
	"github.com/gatehouse/gatehouse/pkg/errutil"
)

type mockPruner struct {
	n   int64
	err error
	now time.Time
}

func (m *mockPruner) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	m.now = now
	return m.n, m.err
}

func usePruner(t *testing.T, p SessionPruner, openErr error) *bool {
	t.Helper()
	closed := false
	old := openPruner
	openPruner = func(context.Context, *config.Config) (SessionPruner, func(), error) {
		if openErr != nil {
			return nil, nil, openErr
		}
		return p, func() { closed = true }, nil
	}
	t.Cleanup(func() { openPruner = old })
	return &closed
}

func TestSessionsPrune(t *testing.T) {
	t.Setenv("DATABASE_URL", testDatabaseURL)
	t.Setenv("GATEHOUSE_STORE", config.StorePostgres)

	pruner := &mockPruner{n: 7}
	closed := usePruner(t, pruner, nil)

	before := time.Now()
	out, err := runCLI(t, "sessions", "prune")
	require.NoError(t, err)

	assert.Contains(t, out, "Pruned 7 expired sessions")
	assert.False(t, pruner.now.Before(before), "prune should use the current time")
	assert.True(t, *closed, "pool should be closed")
}

func TestSessionsPrune_Errors(t *testing.T) {
	t.Run("memory store", func(t *testing.T) {
		t.Setenv("DATABASE_URL", testDatabaseURL)
		t.Setenv("GATEHOUSE_STORE", config.StoreMemory)
		usePruner(t, &mockPruner{}, nil)

		_, err := runCLI(t, "sessions", "prune")
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "CONFIG_INVALID")
	})

	t.Run("missing database url", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "")
		t.Setenv("GATEHOUSE_DATABASE_URL", "")
		usePruner(t, &mockPruner{}, nil)

		_, err := runCLI(t, "sessions", "prune")
		require.Error(t, err)
		errutil.AssertErrorContext(t, err, "key", "database.url")
	})

	t.Run("connect failure", func(t *testing.T) {
		t.Setenv("DATABASE_URL", testDatabaseURL)
		usePruner(t, nil, errors.New("connection refused"))

		_, err := runCLI(t, "sessions", "prune")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "connection refused")
	})

	t.Run("delete failure closes the pool", func(t *testing.T) {
		t.Setenv("DATABASE_URL", testDatabaseURL)
		closed := usePruner(t, &mockPruner{err: errors.New("deadlock detected")}, nil)

		_, err := runCLI(t, "sessions", "prune")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "deadlock detected")
		assert.True(t, *closed)
	})
}
