// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatehouse/gatehouse/internal/auth"
	"github.com/gatehouse/gatehouse/internal/auth/memory"
)

func newSession(t *testing.T, userID ulid.ULID, token string, ttl time.Duration) *auth.Session {
	t.Helper()
	s, err := auth.NewSession(userID, token, epoch.Add(ttl), epoch)
	require.NoError(t, err)
	return s
}

func TestSessionRepository_CreateAndGetByToken(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewSessionRepository()
	userID := ulid.Make()
	session := newSession(t, userID, "token-1", time.Hour)

	require.NoError(t, repo.Create(ctx, session))

	got, err := repo.GetByToken(ctx, "token-1")
	require.NoError(t, err)
	assert.Equal(t, session.ID, got.ID)
	assert.Equal(t, userID, got.UserID)

	_, err = repo.GetByToken(ctx, "token-2")
	assert.ErrorIs(t, err, auth.ErrNotFound)
}

func TestSessionRepository_RejectsDuplicateToken(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewSessionRepository()
	userID := ulid.Make()

	require.NoError(t, repo.Create(ctx, newSession(t, userID, "same", time.Hour)))
	assert.Error(t, repo.Create(ctx, newSession(t, userID, "same", time.Hour)))
	assert.Equal(t, 1, repo.Len())
}

func TestSessionRepository_DeleteByToken(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewSessionRepository()
	require.NoError(t, repo.Create(ctx, newSession(t, ulid.Make(), "token-1", time.Hour)))

	require.NoError(t, repo.DeleteByToken(ctx, "token-1"))
	assert.ErrorIs(t, repo.DeleteByToken(ctx, "token-1"), auth.ErrNotFound)
}

func TestSessionRepository_DeleteByUser(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewSessionRepository()
	alice, bob := ulid.Make(), ulid.Make()

	require.NoError(t, repo.Create(ctx, newSession(t, alice, "a1", time.Hour)))
	require.NoError(t, repo.Create(ctx, newSession(t, alice, "a2", time.Hour)))
	require.NoError(t, repo.Create(ctx, newSession(t, bob, "b1", time.Hour)))

	n, err := repo.DeleteByUser(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = repo.DeleteByUser(ctx, alice)
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = repo.GetByToken(ctx, "b1")
	assert.NoError(t, err)
}

func TestSessionRepository_DeleteExpired(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewSessionRepository()
	userID := ulid.Make()

	require.NoError(t, repo.Create(ctx, newSession(t, userID, "short", time.Minute)))
	require.NoError(t, repo.Create(ctx, newSession(t, userID, "long", 48*time.Hour)))

	n, err := repo.DeleteExpired(ctx, epoch.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = repo.GetByToken(ctx, "short")
	assert.ErrorIs(t, err, auth.ErrNotFound)
	_, err = repo.GetByToken(ctx, "long")
	assert.NoError(t, err)
}
