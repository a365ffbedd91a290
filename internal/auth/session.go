// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// DefaultSessionTTL is the lifetime of a session created at login or registration.
const DefaultSessionTTL = 24 * time.Hour

// Session binds a bearer token to a user until ExpiresAt.
// Only the SHA-256 of the token is kept.
type Session struct {
	ID        ulid.ULID
	UserID    ulid.ULID
	TokenHash string
	ExpiresAt time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewSession creates a validated Session for token, stamped with now.
func NewSession(userID ulid.ULID, token string, expiresAt, now time.Time) (*Session, error) {
	if userID.Compare(ulid.ULID{}) == 0 {
		return nil, oops.Code("SESSION_INVALID_USER").Errorf("user ID cannot be zero")
	}
	if token == "" {
		return nil, oops.Code("SESSION_INVALID_TOKEN").Errorf("session token cannot be empty")
	}
	if expiresAt.IsZero() {
		return nil, oops.Code("SESSION_INVALID_EXPIRY").Errorf("expiry time cannot be zero")
	}
	if !expiresAt.After(now) {
		return nil, oops.Code("SESSION_INVALID_EXPIRY").
			With("expires_at", expiresAt).
			Errorf("expiry must be after creation time")
	}

	return &Session{
		ID:        ulid.Make(),
		UserID:    userID,
		TokenHash: HashSessionToken(token),
		ExpiresAt: expiresAt,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// IsExpiredAt reports whether the session is no longer valid at t.
func (s *Session) IsExpiredAt(t time.Time) bool {
	return !t.Before(s.ExpiresAt)
}

// HashSessionToken computes the SHA-256 hex digest under which a token is stored.
func HashSessionToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// SessionRepository manages session persistence. Lookups take the plaintext
// token and match on its hash.
type SessionRepository interface {
	// Create stores a new session.
	Create(ctx context.Context, session *Session) error

	// GetByToken retrieves the session for a bearer token.
	// Returns ErrNotFound if no session matches.
	GetByToken(ctx context.Context, token string) (*Session, error)

	// DeleteByToken removes the session for a bearer token.
	// Returns ErrNotFound if no session matches.
	DeleteByToken(ctx context.Context, token string) error

	// DeleteByUser removes all sessions for a user and returns the count.
	DeleteByUser(ctx context.Context, userID ulid.ULID) (int64, error)

	// DeleteExpired removes sessions that expired at or before now.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
