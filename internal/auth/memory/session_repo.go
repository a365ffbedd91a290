// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package memory

import (
	"context"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/gatehouse/gatehouse/internal/auth"
)

// SessionRepository is an in-memory auth.SessionRepository keyed by token hash.
type SessionRepository struct {
	mu       sync.RWMutex
	sessions map[string]auth.Session
}

// NewSessionRepository creates an empty SessionRepository.
func NewSessionRepository() *SessionRepository {
	return &SessionRepository{sessions: make(map[string]auth.Session)}
}

// Create stores a session. Token hashes are unique.
func (r *SessionRepository) Create(_ context.Context, session *auth.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[session.TokenHash]; exists {
		return oops.Code("SESSION_CREATE_FAILED").
			With("session_id", session.ID.String()).
			Errorf("session token already exists")
	}
	r.sessions[session.TokenHash] = *session
	return nil
}

// GetByToken retrieves the session for a bearer token.
func (r *SessionRepository) GetByToken(_ context.Context, token string) (*auth.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[auth.HashSessionToken(token)]
	if !ok {
		return nil, oops.Code("SESSION_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	return &s, nil
}

// DeleteByToken removes the session for a bearer token.
func (r *SessionRepository) DeleteByToken(_ context.Context, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := auth.HashSessionToken(token)
	if _, ok := r.sessions[key]; !ok {
		return oops.Code("SESSION_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	delete(r.sessions, key)
	return nil
}

// DeleteByUser removes every session owned by userID.
func (r *SessionRepository) DeleteByUser(_ context.Context, userID ulid.ULID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for key, s := range r.sessions {
		if s.UserID == userID {
			delete(r.sessions, key)
			n++
		}
	}
	return n, nil
}

// DeleteExpired removes sessions that expired at or before now.
func (r *SessionRepository) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for key, s := range r.sessions {
		if s.IsExpiredAt(now) {
			delete(r.sessions, key)
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored sessions.
func (r *SessionRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

var _ auth.SessionRepository = (*SessionRepository)(nil)
