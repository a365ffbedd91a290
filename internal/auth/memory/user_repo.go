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

// UserRepository is an in-memory auth.UserRepository.
type UserRepository struct {
	mu          sync.RWMutex
	users       map[ulid.ULID]auth.User
	byEmail     map[string]ulid.ULID
	credentials map[ulid.ULID][]auth.PasswordCredential
}

// NewUserRepository creates an empty UserRepository.
func NewUserRepository() *UserRepository {
	return &UserRepository{
		users:       make(map[ulid.ULID]auth.User),
		byEmail:     make(map[string]ulid.ULID),
		credentials: make(map[ulid.ULID][]auth.PasswordCredential),
	}
}

// Create stores the user and its first credential. Email matching is exact.
func (r *UserRepository) Create(_ context.Context, user *auth.User, passwordHash string) error {
	cred, err := auth.NewPasswordCredential(user.ID, passwordHash, user.CreatedAt)
	if err != nil {
		return oops.Code("USER_CREATE_FAILED").With("user_id", user.ID.String()).Wrap(err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.byEmail[user.Email]; taken {
		return auth.DuplicateEmail(user.Email)
	}
	if _, exists := r.users[user.ID]; exists {
		return oops.Code("USER_CREATE_FAILED").
			With("user_id", user.ID.String()).
			Errorf("user id already exists")
	}

	r.users[user.ID] = cloneUser(*user)
	r.byEmail[user.Email] = user.ID
	r.credentials[user.ID] = append(r.credentials[user.ID], *cred)
	return nil
}

// GetByID retrieves a user by ID.
func (r *UserRepository) GetByID(_ context.Context, id ulid.ULID) (*auth.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[id]
	if !ok {
		return nil, oops.Code("USER_NOT_FOUND").With("id", id.String()).Wrap(auth.ErrNotFound)
	}
	out := cloneUser(u)
	return &out, nil
}

// GetByEmail retrieves a user by exact email.
func (r *UserRepository) GetByEmail(_ context.Context, email string) (*auth.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[email]
	if !ok {
		return nil, oops.Code("USER_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	out := cloneUser(r.users[id])
	return &out, nil
}

// GetPasswordHash returns the newest credential hash for a user.
func (r *UserRepository) GetPasswordHash(_ context.Context, userID ulid.ULID) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	creds := r.credentials[userID]
	if len(creds) == 0 {
		return "", oops.Code("CREDENTIAL_NOT_FOUND").With("user_id", userID.String()).Wrap(auth.ErrNotFound)
	}

	latest := creds[0]
	for _, c := range creds[1:] {
		if c.CreatedAt.After(latest.CreatedAt) ||
			(c.CreatedAt.Equal(latest.CreatedAt) && c.ID.Compare(latest.ID) > 0) {
			latest = c
		}
	}
	return latest.Hash, nil
}

// AddCredential appends a credential for an existing user. The newest one
// becomes authoritative for GetPasswordHash.
func (r *UserRepository) AddCredential(_ context.Context, cred *auth.PasswordCredential) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[cred.UserID]; !ok {
		return oops.Code("USER_NOT_FOUND").With("user_id", cred.UserID.String()).Wrap(auth.ErrNotFound)
	}
	r.credentials[cred.UserID] = append(r.credentials[cred.UserID], *cred)
	return nil
}

// UpdateLastLoginAt stores max(previous, at).
func (r *UserRepository) UpdateLastLoginAt(_ context.Context, userID ulid.ULID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[userID]
	if !ok {
		return oops.Code("USER_NOT_FOUND").With("user_id", userID.String()).Wrap(auth.ErrNotFound)
	}
	if u.LastLoginAt == nil || at.After(*u.LastLoginAt) {
		t := at
		u.LastLoginAt = &t
	}
	if at.After(u.UpdatedAt) {
		u.UpdatedAt = at
	}
	r.users[userID] = u
	return nil
}

// Len returns the number of stored users.
func (r *UserRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users)
}

func cloneUser(u auth.User) auth.User {
	if u.LastLoginAt != nil {
		t := *u.LastLoginAt
		u.LastLoginAt = &t
	}
	return u
}

var _ auth.UserRepository = (*UserRepository)(nil)
