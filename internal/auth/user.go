// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Field limits enforced by NewUser. Email is measured in bytes, name in
// characters.
const (
	MaxEmailLength = 254
	MaxNameLength  = 200
)

// User is the public identity record. It never carries a password hash.
type User struct {
	ID          ulid.ULID
	Email       string
	Name        string
	LastLoginAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// PasswordCredential is a stored password hash. A user may accumulate
// several; the most recent one is authoritative.
type PasswordCredential struct {
	ID        ulid.ULID
	UserID    ulid.ULID
	Hash      string
	CreatedAt time.Time
}

// NewUser creates a validated User stamped with now.
// Email is stored exactly as given (case-sensitive).
func NewUser(email, name string, now time.Time) (*User, error) {
	if strings.TrimSpace(email) == "" {
		return nil, invalidInput(CodeInvalidEmail, "email", errors.New("email cannot be empty"))
	}
	if len(email) > MaxEmailLength {
		return nil, invalidInput(CodeInvalidEmail, "email",
			fmt.Errorf("email must be at most %d bytes", MaxEmailLength))
	}
	if strings.TrimSpace(name) == "" {
		return nil, invalidInput(CodeInvalidName, "name", errors.New("name cannot be empty"))
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return nil, invalidInput(CodeInvalidName, "name",
			fmt.Errorf("name must be at most %d characters", MaxNameLength))
	}

	return &User{
		ID:        ulid.Make(),
		Email:     email,
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// NewPasswordCredential creates a credential record for a user.
func NewPasswordCredential(userID ulid.ULID, hash string, now time.Time) (*PasswordCredential, error) {
	if userID.Compare(ulid.ULID{}) == 0 {
		return nil, oops.Code("CREDENTIAL_INVALID_USER").Errorf("user ID cannot be zero")
	}
	if hash == "" {
		return nil, oops.Code("CREDENTIAL_INVALID_HASH").Errorf("password hash cannot be empty")
	}
	return &PasswordCredential{
		ID:        ulid.Make(),
		UserID:    userID,
		Hash:      hash,
		CreatedAt: now,
	}, nil
}

// UserRepository manages user persistence.
type UserRepository interface {
	// Create stores a new user together with its first password credential.
	// Returns an error matching ErrDuplicateEmail if the email is taken.
	Create(ctx context.Context, user *User, passwordHash string) error

	// GetByID retrieves a user by ID.
	GetByID(ctx context.Context, id ulid.ULID) (*User, error)

	// GetByEmail retrieves a user by exact email.
	// Returns ErrNotFound if no user has the given email.
	GetByEmail(ctx context.Context, email string) (*User, error)

	// GetPasswordHash returns the most recent credential hash for a user.
	// Returns ErrNotFound if the user has no credential.
	GetPasswordHash(ctx context.Context, userID ulid.ULID) (string, error)

	// UpdateLastLoginAt records a login. The stored value never moves backwards.
	UpdateLastLoginAt(ctx context.Context, userID ulid.ULID, at time.Time) error
}
