// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/gatehouse/gatehouse/internal/auth"
)

const userColumns = `id, email, name, last_login_at, created_at, updated_at`

// UserRepository implements auth.UserRepository using PostgreSQL.
type UserRepository struct {
	pool poolIface
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(pool poolIface) *UserRepository {
	return &UserRepository{pool: pool}
}

// Create inserts the user and its first credential in one statement.
func (r *UserRepository) Create(ctx context.Context, user *auth.User, passwordHash string) error {
	cred, err := auth.NewPasswordCredential(user.ID, passwordHash, user.CreatedAt)
	if err != nil {
		return oops.Code("USER_CREATE_FAILED").With("operation", "build credential").Wrap(err)
	}

	_, err = r.pool.Exec(ctx, `
		WITH new_user AS (
			INSERT INTO users (id, email, name, last_login_at, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id
		)
		INSERT INTO password_credentials (id, user_id, hash, created_at)
		SELECT $7, id, $8, $9 FROM new_user
	`,
		user.ID.String(),
		user.Email,
		user.Name,
		user.LastLoginAt,
		user.CreatedAt,
		user.UpdatedAt,
		cred.ID.String(),
		cred.Hash,
		cred.CreatedAt,
	)
	if isUniqueViolation(err, constraintUsersEmail) {
		return auth.DuplicateEmail(user.Email)
	}
	if err != nil {
		return oops.Code("USER_CREATE_FAILED").
			With("operation", "insert user").
			With("user_id", user.ID.String()).
			Wrap(err)
	}
	return nil
}

// GetByID retrieves a user by ID.
func (r *UserRepository) GetByID(ctx context.Context, id ulid.ULID) (*auth.User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id.String())

	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").With("id", id.String()).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_GET_BY_ID_FAILED").
			With("operation", "get user by id").
			With("id", id.String()).
			Wrap(err)
	}
	return user, nil
}

// GetByEmail retrieves a user by exact, case-sensitive email.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*auth.User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)

	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_GET_BY_EMAIL_FAILED").
			With("operation", "get user by email").
			Wrap(err)
	}
	return user, nil
}

// GetPasswordHash returns the newest credential hash for a user.
func (r *UserRepository) GetPasswordHash(ctx context.Context, userID ulid.ULID) (string, error) {
	var hash string
	err := r.pool.QueryRow(ctx, `
		SELECT hash FROM password_credentials
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`, userID.String()).Scan(&hash)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", oops.Code("CREDENTIAL_NOT_FOUND").With("user_id", userID.String()).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return "", oops.Code("CREDENTIAL_GET_FAILED").
			With("operation", "get password hash").
			With("user_id", userID.String()).
			Wrap(err)
	}
	return hash, nil
}

// AddCredential stores an additional credential; the newest one wins.
func (r *UserRepository) AddCredential(ctx context.Context, cred *auth.PasswordCredential) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO password_credentials (id, user_id, hash, created_at)
		VALUES ($1, $2, $3, $4)
	`, cred.ID.String(), cred.UserID.String(), cred.Hash, cred.CreatedAt)
	if err != nil {
		return oops.Code("CREDENTIAL_CREATE_FAILED").
			With("operation", "insert credential").
			With("user_id", cred.UserID.String()).
			Wrap(err)
	}
	return nil
}

// UpdateLastLoginAt sets last_login_at to max(previous, at).
func (r *UserRepository) UpdateLastLoginAt(ctx context.Context, userID ulid.ULID, at time.Time) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE users SET
			last_login_at = GREATEST(COALESCE(last_login_at, $2), $2),
			updated_at = GREATEST(updated_at, $2)
		WHERE id = $1
	`, userID.String(), at)
	if err != nil {
		return oops.Code("USER_UPDATE_LAST_LOGIN_FAILED").
			With("operation", "update last login").
			With("user_id", userID.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("USER_NOT_FOUND").With("user_id", userID.String()).Wrap(auth.ErrNotFound)
	}
	return nil
}

// scanUser scans one users row. pgx.ErrNoRows is returned unwrapped.
func scanUser(row pgx.Row) (*auth.User, error) {
	var (
		idStr string
		user  auth.User
	)
	err := row.Scan(&idStr, &user.Email, &user.Name, &user.LastLoginAt, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err //nolint:wrapcheck // callers add context
		}
		return nil, oops.Code("USER_SCAN_FAILED").With("operation", "scan user").Wrap(err)
	}

	user.ID, err = ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("USER_INVALID_ID").
			With("operation", "parse user id").
			With("id", idStr).
			Wrap(err)
	}
	return &user, nil
}

var _ auth.UserRepository = (*UserRepository)(nil)
