// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package auth

import (
	"errors"

	"github.com/samber/oops"
)

// Error codes carried by errors returned from this package.
const (
	CodeInvalidCredentials = "AUTH_INVALID_CREDENTIALS"
	CodeUserAlreadyExists  = "AUTH_USER_ALREADY_EXISTS"
	CodeDuplicateEmail     = "AUTH_DUPLICATE_EMAIL"
	CodeInvalidToken       = "AUTH_INVALID_TOKEN"
	CodeInvalidEmail       = "USER_INVALID_EMAIL"
	CodeInvalidName        = "USER_INVALID_NAME"
	CodeEmptyPassword      = "AUTH_EMPTY_PASSWORD"
	CodePasswordTooLong    = "AUTH_PASSWORD_TOO_LONG"
)

// Sentinels are plain errors so errors.Is can tell them apart; oops treats
// every oops error as matching any other oops target.
var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidCredentials covers an unknown email, a user without a
	// credential, and a wrong password alike.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrUserAlreadyExists is returned by Register when the email is taken.
	ErrUserAlreadyExists = errors.New("user already exists")

	// ErrDuplicateEmail is returned by UserRepository.Create when the store
	// rejects the insert on the email uniqueness constraint.
	ErrDuplicateEmail = errors.New("email already registered")

	// ErrInvalidToken is returned when a bearer token fails signature,
	// expiry, or session checks.
	ErrInvalidToken = errors.New("invalid or expired token")

	// ErrInvalidInput matches every *ValidationError.
	ErrInvalidInput = errors.New("invalid input")
)

// ValidationError reports caller input rejected before anything is stored.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string { return e.Err.Error() }

func (e *ValidationError) Unwrap() error { return e.Err }

// Is matches ErrInvalidInput.
func (e *ValidationError) Is(target error) bool { return target == ErrInvalidInput }

func invalidInput(code, field string, err error) error {
	return oops.Code(code).With("field", field).Wrap(&ValidationError{Field: field, Err: err})
}

func invalidCredentials() error {
	return oops.Code(CodeInvalidCredentials).Wrap(ErrInvalidCredentials)
}

func userAlreadyExists() error {
	return oops.Code(CodeUserAlreadyExists).Wrap(ErrUserAlreadyExists)
}

func invalidToken() error {
	return oops.Code(CodeInvalidToken).Wrap(ErrInvalidToken)
}

// DuplicateEmail wraps ErrDuplicateEmail for repository implementations.
func DuplicateEmail(email string) error {
	return oops.Code(CodeDuplicateEmail).With("email", email).Wrap(ErrDuplicateEmail)
}
