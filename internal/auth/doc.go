// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

// Package auth provides the authentication core for Gatehouse.
//
// # Domain Types
//
// Domain types (User, Session) should be created using their constructors:
//   - NewUser - creates a User with validated email and name
//   - NewSession - creates a Session bound to a user, token, and expiry
//
// Password hashes are never part of User. They live in PasswordCredential
// records and are read back only through UserRepository.GetPasswordHash.
//
// # Services
//
// Service coordinates the Register and Login workflows plus bearer-token
// authentication and logout. It is created with NewAuthService, which
// validates its dependencies:
//   - UserRepository and SessionRepository (storage gateways)
//   - PasswordHasher (BcryptHasher or Argon2idHasher)
//   - TokenIssuer (JWTIssuer)
//
// Workflow steps run strictly in order and are not transactional across
// gateways. Failures are returned as the sentinel errors in errors.go.
package auth
