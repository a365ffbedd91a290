// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/samber/oops"
)

// Token defaults.
const (
	DefaultTokenIssuer = "gatehouse"
	DefaultTokenTTL    = 24 * time.Hour
)

// TokenClaims identifies the subject a bearer token was minted for.
type TokenClaims struct {
	Subject   string
	Email     string
	ID        string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// TokenIssuer mints and verifies bearer tokens.
type TokenIssuer interface {
	// Generate signs a time-bounded token carrying the given subject and email.
	Generate(claims TokenClaims) (string, error)

	// Verify checks signature and expiry. Any failure is ErrInvalidToken.
	Verify(token string) (*TokenClaims, error)
}

// TokenConfig holds the process-wide signing configuration.
type TokenConfig struct {
	Secret []byte
	Issuer string
	TTL    time.Duration

	// Clock overrides time.Now for issuing and validation.
	Clock func() time.Time
}

// jwtClaims is the wire form of TokenClaims.
type jwtClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// JWTIssuer implements TokenIssuer with HS256-signed JWTs.
type JWTIssuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
	parser *jwt.Parser
}

// NewJWTIssuer creates a JWTIssuer. The secret is required; issuer and TTL
// fall back to DefaultTokenIssuer and DefaultTokenTTL.
func NewJWTIssuer(cfg TokenConfig) (*JWTIssuer, error) {
	if len(cfg.Secret) == 0 {
		return nil, oops.Code("AUTH_TOKEN_SECRET_REQUIRED").Errorf("token signing secret is required")
	}
	if cfg.TTL < 0 {
		return nil, oops.Code("AUTH_TOKEN_TTL_INVALID").
			With("ttl", cfg.TTL.String()).
			Errorf("token ttl must be positive")
	}
	issuer := cfg.Issuer
	if issuer == "" {
		issuer = DefaultTokenIssuer
	}
	ttl := cfg.TTL
	if ttl == 0 {
		ttl = DefaultTokenTTL
	}

	now := cfg.Clock
	if now == nil {
		now = time.Now
	}

	secret := make([]byte, len(cfg.Secret))
	copy(secret, cfg.Secret)

	i := &JWTIssuer{
		secret: secret,
		issuer: issuer,
		ttl:    ttl,
		now:    now,
	}
	i.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return i.now() }),
	)
	return i, nil
}

// TTL returns the lifetime of minted tokens.
func (i *JWTIssuer) TTL() time.Duration {
	return i.ttl
}

// Generate signs a token for the given claims.
func (i *JWTIssuer) Generate(claims TokenClaims) (string, error) {
	if claims.Subject == "" {
		return "", oops.Code("AUTH_TOKEN_SUBJECT_REQUIRED").Errorf("token subject is required")
	}

	now := i.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwtClaims{
		Email: claims.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   claims.Subject,
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	})

	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", oops.Code("AUTH_TOKEN_SIGN_FAILED").
			With("subject", claims.Subject).
			Wrap(err)
	}
	return signed, nil
}

// Verify parses and validates a signed token.
func (i *JWTIssuer) Verify(token string) (*TokenClaims, error) {
	if token == "" {
		return nil, invalidToken()
	}

	claims := &jwtClaims{}
	parsed, err := i.parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return i.secret, nil
	})
	if err != nil || !parsed.Valid || claims.Subject == "" {
		return nil, invalidToken()
	}

	out := &TokenClaims{
		Subject: claims.Subject,
		Email:   claims.Email,
		ID:      claims.ID,
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	return out, nil
}

// Compile-time interface check.
var _ TokenIssuer = (*JWTIssuer)(nil)
