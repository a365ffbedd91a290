// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/gatehouse/gatehouse/internal/auth"

// Operation names reported to the Recorder.
const (
	OpRegister     = "register"
	OpLogin        = "login"
	OpAuthenticate = "authenticate"
	OpLogout       = "logout"
	OpLogoutAll    = "logout_all"
)

// Outcome labels reported to the Recorder.
const (
	OutcomeSuccess            = "success"
	OutcomeInvalidCredentials = "invalid_credentials"
	OutcomeUserExists         = "user_exists"
	OutcomeInvalidToken       = "invalid_token"
	OutcomeError              = "error"
)

// Recorder receives one observation per service operation.
type Recorder interface {
	ObserveOperation(operation, outcome string, duration time.Duration)
}

type noopRecorder struct{}

func (noopRecorder) ObserveOperation(string, string, time.Duration) {}

// RegisterInput is the payload of a registration request.
type RegisterInput struct {
	Email    string
	Name     string
	Password string
}

// LoginInput is the payload of a login request.
type LoginInput struct {
	Email    string
	Password string
}

// AuthResult is returned by successful Register and Login calls.
type AuthResult struct {
	User    *User
	Token   string
	Session *Session
}

// Principal is the identity behind an authenticated bearer token.
type Principal struct {
	User    *User
	Session *Session
	Claims  *TokenClaims
}

// Service provides authentication operations.
type Service struct {
	users      UserRepository
	sessions   SessionRepository
	hasher     PasswordHasher
	tokens     TokenIssuer
	sessionTTL time.Duration
	now        func() time.Time
	logger     *slog.Logger
	recorder   Recorder
	tracer     trace.Tracer
}

// Option configures a Service.
type Option func(*Service) error

// WithSessionTTL sets the lifetime of sessions created by Register and Login.
func WithSessionTTL(ttl time.Duration) Option {
	return func(s *Service) error {
		if ttl <= 0 {
			return oops.Code("AUTH_INVALID_CONFIG").
				With("session_ttl", ttl.String()).
				Errorf("session ttl must be positive")
		}
		s.sessionTTL = ttl
		return nil
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) error {
		if now == nil {
			return oops.Code("AUTH_INVALID_CONFIG").Errorf("clock is required")
		}
		s.now = now
		return nil
	}
}

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) error {
		if logger == nil {
			return oops.Code("AUTH_INVALID_CONFIG").Errorf("logger is required")
		}
		s.logger = logger
		return nil
	}
}

// WithRecorder sets the metrics sink.
func WithRecorder(r Recorder) Option {
	return func(s *Service) error {
		if r == nil {
			return oops.Code("AUTH_INVALID_CONFIG").Errorf("recorder is required")
		}
		s.recorder = r
		return nil
	}
}

// WithTracerProvider sets the provider service spans are created from.
// Defaults to the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Service) error {
		if tp == nil {
			return oops.Code("AUTH_INVALID_CONFIG").Errorf("tracer provider is required")
		}
		s.tracer = tp.Tracer(tracerName)
		return nil
	}
}

// NewAuthService creates a new Service.
func NewAuthService(users UserRepository, sessions SessionRepository, hasher PasswordHasher, tokens TokenIssuer, opts ...Option) (*Service, error) {
	if users == nil {
		return nil, oops.Code("AUTH_INVALID_CONFIG").Errorf("users repository is required")
	}
	if sessions == nil {
		return nil, oops.Code("AUTH_INVALID_CONFIG").Errorf("sessions repository is required")
	}
	if hasher == nil {
		return nil, oops.Code("AUTH_INVALID_CONFIG").Errorf("password hasher is required")
	}
	if tokens == nil {
		return nil, oops.Code("AUTH_INVALID_CONFIG").Errorf("token issuer is required")
	}

	s := &Service{
		users:      users,
		sessions:   sessions,
		hasher:     hasher,
		tokens:     tokens,
		sessionTTL: DefaultSessionTTL,
		now:        time.Now,
		logger:     slog.Default(),
		recorder:   noopRecorder{},
		tracer:     otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// SessionTTL returns the configured session lifetime.
func (s *Service) SessionTTL() time.Duration {
	return s.sessionTTL
}

// Register creates an account and its first session.
func (s *Service) Register(ctx context.Context, in RegisterInput) (result *AuthResult, err error) {
	ctx, end := s.begin(ctx, OpRegister)
	defer func() { end(err) }()

	_, err = s.users.GetByEmail(ctx, in.Email)
	switch {
	case err == nil:
		return nil, userAlreadyExists()
	case !errors.Is(err, ErrNotFound):
		return nil, oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "get user by email").
			Wrap(err)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidInput) {
			return nil, err
		}
		return nil, oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "hash password").
			Wrap(err)
	}

	user, err := NewUser(in.Email, in.Name, s.now())
	if err != nil {
		return nil, err
	}

	if err = s.users.Create(ctx, user, hash); err != nil {
		if errors.Is(err, ErrDuplicateEmail) {
			return nil, userAlreadyExists()
		}
		return nil, oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "create user").
			Wrap(err)
	}

	result, err = s.startSession(ctx, user)
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "user registered", "user_id", user.ID.String())
	return result, nil
}

// Login authenticates a user by email and password and creates a session.
// Unknown email, missing credential, and wrong password all return
// ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, in LoginInput) (result *AuthResult, err error) {
	ctx, end := s.begin(ctx, OpLogin)
	defer func() { end(err) }()

	user, err := s.users.GetByEmail(ctx, in.Email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, invalidCredentials()
		}
		return nil, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "get user by email").
			Wrap(err)
	}

	hash, err := s.users.GetPasswordHash(ctx, user.ID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, invalidCredentials()
		}
		return nil, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "get password hash").
			With("user_id", user.ID.String()).
			Wrap(err)
	}

	if !s.hasher.Compare(in.Password, hash) {
		return nil, invalidCredentials()
	}

	result, err = s.startSession(ctx, user)
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "user logged in", "user_id", user.ID.String())
	return result, nil
}

// startSession runs the shared tail of both workflows: mint a token,
// persist its session, then stamp the login time.
func (s *Service) startSession(ctx context.Context, user *User) (*AuthResult, error) {
	token, err := s.tokens.Generate(TokenClaims{
		Subject: user.ID.String(),
		Email:   user.Email,
	})
	if err != nil {
		return nil, oops.Code("AUTH_TOKEN_GENERATE_FAILED").
			With("operation", "generate token").
			With("user_id", user.ID.String()).
			Wrap(err)
	}

	now := s.now()
	session, err := NewSession(user.ID, token, now.Add(s.sessionTTL), now)
	if err != nil {
		return nil, oops.Code("AUTH_SESSION_CREATE_FAILED").
			With("operation", "build session").
			Wrap(err)
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, oops.Code("AUTH_SESSION_CREATE_FAILED").
			With("operation", "persist session").
			With("user_id", user.ID.String()).
			Wrap(err)
	}

	loginAt := s.now()
	if err := s.users.UpdateLastLoginAt(ctx, user.ID, loginAt); err != nil {
		return nil, oops.Code("AUTH_LAST_LOGIN_UPDATE_FAILED").
			With("operation", "update last login").
			With("user_id", user.ID.String()).
			Wrap(err)
	}
	if user.LastLoginAt == nil || loginAt.After(*user.LastLoginAt) {
		user.LastLoginAt = &loginAt
	}
	if loginAt.After(user.UpdatedAt) {
		user.UpdatedAt = loginAt
	}

	return &AuthResult{User: user, Token: token, Session: session}, nil
}

// Authenticate resolves a bearer token to its user and live session.
func (s *Service) Authenticate(ctx context.Context, token string) (principal *Principal, err error) {
	ctx, end := s.begin(ctx, OpAuthenticate)
	defer func() { end(err) }()

	claims, err := s.tokens.Verify(token)
	if err != nil {
		return nil, invalidToken()
	}

	session, err := s.sessions.GetByToken(ctx, token)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, invalidToken()
		}
		return nil, oops.Code("AUTH_AUTHENTICATE_FAILED").
			With("operation", "get session by token").
			Wrap(err)
	}
	if session.IsExpiredAt(s.now()) {
		return nil, invalidToken()
	}
	if session.UserID.String() != claims.Subject {
		s.logger.WarnContext(ctx, "session owner does not match token subject",
			"session_id", session.ID.String(),
			"subject", claims.Subject)
		return nil, invalidToken()
	}

	user, err := s.users.GetByID(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, invalidToken()
		}
		return nil, oops.Code("AUTH_AUTHENTICATE_FAILED").
			With("operation", "get user by id").
			With("user_id", session.UserID.String()).
			Wrap(err)
	}

	return &Principal{User: user, Session: session, Claims: claims}, nil
}

// Logout deletes the session behind a bearer token.
func (s *Service) Logout(ctx context.Context, token string) (err error) {
	ctx, end := s.begin(ctx, OpLogout)
	defer func() { end(err) }()

	if token == "" {
		return invalidToken()
	}
	if err = s.sessions.DeleteByToken(ctx, token); err != nil {
		if errors.Is(err, ErrNotFound) {
			return invalidToken()
		}
		return oops.Code("AUTH_LOGOUT_FAILED").
			With("operation", "delete session by token").
			Wrap(err)
	}
	return nil
}

// LogoutAll deletes every session owned by a user and returns the count.
func (s *Service) LogoutAll(ctx context.Context, userID ulid.ULID) (n int64, err error) {
	ctx, end := s.begin(ctx, OpLogoutAll)
	defer func() { end(err) }()

	n, err = s.sessions.DeleteByUser(ctx, userID)
	if err != nil {
		return 0, oops.Code("AUTH_LOGOUT_FAILED").
			With("operation", "delete sessions by user").
			With("user_id", userID.String()).
			Wrap(err)
	}
	s.logger.InfoContext(ctx, "sessions revoked", "user_id", userID.String(), "count", n)
	return n, nil
}

// begin opens the span and timer for one operation. The returned func
// ends both with the operation's error.
func (s *Service) begin(ctx context.Context, operation string) (context.Context, func(error)) {
	start := s.now()
	ctx, span := s.tracer.Start(ctx, "auth."+operation)
	return ctx, func(err error) {
		outcome := Outcome(err)
		span.SetAttributes(attribute.String("auth.outcome", outcome))
		if outcome == OutcomeError {
			span.RecordError(err)
			span.SetStatus(codes.Error, "operation failed")
		}
		span.End()
		s.recorder.ObserveOperation(operation, outcome, s.now().Sub(start))
	}
}

// Outcome classifies a service error into a Recorder outcome label.
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.Is(err, ErrInvalidCredentials):
		return OutcomeInvalidCredentials
	case errors.Is(err, ErrUserAlreadyExists):
		return OutcomeUserExists
	case errors.Is(err, ErrInvalidToken):
		return OutcomeInvalidToken
	default:
		return OutcomeError
	}
}
