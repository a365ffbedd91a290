// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

// Package api exposes the authentication service over HTTP.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/gatehouse/gatehouse/internal/auth"
)

// DefaultRequestTimeout bounds a request when Options leaves it unset.
const DefaultRequestTimeout = 30 * time.Second

// Service is the subset of auth.Service the HTTP layer drives.
type Service interface {
	Register(ctx context.Context, in auth.RegisterInput) (*auth.AuthResult, error)
	Login(ctx context.Context, in auth.LoginInput) (*auth.AuthResult, error)
	Authenticate(ctx context.Context, token string) (*auth.Principal, error)
	Logout(ctx context.Context, token string) error
	LogoutAll(ctx context.Context, userID ulid.ULID) (int64, error)
}

// Metrics counts served requests.
type Metrics interface {
	ObserveHTTPRequest(route string, status int)
}

type noopMetrics struct{}

func (noopMetrics) ObserveHTTPRequest(string, int) {}

// Options configures the router.
type Options struct {
	Service Service
	Logger  *slog.Logger
	Metrics Metrics

	RequestTimeout time.Duration
	CORSOrigins    []string

	// UserExistsStatus is 409 (default) or 400.
	UserExistsStatus int

	Clock func() time.Time
}

type handler struct {
	svc              Service
	logger           *slog.Logger
	metrics          Metrics
	validate         *validator.Validate
	userExistsStatus int
	now              func() time.Time
}

// NewRouter builds the HTTP handler for the authentication API.
func NewRouter(opts Options) (http.Handler, error) {
	if opts.Service == nil {
		return nil, oops.Code("API_INVALID_CONFIG").Errorf("service is required")
	}
	switch opts.UserExistsStatus {
	case 0:
		opts.UserExistsStatus = http.StatusConflict
	case http.StatusConflict, http.StatusBadRequest:
	default:
		return nil, oops.Code("API_INVALID_CONFIG").
			With("user_exists_status", opts.UserExistsStatus).
			Errorf("user exists status must be 400 or 409")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = noopMetrics{}
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = DefaultRequestTimeout
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	h := &handler{
		svc:              opts.Service,
		logger:           opts.Logger,
		metrics:          opts.Metrics,
		validate:         newValidator(),
		userExistsStatus: opts.UserExistsStatus,
		now:              opts.Clock,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(h.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(opts.RequestTimeout))
	if len(opts.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: opts.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
			ExposedHeaders: []string{middleware.RequestIDHeader},
			MaxAge:         300,
		}))
	}

	r.NotFound(h.notFound)
	r.MethodNotAllowed(h.methodNotAllowed)

	r.Get("/healthz", h.healthz)
	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", h.register)
		r.Post("/login", h.login)

		r.Group(func(r chi.Router) {
			r.Use(h.requireAuth)
			r.Get("/me", h.me)
			r.Post("/logout", h.logout)
			r.Post("/logout-all", h.logoutAll)
		})
	})

	return r, nil
}
