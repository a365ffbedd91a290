// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package auth_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"golang.org/x/crypto/bcrypt"

	"github.com/gatehouse/gatehouse/internal/auth"
	"github.com/gatehouse/gatehouse/internal/auth/memory"
	"github.com/gatehouse/gatehouse/internal/auth/mocks"
)

func newTracedService(t *testing.T) (*auth.Service, *tracetest.SpanRecorder) {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	issuer, err := auth.NewJWTIssuer(auth.TokenConfig{Secret: []byte("trace-secret")})
	require.NoError(t, err)

	svc, err := auth.NewAuthService(memory.NewUserRepository(), memory.NewSessionRepository(),
		auth.NewBcryptHasher(bcrypt.MinCost), issuer, auth.WithTracerProvider(tp))
	require.NoError(t, err)
	return svc, recorder
}

func outcomeOf(span sdktrace.ReadOnlySpan) string {
	for _, kv := range span.Attributes() {
		if kv.Key == attribute.Key("auth.outcome") {
			return kv.Value.AsString()
		}
	}
	return ""
}

func TestService_Spans(t *testing.T) {
	ctx := context.Background()
	svc, recorder := newTracedService(t)

	reg, err := svc.Register(ctx, auth.RegisterInput{Email: "t@x.com", Name: "T", Password: "secret1"})
	require.NoError(t, err)
	_, err = svc.Login(ctx, auth.LoginInput{Email: "t@x.com", Password: "wrong"})
	require.ErrorIs(t, err, auth.ErrInvalidCredentials)
	_, err = svc.Authenticate(ctx, reg.Token)
	require.NoError(t, err)

	spans := recorder.Ended()
	require.Len(t, spans, 3)

	assert.Equal(t, "auth.register", spans[0].Name())
	assert.Equal(t, auth.OutcomeSuccess, outcomeOf(spans[0]))

	assert.Equal(t, "auth.login", spans[1].Name())
	assert.Equal(t, auth.OutcomeInvalidCredentials, outcomeOf(spans[1]))
	assert.Equal(t, codes.Unset, spans[1].Status().Code, "expected failures are not span errors")

	assert.Equal(t, "auth.authenticate", spans[2].Name())
}

func TestService_SpanErrorStatus(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	users := mocks.NewMockUserRepository(t)
	users.On("GetByEmail", mock.Anything, "c@x.com").Return(nil, errors.New("connection reset"))

	svc, err := auth.NewAuthService(users, mocks.NewMockSessionRepository(t),
		mocks.NewMockPasswordHasher(t), mocks.NewMockTokenIssuer(t), auth.WithTracerProvider(tp))
	require.NoError(t, err)

	_, err = svc.Register(context.Background(), auth.RegisterInput{Email: "c@x.com", Name: "C", Password: "secret1"})
	require.Error(t, err)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, auth.OutcomeError, outcomeOf(spans[0]))
	assert.Equal(t, codes.Error, spans[0].Status().Code)
}

func TestWithTracerProvider_RejectsNil(t *testing.T) {
	issuer, err := auth.NewJWTIssuer(auth.TokenConfig{Secret: []byte("trace-secret")})
	require.NoError(t, err)

	_, err = auth.NewAuthService(memory.NewUserRepository(), memory.NewSessionRepository(),
		auth.NewBcryptHasher(bcrypt.MinCost), issuer, auth.WithTracerProvider(nil))
	require.Error(t, err)
}
