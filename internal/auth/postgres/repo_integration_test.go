// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

//go:build integration

package postgres_test

import (
	"context"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"golang.org/x/crypto/bcrypt"

	"github.com/gatehouse/gatehouse/internal/auth"
	"github.com/gatehouse/gatehouse/internal/auth/postgres"
)

func now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

func mustUser(email string) *auth.User {
	u, err := auth.NewUser(email, "Test", now())
	Expect(err).NotTo(HaveOccurred())
	return u
}

var _ = Describe("UserRepository", func() {
	var (
		ctx   context.Context
		users *postgres.UserRepository
	)

	BeforeEach(func() {
		ctx = context.Background()
		users = postgres.NewUserRepository(testPool)
	})

	It("round-trips a user without exposing the hash", func() {
		u := mustUser("a@x.com")
		Expect(users.Create(ctx, u, "hash-1")).To(Succeed())

		got, err := users.GetByEmail(ctx, "a@x.com")
		Expect(err).NotTo(HaveOccurred())
		Expect(got.ID).To(Equal(u.ID))
		Expect(got.LastLoginAt).To(BeNil())

		hash, err := users.GetPasswordHash(ctx, u.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(hash).To(Equal("hash-1"))
	})

	It("treats email as case-sensitive", func() {
		Expect(users.Create(ctx, mustUser("a@x.com"), "h")).To(Succeed())
		_, err := users.GetByEmail(ctx, "A@X.COM")
		Expect(err).To(MatchError(auth.ErrNotFound))
	})

	It("reports duplicate email and leaves no orphan credential", func() {
		Expect(users.Create(ctx, mustUser("a@x.com"), "h")).To(Succeed())

		dup := mustUser("a@x.com")
		err := users.Create(ctx, dup, "h")
		Expect(err).To(MatchError(auth.ErrDuplicateEmail))

		_, err = users.GetPasswordHash(ctx, dup.ID)
		Expect(err).To(MatchError(auth.ErrNotFound))
	})

	It("lets exactly one concurrent registration win", func() {
		const workers = 8
		var wg sync.WaitGroup
		errs := make(chan error, workers)
		for range workers {
			wg.Add(1)
			go func() {
				defer GinkgoRecover()
				defer wg.Done()
				errs <- users.Create(ctx, mustUser("race@x.com"), "h")
			}()
		}
		wg.Wait()
		close(errs)

		wins := 0
		for err := range errs {
			if err == nil {
				wins++
				continue
			}
			Expect(err).To(MatchError(auth.ErrDuplicateEmail))
		}
		Expect(wins).To(Equal(1))
	})

	It("returns the newest credential", func() {
		u := mustUser("a@x.com")
		Expect(users.Create(ctx, u, "old")).To(Succeed())

		cred, err := auth.NewPasswordCredential(u.ID, "new", u.CreatedAt.Add(time.Second))
		Expect(err).NotTo(HaveOccurred())
		Expect(users.AddCredential(ctx, cred)).To(Succeed())

		hash, err := users.GetPasswordHash(ctx, u.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(hash).To(Equal("new"))
	})

	It("never moves last login backwards", func() {
		u := mustUser("a@x.com")
		Expect(users.Create(ctx, u, "h")).To(Succeed())

		later := u.CreatedAt.Add(2 * time.Hour)
		Expect(users.UpdateLastLoginAt(ctx, u.ID, later)).To(Succeed())
		Expect(users.UpdateLastLoginAt(ctx, u.ID, u.CreatedAt.Add(time.Hour))).To(Succeed())

		got, err := users.GetByID(ctx, u.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(*got.LastLoginAt).To(BeTemporally("==", later))
		Expect(got.UpdatedAt).To(BeTemporally("==", later))
	})
})

var _ = Describe("SessionRepository", func() {
	var (
		ctx      context.Context
		users    *postgres.UserRepository
		sessions *postgres.SessionRepository
		owner    *auth.User
	)

	BeforeEach(func() {
		ctx = context.Background()
		users = postgres.NewUserRepository(testPool)
		sessions = postgres.NewSessionRepository(testPool)
		owner = mustUser("owner@x.com")
		Expect(users.Create(ctx, owner, "h")).To(Succeed())
	})

	newSession := func(token string, ttl time.Duration) *auth.Session {
		t := now()
		s, err := auth.NewSession(owner.ID, token, t.Add(ttl), t)
		Expect(err).NotTo(HaveOccurred())
		return s
	}

	It("stores only the token hash", func() {
		s := newSession("plain-token", time.Hour)
		Expect(sessions.Create(ctx, s)).To(Succeed())

		var stored string
		Expect(testPool.QueryRow(ctx, `SELECT token_hash FROM sessions WHERE id = $1`, s.ID.String()).Scan(&stored)).To(Succeed())
		Expect(stored).NotTo(Equal("plain-token"))
		Expect(stored).To(Equal(auth.HashSessionToken("plain-token")))

		got, err := sessions.GetByToken(ctx, "plain-token")
		Expect(err).NotTo(HaveOccurred())
		Expect(got.ID).To(Equal(s.ID))
		Expect(got.UserID).To(Equal(owner.ID))
	})

	It("deletes by token, user, and expiry", func() {
		Expect(sessions.Create(ctx, newSession("a", time.Hour))).To(Succeed())
		Expect(sessions.Create(ctx, newSession("b", time.Hour))).To(Succeed())
		Expect(sessions.Create(ctx, newSession("c", time.Millisecond))).To(Succeed())

		Expect(sessions.DeleteByToken(ctx, "a")).To(Succeed())
		Expect(sessions.DeleteByToken(ctx, "a")).To(MatchError(auth.ErrNotFound))

		n, err := sessions.DeleteExpired(ctx, now().Add(time.Second))
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(int64(1)))

		n, err = sessions.DeleteByUser(ctx, owner.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(int64(1)))
	})

	It("cascades when the owner is removed", func() {
		Expect(sessions.Create(ctx, newSession("a", time.Hour))).To(Succeed())
		_, err := testPool.Exec(ctx, `DELETE FROM users WHERE id = $1`, owner.ID.String())
		Expect(err).NotTo(HaveOccurred())

		_, err = sessions.GetByToken(ctx, "a")
		Expect(err).To(MatchError(auth.ErrNotFound))
	})
})

var _ = Describe("Service over PostgreSQL", func() {
	It("registers and logs in", func() {
		ctx := context.Background()
		issuer, err := auth.NewJWTIssuer(auth.TokenConfig{Secret: []byte("integration")})
		Expect(err).NotTo(HaveOccurred())
		svc, err := auth.NewAuthService(
			postgres.NewUserRepository(testPool),
			postgres.NewSessionRepository(testPool),
			auth.NewBcryptHasher(bcrypt.MinCost),
			issuer,
		)
		Expect(err).NotTo(HaveOccurred())

		_, err = svc.Register(ctx, auth.RegisterInput{Email: "a@x.com", Name: "A", Password: "secret1"})
		Expect(err).NotTo(HaveOccurred())

		_, err = svc.Register(ctx, auth.RegisterInput{Email: "a@x.com", Name: "A", Password: "secret1"})
		Expect(err).To(MatchError(auth.ErrUserAlreadyExists))

		res, err := svc.Login(ctx, auth.LoginInput{Email: "a@x.com", Password: "secret1"})
		Expect(err).NotTo(HaveOccurred())

		p, err := svc.Authenticate(ctx, res.Token)
		Expect(err).NotTo(HaveOccurred())
		Expect(p.User.Email).To(Equal("a@x.com"))
		Expect(p.User.LastLoginAt).NotTo(BeNil())

		_, err = svc.Login(ctx, auth.LoginInput{Email: "a@x.com", Password: "wrong"})
		Expect(err).To(MatchError(auth.ErrInvalidCredentials))
	})
})
