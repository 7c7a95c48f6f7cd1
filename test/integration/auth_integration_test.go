// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hushkey Contributors

//go:build integration

// Package integration provides end-to-end tests against a real
// PostgreSQL instance.
package integration

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	pgcontainer "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/hushkey/hushkey/internal/auth"
	"github.com/hushkey/hushkey/internal/auth/postgres"
	"github.com/hushkey/hushkey/internal/crypto"
	"github.com/hushkey/hushkey/internal/store"
)

// setupDatabase starts a disposable PostgreSQL container, applies all
// migrations, and returns a connected pool.
func setupDatabase(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	container, err := pgcontainer.Run(ctx, "postgres:17-alpine",
		pgcontainer.WithDatabase("hushkey"),
		pgcontainer.WithUsername("hushkey"),
		pgcontainer.WithPassword("hushkey"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if termErr := container.Terminate(context.Background()); termErr != nil {
			t.Logf("failed to terminate container: %v", termErr)
		}
	})

	url, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	migrator, err := store.NewMigrator(url)
	require.NoError(t, err)
	require.NoError(t, migrator.Up())
	require.NoError(t, migrator.Close())

	pool, err := store.NewPool(ctx, url)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	return pool
}

func newService(t *testing.T, pool *pgxpool.Pool) *auth.Service {
	t.Helper()
	svc, err := auth.NewService(
		postgres.NewUserRepository(pool),
		postgres.NewSessionRepository(pool),
		nil,
	)
	require.NoError(t, err)
	return svc
}

// registerInput builds the credential bundle a real client computes
// locally, returning the input plus the private key PEM.
func registerInput(t *testing.T, username, password string) (auth.RegisterInput, string) {
	t.Helper()

	pub, priv, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	salt, err := crypto.RandomBytes(16)
	require.NoError(t, err)

	derived := crypto.DeriveKey(password, salt, 1000, 32)
	digest := crypto.Hash(derived)

	wrappedKey, err := crypto.EncryptWithKey(derived, []byte(priv))
	require.NoError(t, err)

	signature, err := crypto.Sign(priv, digest)
	require.NoError(t, err)

	return auth.RegisterInput{
		Username:            username,
		PublicKey:           pub,
		Salt:                crypto.EncodeBase64(salt),
		EncryptedPrivateKey: crypto.EncodeBase64(wrappedKey),
		PasswordDigest:      crypto.EncodeBase64(digest),
		Signature:           crypto.EncodeBase64(signature),
	}, priv
}

func TestAuthFlow(t *testing.T) {
	pool := setupDatabase(t)
	svc := newService(t, pool)
	ctx := context.Background()

	input, priv := registerInput(t, "alice", "hunter22")

	t.Run("register persists and returns decryptable id", func(t *testing.T) {
		encryptedID, err := svc.Register(ctx, input)
		require.NoError(t, err)

		raw, err := crypto.DecodeBase64(encryptedID)
		require.NoError(t, err)
		plainID, err := crypto.DecryptWithPrivateKey(priv, raw)
		require.NoError(t, err)
		_, err = ulid.Parse(string(plainID))
		require.NoError(t, err)
	})

	t.Run("duplicate username hits the unique constraint", func(t *testing.T) {
		dup, _ := registerInput(t, "alice", "different password")
		_, err := svc.Register(ctx, dup)
		assert.ErrorIs(t, err, auth.ErrUsernameTaken)
	})

	var firstSessionID string

	t.Run("login issues a persisted session", func(t *testing.T) {
		result, err := svc.Login(ctx, auth.LoginInput{
			Username:       "alice",
			PasswordDigest: input.PasswordDigest,
		})
		require.NoError(t, err)
		firstSessionID = result.SessionID

		session, err := svc.ValidateSession(ctx, result.SessionID)
		require.NoError(t, err)
		assert.WithinDuration(t, time.Now().Add(auth.SessionTTL), session.ExpiresAt, time.Minute)

		// The wrapped private key round-trips through the database.
		assert.Equal(t, input.EncryptedPrivateKey, result.EncryptedPrivateKey)
	})

	t.Run("relogin invalidates the prior session", func(t *testing.T) {
		result, err := svc.Login(ctx, auth.LoginInput{
			Username:       "alice",
			PasswordDigest: input.PasswordDigest,
			PriorSessionID: firstSessionID,
		})
		require.NoError(t, err)
		assert.NotEqual(t, firstSessionID, result.SessionID)

		_, err = svc.ValidateSession(ctx, firstSessionID)
		assert.ErrorIs(t, err, auth.ErrNotFound)
	})

	t.Run("wrong digest finds no user", func(t *testing.T) {
		_, err := svc.Login(ctx, auth.LoginInput{
			Username:       "alice",
			PasswordDigest: crypto.EncodeBase64([]byte("wrong")),
		})
		assert.ErrorIs(t, err, auth.ErrNotFound)
	})

	t.Run("lookups round-trip stored credentials", func(t *testing.T) {
		salt, err := svc.LookupSalt(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, input.Salt, salt)

		publicKey, err := svc.LookupPublicKey(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, input.PublicKey, publicKey)
	})

	t.Run("sweep removes expired sessions", func(t *testing.T) {
		expired, err := auth.NewSession(ulid.Make(), time.Now().Add(-time.Hour))
		require.NoError(t, err)
		// Sessions reference users; reuse alice's id via a fresh login.
		result, err := svc.Login(ctx, auth.LoginInput{
			Username:       "alice",
			PasswordDigest: input.PasswordDigest,
		})
		require.NoError(t, err)

		live, err := svc.ValidateSession(ctx, result.SessionID)
		require.NoError(t, err)

		expired.UserID = live.UserID
		repo := postgres.NewSessionRepository(pool)
		require.NoError(t, repo.Create(ctx, expired))

		n, err := svc.SweepExpiredSessions(ctx)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, n, int64(1))

		_, err = svc.ValidateSession(ctx, expired.ID.String())
		assert.ErrorIs(t, err, auth.ErrNotFound)
	})
}
