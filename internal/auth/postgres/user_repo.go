// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hushkey Contributors

// Package postgres implements the auth repositories using PostgreSQL.
package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/hushkey/hushkey/internal/auth"
)

// PgxPool is the subset of *pgxpool.Pool the repositories use. pgxmock
// satisfies it, so repository behavior is unit-testable without a
// database.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// UserRepository implements auth.UserRepository using PostgreSQL.
type UserRepository struct {
	pool PgxPool
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(pool PgxPool) *UserRepository {
	return &UserRepository{pool: pool}
}

// Create stores a new user. The UNIQUE constraint on username is the
// uniqueness source of truth; its violation maps to ErrUsernameTaken.
func (r *UserRepository) Create(ctx context.Context, user *auth.User) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO users (id, username, public_key, salt, encrypted_private_key, password_digest, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		user.ID.String(),
		user.Username,
		user.PublicKey,
		user.Salt,
		user.EncryptedPrivateKey,
		user.PasswordDigest,
		user.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return oops.Code("USER_USERNAME_TAKEN").
				With("username", user.Username).
				Wrap(auth.ErrUsernameTaken)
		}
		return oops.Code("USER_CREATE_FAILED").
			With("operation", "insert user").
			With("username", user.Username).
			Wrap(err)
	}
	return nil
}

// GetByUsername retrieves a user by exact username.
func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*auth.User, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, username, public_key, salt, encrypted_private_key, password_digest, created_at
		FROM users
		WHERE username = $1
	`, username)

	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").
			With("username", username).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_GET_FAILED").
			With("operation", "get user by username").
			With("username", username).
			Wrap(err)
	}
	return user, nil
}

// GetByUsernameAndDigest retrieves a user whose username and password
// digest both match, in a single query. A wrong username and a wrong
// digest are the same ErrNotFound.
func (r *UserRepository) GetByUsernameAndDigest(ctx context.Context, username, passwordDigest string) (*auth.User, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, username, public_key, salt, encrypted_private_key, password_digest, created_at
		FROM users
		WHERE username = $1 AND password_digest = $2
	`, username, passwordDigest)

	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_GET_FAILED").
			With("operation", "get user by username and digest").
			Wrap(err)
	}
	return user, nil
}

func scanUser(row pgx.Row) (*auth.User, error) {
	var user auth.User
	var idStr string

	if err := row.Scan(
		&idStr,
		&user.Username,
		&user.PublicKey,
		&user.Salt,
		&user.EncryptedPrivateKey,
		&user.PasswordDigest,
		&user.CreatedAt,
	); err != nil {
		return nil, err
	}

	id, err := ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("USER_CORRUPT_ID").
			With("id", idStr).
			Wrap(err)
	}
	user.ID = id
	return &user, nil
}
