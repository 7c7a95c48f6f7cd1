// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hushkey Contributors

package auth

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Username validation constraints. Usernames are case-sensitive; the
// lower bound matches what clients are told at registration time.
const (
	MinUsernameLength = 2
	MaxUsernameLength = 64
)

// User represents a registered credential bundle. All secret-bearing
// fields (Salt, EncryptedPrivateKey, PasswordDigest) are opaque base64
// strings: the server stores and compares them but never decodes or
// derives from them.
type User struct {
	ID                  ulid.ULID
	Username            string
	PublicKey           string // PEM
	Salt                string // base64, client-chosen
	EncryptedPrivateKey string // base64, wrapped under the password-derived key
	PasswordDigest      string // base64, equality-compared only
	CreatedAt           time.Time
}

// NewUser creates a validated User with a fresh server-generated ID.
func NewUser(username, publicKey, salt, encryptedPrivateKey, passwordDigest string) (*User, error) {
	if err := ValidateUsername(username); err != nil {
		return nil, err
	}
	if publicKey == "" {
		return nil, oops.Code("AUTH_INVALID_USER").Errorf("public key cannot be empty")
	}
	if salt == "" {
		return nil, oops.Code("AUTH_INVALID_USER").Errorf("salt cannot be empty")
	}
	if encryptedPrivateKey == "" {
		return nil, oops.Code("AUTH_INVALID_USER").Errorf("encrypted private key cannot be empty")
	}
	if passwordDigest == "" {
		return nil, oops.Code("AUTH_INVALID_USER").Errorf("password digest cannot be empty")
	}

	return &User{
		ID:                  ulid.Make(),
		Username:            username,
		PublicKey:           publicKey,
		Salt:                salt,
		EncryptedPrivateKey: encryptedPrivateKey,
		PasswordDigest:      passwordDigest,
		CreatedAt:           time.Now(),
	}, nil
}

// ValidateUsername validates a username against length rules. No
// charset restriction beyond non-emptiness: usernames are compared
// byte-for-byte and never interpreted.
func ValidateUsername(username string) error {
	if len(username) < MinUsernameLength {
		return oops.Code("AUTH_INVALID_USERNAME").
			With("min", MinUsernameLength).
			Errorf("username must be at least %d characters", MinUsernameLength)
	}
	if len(username) > MaxUsernameLength {
		return oops.Code("AUTH_INVALID_USERNAME").
			With("max", MaxUsernameLength).
			Errorf("username must be at most %d characters", MaxUsernameLength)
	}
	return nil
}

// UserRepository manages user persistence. The storage layer owns the
// username uniqueness guarantee: Create must fail with
// ErrUsernameTaken on a duplicate regardless of any prior lookup.
type UserRepository interface {
	// Create stores a new user. Returns ErrUsernameTaken (wrapped) when
	// the username already exists.
	Create(ctx context.Context, user *User) error

	// GetByUsername retrieves a user by exact username.
	GetByUsername(ctx context.Context, username string) (*User, error)

	// GetByUsernameAndDigest retrieves a user whose username and
	// password digest both match, in a single query. Returns
	// ErrNotFound (wrapped) when either does not match.
	GetByUsernameAndDigest(ctx context.Context, username, passwordDigest string) (*User, error)
}
