// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hushkey Contributors

package auth

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// SessionTTL is the lifetime of a session from issuance.
const SessionTTL = 30 * 24 * time.Hour

// Session represents an issued session. The ID doubles as the bearer
// credential: it is set as a plaintext cookie and additionally returned
// to the client encrypted under the user's public key.
type Session struct {
	ID        ulid.ULID
	UserID    ulid.ULID
	ExpiresAt time.Time
	CreatedAt time.Time
}

// NewSession creates a validated Session owned by the given user.
func NewSession(userID ulid.ULID, expiresAt time.Time) (*Session, error) {
	if userID.Compare(ulid.ULID{}) == 0 {
		return nil, oops.Code("SESSION_INVALID_USER").Errorf("user ID cannot be zero")
	}
	if expiresAt.IsZero() {
		return nil, oops.Code("SESSION_INVALID_EXPIRY").Errorf("expiry time cannot be zero")
	}

	return &Session{
		ID:        ulid.Make(),
		UserID:    userID,
		ExpiresAt: expiresAt,
		CreatedAt: time.Now(),
	}, nil
}

// IsExpired returns true if the session has expired.
func (s *Session) IsExpired() bool {
	return s.IsExpiredAt(time.Now())
}

// IsExpiredAt returns true if the session would be expired at the given
// time. Useful for testing with deterministic time values.
func (s *Session) IsExpiredAt(t time.Time) bool {
	return t.After(s.ExpiresAt)
}

// SessionRepository manages session persistence.
type SessionRepository interface {
	// Create stores a new session.
	Create(ctx context.Context, session *Session) error

	// GetByID retrieves a session by ID.
	GetByID(ctx context.Context, id ulid.ULID) (*Session, error)

	// Delete removes a session by ID. Returns ErrNotFound (wrapped)
	// when no such session exists.
	Delete(ctx context.Context, id ulid.ULID) error

	// DeleteExpired removes all sessions whose expiry is in the past
	// and returns the count of deleted records.
	DeleteExpired(ctx context.Context) (int64, error)
}
