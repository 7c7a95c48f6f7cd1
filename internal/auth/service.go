// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hushkey Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/hushkey/hushkey/internal/crypto"
)

// Service coordinates registration, session issuance, and credential
// discovery. It is stateless between calls; all durable state lives
// behind the injected repositories.
type Service struct {
	users    UserRepository
	sessions SessionRepository
	logger   *slog.Logger
}

// NewService creates a Service. The logger may be nil, in which case
// slog.Default() is used.
func NewService(users UserRepository, sessions SessionRepository, logger *slog.Logger) (*Service, error) {
	if users == nil {
		return nil, oops.Code("AUTH_INVALID_DEPS").Errorf("users repository is required")
	}
	if sessions == nil {
		return nil, oops.Code("AUTH_INVALID_DEPS").Errorf("sessions repository is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{users: users, sessions: sessions, logger: logger}, nil
}

// RegisterInput carries the credential bundle an untrusted client
// submits. All byte-valued fields arrive base64-encoded.
type RegisterInput struct {
	Username            string
	PublicKey           string // PEM
	Salt                string // base64
	EncryptedPrivateKey string // base64
	PasswordDigest      string // base64
	Signature           string // base64, over the raw digest bytes
}

// Register validates proof of private-key possession, enforces
// username uniqueness, and persists the credential bundle. On success
// it returns the new user's ID encrypted under the client's own public
// key, base64-encoded, so only the client can read the identifier the
// server assigned. No session is created.
func (s *Service) Register(ctx context.Context, in RegisterInput) (string, error) {
	if err := ValidateUsername(in.Username); err != nil {
		return "", err
	}

	digest, err := crypto.DecodeBase64(in.PasswordDigest)
	if err != nil {
		return "", oops.Code("AUTH_INVALID_INPUT").
			With("field", "passwordDigest").
			Wrap(err)
	}
	signature, err := crypto.DecodeBase64(in.Signature)
	if err != nil {
		return "", oops.Code("AUTH_INVALID_INPUT").
			With("field", "signature").
			Wrap(err)
	}

	// Proof of possession: the signature must verify against the
	// supplied public key over the raw digest bytes. A clean false and
	// a crypto failure are distinct outcomes (403 vs 500 at the edge).
	valid, verifyErr := crypto.Verify(in.PublicKey, digest, signature)
	if verifyErr != nil {
		return "", oops.Code("AUTH_SIGNATURE_CHECK_FAILED").
			With("username", in.Username).
			With("cause", verifyErr.Error()).
			Wrap(ErrSignatureCheck)
	}
	if !valid {
		return "", oops.Code("AUTH_SIGNATURE_INVALID").
			With("username", in.Username).
			Wrap(ErrSignatureInvalid)
	}

	// Fast-path conflict check. The UNIQUE constraint behind
	// UserRepository.Create remains the source of truth; this lookup
	// only spares the common case a failed insert.
	if _, err := s.users.GetByUsername(ctx, in.Username); err == nil {
		return "", oops.Code("AUTH_USERNAME_TAKEN").
			With("username", in.Username).
			Wrap(ErrUsernameTaken)
	} else if !errors.Is(err, ErrNotFound) {
		return "", oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "lookup existing username").
			Wrap(err)
	}

	user, err := NewUser(in.Username, in.PublicKey, in.Salt, in.EncryptedPrivateKey, in.PasswordDigest)
	if err != nil {
		return "", err
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, ErrUsernameTaken) {
			// Lost the race to a concurrent registration; the
			// constraint reported it, same outcome as the fast path.
			return "", err
		}
		return "", oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "create user").
			Wrap(err)
	}

	encryptedID, err := crypto.EncryptWithPublicKey(user.PublicKey, []byte(user.ID.String()))
	if err != nil {
		return "", oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "encrypt user id").
			Wrap(err)
	}

	s.logger.Info("user registered", "username", user.Username, "user_id", user.ID.String())
	return crypto.EncodeBase64(encryptedID), nil
}

// LoginInput carries a login attempt. PriorSessionID is the session
// cookie the client already holds, if any; it is invalidated on
// successful re-login.
type LoginInput struct {
	Username       string
	PasswordDigest string // base64, computed identically to registration
	PriorSessionID string // plaintext session id from the cookie, may be empty
}

// LoginResult is what a successful login yields. SessionID is the
// plaintext bearer credential for the cookie; EncryptedSessionID is
// the same identifier under the user's public key, a client-side
// confirmation receipt only. PublicKey and EncryptedPrivateKey let a
// fresh device recover its key material.
type LoginResult struct {
	SessionID           string
	EncryptedSessionID  string // base64
	PublicKey           string // PEM
	EncryptedPrivateKey string // base64
	ExpiresAt           time.Time
}

// Login re-validates credentials with a single equality lookup and
// issues a brand-new session. Login is not idempotent: every call
// creates a session and invalidates at most one prior session. The
// prior-session deletion is best-effort and never blocks issuance.
func (s *Service) Login(ctx context.Context, in LoginInput) (*LoginResult, error) {
	// One query for both username and digest: a wrong name and a wrong
	// digest are indistinguishable to the caller.
	user, err := s.users.GetByUsernameAndDigest(ctx, in.Username, in.PasswordDigest)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, oops.Code("AUTH_USER_NOT_FOUND").Wrap(ErrNotFound)
		}
		return nil, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "lookup credentials").
			Wrap(err)
	}

	s.invalidatePriorSession(ctx, in.PriorSessionID)

	session, err := NewSession(user.ID, time.Now().Add(SessionTTL))
	if err != nil {
		return nil, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "create session").
			Wrap(err)
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, oops.Code("AUTH_SESSION_CREATE_FAILED").
			With("operation", "persist session").
			Wrap(err)
	}

	encryptedSessionID, err := crypto.EncryptWithPublicKey(user.PublicKey, []byte(session.ID.String()))
	if err != nil {
		return nil, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "encrypt session id").
			Wrap(err)
	}

	s.logger.Info("session issued", "username", user.Username, "session_id", session.ID.String())
	return &LoginResult{
		SessionID:           session.ID.String(),
		EncryptedSessionID:  crypto.EncodeBase64(encryptedSessionID),
		PublicKey:           user.PublicKey,
		EncryptedPrivateKey: user.EncryptedPrivateKey,
		ExpiresAt:           session.ExpiresAt,
	}, nil
}

// invalidatePriorSession deletes the session a re-logging-in client
// already holds. Failures are logged, never surfaced: a stale row is
// cleaned up by the expiry sweep eventually.
func (s *Service) invalidatePriorSession(ctx context.Context, priorID string) {
	if priorID == "" {
		return
	}
	id, err := ulid.Parse(priorID)
	if err != nil {
		s.logger.Debug("ignoring malformed prior session id")
		return
	}
	if err := s.sessions.Delete(ctx, id); err != nil && !errors.Is(err, ErrNotFound) {
		s.logger.Error("failed to invalidate prior session", "session_id", priorID, "error", err)
	}
}

// LookupSalt returns the stored salt for a username. Salts are not
// secret; this exists so a client on a new device can re-derive its
// password digest.
func (s *Service) LookupSalt(ctx context.Context, username string) (string, error) {
	user, err := s.getByUsername(ctx, username)
	if err != nil {
		return "", err
	}
	return user.Salt, nil
}

// LookupPublicKey returns the stored public key for a username.
func (s *Service) LookupPublicKey(ctx context.Context, username string) (string, error) {
	user, err := s.getByUsername(ctx, username)
	if err != nil {
		return "", err
	}
	return user.PublicKey, nil
}

func (s *Service) getByUsername(ctx context.Context, username string) (*User, error) {
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, oops.Code("AUTH_USER_NOT_FOUND").Wrap(ErrNotFound)
		}
		return nil, oops.Code("AUTH_LOOKUP_FAILED").
			With("operation", "get user by username").
			Wrap(err)
	}
	return user, nil
}

// ValidateSession resolves a plaintext session id to its session row,
// rejecting expired sessions. Expiry is enforced here even though the
// sweep removes expired rows physically: a row past its ExpiresAt is
// logically invalid the moment the clock passes it.
func (s *Service) ValidateSession(ctx context.Context, sessionID string) (*Session, error) {
	id, err := ulid.Parse(sessionID)
	if err != nil {
		return nil, oops.Code("SESSION_INVALID").Wrap(ErrNotFound)
	}

	session, err := s.sessions.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, oops.Code("SESSION_INVALID").Wrap(ErrNotFound)
		}
		return nil, oops.Code("SESSION_VALIDATE_FAILED").
			With("operation", "get session by id").
			Wrap(err)
	}

	if session.IsExpired() {
		return nil, oops.Code("SESSION_EXPIRED").Wrap(ErrNotFound)
	}
	return session, nil
}

// SweepExpiredSessions removes expired session rows and reports the
// count. Called periodically by the serve command.
func (s *Service) SweepExpiredSessions(ctx context.Context) (int64, error) {
	n, err := s.sessions.DeleteExpired(ctx)
	if err != nil {
		return 0, oops.Code("SESSION_SWEEP_FAILED").Wrap(err)
	}
	if n > 0 {
		s.logger.Info("expired sessions removed", "count", n)
	}
	return n, nil
}
