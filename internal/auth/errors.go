// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hushkey Contributors

package auth

import "errors"

// Sentinel errors for expected protocol outcomes. Callers branch on
// these with errors.Is; oops codes carry the surrounding context.
var (
	// ErrNotFound is returned when a requested entity does not exist.
	// Login deliberately returns it for both an unknown username and a
	// wrong digest so the two cases cannot be told apart.
	ErrNotFound = errors.New("not found")

	// ErrUsernameTaken is returned when registration collides with an
	// existing username.
	ErrUsernameTaken = errors.New("username already taken")

	// ErrSignatureInvalid is returned when a registration signature
	// cleanly fails to verify against the supplied public key.
	ErrSignatureInvalid = errors.New("signature verification failed")

	// ErrSignatureCheck is returned when signature verification could
	// not be performed at all (malformed key material). Distinct from
	// ErrSignatureInvalid: this is a server-side error, not a client
	// outcome.
	ErrSignatureCheck = errors.New("signature verification error")
)
