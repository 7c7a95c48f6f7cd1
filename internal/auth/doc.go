// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hushkey Contributors

// Package auth implements credential registration and session issuance.
//
// # Domain Types
//
// Domain types (User, Session) should be created using their
// constructors:
//   - NewUser - creates a User with a validated username and fresh ID
//   - NewSession - creates a Session with validated owner and expiry
//
// Direct struct initialization bypasses validation and may create
// invalid state. Repository implementations receive pre-validated
// types from these constructors.
//
// # Protocol
//
// The server never sees a plaintext password. Clients derive a
// symmetric key from their password via PBKDF2 over a self-chosen
// salt, wrap their RSA private key under it, and hash the derived key
// into a password digest. Registration proves possession of the
// private key with a signature over the digest; login is a pure
// equality lookup of (username, digest). Session identifiers are
// returned encrypted under the user's public key so only the holder
// of the private key can read them.
//
// The Service coordinates these operations against injected
// repositories; it holds no state of its own between calls.
package auth
