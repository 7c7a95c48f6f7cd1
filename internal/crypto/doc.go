// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hushkey Contributors

// Package crypto provides the primitives the credential protocols are
// built on: RSA-2048 key pairs in PEM form, RSA-OAEP encryption for
// short identifiers, PKCS#1 v1.5 signatures over SHA-256 digests,
// AES-CBC with a prepended random IV for client-side key wrapping, and
// PBKDF2 key derivation.
//
// Everything here is synchronous and CPU-bound. Randomness comes from
// crypto/rand only where documented (key generation, IVs); all other
// operations are deterministic for fixed inputs.
//
// The server side of the protocols never decrypts client-held secrets;
// the symmetric half of this package exists for clients and tests.
package crypto
