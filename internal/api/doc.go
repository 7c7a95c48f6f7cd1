// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hushkey Contributors

// Package api exposes the credential protocols over JSON/HTTP.
//
// Routes:
//
//	POST /register                    register a credential bundle
//	POST /login                       issue a session
//	GET  /user/{username}/salt        salt discovery
//	GET  /user/{username}/public-key  public key discovery
//	GET  /healthz, /readyz, /metrics  operational endpoints
//
// Success responses use {"error":false,"message":...,"data":...};
// failures use {"error":true,"message":...}. Field names are part of
// the wire contract and must not change.
//
// Login delivers the session identifier twice: as a plaintext HttpOnly
// cookie (the bearer credential for subsequent requests) and encrypted
// under the user's public key in the response body. The encrypted copy
// is a confirmation receipt the client can self-verify; it does not
// add confidentiality beyond what the cookie channel already has, and
// should not be mistaken for doing so.
package api
