// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hushkey Contributors

package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hushkey/hushkey/internal/auth"
	"github.com/hushkey/hushkey/pkg/errutil"
)

// SessionCookieName is the cookie carrying the plaintext session id.
const SessionCookieName = "session"

// Handler serves the credential protocol routes.
type Handler struct {
	svc    *auth.Service
	logger *slog.Logger
}

// NewHandler creates a Handler around the auth service.
func NewHandler(svc *auth.Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{svc: svc, logger: logger}
}

type registerRequest struct {
	Username            string `json:"username"`
	PublicKey           string `json:"publicKey"`
	Salt                string `json:"salt"`
	EncryptedPrivateKey string `json:"encryptedPrivateKey"`
	PasswordDigest      string `json:"passwordDigest"`
	Signature           string `json:"signature"`
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := auth.ValidateUsername(req.Username); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "Invalid username")
		return
	}
	if req.PublicKey == "" || req.Salt == "" || req.EncryptedPrivateKey == "" ||
		req.PasswordDigest == "" || req.Signature == "" {
		writeError(w, h.logger, http.StatusBadRequest, "Missing required fields")
		return
	}

	encryptedID, err := h.svc.Register(r.Context(), auth.RegisterInput{
		Username:            req.Username,
		PublicKey:           req.PublicKey,
		Salt:                req.Salt,
		EncryptedPrivateKey: req.EncryptedPrivateKey,
		PasswordDigest:      req.PasswordDigest,
		Signature:           req.Signature,
	})
	if err != nil {
		h.writeProtocolError(w, "registration failed", err)
		return
	}

	writeSuccess(w, h.logger, "User registered successfully", map[string]string{
		"encryptedId": encryptedID,
	})
}

type loginRequest struct {
	Username       string `json:"username"`
	PasswordDigest string `json:"passwordDigest"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Username == "" || req.PasswordDigest == "" {
		writeError(w, h.logger, http.StatusBadRequest, "Missing required fields")
		return
	}

	// A session cookie from a previous login marks that session for
	// invalidation; its absence is the common case.
	var priorSessionID string
	if cookie, err := r.Cookie(SessionCookieName); err == nil {
		priorSessionID = cookie.Value
	}

	result, err := h.svc.Login(r.Context(), auth.LoginInput{
		Username:       req.Username,
		PasswordDigest: req.PasswordDigest,
		PriorSessionID: priorSessionID,
	})
	if err != nil {
		h.writeProtocolError(w, "login failed", err)
		return
	}

	// The plaintext id is the bearer credential; the encrypted copy in
	// the body is a confirmation receipt only the key holder can read.
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    result.SessionID,
		Path:     "/",
		MaxAge:   int(auth.SessionTTL.Seconds()),
		Expires:  result.ExpiresAt,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})

	writeSuccess(w, h.logger, "User logged in successfully", map[string]string{
		"encryptedSessionId":  result.EncryptedSessionID,
		"publicKey":           result.PublicKey,
		"encryptedPrivateKey": result.EncryptedPrivateKey,
	})
}

func (h *Handler) handleSalt(w http.ResponseWriter, r *http.Request) {
	salt, err := h.svc.LookupSalt(r.Context(), r.PathValue("username"))
	if err != nil {
		h.writeProtocolError(w, "salt lookup failed", err)
		return
	}
	writeSuccess(w, h.logger, "Salt fetched successfully", map[string]string{
		"salt": salt,
	})
}

func (h *Handler) handlePublicKey(w http.ResponseWriter, r *http.Request) {
	publicKey, err := h.svc.LookupPublicKey(r.Context(), r.PathValue("username"))
	if err != nil {
		h.writeProtocolError(w, "public key lookup failed", err)
		return
	}
	writeSuccess(w, h.logger, "Public key fetched successfully", map[string]string{
		"publicKey": publicKey,
	})
}

// writeProtocolError maps a service error to exactly one HTTP status.
// Anything unrecognized is an opaque 500: internal detail stays in the
// server log, never in the response.
func (h *Handler) writeProtocolError(w http.ResponseWriter, msg string, err error) {
	switch {
	case errors.Is(err, auth.ErrSignatureInvalid):
		writeError(w, h.logger, http.StatusForbidden, "Signature verification failed")
	case errors.Is(err, auth.ErrSignatureCheck):
		errutil.LogError(h.logger, msg, err)
		writeError(w, h.logger, http.StatusInternalServerError, "Signature verification error")
	case errors.Is(err, auth.ErrUsernameTaken):
		writeError(w, h.logger, http.StatusConflict, "Username already exists")
	case errors.Is(err, auth.ErrNotFound):
		writeError(w, h.logger, http.StatusNotFound, "User not found")
	default:
		errutil.LogError(h.logger, msg, err)
		writeError(w, h.logger, http.StatusInternalServerError, "Database error")
	}
}
