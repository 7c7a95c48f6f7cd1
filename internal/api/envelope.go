// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hushkey Contributors

package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// envelope is the fixed response shape. Data is omitted on failures.
type envelope struct {
	Error   bool   `json:"error"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func writeSuccess(w http.ResponseWriter, logger *slog.Logger, message string, data any) {
	writeJSON(w, logger, http.StatusOK, envelope{Error: false, Message: message, Data: data})
}

func writeError(w http.ResponseWriter, logger *slog.Logger, status int, message string) {
	writeJSON(w, logger, status, envelope{Error: true, Message: message})
}

func writeJSON(w http.ResponseWriter, logger *slog.Logger, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		// Headers are gone; nothing to send the client. Log and move on.
		logger.Error("failed to encode response", "error", err)
	}
}
