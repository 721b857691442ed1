// Watchlog Intake - OCR Watch History Extraction Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchlog-intake

package api

import (
	"net/http"

	"github.com/goccy/go-json"

	"github.com/tomtom215/watchlog-intake/internal/logging"
)

// errorBody is the wire shape for all error responses.
type errorBody struct {
	Error   bool   `json:"error"`
	Message string `json:"message"`
}

// rateLimitBody extends errorBody with the retry guidance clients need to
// back off correctly.
type rateLimitBody struct {
	Error             bool   `json:"error"`
	Message           string `json:"message"`
	RetryAfterSeconds int    `json:"retryAfterSeconds"`
	LimitPerMinute    int    `json:"limitPerMinute"`
	LimitPerDay       int    `json:"limitPerDay"`
	Window            string `json:"window"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger := logging.WithComponent("api")
		logger.Error().Err(err).Msg("encode response")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorBody{Error: true, Message: message})
}
