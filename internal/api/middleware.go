// Watchlog Intake - OCR Watch History Extraction Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchlog-intake

package api

import (
	"net/http"
	"strings"

	"github.com/tomtom215/watchlog-intake/internal/logging"
)

const requestIDHeader = "X-Request-Id"

// requestID propagates an inbound request ID, or mints one, into the
// request context and the response headers. X-Correlation-Id is honored as
// a fallback for callers behind older gateways.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if id == "" {
			id = strings.TrimSpace(r.Header.Get("X-Correlation-Id"))
		}
		if id == "" {
			id = logging.GenerateRequestID()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(logging.ContextWithRequestID(r.Context(), id)))
	})
}
