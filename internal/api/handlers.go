// Watchlog Intake - OCR Watch History Extraction Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchlog-intake

package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/watchlog-intake/internal/intake"
	"github.com/tomtom215/watchlog-intake/internal/logging"
	"github.com/tomtom215/watchlog-intake/internal/metrics"
	"github.com/tomtom215/watchlog-intake/internal/ratelimit"
)

type handler struct {
	pipeline *intake.Pipeline
}

func (h *handler) intake(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	outcome := "success"
	defer func() {
		metrics.IntakeRequestsTotal.WithLabelValues(outcome).Inc()
		metrics.IntakeRequestDuration.Observe(time.Since(start).Seconds())
	}()

	var req intake.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		outcome = "input_error"
		writeError(w, http.StatusBadRequest, "Request JSON parse failed")
		return
	}

	resp, err := h.pipeline.Handle(r.Context(), req, r.Header.Get("Authorization"))
	if err != nil {
		var inputErr *intake.InputError
		var rateErr *ratelimit.Error
		switch {
		case errors.As(err, &inputErr):
			outcome = "input_error"
			writeError(w, http.StatusBadRequest, inputErr.Message)
		case errors.As(err, &rateErr):
			outcome = "rate_limited"
			w.Header().Set("Retry-After", strconv.Itoa(rateErr.RetryAfterSeconds))
			writeJSON(w, http.StatusTooManyRequests, rateLimitBody{
				Error:             true,
				Message:           "Rate limit exceeded",
				RetryAfterSeconds: rateErr.RetryAfterSeconds,
				LimitPerMinute:    rateErr.LimitPerMinute,
				LimitPerDay:       rateErr.LimitPerDay,
				Window:            string(rateErr.Window),
			})
		default:
			outcome = "internal_error"
			logging.Ctx(r.Context()).Error().Err(err).Msg("intake request failed")
			writeError(w, http.StatusInternalServerError, "Internal server error")
		}
		return
	}

	if resp.Health != nil {
		outcome = "health"
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) liveness(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
