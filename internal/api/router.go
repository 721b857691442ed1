// Watchlog Intake - OCR Watch History Extraction Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchlog-intake

// Package api exposes the intake pipeline over HTTP.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/watchlog-intake/internal/intake"
)

// Config tunes the HTTP surface.
type Config struct {
	// AllowedOrigins for CORS. Empty means allow all, matching the public
	// ingestion endpoint this fronts.
	AllowedOrigins []string
	// LivenessRequestsPerMinute guards the unauthenticated liveness probe
	// from being used as a free load generator. Zero disables the guard.
	LivenessRequestsPerMinute int
}

// NewRouter builds the HTTP handler: the intake endpoint, the Prometheus
// scrape endpoint, and a liveness probe.
func NewRouter(pipeline *intake.Pipeline, cfg Config) http.Handler {
	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
		MaxAge:         300,
	}))

	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Allow", "POST, OPTIONS")
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	h := &handler{pipeline: pipeline}
	r.Post("/v1/intake", h.intake)

	r.Group(func(r chi.Router) {
		if cfg.LivenessRequestsPerMinute > 0 {
			r.Use(httprate.LimitByIP(cfg.LivenessRequestsPerMinute, time.Minute))
		}
		r.Get("/v1/health/live", h.liveness)
	})

	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	return r
}
