// Watchlog Intake - OCR Watch History Extraction Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchlog-intake

// Package models holds the wire types shared across the intake pipeline.
package models

// APIVersion is the intake payload version reported in every response.
const APIVersion = "1.2.0"

// IntakeItem is one enriched, user-facing watch history record.
type IntakeItem struct {
	Title      string         `json:"title"`
	Channel    string         `json:"channel"`
	Time       *string        `json:"time"`
	VideoID    string         `json:"videoId"`
	Duration   string         `json:"duration"`
	Thumbnails map[string]any `json:"thumbnails"`
}

// HealthChecks reports the structural state of the pipeline's optional
// collaborators.
type HealthChecks struct {
	// RateLimit is "ok" or "disabled".
	RateLimit string `json:"rate_limit"`
	// Metrics is "ok", "disabled", or "misconfigured".
	Metrics string `json:"metrics"`
	// LLM is "primary_only" or "secondary_configured".
	LLM string `json:"llm"`
}

// HealthStatus is the fixed payload returned by the health short-circuit.
type HealthStatus struct {
	Status    string       `json:"status"`
	Version   string       `json:"version"`
	Timestamp string       `json:"timestamp"`
	Checks    HealthChecks `json:"checks"`
}

// IntakeResponse is the versioned success payload.
type IntakeResponse struct {
	Version string        `json:"version"`
	Items   []IntakeItem  `json:"items"`
	Health  *HealthStatus `json:"health,omitempty"`
}
