// Watchlog Intake - OCR Watch History Extraction Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchlog-intake

// Package llm talks to OpenAI-compatible chat completion endpoints and
// layers caching, circuit breaking, and primary/secondary failover on top.
package llm

import (
	"context"
	"errors"
)

// ErrTimeout marks a completion call that exceeded the per-call deadline.
// Callers distinguish it from other transport failures when classifying
// outcomes.
var ErrTimeout = errors.New("llm: completion timed out")

// Provider executes a single chat completion round-trip.
type Provider interface {
	// Complete sends the prompt and returns the model's raw message content.
	Complete(ctx context.Context, prompt string) (string, error)
	// Name identifies the provider in logs and metrics.
	Name() string
}
