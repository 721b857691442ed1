// Watchlog Intake - OCR Watch History Extraction Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchlog-intake

// Package metrics provides Prometheus instrumentation for the intake pipeline
// and the anonymized per-request metric records persisted to the metrics sink.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Intake Pipeline Metrics
	IntakeRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "intake_requests_total",
			Help: "Total number of intake requests",
		},
		[]string{"outcome"}, // "success", "rate_limited", "input_error", "health", "internal_error"
	)

	IntakeRequestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "intake_request_duration_seconds",
			Help:    "Intake request duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}, // LLM calls dominate the tail
		},
	)

	RateLimitRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "intake_rate_limit_rejections_total",
			Help: "Total number of rate limit rejections",
		},
		[]string{"window"}, // "minute", "day"
	)

	// Cache Metrics
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "intake_cache_hits_total",
			Help: "Total number of cache hits",
		},
		[]string{"cache"}, // "llm", "metadata"
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "intake_cache_misses_total",
			Help: "Total number of cache misses",
		},
		[]string{"cache"},
	)

	// Provider Metrics
	ProviderCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "intake_provider_calls_total",
			Help: "Total number of LLM provider calls",
		},
		[]string{"provider", "outcome"}, // outcome: "success", "failure", "timeout"
	)

	EnrichmentCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "intake_enrichment_calls_total",
			Help: "Total number of video metadata API calls",
		},
		[]string{"outcome"}, // "success", "failure", "cache_hit", "degraded"
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "intake_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "intake_circuit_breaker_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)

	// Metric Sink Metrics
	MetricRecordsPersisted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "intake_metric_records_total",
			Help: "Total number of per-request metric records persisted",
		},
		[]string{"outcome"}, // "ok", "error", "skipped"
	)
)
