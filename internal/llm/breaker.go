// Watchlog Intake - OCR Watch History Extraction Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchlog-intake

package llm

import (
	"context"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/tomtom215/watchlog-intake/internal/logging"
	"github.com/tomtom215/watchlog-intake/internal/metrics"
)

// BreakerConfig tunes the circuit breaker around a provider.
type BreakerConfig struct {
	// MaxRequests allowed through while half-open.
	MaxRequests uint32
	// Interval resets the failure counts while closed.
	Interval time.Duration
	// Timeout is how long the breaker stays open before probing.
	Timeout time.Duration
	// ConsecutiveFailures trips the breaker.
	ConsecutiveFailures uint32
}

// DefaultBreakerConfig returns conservative settings: trip after five
// consecutive failures, probe again after 30 seconds.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxRequests:         1,
		Interval:            time.Minute,
		Timeout:             30 * time.Second,
		ConsecutiveFailures: 5,
	}
}

// BreakerProvider wraps a Provider with a circuit breaker so a flapping
// upstream sheds load fast instead of burning the 30-second call timeout on
// every request.
type BreakerProvider struct {
	inner   Provider
	breaker *gobreaker.CircuitBreaker[string]
}

// NewBreakerProvider wraps inner with a circuit breaker using cfg.
func NewBreakerProvider(inner Provider, cfg BreakerConfig) *BreakerProvider {
	name := inner.Name()
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateGaugeValue(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
			logger := logging.WithComponent("llm")
			logger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state change")
		},
	}
	metrics.CircuitBreakerState.WithLabelValues(name).Set(stateGaugeValue(gobreaker.StateClosed))
	return &BreakerProvider{
		inner:   inner,
		breaker: gobreaker.NewCircuitBreaker[string](settings),
	}
}

func stateGaugeValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	default:
		return 2
	}
}

// Name implements Provider.
func (b *BreakerProvider) Name() string { return b.inner.Name() }

// Complete implements Provider. While the breaker is open, calls fail
// immediately with gobreaker.ErrOpenState.
func (b *BreakerProvider) Complete(ctx context.Context, prompt string) (string, error) {
	return b.breaker.Execute(func() (string, error) {
		return b.inner.Complete(ctx, prompt)
	})
}
