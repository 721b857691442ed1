// Watchlog Intake - OCR Watch History Extraction Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchlog-intake

package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/tomtom215/watchlog-intake/internal/cache"
	"github.com/tomtom215/watchlog-intake/internal/failover"
	"github.com/tomtom215/watchlog-intake/internal/logging"
	"github.com/tomtom215/watchlog-intake/internal/metrics"
)

// ErrNoSecondary is returned by CompleteSecondary when no secondary
// provider is configured.
var ErrNoSecondary = errors.New("llm: no secondary provider configured")

// Result is the outcome of a completion, carrying provenance for outcome
// classification and metrics.
type Result struct {
	Content  string
	Source   failover.Source
	CacheHit bool
}

// Service runs completions through a response cache and primary/secondary
// failover. Secondary is optional.
type Service struct {
	primary   Provider
	secondary Provider
	cache     *cache.Cache[string]
}

// NewService builds a Service. secondary may be nil; responses is the
// prompt-keyed completion cache and may be nil to disable caching.
func NewService(primary, secondary Provider, responses *cache.Cache[string]) *Service {
	return &Service{primary: primary, secondary: secondary, cache: responses}
}

// HasSecondary reports whether a secondary provider is configured.
func (s *Service) HasSecondary() bool { return s.secondary != nil }

// Complete returns the raw model content for prompt. Identical prompts
// within the cache TTL are served from cache without touching either
// provider. On a miss the primary runs first; only if it fails does the
// secondary run. Only primary responses are cached — secondary output is a
// degraded stand-in, not canonical.
func (s *Service) Complete(ctx context.Context, prompt string) (Result, error) {
	key := cache.HashKey(prompt)
	if s.cache != nil {
		if content, ok := s.cache.Get(ctx, key); ok {
			return Result{Content: content, Source: failover.SourcePrimary, CacheHit: true}, nil
		}
	}

	var secondary func(context.Context) (string, error)
	if s.secondary != nil {
		secondary = s.instrumented(s.secondary, prompt)
	}

	result, err := failover.Run(ctx, s.instrumented(s.primary, prompt), secondary)
	if err != nil {
		return Result{}, err
	}

	if s.cache != nil && result.Source == failover.SourcePrimary {
		s.cache.Set(ctx, key, result.Value)
	}
	return Result{Content: result.Value, Source: result.Source}, nil
}

// CompleteSecondary calls the secondary provider directly, bypassing the
// cache and failover. Used when the primary answered but its output failed
// validation.
func (s *Service) CompleteSecondary(ctx context.Context, prompt string) (string, error) {
	if s.secondary == nil {
		return "", ErrNoSecondary
	}
	return s.instrumented(s.secondary, prompt)(ctx)
}

// instrumented wraps a provider call with outcome metrics and logging.
func (s *Service) instrumented(p Provider, prompt string) func(context.Context) (string, error) {
	return func(ctx context.Context) (string, error) {
		content, err := p.Complete(ctx, prompt)
		switch {
		case err == nil:
			metrics.ProviderCalls.WithLabelValues(p.Name(), "success").Inc()
		case errors.Is(err, ErrTimeout):
			metrics.ProviderCalls.WithLabelValues(p.Name(), "timeout").Inc()
		default:
			metrics.ProviderCalls.WithLabelValues(p.Name(), "failure").Inc()
		}
		if err != nil {
			logging.Ctx(ctx).Warn().Err(err).Str("provider", p.Name()).Msg("provider call failed")
			return "", fmt.Errorf("provider %s: %w", p.Name(), err)
		}
		return content, nil
	}
}
