// Watchlog Intake - OCR Watch History Extraction Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchlog-intake

package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/watchlog-intake/internal/logging"
	"github.com/tomtom215/watchlog-intake/internal/metrics"
)

// Stats tracks cache performance counters for one Cache instance.
type Stats struct {
	Hits   int64
	Misses int64
}

// Cache is a typed, fail-open view over a Store.
//
// All operations are fail-open: a backend or codec error is logged and
// treated as a miss (Get) or a no-op (Set). A caching failure must never
// abort the request pipeline.
//
// Two instances exist in the service with identical contracts but different
// keyspaces and TTLs: the LLM response cache (6h, keyed by a content hash of
// the prompt) and the metadata cache (24h, keyed by the external video ID).
type Cache[T any] struct {
	store Store
	name  string
	ttl   time.Duration

	mu    sync.Mutex
	stats Stats
}

// New creates a typed cache over the given store. The name labels hit/miss
// metrics; ttl is the default entry lifetime.
func New[T any](store Store, name string, ttl time.Duration) *Cache[T] {
	return &Cache[T]{store: store, name: name, ttl: ttl}
}

// Get returns the cached value for key, or (zero, false) on miss, expiry, or
// any backend failure.
func (c *Cache[T]) Get(ctx context.Context, key string) (T, bool) {
	var zero T

	data, ok, err := c.store.Get(ctx, key)
	if err != nil {
		logging.Ctx(ctx).Debug().Err(err).Str("cache", c.name).Msg("Cache read failed, treating as miss")
		c.recordMiss()
		return zero, false
	}
	if !ok {
		c.recordMiss()
		return zero, false
	}

	var value T
	if err := json.Unmarshal(data, &value); err != nil {
		// A corrupt entry is useless; drop it so the next write replaces it.
		logging.Ctx(ctx).Debug().Err(err).Str("cache", c.name).Msg("Cache entry decode failed, discarding")
		_ = c.store.Delete(ctx, key)
		c.recordMiss()
		return zero, false
	}

	c.recordHit()
	return value, true
}

// Set stores the value under key with the cache's default TTL. Backend
// failures are swallowed.
func (c *Cache[T]) Set(ctx context.Context, key string, value T) {
	c.SetWithTTL(ctx, key, value, c.ttl)
}

// SetWithTTL stores the value with a custom TTL. Backend failures are
// swallowed.
func (c *Cache[T]) SetWithTTL(ctx context.Context, key string, value T, ttl time.Duration) {
	data, err := json.Marshal(value)
	if err != nil {
		logging.Ctx(ctx).Debug().Err(err).Str("cache", c.name).Msg("Cache entry encode failed, skipping")
		return
	}
	if err := c.store.Set(ctx, key, data, ttl); err != nil {
		logging.Ctx(ctx).Debug().Err(err).Str("cache", c.name).Msg("Cache write failed, skipping")
	}
}

// GetStats returns a snapshot of the hit/miss counters.
func (c *Cache[T]) GetStats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

func (c *Cache[T]) recordHit() {
	c.mu.Lock()
	c.stats.Hits++
	c.mu.Unlock()
	metrics.CacheHits.WithLabelValues(c.name).Inc()
}

func (c *Cache[T]) recordMiss() {
	c.mu.Lock()
	c.stats.Misses++
	c.mu.Unlock()
	metrics.CacheMisses.WithLabelValues(c.name).Inc()
}

// HashKey returns the lowercase hex SHA-256 of the input, used to derive
// compact cache keys from large values such as prompts.
func HashKey(input string) string {
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])
}
