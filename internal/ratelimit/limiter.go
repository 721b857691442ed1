// Watchlog Intake - OCR Watch History Extraction Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchlog-intake

// Package ratelimit implements dual fixed-window admission control keyed by
// a hashed identity.
//
// Each identity gets independent counters for a minute window and a day
// window. Bucket keys embed the window start epoch, so buckets auto-partition
// by time and stale buckets expire from the store without explicit cleanup.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/watchlog-intake/internal/logging"
	"github.com/tomtom215/watchlog-intake/internal/metrics"
)

// Window identifies which fixed window rejected a request.
type Window string

const (
	WindowMinute Window = "minute"
	WindowDay    Window = "day"
)

const (
	minuteWindow = time.Minute
	dayWindow    = 24 * time.Hour

	// recordGrace pads the stored record's TTL past the window end so a
	// bucket never expires while still in its window.
	recordGrace = time.Second
)

// Error reports a quota rejection. It carries everything the API layer
// needs to build the 429 response.
type Error struct {
	Window            Window
	RetryAfterSeconds int
	LimitPerMinute    int
	LimitPerDay       int
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("rate limit exceeded (%s window, retry after %ds)", e.Window, e.RetryAfterSeconds)
}

// Thresholds holds the per-window quotas. A threshold <= 0 disables that
// window's check.
type Thresholds struct {
	PerMinute int
	PerDay    int
}

// Store is the bucket counter backend. Incr must atomically increment the
// bucket and return the resulting count: two concurrent requests must never
// both observe the pre-increment value.
type Store interface {
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

// Limiter enforces the dual fixed-window quota.
type Limiter struct {
	store      Store
	thresholds Thresholds
	disabled   bool
	now        func() time.Time
}

// New creates a limiter. When disabled is true, Check always admits.
func New(store Store, thresholds Thresholds, disabled bool) *Limiter {
	return &Limiter{
		store:      store,
		thresholds: thresholds,
		disabled:   disabled,
		now:        time.Now,
	}
}

// Disabled reports whether all checks are bypassed.
func (l *Limiter) Disabled() bool {
	return l.disabled
}

// Check admits or rejects one request for the given identity.
//
// The minute window is checked first; a minute violation is reported even if
// the day bucket would also be exceeded, and the day counter is not
// incremented in that case. Store failures fail open: quota enforcement is
// best-effort and must not take down intake.
func (l *Limiter) Check(ctx context.Context, identity string) error {
	if l.disabled || identity == "" {
		return nil
	}
	now := l.now()

	if l.thresholds.PerMinute > 0 {
		exceeded, retryAfter := l.increment(ctx, identity, WindowMinute, now)
		if exceeded {
			metrics.RateLimitRejections.WithLabelValues(string(WindowMinute)).Inc()
			return &Error{
				Window:            WindowMinute,
				RetryAfterSeconds: retryAfter,
				LimitPerMinute:    l.thresholds.PerMinute,
				LimitPerDay:       l.thresholds.PerDay,
			}
		}
	}

	if l.thresholds.PerDay > 0 {
		exceeded, retryAfter := l.increment(ctx, identity, WindowDay, now)
		if exceeded {
			metrics.RateLimitRejections.WithLabelValues(string(WindowDay)).Inc()
			return &Error{
				Window:            WindowDay,
				RetryAfterSeconds: retryAfter,
				LimitPerMinute:    l.thresholds.PerMinute,
				LimitPerDay:       l.thresholds.PerDay,
			}
		}
	}

	return nil
}

// increment bumps the identity's bucket for the window containing now and
// reports whether the threshold was exceeded, with the seconds until the
// window rolls over.
func (l *Limiter) increment(ctx context.Context, identity string, window Window, now time.Time) (bool, int) {
	windowDur := minuteWindow
	threshold := l.thresholds.PerMinute
	if window == WindowDay {
		windowDur = dayWindow
		threshold = l.thresholds.PerDay
	}

	windowMs := windowDur.Milliseconds()
	nowMs := now.UnixMilli()
	windowStartMs := nowMs - nowMs%windowMs
	key := fmt.Sprintf("%s:%s:%d", identity, window, windowStartMs)

	count, err := l.store.Incr(ctx, key, windowDur+recordGrace)
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("window", string(window)).Msg("Rate limit store failed, admitting request")
		return false, 0
	}

	if count > int64(threshold) {
		retryMs := windowStartMs + windowMs - nowMs
		retryAfter := int((retryMs + 999) / 1000)
		if retryAfter < 1 {
			retryAfter = 1
		}
		return true, retryAfter
	}
	return false, 0
}
