// Watchlog Intake - OCR Watch History Extraction Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchlog-intake

// Package failover provides a generic try-primary-then-secondary executor.
// It knows nothing about what "primary" and "secondary" mean; callers supply
// two closures and get back the first successful value with its source.
package failover

import (
	"context"
	"fmt"
)

// Source identifies which closure produced the result.
type Source string

const (
	SourcePrimary   Source = "primary"
	SourceSecondary Source = "secondary"
)

// Result carries a successful value and where it came from.
type Result[T any] struct {
	Source Source
	Value  T
}

// BothFailedError is returned when both closures fail. Unwrap yields the
// secondary's error so existing errors.Is/As checks keep matching the
// "secondary wins" behavior, while the primary's root cause stays attached
// for diagnostics instead of being silently discarded.
type BothFailedError struct {
	Primary   error
	Secondary error
}

// Error implements the error interface.
func (e *BothFailedError) Error() string {
	return fmt.Sprintf("%v (primary also failed: %v)", e.Secondary, e.Primary)
}

// Unwrap returns the secondary's error.
func (e *BothFailedError) Unwrap() error {
	return e.Secondary
}

// Run invokes primary; on success it returns the value tagged
// SourcePrimary. On failure, if secondary is nil the primary's error is
// returned as-is. Otherwise secondary runs — strictly after primary has
// definitively failed, never concurrently — and its value is tagged
// SourceSecondary. If both fail, the returned error unwraps to the
// secondary's error with the primary's attached.
func Run[T any](ctx context.Context, primary func(context.Context) (T, error), secondary func(context.Context) (T, error)) (Result[T], error) {
	value, primaryErr := primary(ctx)
	if primaryErr == nil {
		return Result[T]{Source: SourcePrimary, Value: value}, nil
	}

	if secondary == nil {
		return Result[T]{}, primaryErr
	}

	value, secondaryErr := secondary(ctx)
	if secondaryErr == nil {
		return Result[T]{Source: SourceSecondary, Value: value}, nil
	}

	return Result[T]{}, &BothFailedError{Primary: primaryErr, Secondary: secondaryErr}
}
