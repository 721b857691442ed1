// Watchlog Intake - OCR Watch History Extraction Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchlog-intake

package failover

import (
	"context"
	"errors"
	"testing"
)

func ok(v string) func(context.Context) (string, error) {
	return func(context.Context) (string, error) { return v, nil }
}

func fail(err error) func(context.Context) (string, error) {
	return func(context.Context) (string, error) { return "", err }
}

func TestPrimarySuccess(t *testing.T) {
	result, err := Run(context.Background(), ok("primary-value"), ok("secondary-value"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Source != SourcePrimary {
		t.Errorf("expected primary source, got %q", result.Source)
	}
	if result.Value != "primary-value" {
		t.Errorf("expected primary value, got %q", result.Value)
	}
}

func TestPrimaryFailureFallsBack(t *testing.T) {
	result, err := Run(context.Background(), fail(errors.New("primary down")), ok("secondary-value"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Source != SourceSecondary {
		t.Errorf("expected secondary source, got %q", result.Source)
	}
	if result.Value != "secondary-value" {
		t.Errorf("expected secondary value, got %q", result.Value)
	}
}

func TestNoSecondaryReturnsPrimaryError(t *testing.T) {
	primaryErr := errors.New("primary down")
	_, err := Run[string](context.Background(), fail(primaryErr), nil)
	if !errors.Is(err, primaryErr) {
		t.Errorf("expected primary error, got %v", err)
	}
}

func TestBothFailSecondaryErrorWins(t *testing.T) {
	primaryErr := errors.New("primary down")
	secondaryErr := errors.New("secondary down")

	_, err := Run(context.Background(), fail(primaryErr), fail(secondaryErr))
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, secondaryErr) {
		t.Errorf("expected error to unwrap to secondary's, got %v", err)
	}
	// The primary's root cause must remain visible for diagnostics.
	var both *BothFailedError
	if !errors.As(err, &both) {
		t.Fatalf("expected BothFailedError, got %T", err)
	}
	if !errors.Is(both.Primary, primaryErr) {
		t.Errorf("expected primary error attached, got %v", both.Primary)
	}
}

func TestSecondaryOnlyRunsAfterPrimaryFails(t *testing.T) {
	secondaryRan := false
	_, err := Run(context.Background(), ok("v"), func(context.Context) (string, error) {
		secondaryRan = true
		return "unused", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if secondaryRan {
		t.Error("secondary must not run when primary succeeds")
	}
}

func TestSequentialInvocation(t *testing.T) {
	order := make([]string, 0, 2)
	_, _ = Run(context.Background(),
		func(context.Context) (string, error) {
			order = append(order, "primary")
			return "", errors.New("down")
		},
		func(context.Context) (string, error) {
			order = append(order, "secondary")
			return "v", nil
		})

	if len(order) != 2 || order[0] != "primary" || order[1] != "secondary" {
		t.Errorf("expected strict primary-then-secondary order, got %v", order)
	}
}
