// Watchlog Intake - OCR Watch History Extraction Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchlog-intake

package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/goccy/go-json"
)

func TestDescribeCacheHit(t *testing.T) {
	tests := []struct {
		llm  bool
		meta bool
		want CacheHitLabel
	}{
		{false, false, CacheHitNone},
		{true, false, CacheHitLLM},
		{false, true, CacheHitMetadata},
		{true, true, CacheHitBoth},
	}

	for _, tt := range tests {
		if got := DescribeCacheHit(tt.llm, tt.meta); got != tt.want {
			t.Errorf("DescribeCacheHit(%v, %v) = %q, want %q", tt.llm, tt.meta, got, tt.want)
		}
	}
}

func TestHashIdentifierDeterministic(t *testing.T) {
	a := HashIdentifier("abc")
	b := HashIdentifier("abc")

	if a != b {
		t.Errorf("expected identical digests, got %q and %q", a, b)
	}
	if len(a) != 64 {
		t.Errorf("expected 64 hex chars, got %d", len(a))
	}
	if a != strings.ToLower(a) {
		t.Error("expected lowercase hex digest")
	}
	// Known SHA-256 of "abc"
	if a != "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad" {
		t.Errorf("unexpected digest %q", a)
	}
}

func TestBuildRecordHashesIdentifiers(t *testing.T) {
	rec := BuildRecord(Payload{
		UserID:    "user-1",
		StarID:    "star-1",
		Success:   true,
		LatencyMs: 42,
		CacheHit:  CacheHitLLM,
		Source:    "youtube_ocr",
	})

	if rec.UserIDHash == "user-1" || rec.StarIDHash == "star-1" {
		t.Error("raw identifiers must not appear in the record")
	}
	if rec.UserIDHash != HashIdentifier("user-1") {
		t.Errorf("unexpected user hash %q", rec.UserIDHash)
	}
	if rec.StarIDHash != HashIdentifier("star-1") {
		t.Errorf("unexpected star hash %q", rec.StarIDHash)
	}
	if !rec.Success || rec.LatencyMs != 42 || rec.CacheHit != CacheHitLLM {
		t.Errorf("unexpected record %+v", rec)
	}
}

func TestBuildRecordDefaults(t *testing.T) {
	rec := BuildRecord(Payload{LatencyMs: -5})

	if rec.LatencyMs != 0 {
		t.Errorf("expected clamped latency, got %d", rec.LatencyMs)
	}
	if rec.CacheHit != CacheHitNone {
		t.Errorf("expected default cache hit label, got %q", rec.CacheHit)
	}
	if rec.UserIDHash != "" || rec.StarIDHash != "" {
		t.Error("expected empty hashes for absent identifiers")
	}
}

func TestHTTPRecorderPostsRecord(t *testing.T) {
	var got Record
	var auth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode record: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	rec := NewHTTPRecorder(server.URL, "service-key")
	rec.Record(context.Background(), Payload{
		UserID:  "user-1",
		Success: true,
		Source:  "youtube_ocr",
	})

	if auth != "Bearer service-key" {
		t.Errorf("expected bearer auth, got %q", auth)
	}
	if got.UserIDHash != HashIdentifier("user-1") {
		t.Errorf("expected hashed user id, got %q", got.UserIDHash)
	}
	if got.Source != "youtube_ocr" {
		t.Errorf("unexpected source %q", got.Source)
	}
}

func TestHTTPRecorderSwallowsSinkFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	rec := NewHTTPRecorder(server.URL, "key")
	// Must not panic or propagate anything.
	rec.Record(context.Background(), Payload{Source: "youtube_ocr"})
}

func TestHTTPRecorderIgnoresCanceledRequestContext(t *testing.T) {
	done := make(chan struct{}, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		done <- struct{}{}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // client aborted before metrics recording

	rec := NewHTTPRecorder(server.URL, "key")
	rec.Record(ctx, Payload{Source: "youtube_ocr"})

	select {
	case <-done:
	default:
		t.Error("expected sink to receive the record despite canceled request context")
	}
}
