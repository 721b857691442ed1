// Watchlog Intake - OCR Watch History Extraction Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchlog-intake

package llm

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/sony/gobreaker/v2"

	"github.com/tomtom215/watchlog-intake/internal/cache"
	"github.com/tomtom215/watchlog-intake/internal/failover"
)

func chatServer(t *testing.T, content string, status int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("unexpected auth header %q", auth)
		}
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Temperature != 0.1 {
			t.Errorf("expected temperature 0.1, got %v", req.Temperature)
		}
		if req.ResponseFormat == nil || req.ResponseFormat.Type != "json_object" {
			t.Errorf("expected json_object response format, got %+v", req.ResponseFormat)
		}
		w.WriteHeader(status)
		if status >= 200 && status < 300 {
			_ = json.NewEncoder(w).Encode(map[string]any{
				"choices": []map[string]any{
					{"message": map[string]any{"content": content}},
				},
			})
		}
	}))
}

func TestClientComplete(t *testing.T) {
	srv := chatServer(t, `{"items":[]}`, http.StatusOK)
	defer srv.Close()

	c := NewGroq("test-key", WithBaseURL(srv.URL))
	content, err := c.Complete(context.Background(), "extract this")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if content != `{"items":[]}` {
		t.Errorf("unexpected content %q", content)
	}
}

func TestClientCompleteUpstreamError(t *testing.T) {
	srv := chatServer(t, "", http.StatusBadGateway)
	defer srv.Close()

	c := NewGroq("test-key", WithBaseURL(srv.URL))
	_, err := c.Complete(context.Background(), "p")
	if err == nil {
		t.Fatal("expected error on 502")
	}
	if errors.Is(err, ErrTimeout) {
		t.Error("upstream 502 must not classify as timeout")
	}
}

func TestClientCompleteTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Drain the body so the server notices the client disconnect and
		// cancels the request context; otherwise Close deadlocks.
		_, _ = io.Copy(io.Discard, r.Body)
		<-r.Context().Done()
	}))
	defer srv.Close()

	c := NewGroq("test-key", WithBaseURL(srv.URL), WithCallTimeout(50*time.Millisecond))
	_, err := c.Complete(context.Background(), "p")
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("expected ErrTimeout, got %v", err)
	}
}

func TestClientCompleteNoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	c := NewGroq("test-key", WithBaseURL(srv.URL))
	if _, err := c.Complete(context.Background(), "p"); err == nil {
		t.Error("expected error on empty choices")
	}
}

// stubProvider counts calls and returns canned results.
type stubProvider struct {
	name  string
	calls int
	reply string
	err   error
}

func (s *stubProvider) Complete(context.Context, string) (string, error) {
	s.calls++
	return s.reply, s.err
}

func (s *stubProvider) Name() string { return s.name }

func newResponseCache() *cache.Cache[string] {
	return cache.New[string](cache.NewMemoryStore(), "llm", 6*time.Hour)
}

func TestServiceCachesPrimaryResponses(t *testing.T) {
	primary := &stubProvider{name: "groq", reply: `{"items":[]}`}
	svc := NewService(primary, nil, newResponseCache())
	ctx := context.Background()

	first, err := svc.Complete(ctx, "same prompt")
	if err != nil {
		t.Fatalf("first call: %v", err)
	}
	if first.CacheHit {
		t.Error("first call must be a miss")
	}

	second, err := svc.Complete(ctx, "same prompt")
	if err != nil {
		t.Fatalf("second call: %v", err)
	}
	if !second.CacheHit {
		t.Error("second identical prompt must hit the cache")
	}
	if second.Content != first.Content {
		t.Errorf("cache returned different content: %q vs %q", second.Content, first.Content)
	}
	if primary.calls != 1 {
		t.Errorf("expected exactly 1 provider call, got %d", primary.calls)
	}
}

func TestServiceFailsOverToSecondary(t *testing.T) {
	primary := &stubProvider{name: "groq", err: errors.New("down")}
	secondary := &stubProvider{name: "openai", reply: `{"items":[]}`}
	svc := NewService(primary, secondary, newResponseCache())

	result, err := svc.Complete(context.Background(), "prompt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Source != failover.SourceSecondary {
		t.Errorf("expected secondary source, got %q", result.Source)
	}

	// Secondary output is not canonical and must not be cached.
	_, err = svc.Complete(context.Background(), "prompt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if primary.calls != 2 {
		t.Errorf("expected primary retried on second call, got %d calls", primary.calls)
	}
}

func TestServiceWithoutSecondary(t *testing.T) {
	primary := &stubProvider{name: "groq", err: errors.New("down")}
	svc := NewService(primary, nil, newResponseCache())

	if svc.HasSecondary() {
		t.Error("HasSecondary must be false")
	}
	if _, err := svc.Complete(context.Background(), "p"); err == nil {
		t.Error("expected error when primary fails with no secondary")
	}
	if _, err := svc.CompleteSecondary(context.Background(), "p"); !errors.Is(err, ErrNoSecondary) {
		t.Errorf("expected ErrNoSecondary, got %v", err)
	}
}

func TestServiceCompleteSecondaryBypassesCache(t *testing.T) {
	primary := &stubProvider{name: "groq", reply: "primary"}
	secondary := &stubProvider{name: "openai", reply: "secondary"}
	svc := NewService(primary, secondary, newResponseCache())
	ctx := context.Background()

	if _, err := svc.Complete(ctx, "p"); err != nil {
		t.Fatalf("prime cache: %v", err)
	}
	content, err := svc.CompleteSecondary(ctx, "p")
	if err != nil {
		t.Fatalf("secondary call: %v", err)
	}
	if content != "secondary" {
		t.Errorf("expected fresh secondary content, got %q", content)
	}
	if secondary.calls != 1 {
		t.Errorf("expected secondary invoked despite cached prompt, got %d calls", secondary.calls)
	}
}

func TestBreakerTripsAfterConsecutiveFailures(t *testing.T) {
	inner := &stubProvider{name: "groq", err: errors.New("down")}
	cfg := DefaultBreakerConfig()
	cfg.ConsecutiveFailures = 3
	b := NewBreakerProvider(inner, cfg)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := b.Complete(ctx, "p"); err == nil {
			t.Fatalf("call %d: expected failure", i)
		}
	}

	_, err := b.Complete(ctx, "p")
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Errorf("expected open breaker, got %v", err)
	}
	if inner.calls != 3 {
		t.Errorf("open breaker must not reach the provider, got %d calls", inner.calls)
	}
}

func TestBreakerPassesThroughSuccess(t *testing.T) {
	inner := &stubProvider{name: "groq", reply: "ok"}
	b := NewBreakerProvider(inner, DefaultBreakerConfig())

	content, err := b.Complete(context.Background(), "p")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if content != "ok" {
		t.Errorf("unexpected content %q", content)
	}
	if b.Name() != "groq" {
		t.Errorf("breaker must expose inner name, got %q", b.Name())
	}
}
