// Watchlog Intake - OCR Watch History Extraction Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchlog-intake

package metrics

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/watchlog-intake/internal/logging"
)

// Recorder persists per-request metric records. Implementations must be
// best-effort: Record is called exactly once per request from a deferred
// block and must never propagate failures into the request path.
type Recorder interface {
	Record(ctx context.Context, p Payload)
}

// NopRecorder discards all records. Used when metrics persistence is
// disabled or misconfigured.
type NopRecorder struct{}

// Record implements Recorder as a no-op.
func (NopRecorder) Record(_ context.Context, _ Payload) {
	MetricRecordsPersisted.WithLabelValues("skipped").Inc()
}

// HTTPRecorder posts anonymized records to a REST metrics sink.
type HTTPRecorder struct {
	endpoint   string
	serviceKey string
	client     *http.Client
}

// NewHTTPRecorder creates a recorder targeting the given REST endpoint.
// The service key is sent as a bearer token. Requests are bounded by a
// short timeout so a slow sink cannot hold resources after the response
// has been returned.
func NewHTTPRecorder(endpoint, serviceKey string) *HTTPRecorder {
	return &HTTPRecorder{
		endpoint:   endpoint,
		serviceKey: serviceKey,
		client: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

// Record builds the anonymized record and posts it to the sink. Failures
// are logged and discarded; the caller never observes them.
func (r *HTTPRecorder) Record(ctx context.Context, p Payload) {
	rec := BuildRecord(p)

	if err := r.post(ctx, rec); err != nil {
		MetricRecordsPersisted.WithLabelValues("error").Inc()
		logging.Ctx(ctx).Error().Err(err).Msg("Failed to persist intake metric record")
		return
	}
	MetricRecordsPersisted.WithLabelValues("ok").Inc()
}

func (r *HTTPRecorder) post(ctx context.Context, rec Record) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal metric record: %w", err)
	}

	// Detach from the request deadline: the response has already been sent
	// by the time this runs, but an aborted client must not cancel the write.
	postCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(postCtx, http.MethodPost, r.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new metric request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+r.serviceKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("post metric record: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("metric sink returned %s: %s", resp.Status, strings.TrimSpace(string(detail)))
	}
	return nil
}
