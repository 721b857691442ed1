// Watchlog Intake - OCR Watch History Extraction Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchlog-intake

// Package intake orchestrates the OCR extraction pipeline: identity
// resolution, rate limiting, LLM extraction with failover, metadata
// enrichment, and anonymized per-request metrics.
//
// The pipeline degrades instead of failing: once a request is admitted,
// every upstream failure past the rate limiter resolves to a fallback
// response carrying the raw OCR text, never an error.
package intake

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/tomtom215/watchlog-intake/internal/enrich"
	"github.com/tomtom215/watchlog-intake/internal/failover"
	"github.com/tomtom215/watchlog-intake/internal/llm"
	"github.com/tomtom215/watchlog-intake/internal/logging"
	"github.com/tomtom215/watchlog-intake/internal/metrics"
	"github.com/tomtom215/watchlog-intake/internal/models"
	"github.com/tomtom215/watchlog-intake/internal/parser"
	"github.com/tomtom215/watchlog-intake/internal/ratelimit"
)

const (
	// HealthCheckToken in the ocrText field short-circuits the pipeline
	// before rate limiting and upstream calls.
	HealthCheckToken = "__HEALTHCHECK__"

	// MetricSource tags every metric row produced by this pipeline.
	MetricSource = "youtube_ocr"

	promptPlaceholder = "{OCR_PLACEHOLDER}"

	fallbackSnippetLimit = 200
	fallbackPlaceholder  = "Unable to parse watch history OCR."
)

const promptTemplate = `You are an assistant that extracts YouTube watch history from OCR.
OCR:
{OCR_PLACEHOLDER}

Return strict JSON:
{
  "items": [
    {
      "title": "...",
      "channel": "...",
      "time": "12:41" or null,
      "videoId": "" or null
    }
  ]
}`

// Request is the client-supplied intake payload.
type Request struct {
	OCRText string `json:"ocrText" validate:"required"`
	UserID  string `json:"userId"`
	StarID  string `json:"starId"`
}

var validate = validator.New()

// MetricsStatus values reported by the health check.
const (
	MetricsStatusOK            = "ok"
	MetricsStatusDisabled      = "disabled"
	MetricsStatusMisconfigured = "misconfigured"
)

// Pipeline wires the intake stages together. All collaborators are
// injected; none are package globals.
type Pipeline struct {
	limiter       *ratelimit.Limiter
	llm           *llm.Service
	enricher      *enrich.Enricher
	recorder      metrics.Recorder
	metricsStatus string
	now           func() time.Time
}

// New builds a Pipeline. metricsStatus is the health-check verdict for the
// metric sink configuration, one of the MetricsStatus constants.
func New(limiter *ratelimit.Limiter, svc *llm.Service, enricher *enrich.Enricher, recorder metrics.Recorder, metricsStatus string) *Pipeline {
	return &Pipeline{
		limiter:       limiter,
		llm:           svc,
		enricher:      enricher,
		recorder:      recorder,
		metricsStatus: metricsStatus,
		now:           time.Now,
	}
}

// Handle runs one intake request through the pipeline. authHeader is the
// raw Authorization header, used only for identity fall-through.
//
// The returned error is either an *InputError or a *ratelimit.Error;
// everything past admission degrades to a fallback response instead.
func (p *Pipeline) Handle(ctx context.Context, req Request, authHeader string) (*models.IntakeResponse, error) {
	start := p.now()
	payload := metrics.Payload{
		Source:   MetricSource,
		CacheHit: metrics.CacheHitNone,
		UserID:   req.UserID,
		StarID:   req.StarID,
	}
	recordMetric := true
	defer func() {
		if !recordMetric {
			return
		}
		payload.LatencyMs = p.now().Sub(start).Milliseconds()
		p.recorder.Record(ctx, payload)
	}()

	requestID := logging.RequestIDFromContext(ctx)
	ocrText := strings.TrimSpace(req.OCRText)
	if err := validate.Struct(req); err != nil || ocrText == "" {
		return nil, NewInputError("ocrText field is required")
	}

	identity := ResolveIdentity(req, authHeader, requestID)
	logging.Ctx(ctx).Info().
		Str("method", identity.Method).
		Msg("intake request received")

	if ocrText == HealthCheckToken {
		recordMetric = false
		return p.healthResponse(), nil
	}

	if err := p.limiter.Check(ctx, identity.Identifier); err != nil {
		var rateErr *ratelimit.Error
		if errors.As(err, &rateErr) {
			payload.ErrorCode = CodeRateLimited
			logging.Ctx(ctx).Warn().
				Str("window", string(rateErr.Window)).
				Int("retry_after_seconds", rateErr.RetryAfterSeconds).
				Msg("intake request rate limited")
			return nil, err
		}
		return nil, err
	}

	prompt := strings.Replace(promptTemplate, promptPlaceholder, ocrText, 1)
	response := p.process(ctx, prompt, ocrText, &payload)

	payload.Success = true
	logging.Ctx(ctx).Info().
		Str("cache_hit", string(payload.CacheHit)).
		Str("error_code", payload.ErrorCode).
		Int("items", len(response.Items)).
		Msg("intake request completed")
	return response, nil
}

// process runs extraction, validation, and enrichment. It never fails: any
// unrecoverable upstream problem yields the fallback response with the
// metric payload's error code describing which stage gave up.
func (p *Pipeline) process(ctx context.Context, prompt, ocrText string, payload *metrics.Payload) *models.IntakeResponse {
	result, err := p.llm.Complete(ctx, prompt)
	if err != nil {
		payload.ErrorCode = classifyCompletionError(err)
		logging.Ctx(ctx).Warn().Err(err).
			Str("error_code", payload.ErrorCode).
			Msg("extraction failed, serving fallback")
		return fallbackResponse(ocrText)
	}

	items, parseErr := parser.Parse(result.Content)
	if parseErr != nil {
		payload.ErrorCode = CodeGroqInvalidResponse
		logging.Ctx(ctx).Warn().
			Str("source", string(result.Source)).
			Msg("model output failed validation")

		// A provider that answered with garbage may still be up; the
		// secondary gets one explicit retry before giving up.
		if p.llm.HasSecondary() {
			content, secondaryErr := p.llm.CompleteSecondary(ctx, prompt)
			switch {
			case secondaryErr != nil:
				payload.ErrorCode = classifySecondaryError(secondaryErr)
				logging.Ctx(ctx).Warn().Err(secondaryErr).Msg("secondary retry failed")
			default:
				items, parseErr = parser.Parse(content)
				if parseErr != nil {
					payload.ErrorCode = CodeSecondaryInvalidResponse
					items = nil
				} else {
					logging.Ctx(ctx).Info().Msg("secondary retry produced valid output")
				}
			}
		}
	}

	if items == nil {
		if payload.ErrorCode == "" {
			payload.ErrorCode = CodeLLMFallback
		}
		return fallbackResponse(ocrText)
	}

	enriched, metadataHit := p.enricher.Enrich(ctx, items)

	payload.CacheHit = metrics.DescribeCacheHit(result.CacheHit, metadataHit)
	payload.ErrorCode = ""
	return &models.IntakeResponse{Version: models.APIVersion, Items: enriched}
}

// classifyCompletionError maps a failed completion to a metric error code.
// When both providers failed, the secondary's failure is the operative one.
func classifyCompletionError(err error) string {
	var bothFailed *failover.BothFailedError
	switch {
	case errors.Is(err, llm.ErrTimeout):
		return CodeGroqTimeout
	case errors.As(err, &bothFailed):
		return CodeSecondaryLLMFailed
	default:
		return CodeGroqFailure
	}
}

func classifySecondaryError(err error) string {
	if errors.Is(err, llm.ErrTimeout) {
		return CodeGroqTimeout
	}
	return CodeSecondaryLLMFailed
}

// fallbackResponse packages the raw OCR text as a single degraded item so
// the client still has something to show. It is a success response; the
// metric error code carries the cause.
func fallbackResponse(ocrText string) *models.IntakeResponse {
	snippet := strings.TrimSpace(ocrText)
	if runes := []rune(snippet); len(runes) > fallbackSnippetLimit {
		snippet = string(runes[:fallbackSnippetLimit])
	}
	if snippet == "" {
		snippet = fallbackPlaceholder
	}
	return &models.IntakeResponse{
		Version: models.APIVersion,
		Items: []models.IntakeItem{{
			Title:      snippet,
			Channel:    "",
			Time:       nil,
			VideoID:    "",
			Duration:   "",
			Thumbnails: map[string]any{},
		}},
	}
}

func (p *Pipeline) healthResponse() *models.IntakeResponse {
	rateLimitCheck := "ok"
	if p.limiter.Disabled() {
		rateLimitCheck = "disabled"
	}
	llmCheck := "primary_only"
	if p.llm.HasSecondary() {
		llmCheck = "secondary_configured"
	}
	return &models.IntakeResponse{
		Version: models.APIVersion,
		Items:   []models.IntakeItem{},
		Health: &models.HealthStatus{
			Status:    "ok",
			Version:   models.APIVersion,
			Timestamp: p.now().UTC().Format(time.RFC3339),
			Checks: models.HealthChecks{
				RateLimit: rateLimitCheck,
				Metrics:   p.metricsStatus,
				LLM:       llmCheck,
			},
		},
	}
}
