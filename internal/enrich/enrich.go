// Watchlog Intake - OCR Watch History Extraction Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchlog-intake

// Package enrich resolves video metadata for parsed watch history items.
//
// Enrichment is strictly best-effort: a failed or throttled lookup degrades
// that one item to its OCR-derived fields instead of failing the batch.
// Item order and count are always preserved.
package enrich

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/tomtom215/watchlog-intake/internal/cache"
	"github.com/tomtom215/watchlog-intake/internal/logging"
	"github.com/tomtom215/watchlog-intake/internal/metrics"
	"github.com/tomtom215/watchlog-intake/internal/models"
	"github.com/tomtom215/watchlog-intake/internal/parser"
)

const (
	defaultBaseURL     = "https://www.googleapis.com/youtube/v3"
	defaultConcurrency = 4
	defaultCallTimeout = 10 * time.Second

	cacheKeyPrefix = "yt:video:"
)

// Config configures an Enricher.
type Config struct {
	APIKey      string
	BaseURL     string
	Concurrency int
	CallTimeout time.Duration
	// RequestsPerSecond throttles outbound metadata calls. Zero means
	// unthrottled.
	RequestsPerSecond float64
	HTTPClient        *http.Client
}

// Enricher looks up video metadata, caching full records per video so
// repeat lookups within the TTL never hit the API.
type Enricher struct {
	apiKey      string
	baseURL     string
	concurrency int
	callTimeout time.Duration
	limiter     *rate.Limiter
	httpClient  *http.Client
	cache       *cache.Cache[models.IntakeItem]
	log         zerolog.Logger
}

// New builds an Enricher. videos is the per-video metadata cache and may be
// nil to disable caching.
func New(cfg Config, videos *cache.Cache[models.IntakeItem]) *Enricher {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = defaultCallTimeout
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), int(cfg.RequestsPerSecond)+1)
	}
	return &Enricher{
		apiKey:      cfg.APIKey,
		baseURL:     cfg.BaseURL,
		concurrency: cfg.Concurrency,
		callTimeout: cfg.CallTimeout,
		limiter:     limiter,
		httpClient:  cfg.HTTPClient,
		cache:       videos,
		log:         logging.WithComponent("enrich"),
	}
}

// Enrich resolves metadata for every item, fanning out with bounded
// concurrency. The returned slice has the same length and order as the
// input. cacheHit is true when at least one item was served from the
// metadata cache.
func (e *Enricher) Enrich(ctx context.Context, items []parser.Item) ([]models.IntakeItem, bool) {
	results := make([]models.IntakeItem, len(items))
	var cacheHit atomic.Bool

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i, item := range items {
		g.Go(func() error {
			result, fromCache := e.enrichOne(gctx, item)
			results[i] = result
			if fromCache {
				cacheHit.Store(true)
			}
			return nil
		})
	}
	// Workers degrade per item instead of returning errors.
	_ = g.Wait()

	return results, cacheHit.Load()
}

func (e *Enricher) enrichOne(ctx context.Context, item parser.Item) (models.IntakeItem, bool) {
	if item.VideoID == "" {
		metrics.EnrichmentCalls.WithLabelValues("degraded").Inc()
		return degradedItem(item), false
	}

	cacheKey := cacheKeyPrefix + item.VideoID
	if e.cache != nil {
		if cached, ok := e.cache.Get(ctx, cacheKey); ok {
			metrics.EnrichmentCalls.WithLabelValues("cache_hit").Inc()
			// Duration and thumbnails are stable per video; the display
			// fields come from this request's OCR, not a prior user's.
			cached.Title = item.Title
			cached.Channel = item.Channel
			cached.Time = item.Time
			return cached, true
		}
	}

	enriched, err := e.lookup(ctx, item)
	if err != nil {
		e.log.Warn().Err(err).Str("video_id", item.VideoID).Msg("metadata lookup failed")
		metrics.EnrichmentCalls.WithLabelValues("failure").Inc()
		return degradedItem(item), false
	}

	if e.cache != nil {
		e.cache.Set(ctx, cacheKey, enriched)
	}
	metrics.EnrichmentCalls.WithLabelValues("success").Inc()
	return enriched, false
}

type videoListResponse struct {
	Items []struct {
		ID      string `json:"id"`
		Snippet struct {
			Thumbnails struct {
				Medium map[string]any `json:"medium"`
			} `json:"thumbnails"`
		} `json:"snippet"`
		ContentDetails struct {
			Duration string `json:"duration"`
		} `json:"contentDetails"`
	} `json:"items"`
}

func (e *Enricher) lookup(ctx context.Context, item parser.Item) (models.IntakeItem, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return models.IntakeItem{}, fmt.Errorf("throttle wait: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, e.callTimeout)
	defer cancel()

	query := url.Values{}
	query.Set("id", item.VideoID)
	query.Set("part", "snippet,contentDetails")
	query.Set("key", e.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+"/videos?"+query.Encode(), nil)
	if err != nil {
		return models.IntakeItem{}, fmt.Errorf("build request: %w", err)
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return models.IntakeItem{}, fmt.Errorf("metadata call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return models.IntakeItem{}, fmt.Errorf("metadata call returned status %d", resp.StatusCode)
	}

	var payload videoListResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return models.IntakeItem{}, fmt.Errorf("decode response: %w", err)
	}
	if len(payload.Items) == 0 {
		return models.IntakeItem{}, fmt.Errorf("video %s not found", item.VideoID)
	}

	video := payload.Items[0]
	thumbnails := video.Snippet.Thumbnails.Medium
	if thumbnails == nil {
		thumbnails = map[string]any{}
	}
	return models.IntakeItem{
		Title:      item.Title,
		Channel:    item.Channel,
		Time:       item.Time,
		VideoID:    video.ID,
		Duration:   ConvertISODuration(video.ContentDetails.Duration),
		Thumbnails: thumbnails,
	}, nil
}

// degradedItem keeps the OCR-derived fields and blanks everything that
// would have come from the metadata API, including the unverified video ID.
func degradedItem(item parser.Item) models.IntakeItem {
	return models.IntakeItem{
		Title:      item.Title,
		Channel:    item.Channel,
		Time:       item.Time,
		VideoID:    "",
		Duration:   "",
		Thumbnails: map[string]any{},
	}
}

var isoDurationComponentRe = regexp.MustCompile(`(\d+)([HMS])`)

// ConvertISODuration renders an ISO-8601 duration as a clock string:
// HH:MM:SS when an hour component is present, MM:SS otherwise. Unknown
// input yields "00:00".
func ConvertISODuration(raw string) string {
	var hours, minutes, seconds int
	for _, match := range isoDurationComponentRe.FindAllStringSubmatch(raw, -1) {
		value, _ := strconv.Atoi(match[1])
		switch match[2] {
		case "H":
			hours = value
		case "M":
			minutes = value
		case "S":
			seconds = value
		}
	}
	if hours > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, seconds)
	}
	return fmt.Sprintf("%02d:%02d", minutes, seconds)
}
