// Watchlog Intake - OCR Watch History Extraction Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchlog-intake

// Command server runs the watch history intake service.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/tomtom215/watchlog-intake/internal/api"
	"github.com/tomtom215/watchlog-intake/internal/cache"
	"github.com/tomtom215/watchlog-intake/internal/config"
	"github.com/tomtom215/watchlog-intake/internal/enrich"
	"github.com/tomtom215/watchlog-intake/internal/intake"
	"github.com/tomtom215/watchlog-intake/internal/llm"
	"github.com/tomtom215/watchlog-intake/internal/logging"
	"github.com/tomtom215/watchlog-intake/internal/metrics"
	"github.com/tomtom215/watchlog-intake/internal/models"
	"github.com/tomtom215/watchlog-intake/internal/ratelimit"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logging.Init(logging.DefaultConfig())
		logging.Fatal().Err(err).Msg("configuration failed")
	}

	logging.Init(logging.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Caller: cfg.Log.Caller,
	})
	log := logging.WithComponent("server")

	if err := run(cfg); err != nil {
		log.Fatal().Err(err).Msg("server exited with error")
	}
}

func run(cfg *config.Config) error {
	log := logging.WithComponent("server")

	store, closeStore, err := buildCacheStore(cfg.Cache)
	if err != nil {
		return err
	}
	defer closeStore()

	llmCache := cache.New[string](store, "llm", cfg.Cache.LLMTTL)
	metadataCache := cache.New[models.IntakeItem](store, "metadata", cfg.Cache.MetadataTTL)

	primary := buildPrimary(cfg.LLM)
	secondary := buildSecondary(cfg.LLM)
	llmService := llm.NewService(primary, secondary, llmCache)

	enricher := enrich.New(enrich.Config{
		APIKey:            cfg.YouTube.APIKey,
		BaseURL:           cfg.YouTube.BaseURL,
		Concurrency:       cfg.YouTube.Concurrency,
		CallTimeout:       cfg.YouTube.CallTimeout,
		RequestsPerSecond: cfg.YouTube.RequestsPerSecond,
	}, metadataCache)

	limiter := ratelimit.New(
		ratelimit.NewMemoryStore(),
		ratelimit.Thresholds{PerMinute: cfg.RateLimit.PerMinute, PerDay: cfg.RateLimit.PerDay},
		cfg.RateLimit.Disabled,
	)

	recorder := buildRecorder(cfg.Metrics)
	pipeline := intake.New(limiter, llmService, enricher, recorder, cfg.Metrics.Status())

	router := api.NewRouter(pipeline, api.Config{
		AllowedOrigins:            cfg.Server.CORSOrigins,
		LivenessRequestsPerMinute: cfg.Server.LivenessRequestsPerMinute,
	})

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", cfg.Server.Addr).
			Bool("secondary_llm", llmService.HasSecondary()).
			Bool("rate_limit_disabled", cfg.RateLimit.Disabled).
			Str("cache_backend", cfg.Cache.Backend).
			Msg("listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return err
	}
	log.Info().Msg("shutdown complete")
	return nil
}

func buildCacheStore(cfg config.CacheConfig) (cache.Store, func(), error) {
	if cfg.Backend == "badger" {
		store, err := cache.NewBadgerStore(cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		return store, func() {
			if err := store.Close(); err != nil {
				logger := logging.WithComponent("server")
				logger.Error().Err(err).Msg("close cache store")
			}
		}, nil
	}
	store := cache.NewMemoryStore()
	return store, func() { _ = store.Close() }, nil
}

func buildPrimary(cfg config.LLMConfig) llm.Provider {
	opts := make([]func(*llm.ClientConfig), 0, 3)
	if cfg.GroqBaseURL != "" {
		opts = append(opts, llm.WithBaseURL(cfg.GroqBaseURL))
	}
	if cfg.GroqModel != "" {
		opts = append(opts, llm.WithModel(cfg.GroqModel))
	}
	if cfg.CallTimeout > 0 {
		opts = append(opts, llm.WithCallTimeout(cfg.CallTimeout))
	}

	var provider llm.Provider = llm.NewGroq(cfg.GroqAPIKey, opts...)
	if cfg.BreakerEnabled {
		provider = llm.NewBreakerProvider(provider, llm.DefaultBreakerConfig())
	}
	return provider
}

func buildSecondary(cfg config.LLMConfig) llm.Provider {
	if !cfg.SecondaryConfigured() {
		return nil
	}

	opts := make([]func(*llm.ClientConfig), 0, 3)
	if cfg.SecondaryBaseURL != "" {
		opts = append(opts, llm.WithBaseURL(cfg.SecondaryBaseURL))
	}
	if cfg.SecondaryModel != "" {
		opts = append(opts, llm.WithModel(cfg.SecondaryModel))
	}
	if cfg.CallTimeout > 0 {
		opts = append(opts, llm.WithCallTimeout(cfg.CallTimeout))
	}

	var provider llm.Provider = llm.NewOpenAI(cfg.SecondaryAPIKey, opts...)
	if cfg.BreakerEnabled {
		provider = llm.NewBreakerProvider(provider, llm.DefaultBreakerConfig())
	}
	return provider
}

func buildRecorder(cfg config.MetricsConfig) metrics.Recorder {
	if cfg.Status() != intake.MetricsStatusOK {
		return metrics.NopRecorder{}
	}
	return metrics.NewHTTPRecorder(cfg.Endpoint, cfg.ServiceKey)
}
