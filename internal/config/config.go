// Watchlog Intake - OCR Watch History Extraction Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchlog-intake

// Package config loads service configuration with a clear precedence:
// environment variables override the optional YAML file, which overrides
// built-in defaults. Environment variables use the WATCHLOG_ prefix, e.g.
// WATCHLOG_LLM_GROQ_API_KEY maps to llm.groq_api_key.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/tomtom215/watchlog-intake/internal/intake"
	"github.com/tomtom215/watchlog-intake/internal/logging"
)

const (
	envPrefix        = "WATCHLOG_"
	configPathEnvVar = "WATCHLOG_CONFIG"
)

// ServerConfig tunes the HTTP listener.
type ServerConfig struct {
	Addr                      string        `koanf:"addr"`
	ReadTimeout               time.Duration `koanf:"read_timeout"`
	WriteTimeout              time.Duration `koanf:"write_timeout"`
	ShutdownTimeout           time.Duration `koanf:"shutdown_timeout"`
	CORSOrigins               []string      `koanf:"cors_origins"`
	LivenessRequestsPerMinute int           `koanf:"liveness_requests_per_minute" validate:"gte=0"`
}

// LogConfig tunes structured logging.
type LogConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error fatal panic"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// LLMConfig configures the extraction providers.
type LLMConfig struct {
	GroqAPIKey  string        `koanf:"groq_api_key" validate:"required"`
	GroqModel   string        `koanf:"groq_model"`
	GroqBaseURL string        `koanf:"groq_base_url"`
	CallTimeout time.Duration `koanf:"call_timeout" validate:"gte=0"`

	SecondaryProvider string `koanf:"secondary_provider"`
	SecondaryAPIKey   string `koanf:"secondary_api_key"`
	SecondaryModel    string `koanf:"secondary_model"`
	SecondaryBaseURL  string `koanf:"secondary_base_url"`

	BreakerEnabled bool `koanf:"breaker_enabled"`
}

// SecondaryConfigured reports whether a usable secondary provider is set.
func (c LLMConfig) SecondaryConfigured() bool {
	return c.SecondaryProvider != "" && c.SecondaryAPIKey != ""
}

// YouTubeConfig configures metadata enrichment.
type YouTubeConfig struct {
	APIKey            string        `koanf:"api_key" validate:"required"`
	BaseURL           string        `koanf:"base_url"`
	Concurrency       int           `koanf:"concurrency" validate:"gte=0"`
	RequestsPerSecond float64       `koanf:"requests_per_second" validate:"gte=0"`
	CallTimeout       time.Duration `koanf:"call_timeout" validate:"gte=0"`
}

// RateLimitConfig configures the dual-window limiter. A zero threshold
// disables that window.
type RateLimitConfig struct {
	Disabled  bool `koanf:"disabled"`
	PerMinute int  `koanf:"per_minute" validate:"gte=0"`
	PerDay    int  `koanf:"per_day" validate:"gte=0"`
}

// MetricsConfig configures the anonymized metric record sink.
type MetricsConfig struct {
	Enabled    bool   `koanf:"enabled"`
	Endpoint   string `koanf:"endpoint" validate:"omitempty,url"`
	ServiceKey string `koanf:"service_key"`
}

// Status classifies the sink configuration for the health check.
func (c MetricsConfig) Status() string {
	switch {
	case c.Enabled && c.Endpoint != "" && c.ServiceKey != "":
		return intake.MetricsStatusOK
	case c.Enabled:
		return intake.MetricsStatusMisconfigured
	default:
		return intake.MetricsStatusDisabled
	}
}

// CacheConfig selects the cache backend and TTLs.
type CacheConfig struct {
	Backend     string        `koanf:"backend" validate:"oneof=memory badger"`
	Path        string        `koanf:"path" validate:"required_if=Backend badger"`
	LLMTTL      time.Duration `koanf:"llm_ttl" validate:"gt=0"`
	MetadataTTL time.Duration `koanf:"metadata_ttl" validate:"gt=0"`
}

// Config is the full service configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Log       LogConfig       `koanf:"log"`
	LLM       LLMConfig       `koanf:"llm"`
	YouTube   YouTubeConfig   `koanf:"youtube"`
	RateLimit RateLimitConfig `koanf:"rate_limit"`
	Metrics   MetricsConfig   `koanf:"metrics"`
	Cache     CacheConfig     `koanf:"cache"`
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Addr:                      ":8080",
			ReadTimeout:               15 * time.Second,
			WriteTimeout:              60 * time.Second,
			ShutdownTimeout:           10 * time.Second,
			LivenessRequestsPerMinute: 60,
		},
		Log: LogConfig{Level: "info", Format: "json"},
		LLM: LLMConfig{
			CallTimeout:    30 * time.Second,
			BreakerEnabled: true,
		},
		YouTube: YouTubeConfig{
			Concurrency: 4,
			CallTimeout: 10 * time.Second,
		},
		RateLimit: RateLimitConfig{PerMinute: 5, PerDay: 200},
		Cache: CacheConfig{
			Backend:     "memory",
			LLMTTL:      6 * time.Hour,
			MetadataTTL: 24 * time.Hour,
		},
	}
}

// Load reads configuration from defaults, the YAML file at path (or
// WATCHLOG_CONFIG if path is empty), and WATCHLOG_-prefixed environment
// variables, in increasing precedence.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path == "" {
		path = os.Getenv(configPathEnvVar)
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	// CORS origins arrive from the environment as a comma-separated string.
	if raw, ok := k.Get("server.cors_origins").(string); ok && raw != "" {
		origins := make([]string, 0, 4)
		for _, o := range strings.Split(raw, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		if err := k.Set("server.cors_origins", origins); err != nil {
			return nil, fmt.Errorf("set cors origins: %w", err)
		}
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate configuration: %w", err)
	}
	return cfg, nil
}

// configSections anchors the first path segment during env translation so
// multi-word fields keep their underscores: WATCHLOG_RATE_LIMIT_PER_MINUTE
// becomes rate_limit.per_minute, not rate.limit_per_minute.
var configSections = []string{"rate_limit", "server", "log", "llm", "youtube", "metrics", "cache"}

func envTransform(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, envPrefix))
	for _, section := range configSections {
		if strings.HasPrefix(key, section+"_") {
			return section + "." + strings.TrimPrefix(key, section+"_")
		}
	}
	return strings.ReplaceAll(key, "_", ".")
}

// Validate checks structural constraints and warns about degraded but
// non-fatal configurations.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}
	if c.Metrics.Enabled && (c.Metrics.Endpoint == "" || c.Metrics.ServiceKey == "") {
		logger := logging.WithComponent("config")
		logger.Warn().
			Msg("metrics enabled but endpoint or service key missing; records will be dropped")
	}
	if c.LLM.SecondaryProvider != "" && c.LLM.SecondaryAPIKey == "" {
		logger := logging.WithComponent("config")
		logger.Warn().
			Msg("secondary provider set without api key; running primary only")
	}
	return nil
}
