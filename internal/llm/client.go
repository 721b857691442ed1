// Watchlog Intake - OCR Watch History Extraction Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchlog-intake

package llm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/watchlog-intake/internal/logging"
)

const (
	defaultGroqBaseURL   = "https://api.groq.com/openai/v1"
	defaultOpenAIBaseURL = "https://api.openai.com/v1"

	defaultGroqModel   = "llama-3.1-70b-versatile"
	defaultOpenAIModel = "gpt-4o-mini"

	// Hard per-call deadline. A stuck upstream must surface as a timeout,
	// not hold the request open indefinitely.
	defaultCallTimeout = 30 * time.Second

	extractionTemperature = 0.1
)

// ClientConfig configures an OpenAI-compatible chat completion client.
type ClientConfig struct {
	Name        string
	BaseURL     string
	APIKey      string
	Model       string
	CallTimeout time.Duration
	HTTPClient  *http.Client
}

// Client is a Provider backed by an OpenAI-compatible HTTP API. Both the
// Groq primary and the OpenAI secondary speak the same wire format, so one
// client covers both.
type Client struct {
	name        string
	baseURL     string
	apiKey      string
	model       string
	callTimeout time.Duration
	httpClient  *http.Client
}

// NewGroq builds the primary extraction provider.
func NewGroq(apiKey string, opts ...func(*ClientConfig)) *Client {
	cfg := ClientConfig{
		Name:    "groq",
		BaseURL: defaultGroqBaseURL,
		APIKey:  apiKey,
		Model:   defaultGroqModel,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return newClient(cfg)
}

// NewOpenAI builds the secondary extraction provider.
func NewOpenAI(apiKey string, opts ...func(*ClientConfig)) *Client {
	cfg := ClientConfig{
		Name:    "openai",
		BaseURL: defaultOpenAIBaseURL,
		APIKey:  apiKey,
		Model:   defaultOpenAIModel,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return newClient(cfg)
}

// WithBaseURL overrides the API endpoint, mainly for tests and self-hosted
// gateways.
func WithBaseURL(url string) func(*ClientConfig) {
	return func(c *ClientConfig) { c.BaseURL = url }
}

// WithModel overrides the model identifier.
func WithModel(model string) func(*ClientConfig) {
	return func(c *ClientConfig) { c.Model = model }
}

// WithCallTimeout overrides the per-call deadline.
func WithCallTimeout(d time.Duration) func(*ClientConfig) {
	return func(c *ClientConfig) { c.CallTimeout = d }
}

func newClient(cfg ClientConfig) *Client {
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = defaultCallTimeout
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	return &Client{
		name:        cfg.Name,
		baseURL:     cfg.BaseURL,
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		callTimeout: cfg.CallTimeout,
		httpClient:  cfg.HTTPClient,
	}
}

// Name implements Provider.
func (c *Client) Name() string { return c.name }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Complete implements Provider. The temperature is pinned low and the
// response format forced to a JSON object so the model returns machine-
// parseable output.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	payload := chatRequest{
		Model:          c.model,
		Messages:       []chatMessage{{Role: "user", Content: prompt}},
		Temperature:    extractionTemperature,
		ResponseFormat: &responseFormat{Type: "json_object"},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("%s: marshal request: %w", c.name, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%s: build request: %w", c.name, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			logging.Ctx(ctx).Warn().
				Str("provider", c.name).
				Dur("elapsed", time.Since(start)).
				Msg("completion call timed out")
			return "", fmt.Errorf("%s after %s: %w", c.name, c.callTimeout, ErrTimeout)
		}
		return "", fmt.Errorf("%s: completion call: %w", c.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("%s: completion returned status %d: %s", c.name, resp.StatusCode, snippet)
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("%s: decode response: %w", c.name, err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("%s: completion returned no choices", c.name)
	}

	logging.Ctx(ctx).Debug().
		Str("provider", c.name).
		Str("model", c.model).
		Dur("elapsed", time.Since(start)).
		Msg("completion call succeeded")
	return parsed.Choices[0].Message.Content, nil
}
