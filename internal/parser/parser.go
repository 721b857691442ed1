// Watchlog Intake - OCR Watch History Extraction Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchlog-intake

// Package parser normalizes and validates the structured items returned by
// the language model.
//
// OCR-derived titles carry locale-specific noise: view-count suffixes,
// bracketed annotations, emoji, non-breaking spaces. Cleaning strips those
// and collapses whitespace; items whose title or channel is empty after
// cleaning are dropped rather than passed downstream.
package parser

import (
	"errors"
	"regexp"
	"strings"

	"github.com/goccy/go-json"
)

// ErrInvalidResponse reports that the model output does not have the
// expected {items: [...]} shape, or that no valid item survived filtering.
// An empty result after filtering is "no valid output", not a legitimate
// zero-item success — it must trigger the fallback path, so it is an error
// here.
var ErrInvalidResponse = errors.New("model response has no valid items")

// RawItem is one unvalidated item as produced by the language model.
type RawItem struct {
	Title   string
	Channel string
	Time    *string
	VideoID *string
}

// Item is a cleaned, validated extraction result. Title and Channel are
// non-empty; Time is nil when the model's value did not normalize.
type Item struct {
	Title   string  `json:"title"`
	Channel string  `json:"channel"`
	Time    *string `json:"time"`
	VideoID string  `json:"videoId"`
}

var noisePatterns = []*regexp.Regexp{
	// Non-breaking spaces and carriage returns
	regexp.MustCompile("[\u00a0\r]"),
	// View-count suffixes: "1.2万 回視聴", "500K回視聴"
	regexp.MustCompile(`(\d+(\.\d+)?)(万|K)?\s*回視聴`),
	// Bracketed annotations: 【公式】
	regexp.MustCompile(`【[^】]*】`),
	// Common emoji blocks (RE2 has no \p{Emoji}; enumerate the ranges)
	regexp.MustCompile("[☀-➿️\U0001F000-\U0001F02F\U0001F300-\U0001F5FF\U0001F600-\U0001F64F\U0001F680-\U0001F6FF\U0001F900-\U0001F9FF\U0001FA70-\U0001FAFF]"),
}

var (
	whitespaceRe  = regexp.MustCompile(`\s+`)
	clockRe       = regexp.MustCompile(`(\d{1,2}:)?\d{1,2}:\d{2}`)
	minuteTokenRe = regexp.MustCompile(`^\d+分$`)
)

// CleanText strips noise tokens and collapses whitespace.
func CleanText(value string) string {
	result := value
	for _, pattern := range noisePatterns {
		result = pattern.ReplaceAllString(result, "")
	}
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(result, " "))
}

// NormalizeDuration extracts an H:MM:SS / MM:SS clock token or a bare
// "N分"-style token from free text. Anything else returns nil rather than a
// guess.
func NormalizeDuration(raw *string) *string {
	if raw == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*raw)
	if trimmed == "" {
		return nil
	}
	if match := clockRe.FindString(trimmed); match != "" {
		return &match
	}
	if minuteTokenRe.MatchString(trimmed) {
		return &trimmed
	}
	return nil
}

// Parse validates and cleans model content in one step. A result that ends
// up empty — wrong shape, or every item dropped during cleaning — returns
// ErrInvalidResponse: "no valid output" is not a zero-item success.
func Parse(content string) ([]Item, error) {
	raw, err := ParseResponse(content)
	if err != nil {
		return nil, err
	}
	items := ParseItems(raw)
	if len(items) == 0 {
		return nil, ErrInvalidResponse
	}
	return items, nil
}

// responseEnvelope mirrors the strict JSON shape requested from the model.
type responseEnvelope struct {
	Items []map[string]any `json:"items"`
}

// ParseResponse validates the model's raw content against the expected
// {items: [{title, channel, time?, videoId?}]} shape and returns the raw
// items. Items whose title or channel is not a string are skipped; if
// nothing remains, ErrInvalidResponse is returned.
func ParseResponse(content string) ([]RawItem, error) {
	var envelope responseEnvelope
	if err := json.Unmarshal([]byte(content), &envelope); err != nil {
		return nil, ErrInvalidResponse
	}
	if envelope.Items == nil {
		return nil, ErrInvalidResponse
	}

	raw := make([]RawItem, 0, len(envelope.Items))
	for _, m := range envelope.Items {
		title, titleOK := m["title"].(string)
		channel, channelOK := m["channel"].(string)
		if !titleOK || !channelOK {
			continue
		}
		item := RawItem{Title: title, Channel: channel}
		if s, ok := m["time"].(string); ok {
			item.Time = &s
		}
		if s, ok := m["videoId"].(string); ok {
			item.VideoID = &s
		}
		raw = append(raw, item)
	}

	if len(raw) == 0 {
		return nil, ErrInvalidResponse
	}
	return raw, nil
}

// ParseItems cleans and validates raw items. Items with an empty title or
// channel after cleaning are dropped. Callers wanting empty-means-invalid
// semantics should use Parse instead.
func ParseItems(raw []RawItem) []Item {
	items := make([]Item, 0, len(raw))
	for _, r := range raw {
		item := Item{
			Title:   CleanText(r.Title),
			Channel: CleanText(r.Channel),
			Time:    NormalizeDuration(r.Time),
		}
		if r.VideoID != nil {
			item.VideoID = strings.TrimSpace(*r.VideoID)
		}
		if item.Title == "" || item.Channel == "" {
			continue
		}
		items = append(items, item)
	}
	return items
}
