// Watchlog Intake - OCR Watch History Extraction Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchlog-intake

package parser

import (
	"errors"
	"testing"
)

func strPtr(s string) *string { return &s }

func TestCleanTextStripsViewCounts(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"japanese view count", "面白い動画 1.2万 回視聴", "面白い動画"},
		{"k suffix", "Some Video 500K回視聴", "Some Video"},
		{"plain count", "Video 1234 回視聴", "Video"},
		{"bracketed annotation", "【公式】Music Video", "Music Video"},
		{"empty brackets", "【】Title", "Title"},
		{"emoji", "Great video 🎉🔥", "Great video"},
		{"nbsp and cr", "Title with\rnoise", "Titlewithnoise"},
		{"whitespace collapse", "  a   b\t c  ", "a b c"},
		{"clean input unchanged", "Normal Title", "Normal Title"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CleanText(tt.input); got != tt.want {
				t.Errorf("CleanText(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestNormalizeDuration(t *testing.T) {
	tests := []struct {
		name  string
		input *string
		want  *string
	}{
		{"nil", nil, nil},
		{"empty", strPtr(""), nil},
		{"mm ss", strPtr("12:34"), strPtr("12:34")},
		{"h mm ss", strPtr("1:02:34"), strPtr("1:02:34")},
		{"embedded clock", strPtr("watched 12:34 yesterday"), strPtr("12:34")},
		{"minutes token", strPtr("10分"), strPtr("10分")},
		{"free text", strPtr("two hours ago"), nil},
		{"bare number", strPtr("42"), nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeDuration(tt.input)
			switch {
			case tt.want == nil && got != nil:
				t.Errorf("expected nil, got %q", *got)
			case tt.want != nil && got == nil:
				t.Errorf("expected %q, got nil", *tt.want)
			case tt.want != nil && got != nil && *got != *tt.want:
				t.Errorf("expected %q, got %q", *tt.want, *got)
			}
		})
	}
}

func TestParseResponseValidShape(t *testing.T) {
	content := `{"items":[{"title":"A","channel":"Ch","time":"12:34","videoId":"abc123"}]}`
	raw, err := ParseResponse(content)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(raw) != 1 {
		t.Fatalf("expected 1 item, got %d", len(raw))
	}
	if raw[0].Title != "A" || raw[0].Channel != "Ch" {
		t.Errorf("unexpected item: %+v", raw[0])
	}
	if raw[0].Time == nil || *raw[0].Time != "12:34" {
		t.Errorf("expected time preserved, got %v", raw[0].Time)
	}
	if raw[0].VideoID == nil || *raw[0].VideoID != "abc123" {
		t.Errorf("expected videoId preserved, got %v", raw[0].VideoID)
	}
}

func TestParseResponseRejectsMalformed(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"not json", "sure, here is the JSON you asked for"},
		{"no items key", `{"results":[]}`},
		{"items not array", `{"items":"nope"}`},
		{"empty items", `{"items":[]}`},
		{"all items invalid", `{"items":[{"title":42,"channel":"Ch"},{"title":"A"}]}`},
		{"top-level array", `[{"title":"A","channel":"Ch"}]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseResponse(tt.content)
			if !errors.Is(err, ErrInvalidResponse) {
				t.Errorf("expected ErrInvalidResponse, got %v", err)
			}
		})
	}
}

func TestParseResponseSkipsPartiallyInvalidItems(t *testing.T) {
	content := `{"items":[{"title":"Good","channel":"Ch"},{"title":123,"channel":"Ch"}]}`
	raw, err := ParseResponse(content)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(raw) != 1 || raw[0].Title != "Good" {
		t.Errorf("expected only the valid item, got %+v", raw)
	}
}

func TestParseItemsDropsEmptyAfterCleaning(t *testing.T) {
	raw := []RawItem{
		{Title: "Good Video", Channel: "Channel"},
		{Title: "🎉🎉", Channel: "Channel"},       // title is all noise
		{Title: "Another", Channel: "1.2万 回視聴"}, // channel is all noise
	}
	items := ParseItems(raw)
	if len(items) != 1 {
		t.Fatalf("expected 1 surviving item, got %d", len(items))
	}
	if items[0].Title != "Good Video" {
		t.Errorf("unexpected survivor: %+v", items[0])
	}
}

func TestParseItemsNormalizesFields(t *testing.T) {
	raw := []RawItem{{
		Title:   "【公式】Title 500K回視聴",
		Channel: " Channel Name ",
		Time:    strPtr("uploaded 3:45 ago"),
		VideoID: strPtr(" abc123 "),
	}}
	items := ParseItems(raw)
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}
	got := items[0]
	if got.Title != "Title" {
		t.Errorf("title = %q", got.Title)
	}
	if got.Channel != "ChannelName" {
		t.Errorf("channel = %q", got.Channel)
	}
	if got.Time == nil || *got.Time != "3:45" {
		t.Errorf("time = %v", got.Time)
	}
	if got.VideoID != "abc123" {
		t.Errorf("videoId = %q", got.VideoID)
	}
}

func TestParse(t *testing.T) {
	items, err := Parse(`{"items":[{"title":"【公式】Video","channel":"Ch"}]}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 1 || items[0].Title != "Video" {
		t.Errorf("unexpected items: %+v", items)
	}
}

func TestParseAllItemsCleanedAwayIsInvalid(t *testing.T) {
	// Structurally valid, but every item's fields are pure noise. "No valid
	// output" must not masquerade as a zero-item success.
	_, err := Parse(`{"items":[{"title":"🎉🎉","channel":"Ch"},{"title":"T","channel":"1.2万 回視聴"}]}`)
	if !errors.Is(err, ErrInvalidResponse) {
		t.Errorf("expected ErrInvalidResponse, got %v", err)
	}
}

func TestParseItemsPreservesOrder(t *testing.T) {
	raw := []RawItem{
		{Title: "First", Channel: "C"},
		{Title: "Second", Channel: "C"},
		{Title: "Third", Channel: "C"},
	}
	items := ParseItems(raw)
	if len(items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(items))
	}
	for i, want := range []string{"First", "Second", "Third"} {
		if items[i].Title != want {
			t.Errorf("position %d: expected %q, got %q", i, want, items[i].Title)
		}
	}
}
