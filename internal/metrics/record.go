// Watchlog Intake - OCR Watch History Extraction Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchlog-intake

package metrics

import (
	"crypto/sha256"
	"encoding/hex"
)

// CacheHitLabel classifies which of the two request-path caches were hit.
type CacheHitLabel string

const (
	CacheHitNone     CacheHitLabel = "none"
	CacheHitLLM      CacheHitLabel = "llm"
	CacheHitMetadata CacheHitLabel = "metadata"
	CacheHitBoth     CacheHitLabel = "both"
)

// DescribeCacheHit combines the LLM-cache and metadata-cache outcomes into a
// single four-valued label.
func DescribeCacheHit(llmCacheHit, metadataCacheHit bool) CacheHitLabel {
	switch {
	case llmCacheHit && metadataCacheHit:
		return CacheHitBoth
	case llmCacheHit:
		return CacheHitLLM
	case metadataCacheHit:
		return CacheHitMetadata
	default:
		return CacheHitNone
	}
}

// HashIdentifier returns the lowercase hex SHA-256 digest of the raw
// identifier. Raw identifiers must never reach persisted storage; every
// identity that leaves the process goes through this function first.
func HashIdentifier(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// Payload carries the per-request measurements collected while the pipeline
// runs. UserID and StarID hold raw identifiers; they are hashed by
// BuildRecord and never persisted as-is.
type Payload struct {
	UserID    string
	StarID    string
	Success   bool
	LatencyMs int64
	CacheHit  CacheHitLabel
	ErrorCode string
	Source    string
}

// Record is the anonymized, write-once metric row persisted per request.
type Record struct {
	UserIDHash string        `json:"user_id"`
	StarIDHash string        `json:"star_id"`
	Success    bool          `json:"success"`
	LatencyMs  int64         `json:"latency_ms"`
	CacheHit   CacheHitLabel `json:"cache_hit"`
	ErrorCode  string        `json:"error_code"`
	Source     string        `json:"source"`
}

// BuildRecord converts a payload into a persistable record, hashing any
// present identifiers. Negative latencies are clamped to zero.
func BuildRecord(p Payload) Record {
	rec := Record{
		Success:   p.Success,
		LatencyMs: p.LatencyMs,
		CacheHit:  p.CacheHit,
		ErrorCode: p.ErrorCode,
		Source:    p.Source,
	}
	if rec.LatencyMs < 0 {
		rec.LatencyMs = 0
	}
	if rec.CacheHit == "" {
		rec.CacheHit = CacheHitNone
	}
	if p.UserID != "" {
		rec.UserIDHash = HashIdentifier(p.UserID)
	}
	if p.StarID != "" {
		rec.StarIDHash = HashIdentifier(p.StarID)
	}
	return rec
}
