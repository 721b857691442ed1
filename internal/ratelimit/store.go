// Watchlog Intake - OCR Watch History Extraction Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchlog-intake

package ratelimit

import (
	"context"
	"sync"
	"time"
)

// record is one bucket counter with its expiry instant.
type record struct {
	count     int64
	expiresAt time.Time
}

// MemoryStore is an in-memory Store. Increment-and-get runs under a single
// mutex, making it atomic per bucket key. Expired records are reset lazily
// on the next increment and swept opportunistically, so time-bucketed keys
// never accumulate indefinitely.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]record
	now     func() time.Time
}

// NewMemoryStore creates an empty counter store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]record),
		now:     time.Now,
	}
}

// Incr atomically increments the bucket and returns the new count. The TTL
// is refreshed on every increment; because the key embeds the window start,
// refreshing cannot extend a bucket into the next window.
func (s *MemoryStore) Incr(_ context.Context, key string, ttl time.Duration) (int64, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[key]
	if !ok || now.After(rec.expiresAt) {
		rec = record{}
	}
	rec.count++
	rec.expiresAt = now.Add(ttl)
	s.records[key] = rec

	// Opportunistic sweep: drop a handful of expired siblings while holding
	// the lock anyway. Bounded so a large map cannot stall an increment.
	swept := 0
	for k, r := range s.records {
		if now.After(r.expiresAt) {
			delete(s.records, k)
			swept++
			if swept >= 16 {
				break
			}
		}
	}

	return rec.count, nil
}

// Len reports the number of live records. Used by tests.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}
