package logging

import (
	"strings"
	"sync"
)

// ProgressSampler suppresses repetitive progress logs while preserving signal
// when a request crosses a percentage bucket. It tracks each key (usually a
// request ID) independently and is safe for concurrent use by workers.
type ProgressSampler struct {
	bucketSize int
	mu         sync.Mutex
	lastBucket map[string]int
}

// NewProgressSampler constructs a sampler that emits when the percent crosses
// bucket boundaries (default 25%).
func NewProgressSampler(bucketSize int) *ProgressSampler {
	if bucketSize <= 0 {
		bucketSize = 25
	}
	return &ProgressSampler{bucketSize: bucketSize, lastBucket: make(map[string]int)}
}

// ShouldLog reports whether a progress event for key should be logged.
// Negative percentages mean "unknown" and are never logged.
func (s *ProgressSampler) ShouldLog(key string, percent int) bool {
	if s == nil {
		return true
	}
	if percent < 0 {
		return false
	}
	if percent > 100 {
		percent = 100
	}
	key = strings.TrimSpace(key)
	bucket := percent / s.bucketSize

	s.mu.Lock()
	defer s.mu.Unlock()
	last, seen := s.lastBucket[key]
	if seen && bucket <= last {
		return false
	}
	s.lastBucket[key] = bucket
	return true
}

// Forget drops state for a finished key.
func (s *ProgressSampler) Forget(key string) {
	if s == nil {
		return
	}
	s.mu.Lock()
	delete(s.lastBucket, strings.TrimSpace(key))
	s.mu.Unlock()
}
