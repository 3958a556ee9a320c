// Package ratelimit bounds per-tenant fan-out to the upstream service.
// Without it a slow or abusive tenant can saturate outbound connections
// and degrade all others; the limiter makes that gap explicit. It is off
// unless configured.
package ratelimit

import (
	"sync"
)

// ConcurrencyLimiter caps in-flight upstream calls per key.
type ConcurrencyLimiter struct {
	mu       sync.Mutex
	inflight map[string]int
	limit    int
}

// NewConcurrencyLimiter creates a limiter allowing up to limit concurrent
// acquisitions per key. A limit of zero or less disables limiting.
func NewConcurrencyLimiter(limit int) *ConcurrencyLimiter {
	return &ConcurrencyLimiter{
		inflight: make(map[string]int),
		limit:    limit,
	}
}

// Acquire reserves a slot for the key. Returns false when the key is at
// its limit; the caller should reject with 429.
func (l *ConcurrencyLimiter) Acquire(key string) bool {
	if l == nil || l.limit <= 0 {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.inflight[key] >= l.limit {
		return false
	}
	l.inflight[key]++
	return true
}

// Release frees a slot previously acquired for the key.
func (l *ConcurrencyLimiter) Release(key string) {
	if l == nil || l.limit <= 0 {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if n := l.inflight[key]; n > 1 {
		l.inflight[key] = n - 1
	} else {
		delete(l.inflight, key)
	}
}

// InFlight returns the current in-flight count for a key.
func (l *ConcurrencyLimiter) InFlight(key string) int {
	if l == nil {
		return 0
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	return l.inflight[key]
}
