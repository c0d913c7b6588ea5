package aris

import (
	"sync"
	"time"
)

const (
	tokenCapacity = 1000
	bandwidthMbps = 10

	// Token costs per announcement class.
	costBootstrap = 30
	costGossip    = 10
)

// tokenBucket throttles announcement frequency against a notional shared
// bandwidth budget. It starts full; Refill adds bandwidth_mbps*elapsed_ms/10
// tokens at most once per 100 ms, capped at capacity. Tokens never go
// negative and never exceed capacity.
type tokenBucket struct {
	mu         sync.Mutex
	tokens     int
	lastRefill time.Time
	now        func() time.Time
}

func newTokenBucket() *tokenBucket {
	return &tokenBucket{
		tokens:     tokenCapacity,
		lastRefill: time.Now(),
		now:        time.Now,
	}
}

// Refill credits tokens for the time elapsed since the last refill. Calls
// closer than 100 ms apart are no-ops so a tight receive loop cannot inflate
// the budget through rounding.
func (b *tokenBucket) Refill() {
	b.mu.Lock()
	defer b.mu.Unlock()

	elapsed := b.now().Sub(b.lastRefill)
	if elapsed <= 100*time.Millisecond {
		return
	}

	earned := bandwidthMbps * int(elapsed.Milliseconds()) / 10
	b.tokens += earned
	if b.tokens > tokenCapacity {
		b.tokens = tokenCapacity
	}
	b.lastRefill = b.now()
}

// Consume deducts n tokens and reports success, or leaves the balance
// untouched when fewer than n are available.
func (b *tokenBucket) Consume(n int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.tokens < n {
		return false
	}
	b.tokens -= n
	return true
}

func (b *tokenBucket) Tokens() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tokens
}
