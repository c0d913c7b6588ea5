package aris

import (
	"testing"
	"time"
)

// fakeClock pins the bucket to a controllable time source.
func fakeClock(b *tokenBucket) func(time.Duration) {
	now := time.Now()
	b.lastRefill = now
	b.now = func() time.Time { return now }
	return func(d time.Duration) { now = now.Add(d) }
}

func TestTokenBucket_StartsFull(t *testing.T) {
	b := newTokenBucket()
	if got := b.Tokens(); got != tokenCapacity {
		t.Errorf("fresh bucket holds %d tokens, want %d", got, tokenCapacity)
	}
}

func TestTokenBucket_ConsumeBounds(t *testing.T) {
	b := newTokenBucket()
	if !b.Consume(tokenCapacity) {
		t.Fatal("full bucket refused a capacity-sized consume")
	}
	if b.Tokens() != 0 {
		t.Errorf("tokens after draining: %d, want 0", b.Tokens())
	}
	if b.Consume(1) {
		t.Error("empty bucket granted a consume")
	}
	if b.Tokens() != 0 {
		t.Errorf("failed consume changed balance to %d", b.Tokens())
	}
}

func TestTokenBucket_RefillRate(t *testing.T) {
	b := newTokenBucket()
	advance := fakeClock(b)
	b.tokens = 0

	// Under the 100 ms floor nothing is credited.
	advance(100 * time.Millisecond)
	b.Refill()
	if b.Tokens() != 0 {
		t.Errorf("refill before the floor credited %d tokens", b.Tokens())
	}

	// 200 ms at 10 mbps earns 10*200/10 = 200 tokens.
	advance(100 * time.Millisecond)
	b.Refill()
	if b.Tokens() != 200 {
		t.Errorf("tokens after 200 ms: %d, want 200", b.Tokens())
	}

	if !b.Consume(costBootstrap) {
		t.Fatal("consume failed with sufficient tokens")
	}
	if b.Tokens() != 200-costBootstrap {
		t.Errorf("tokens after bootstrap consume: %d, want %d", b.Tokens(), 200-costBootstrap)
	}
}

func TestTokenBucket_RefillCapped(t *testing.T) {
	b := newTokenBucket()
	advance := fakeClock(b)
	b.tokens = 5

	advance(time.Hour)
	b.Refill()
	if b.Tokens() != tokenCapacity {
		t.Errorf("tokens after long idle: %d, want capacity %d", b.Tokens(), tokenCapacity)
	}
}
