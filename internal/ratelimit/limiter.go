package ratelimit

import (
	"sync"
	"time"
)

// Config parameterizes one bucket scope. A bucket holds Capacity tokens
// and is credited RefillTokens once per elapsed RefillInterval window,
// never exceeding Capacity.
type Config struct {
	Capacity       int64
	RefillTokens   int64
	RefillInterval time.Duration
}

// bucket tracks one key's remaining tokens.
type bucket struct {
	tokens     int64
	lastRefill time.Time
}

// Keyed is a concurrency-safe set of token buckets sharing one Config.
// Buckets are created full on first use of a key; creation is atomic,
// so two racing requests for a new key observe a single bucket.
type Keyed struct {
	mu      sync.Mutex
	cfg     Config
	buckets map[string]*bucket

	now func() time.Time // test hook
}

// NewKeyed creates a limiter scope.
func NewKeyed(cfg Config) *Keyed {
	if cfg.Capacity < 1 {
		cfg.Capacity = 1
	}
	if cfg.RefillTokens < 1 {
		cfg.RefillTokens = cfg.Capacity
	}
	if cfg.RefillInterval <= 0 {
		cfg.RefillInterval = time.Second
	}
	return &Keyed{
		cfg:     cfg,
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

// RefillInterval returns the refill window this scope was built with.
// Callers use it to report retry timing to throttled clients.
func (k *Keyed) RefillInterval() time.Duration {
	return k.cfg.RefillInterval
}

// Allow attempts to consume one token for key, creating the bucket on
// first use. Returns false when no token is available.
func (k *Keyed) Allow(key string) bool {
	k.mu.Lock()
	defer k.mu.Unlock()

	b := k.bucketLocked(key)
	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// Remaining reports the tokens currently available for key. Unknown keys
// report full capacity, matching what a fresh bucket would hold.
func (k *Keyed) Remaining(key string) int64 {
	k.mu.Lock()
	defer k.mu.Unlock()

	b, ok := k.buckets[key]
	if !ok {
		return k.cfg.Capacity
	}
	k.refillLocked(b)
	return b.tokens
}

// Remove releases the bucket for key, bounding memory when the owning
// connection or session ends. Unknown keys are a no-op.
func (k *Keyed) Remove(key string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	delete(k.buckets, key)
}

// Len returns the number of live buckets.
func (k *Keyed) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.buckets)
}

// bucketLocked returns the refilled bucket for key, creating it full.
func (k *Keyed) bucketLocked(key string) *bucket {
	b, ok := k.buckets[key]
	if !ok {
		b = &bucket{tokens: k.cfg.Capacity, lastRefill: k.now()}
		k.buckets[key] = b
		return b
	}
	k.refillLocked(b)
	return b
}

// refillLocked credits whole elapsed windows, clamped to capacity.
// Partial windows carry over via lastRefill so no credit is lost.
func (k *Keyed) refillLocked(b *bucket) {
	elapsed := k.now().Sub(b.lastRefill)
	if elapsed < k.cfg.RefillInterval {
		return
	}

	windows := int64(elapsed / k.cfg.RefillInterval)
	b.tokens += windows * k.cfg.RefillTokens
	if b.tokens > k.cfg.Capacity {
		b.tokens = k.cfg.Capacity
	}
	b.lastRefill = b.lastRefill.Add(time.Duration(windows) * k.cfg.RefillInterval)
}
