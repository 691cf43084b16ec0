package util

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter is a token bucket.
type Limiter struct {
	inner *rate.Limiter
}

// NewLimiter creates a limiter refilling r tokens per second up to burst b.
func NewLimiter(r float64, b int) *Limiter {
	return &Limiter{
		inner: rate.NewLimiter(rate.Limit(r), b),
	}
}

// Allow reports whether n tokens are available now, consuming them if so.
func (l *Limiter) Allow(n int) bool {
	return l.inner.AllowN(time.Now(), n)
}

// Wait blocks until n tokens are available.
func (l *Limiter) Wait(ctx context.Context, n int) error {
	return l.inner.WaitN(ctx, n)
}

// KeyedLimiter hands out one Limiter per key, such as one per notebook, and
// forgets keys idle for longer than ttl.
type KeyedLimiter struct {
	mu       sync.Mutex
	limiters map[string]*keyedEntry
	rate     float64
	burst    int
	ttl      time.Duration
	done     chan struct{}
	once     sync.Once
}

type keyedEntry struct {
	limiter  *Limiter
	lastUsed time.Time
}

func NewKeyedLimiter(r float64, b int, ttl time.Duration) *KeyedLimiter {
	k := &KeyedLimiter{
		limiters: make(map[string]*keyedEntry),
		rate:     r,
		burst:    b,
		ttl:      ttl,
		done:     make(chan struct{}),
	}
	go k.cleanupLoop()
	return k
}

func (k *KeyedLimiter) Get(key string) *Limiter {
	k.mu.Lock()
	defer k.mu.Unlock()

	entry, ok := k.limiters[key]
	if !ok {
		entry = &keyedEntry{limiter: NewLimiter(k.rate, k.burst)}
		k.limiters[key] = entry
	}
	entry.lastUsed = time.Now()
	return entry.limiter
}

// Close stops the cleanup loop.
func (k *KeyedLimiter) Close() {
	k.once.Do(func() { close(k.done) })
}

func (k *KeyedLimiter) cleanupLoop() {
	ticker := time.NewTicker(k.ttl / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			k.cleanup()
		case <-k.done:
			return
		}
	}
}

func (k *KeyedLimiter) cleanup() {
	k.mu.Lock()
	defer k.mu.Unlock()

	now := time.Now()
	for key, entry := range k.limiters {
		if now.Sub(entry.lastUsed) > k.ttl {
			delete(k.limiters, key)
		}
	}
}
