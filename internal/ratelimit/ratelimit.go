// Package ratelimit provides per-host token-bucket rate limiting for the
// web_fetch and web_search tools. The bucket itself wraps
// golang.org/x/time/rate (grounded on digitallysavvy-go-ai's
// TokenBucketLimiter example); the per-key registry around it is
// adapted from haasonsaas-nexus's internal/ratelimit.Limiter.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Config configures the per-key limit.
type Config struct {
	RequestsPerSecond float64
	Burst             int
}

// DefaultConfig matches spec §5's default outbound-fetch ceiling.
func DefaultConfig() Config {
	return Config{RequestsPerSecond: 2, Burst: 4}
}

// Limiter manages an independent token bucket per key (typically a
// request hostname).
type Limiter struct {
	mu       sync.Mutex
	buckets  map[string]*rate.Limiter
	config   Config
	maxKeys  int
}

// NewLimiter constructs a Limiter using config for every new key.
func NewLimiter(config Config) *Limiter {
	if config.RequestsPerSecond <= 0 {
		config.RequestsPerSecond = 2
	}
	if config.Burst <= 0 {
		config.Burst = int(config.RequestsPerSecond * 2)
	}
	return &Limiter{
		buckets: make(map[string]*rate.Limiter),
		config:  config,
		maxKeys: 4096,
	}
}

func (l *Limiter) bucketFor(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.buckets[key]
	if ok {
		return b
	}
	if len(l.buckets) >= l.maxKeys {
		l.pruneLocked()
	}
	b = rate.NewLimiter(rate.Limit(l.config.RequestsPerSecond), l.config.Burst)
	l.buckets[key] = b
	return b
}

// pruneLocked drops buckets sitting at full capacity, a cheap proxy for
// "recently inactive", called with l.mu held.
func (l *Limiter) pruneLocked() {
	for key, b := range l.buckets {
		if b.Tokens() >= float64(l.config.Burst) {
			delete(l.buckets, key)
		}
	}
}

// Allow reports whether a request for key may proceed now, consuming a
// token if so.
func (l *Limiter) Allow(key string) bool {
	return l.bucketFor(key).Allow()
}

// Wait blocks until a token for key is available or ctx is done.
func (l *Limiter) Wait(ctx context.Context, key string) error {
	return l.bucketFor(key).Wait(ctx)
}

// Reserve returns how long the caller must wait for key's next token,
// without blocking.
func (l *Limiter) Reserve(key string) time.Duration {
	r := l.bucketFor(key).Reserve()
	if !r.OK() {
		return 0
	}
	return r.Delay()
}
