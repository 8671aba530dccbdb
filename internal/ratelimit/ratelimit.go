// Package ratelimit provides per-connector token buckets gating outbound
// calls through the proxy.
package ratelimit

import (
	"context"
	"log"
	"sync"
	"time"
)

const waitPollInterval = 10 * time.Millisecond

// Config declares one bucket: capacity and sustained rate.
type Config struct {
	MaxRequestsPerMinute float64 `yaml:"max_requests_per_minute"`
	BurstSize            float64 `yaml:"burst_size"`
}

// Limiter is a token bucket. Tokens are fractional; refill accrues
// continuously at rate/60 tokens per second. A non-positive rate means the
// bucket never refills, which makes it a hard cap on total calls.
type Limiter struct {
	mu         sync.Mutex
	tokens     float64
	maxTokens  float64
	refillRate float64 // tokens per second
	lastRefill time.Time

	now func() time.Time
}

// NewLimiter builds a bucket that starts full.
func NewLimiter(cfg Config) *Limiter {
	burst := cfg.BurstSize
	if burst <= 0 {
		burst = cfg.MaxRequestsPerMinute
	}
	return &Limiter{
		tokens:     burst,
		maxTokens:  burst,
		refillRate: cfg.MaxRequestsPerMinute / 60.0,
		now:        time.Now,
	}
}

func (l *Limiter) refillLocked() {
	if l.refillRate <= 0 {
		return
	}
	now := l.now()
	if l.lastRefill.IsZero() {
		l.lastRefill = now
		return
	}
	elapsed := now.Sub(l.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}
	l.tokens += elapsed * l.refillRate
	if l.tokens > l.maxTokens {
		l.tokens = l.maxTokens
	}
	l.lastRefill = now
}

// Allow consumes one token if available.
func (l *Limiter) Allow() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.refillLocked()
	if l.tokens >= 1 {
		l.tokens--
		return true
	}
	return false
}

// Wait blocks until a token is available or the context ends. It polls
// rather than computing a deadline so that config reloads and competing
// callers are observed promptly.
func (l *Limiter) Wait(ctx context.Context) error {
	for {
		if l.Allow() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(waitPollInterval):
		}
	}
}

// Tokens reports the current token count after refill.
func (l *Limiter) Tokens() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.refillLocked()
	return l.tokens
}

// Registry hands out one limiter per connector, falling back to a default
// bucket for connectors without explicit config.
type Registry struct {
	mu       sync.RWMutex
	limiters map[string]*Limiter

	defaults     Config
	perConnector map[string]Config

	logger *log.Logger
}

// NewRegistry builds a registry with the given default bucket and
// per-connector overrides.
func NewRegistry(defaults Config, perConnector map[string]Config) *Registry {
	if defaults.MaxRequestsPerMinute == 0 && defaults.BurstSize == 0 {
		defaults = Config{MaxRequestsPerMinute: 60, BurstSize: 10}
	}
	return &Registry{
		limiters:     make(map[string]*Limiter),
		defaults:     defaults,
		perConnector: perConnector,
		logger:       log.New(log.Writer(), "[RATELIMIT] ", log.LstdFlags),
	}
}

// Limiter returns the bucket for a connector, creating it on first use.
func (r *Registry) Limiter(connectorID string) *Limiter {
	r.mu.RLock()
	l, ok := r.limiters[connectorID]
	r.mu.RUnlock()
	if ok {
		return l
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok := r.limiters[connectorID]; ok {
		return l
	}
	cfg, ok := r.perConnector[connectorID]
	if !ok {
		cfg = r.defaults
	}
	l = NewLimiter(cfg)
	r.limiters[connectorID] = l
	r.logger.Printf("bucket created for %s (rate=%.1f/min burst=%.0f)",
		connectorID, cfg.MaxRequestsPerMinute, l.maxTokens)
	return l
}

// Check consumes a token for the connector without blocking.
func (r *Registry) Check(connectorID string) bool {
	return r.Limiter(connectorID).Allow()
}

// Wait blocks until the connector's bucket yields a token or ctx ends.
func (r *Registry) Wait(ctx context.Context, connectorID string) error {
	return r.Limiter(connectorID).Wait(ctx)
}

// Stats reports token counts per active bucket.
func (r *Registry) Stats() map[string]interface{} {
	r.mu.RLock()
	defer r.mu.RUnlock()
	buckets := make(map[string]interface{}, len(r.limiters))
	for id, l := range r.limiters {
		buckets[id] = map[string]interface{}{
			"tokens":      l.Tokens(),
			"max_tokens":  l.maxTokens,
			"refill_rate": l.refillRate,
		}
	}
	return map[string]interface{}{
		"active_buckets": len(r.limiters),
		"buckets":        buckets,
	}
}
