package ratelimit

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/time/rate"
)

// Pacer spaces outbound calls per key with token buckets.
// The window Limiter caps the count; the Pacer smooths bursts inside it.
type Pacer struct {
	limiters map[string]*rate.Limiter
	mu       sync.RWMutex
}

// NewPacer creates an empty pacer
func NewPacer() *Pacer {
	return &Pacer{
		limiters: make(map[string]*rate.Limiter),
	}
}

// NewPacerFromQuotas creates a pacer with one bucket per quota:
// RequestsPerMinute refills the bucket, BurstLimit sizes it.
func NewPacerFromQuotas(quotas map[string]Quota) *Pacer {
	p := NewPacer()
	for name, q := range quotas {
		if q.RequestsPerMinute <= 0 {
			continue
		}
		p.AddLimiter(name, float64(q.RequestsPerMinute)/60, q.BurstLimit)
	}
	return p
}

// AddLimiter adds a bucket for a key
// requestsPerSecond: the refill rate
// burst: maximum burst size, at least 1
func (p *Pacer) AddLimiter(name string, requestsPerSecond float64, burst int) {
	if burst < 1 {
		burst = 1
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.limiters[name] = rate.NewLimiter(rate.Limit(requestsPerSecond), burst)
}

// Wait blocks until the key's bucket allows an event. Unknown keys pass through.
func (p *Pacer) Wait(ctx context.Context, name string) error {
	p.mu.RLock()
	limiter, ok := p.limiters[name]
	p.mu.RUnlock()

	if !ok {
		return nil
	}

	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("pacer %s: %w", name, err)
	}
	return nil
}

// Allow reports whether an event may happen now, consuming a token when it does
func (p *Pacer) Allow(name string) bool {
	p.mu.RLock()
	limiter, ok := p.limiters[name]
	p.mu.RUnlock()

	if !ok {
		return true
	}

	return limiter.Allow()
}

// Burst returns the bucket size for a key, 0 when unknown
func (p *Pacer) Burst(name string) int {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if limiter, ok := p.limiters[name]; ok {
		return limiter.Burst()
	}
	return 0
}
