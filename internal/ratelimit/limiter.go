// Package ratelimit paces outbound requests to external collaborators:
// the judgment service and the replay target.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter implements rate limiting with an optional per-host override.
type Limiter struct {
	mu           sync.RWMutex
	limiter      *rate.Limiter
	perHost      map[string]*rate.Limiter
	defaultRate  rate.Limit
	defaultBurst int
	hostDelay    time.Duration
	lastRequest  map[string]time.Time
}

// NewLimiter creates a new rate limiter.
func NewLimiter(requestsPerSecond float64, burst int) *Limiter {
	return &Limiter{
		limiter:      rate.NewLimiter(rate.Limit(requestsPerSecond), burst),
		perHost:      make(map[string]*rate.Limiter),
		defaultRate:  rate.Limit(requestsPerSecond),
		defaultBurst: burst,
		lastRequest:  make(map[string]time.Time),
	}
}

// Wait blocks until a request is allowed or context is cancelled.
func (l *Limiter) Wait(ctx context.Context) error {
	return l.limiter.Wait(ctx)
}

// WaitHost blocks until a request to a specific host is allowed.
func (l *Limiter) WaitHost(ctx context.Context, host string) error {
	// Global rate limit
	if err := l.limiter.Wait(ctx); err != nil {
		return err
	}

	// Per-host rate limit
	l.mu.Lock()
	hostLimiter, exists := l.perHost[host]
	if !exists {
		hostLimiter = rate.NewLimiter(l.defaultRate, l.defaultBurst)
		l.perHost[host] = hostLimiter
	}

	// Minimum spacing between requests to the same host
	if l.hostDelay > 0 {
		if lastReq, ok := l.lastRequest[host]; ok {
			elapsed := time.Since(lastReq)
			if elapsed < l.hostDelay {
				l.mu.Unlock()
				select {
				case <-time.After(l.hostDelay - elapsed):
				case <-ctx.Done():
					return ctx.Err()
				}
				l.mu.Lock()
			}
		}
		l.lastRequest[host] = time.Now()
	}
	l.mu.Unlock()

	return hostLimiter.Wait(ctx)
}

// SetHostRate sets a custom rate limit for a specific host.
func (l *Limiter) SetHostRate(host string, requestsPerSecond float64, burst int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.perHost[host] = rate.NewLimiter(rate.Limit(requestsPerSecond), burst)
}

// SetHostDelay sets the minimum delay between requests to the same host.
func (l *Limiter) SetHostDelay(delay time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.hostDelay = delay
}

// Allow checks if a request is allowed without blocking.
func (l *Limiter) Allow() bool {
	return l.limiter.Allow()
}

// SetRate updates the global rate limit.
func (l *Limiter) SetRate(requestsPerSecond float64, burst int) {
	l.limiter.SetLimit(rate.Limit(requestsPerSecond))
	l.limiter.SetBurst(burst)
	l.defaultRate = rate.Limit(requestsPerSecond)
	l.defaultBurst = burst
}

// Backoff pauses for the given duration, honoring cancellation. Used after
// a rate-limit signal from the replay target before the next header test.
func (l *Limiter) Backoff(ctx context.Context, d time.Duration) error {
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
