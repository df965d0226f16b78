// Package ratelimit implements the per-domain token bucket described in
// spec §4.2, generalizing purify's per-identity limiter map
// (api/middleware/ratelimit.go) to per-domain buckets with an explicit
// minimum-spacing guarantee on top of the token bucket.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// DomainConfig is a per-domain override of the default rate.
type DomainConfig struct {
	RPM      int
	MinDelay time.Duration
}

type bucket struct {
	limiter      *rate.Limiter
	minDelay     time.Duration
	lastAcquired time.Time
	lastSeen     time.Time
}

// Limiter enforces a token bucket plus strict minimum spacing per domain.
type Limiter struct {
	mu          sync.Mutex
	buckets     map[string]*bucket
	defaultRPM  int
	defaultMin  time.Duration
	overrides   map[string]DomainConfig
	stopCleanup chan struct{}
}

// New builds a Limiter with the given process-wide defaults.
func New(defaultRPM int, defaultMinDelay time.Duration) *Limiter {
	l := &Limiter{
		buckets:     make(map[string]*bucket),
		defaultRPM:  defaultRPM,
		defaultMin:  defaultMinDelay,
		overrides:   make(map[string]DomainConfig),
		stopCleanup: make(chan struct{}),
	}
	go l.cleanupLoop()
	return l
}

// SetDomainConfig overrides the rate/min-delay for one domain (sourced from
// heuristics config or the Learning Engine).
func (l *Limiter) SetDomainConfig(domain string, cfg DomainConfig) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.overrides[domain] = cfg
	if b, ok := l.buckets[domain]; ok {
		b.limiter = rate.NewLimiter(rate.Limit(float64(cfg.RPM)/60.0), max(1, cfg.RPM/4))
		b.minDelay = cfg.MinDelay
	}
}

func (l *Limiter) getOrCreate(domain string) *bucket {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.buckets[domain]
	if !ok {
		rpm, minDelay := l.defaultRPM, l.defaultMin
		if o, ok := l.overrides[domain]; ok {
			rpm, minDelay = o.RPM, o.MinDelay
		}
		b = &bucket{
			limiter:  rate.NewLimiter(rate.Limit(float64(rpm)/60.0), max(1, rpm/4)),
			minDelay: minDelay,
		}
		l.buckets[domain] = b
	}
	b.lastSeen = time.Now()
	return b
}

// Acquire blocks until a slot is free for domain, honouring both the token
// bucket and the strict minimum spacing between consecutive acquisitions.
func (l *Limiter) Acquire(ctx context.Context, domain string) error {
	b := l.getOrCreate(domain)

	if err := b.limiter.Wait(ctx); err != nil {
		return err
	}

	l.mu.Lock()
	since := time.Since(b.lastAcquired)
	wait := time.Duration(0)
	if !b.lastAcquired.IsZero() && since < b.minDelay {
		wait = b.minDelay - since
	}
	l.mu.Unlock()

	if wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	l.mu.Lock()
	b.lastAcquired = time.Now()
	l.mu.Unlock()
	return nil
}

// Status is a non-blocking read of a domain's current rate-limit state.
type Status struct {
	Domain     string
	Limit      float64 // tokens/sec
	Recent     int     // tokens available now (floor)
	CanRequest bool
}

func (l *Limiter) Status(domain string) Status {
	b := l.getOrCreate(domain)
	tokens := b.limiter.Tokens()
	return Status{
		Domain:     domain,
		Limit:      float64(b.limiter.Limit()),
		Recent:     int(tokens),
		CanRequest: tokens >= 1,
	}
}

// Stop halts the background eviction loop.
func (l *Limiter) Stop() {
	close(l.stopCleanup)
}

func (l *Limiter) cleanupLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			cutoff := time.Now().Add(-1 * time.Hour)
			l.mu.Lock()
			for domain, b := range l.buckets {
				if b.lastSeen.Before(cutoff) {
					delete(l.buckets, domain)
				}
			}
			l.mu.Unlock()
		case <-l.stopCleanup:
			return
		}
	}
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
