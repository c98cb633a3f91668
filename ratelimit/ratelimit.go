package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/veilmint/veilmint/abuse"
	"github.com/veilmint/veilmint/exception"
	"github.com/veilmint/veilmint/logx"
)

// RateLimiterConfig bounds how many requests a single key may issue inside
// a sliding window.
type RateLimiterConfig struct {
	MaxRequests     int
	WindowSize      time.Duration
	CleanupInterval time.Duration
}

func DefaultConfig() *RateLimiterConfig {
	return &RateLimiterConfig{
		MaxRequests:     100,
		WindowSize:      time.Second,
		CleanupInterval: 5 * time.Minute,
	}
}

// RateLimiter implements sliding window rate limiting keyed by an opaque
// string, typically a client IP.
type RateLimiter struct {
	config      *RateLimiterConfig
	requests    map[string][]time.Time
	mu          sync.Mutex
	stopCleanup chan struct{}
}

func NewRateLimiter(config *RateLimiterConfig) *RateLimiter {
	if config == nil {
		config = DefaultConfig()
	}

	rl := &RateLimiter{
		config:      config,
		requests:    make(map[string][]time.Time),
		stopCleanup: make(chan struct{}),
	}

	exception.SafeGo("ratelimit-cleanup", rl.cleanupExpiredEntries)

	return rl
}

// Allow checks if a request from the given key is allowed.
func (rl *RateLimiter) Allow(key string) bool {
	return rl.AllowWithContext(context.Background(), key)
}

// AllowWithContext checks if a request from the given key is allowed,
// recording it against the window when it is.
func (rl *RateLimiter) AllowWithContext(ctx context.Context, key string) bool {
	now := time.Now()
	cutoff := now.Add(-rl.config.WindowSize)

	rl.mu.Lock()
	defer rl.mu.Unlock()

	valid := rl.requests[key][:0]
	for _, t := range rl.requests[key] {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}

	if len(valid) >= rl.config.MaxRequests {
		rl.requests[key] = valid
		return false
	}

	rl.requests[key] = append(valid, now)
	return true
}

// GetStats returns the in-window request count and oldest timestamp for a key.
func (rl *RateLimiter) GetStats(key string) (int, time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := time.Now().Add(-rl.config.WindowSize)

	count := 0
	var oldest time.Time
	for _, t := range rl.requests[key] {
		if t.After(cutoff) {
			count++
			if oldest.IsZero() || t.Before(oldest) {
				oldest = t
			}
		}
	}

	return count, oldest
}

// Reset removes all entries for a given key.
func (rl *RateLimiter) Reset(key string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.requests, key)
}

func (rl *RateLimiter) cleanupExpiredEntries() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-rl.stopCleanup:
			return
		}
	}
}

func (rl *RateLimiter) cleanup() {
	cutoff := time.Now().Add(-rl.config.WindowSize)

	rl.mu.Lock()
	defer rl.mu.Unlock()

	for key, requests := range rl.requests {
		valid := requests[:0]
		for _, t := range requests {
			if t.After(cutoff) {
				valid = append(valid, t)
			}
		}

		if len(valid) == 0 {
			delete(rl.requests, key)
		} else {
			rl.requests[key] = valid
		}
	}
}

// Stop stops the cleanup goroutine.
func (rl *RateLimiter) Stop() {
	close(rl.stopCleanup)
}

// GlobalRateLimiter layers a per-client limit, a whole-mint limit, and the
// abuse detector's blacklist in front of the RPC surface.
type GlobalRateLimiter struct {
	ipLimiter     *RateLimiter
	globalLimiter *RateLimiter
	abuseDetector *abuse.AbuseDetector
}

type GlobalRateLimiterConfig struct {
	IPConfig     *RateLimiterConfig
	GlobalConfig *RateLimiterConfig
}

func DefaultGlobalConfig() *GlobalRateLimiterConfig {
	return &GlobalRateLimiterConfig{
		IPConfig: &RateLimiterConfig{
			MaxRequests:     50,
			WindowSize:      time.Second,
			CleanupInterval: 5 * time.Minute,
		},
		GlobalConfig: &RateLimiterConfig{
			MaxRequests:     1000,
			WindowSize:      time.Second,
			CleanupInterval: 5 * time.Minute,
		},
	}
}

// NewGlobalRateLimiter creates a limiter stack. The abuse detector is
// optional; without it only the window limits apply.
func NewGlobalRateLimiter(config *GlobalRateLimiterConfig, detector *abuse.AbuseDetector) *GlobalRateLimiter {
	if config == nil {
		config = DefaultGlobalConfig()
	}

	return &GlobalRateLimiter{
		ipLimiter:     NewRateLimiter(config.IPConfig),
		globalLimiter: NewRateLimiter(config.GlobalConfig),
		abuseDetector: detector,
	}
}

// Allow reports whether a request from the given client may proceed.
// Blacklisted clients are refused before any limiter state is touched.
func (grl *GlobalRateLimiter) Allow(ctx context.Context, client string) bool {
	if grl.abuseDetector != nil {
		if grl.abuseDetector.IsBlacklisted(client) {
			logx.Warn("RATELIMIT", "Refusing request from blacklisted client ", client)
			return false
		}
		if err := grl.abuseDetector.CheckRequestRate(client); err != nil {
			logx.Warn("RATELIMIT", err.Error())
			return false
		}
	}

	if !grl.ipLimiter.AllowWithContext(ctx, client) {
		return false
	}

	return grl.globalLimiter.AllowWithContext(ctx, "global")
}

// Stop stops all limiters. The abuse detector has its own lifecycle.
func (grl *GlobalRateLimiter) Stop() {
	grl.ipLimiter.Stop()
	grl.globalLimiter.Stop()
}
