package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/veilmint/veilmint/abuse"
)

func TestAllowUnderLimitDenyOver(t *testing.T) {
	rl := NewRateLimiter(&RateLimiterConfig{
		MaxRequests:     3,
		WindowSize:      time.Minute,
		CleanupInterval: time.Minute,
	})
	defer rl.Stop()

	key := "1.2.3.4"
	for i := 0; i < 3; i++ {
		if !rl.Allow(key) {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	if rl.Allow(key) {
		t.Fatalf("request over the limit should be denied")
	}

	// Other keys have their own window.
	if !rl.Allow("5.6.7.8") {
		t.Fatalf("different key should be allowed")
	}

	count, _ := rl.GetStats(key)
	if count != 3 {
		t.Fatalf("expected 3 in-window requests, got %d", count)
	}
}

func TestWindowSlides(t *testing.T) {
	rl := NewRateLimiter(&RateLimiterConfig{
		MaxRequests:     2,
		WindowSize:      50 * time.Millisecond,
		CleanupInterval: time.Minute,
	})
	defer rl.Stop()

	key := "9.9.9.9"
	if !rl.Allow(key) || !rl.Allow(key) {
		t.Fatalf("first two requests should be allowed")
	}
	if rl.Allow(key) {
		t.Fatalf("third request inside the window should be denied")
	}

	time.Sleep(60 * time.Millisecond)

	if !rl.Allow(key) {
		t.Fatalf("request after the window slid should be allowed")
	}
}

func TestResetClearsKey(t *testing.T) {
	rl := NewRateLimiter(&RateLimiterConfig{
		MaxRequests:     1,
		WindowSize:      time.Minute,
		CleanupInterval: time.Minute,
	})
	defer rl.Stop()

	key := "2.2.2.2"
	if !rl.Allow(key) {
		t.Fatalf("first request should be allowed")
	}
	if rl.Allow(key) {
		t.Fatalf("second request should be denied")
	}

	rl.Reset(key)

	if !rl.Allow(key) {
		t.Fatalf("request after reset should be allowed")
	}
}

func TestGlobalLimiterRefusesBlacklistedClient(t *testing.T) {
	detector := abuse.NewAbuseDetector(&abuse.AbuseConfig{
		MaxRequestsPerMinute:   100000,
		MaxRequestsPerHour:     100000,
		MaxRequestsPerDay:      100000,
		AutoBlacklistPerMinute: 2,
	})
	defer detector.Stop()

	grl := NewGlobalRateLimiter(DefaultGlobalConfig(), detector)
	defer grl.Stop()

	ctx := context.Background()
	client := "6.6.6.6"

	if !grl.Allow(ctx, client) {
		t.Fatalf("expected first request to be allowed")
	}
	// The second request reaches the extreme-rate threshold.
	if grl.Allow(ctx, client) {
		t.Fatalf("expected second request to trip the auto-blacklist")
	}
	if !detector.IsBlacklisted(client) {
		t.Fatalf("expected client to be blacklisted")
	}
	if grl.Allow(ctx, client) {
		t.Fatalf("blacklisted client must stay refused")
	}

	// Other clients track their own rate.
	if !grl.Allow(ctx, "7.7.7.7") {
		t.Fatalf("expected unrelated client to be allowed")
	}
}

func TestGlobalLimiterWithoutDetector(t *testing.T) {
	grl := NewGlobalRateLimiter(&GlobalRateLimiterConfig{
		IPConfig: &RateLimiterConfig{
			MaxRequests:     2,
			WindowSize:      time.Minute,
			CleanupInterval: time.Minute,
		},
		GlobalConfig: &RateLimiterConfig{
			MaxRequests:     100,
			WindowSize:      time.Minute,
			CleanupInterval: time.Minute,
		},
	}, nil)
	defer grl.Stop()

	ctx := context.Background()
	if !grl.Allow(ctx, "3.3.3.3") || !grl.Allow(ctx, "3.3.3.3") {
		t.Fatalf("requests under the per-client limit should be allowed")
	}
	if grl.Allow(ctx, "3.3.3.3") {
		t.Fatalf("request over the per-client limit should be denied")
	}
}
