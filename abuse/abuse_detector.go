package abuse

import (
	"fmt"
	"time"

	"github.com/veilmint/veilmint/exception"
	"github.com/veilmint/veilmint/logx"
)

func DefaultAbuseConfig() *AbuseConfig {
	return &AbuseConfig{
		MaxRequestsPerMinute: 600,
		MaxRequestsPerHour:   10000,
		MaxRequestsPerDay:    100000,

		AutoBlacklistPerMinute: 3000,
	}
}

func NewAbuseDetector(config *AbuseConfig) *AbuseDetector {
	if config == nil {
		config = DefaultAbuseConfig()
	}

	ad := &AbuseDetector{
		rateTracker: NewRateTracker(nil),
		config:      config,
		flagged:     make(map[string]*AbuseFlag),
		metrics:     &AbuseMetrics{},
		stop:        make(chan struct{}),
	}

	exception.SafeGo("abuse-monitor", ad.backgroundMonitoring)

	return ad
}

// CheckRequestRate records one request for the client and returns an error
// when the client crosses the auto-blacklist threshold. Crossing the softer
// limits only flags the client for monitoring.
func (ad *AbuseDetector) CheckRequestRate(client string) error {
	ad.rateTracker.Track(client)

	minuteRate := ad.rateTracker.GetRate(client, time.Minute)
	hourRate := ad.rateTracker.GetRate(client, time.Hour)
	dayRate := ad.rateTracker.GetRate(client, 24*time.Hour)

	ad.mu.Lock()
	defer ad.mu.Unlock()

	if minuteRate >= ad.config.AutoBlacklistPerMinute {
		ad.autoBlacklist(client, fmt.Sprintf("Auto-blacklist: %d req/min (limit: %d)", minuteRate, ad.config.AutoBlacklistPerMinute))
		return fmt.Errorf("client %s auto-blacklisted: %d req/min", client, minuteRate)
	}

	if minuteRate > ad.config.MaxRequestsPerMinute || hourRate > ad.config.MaxRequestsPerHour || dayRate > ad.config.MaxRequestsPerDay {
		reason := fmt.Sprintf("High request rate: %d/min, %d/hour, %d/day (limits: %d/%d/%d)",
			minuteRate, hourRate, dayRate, ad.config.MaxRequestsPerMinute, ad.config.MaxRequestsPerHour, ad.config.MaxRequestsPerDay)
		ad.flagAbuse(client, reason)
	}

	return nil
}

// flagAbuse flags a client without blocking it.
func (ad *AbuseDetector) flagAbuse(client, reason string) {
	now := time.Now()

	flag, exists := ad.flagged[client]
	if exists {
		flag.LastSeen = now
		flag.Count++
		flag.Reason = reason
	} else {
		ad.flagged[client] = &AbuseFlag{
			Client:    client,
			Reason:    reason,
			FirstSeen: now,
			LastSeen:  now,
			Count:     1,
		}
		ad.metrics.TotalFlags++
	}

	logx.Warn("ABUSE", fmt.Sprintf("Flagged client %s: %s (count: %d)", client, reason, ad.flagged[client].Count))
}

func (ad *AbuseDetector) autoBlacklist(client, reason string) {
	now := time.Now()

	flag, exists := ad.flagged[client]
	if !exists {
		flag = &AbuseFlag{
			Client:    client,
			Reason:    reason,
			FirstSeen: now,
			Count:     1,
		}
		ad.flagged[client] = flag
		ad.metrics.TotalFlags++
	}
	flag.IsBlacklisted = true
	flag.Reason = reason
	flag.LastSeen = now

	ad.metrics.AutoBlacklists++
	logx.Warn("ABUSE", fmt.Sprintf("Auto-blacklisted client %s: %s", client, reason))
}

// IsBlacklisted reports whether the client has been blacklisted.
func (ad *AbuseDetector) IsBlacklisted(client string) bool {
	ad.mu.RLock()
	defer ad.mu.RUnlock()

	flag, exists := ad.flagged[client]
	return exists && flag.IsBlacklisted
}

// GetFlagged returns a copy of all flagged clients.
func (ad *AbuseDetector) GetFlagged() map[string]*AbuseFlag {
	ad.mu.RLock()
	defer ad.mu.RUnlock()

	result := make(map[string]*AbuseFlag, len(ad.flagged))
	for client, flag := range ad.flagged {
		result[client] = flag
	}
	return result
}

// GetMetrics returns current metrics.
func (ad *AbuseDetector) GetMetrics() *AbuseMetrics {
	ad.mu.RLock()
	defer ad.mu.RUnlock()

	ad.metrics.CurrentFlags = len(ad.flagged)
	ad.metrics.CurrentBlacklists = 0
	for _, flag := range ad.flagged {
		if flag.IsBlacklisted {
			ad.metrics.CurrentBlacklists++
		}
	}

	return ad.metrics
}

// GetRateStats returns current rate statistics.
func (ad *AbuseDetector) GetRateStats() *RateStats {
	return ad.rateTracker.GetStats()
}

func (ad *AbuseDetector) backgroundMonitoring() {
	ticker := time.NewTicker(60 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ad.performBackgroundChecks()
		case <-ad.stop:
			return
		}
	}
}

func (ad *AbuseDetector) performBackgroundChecks() {
	ad.mu.Lock()
	defer ad.mu.Unlock()

	for client, flag := range ad.flagged {
		if flag.IsBlacklisted {
			continue
		}

		minuteRate := ad.rateTracker.GetRate(client, time.Minute)
		hourRate := ad.rateTracker.GetRate(client, time.Hour)
		dayRate := ad.rateTracker.GetRate(client, 24*time.Hour)

		if minuteRate >= ad.config.AutoBlacklistPerMinute {
			ad.autoBlacklist(client, fmt.Sprintf("Auto-blacklist: %d req/min (limit: %d)", minuteRate, ad.config.AutoBlacklistPerMinute))
		} else if hourRate >= ad.config.MaxRequestsPerHour || dayRate >= ad.config.MaxRequestsPerDay {
			reason := fmt.Sprintf("High long-term rate: %d/min, %d/hour, %d/day", minuteRate, hourRate, dayRate)
			ad.flagAbuse(client, reason)
		}
	}

	// Flags expire after a quiet day; blacklists do not.
	ad.cleanupOldFlags(time.Now().Add(-24 * time.Hour))
}

func (ad *AbuseDetector) cleanupOldFlags(cutoff time.Time) {
	for client, flag := range ad.flagged {
		if flag.LastSeen.Before(cutoff) && !flag.IsBlacklisted {
			delete(ad.flagged, client)
		}
	}
}

// Stop stops the background goroutines.
func (ad *AbuseDetector) Stop() {
	close(ad.stop)
	ad.rateTracker.Stop()
}
