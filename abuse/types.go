package abuse

import (
	"sync"
	"time"
)

// RateTracker keeps per-client request timestamps so rates can be computed
// over arbitrary windows.
type RateTracker struct {
	mu     sync.RWMutex
	rates  map[string]*RateData
	config *RateConfig
	stop   chan struct{}
}

type RateData struct {
	mu       sync.RWMutex
	requests []time.Time
}

type RateConfig struct {
	CleanupInterval time.Duration
	MinuteWindow    time.Duration
	HourWindow      time.Duration
	DayWindow       time.Duration
}

type RateStats struct {
	ClientRates map[string]map[string]int `json:"client_rates"`
}

// AbuseDetector watches per-client request rates and blacklists clients
// that hammer the mint hard enough to look automated. Ecash clients carry
// no account identity, so the network address is the only usable key.
type AbuseDetector struct {
	mu sync.RWMutex

	rateTracker *RateTracker
	config      *AbuseConfig

	flagged map[string]*AbuseFlag

	metrics *AbuseMetrics
	stop    chan struct{}
}

type AbuseConfig struct {
	MaxRequestsPerMinute int
	MaxRequestsPerHour   int
	MaxRequestsPerDay    int

	AutoBlacklistPerMinute int
}

type AbuseFlag struct {
	Client        string    `json:"client"`
	Reason        string    `json:"reason"`
	FirstSeen     time.Time `json:"first_seen"`
	LastSeen      time.Time `json:"last_seen"`
	Count         int       `json:"count"`
	IsBlacklisted bool      `json:"is_blacklisted"`
}

type AbuseMetrics struct {
	TotalFlags        int64 `json:"total_flags"`
	AutoBlacklists    int64 `json:"auto_blacklists"`
	CurrentFlags      int   `json:"current_flags"`
	CurrentBlacklists int   `json:"current_blacklists"`
}
