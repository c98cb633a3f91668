package abuse

import (
	"time"

	"github.com/veilmint/veilmint/exception"
)

func DefaultRateConfig() *RateConfig {
	return &RateConfig{
		CleanupInterval: 5 * time.Minute,
		MinuteWindow:    time.Minute,
		HourWindow:      time.Hour,
		DayWindow:       24 * time.Hour,
	}
}

func NewRateTracker(config *RateConfig) *RateTracker {
	if config == nil {
		config = DefaultRateConfig()
	}

	rt := &RateTracker{
		rates:  make(map[string]*RateData),
		config: config,
		stop:   make(chan struct{}),
	}

	exception.SafeGo("abuse-rate-cleanup", rt.cleanupRoutine)

	return rt
}

// Track records one request for the given client.
func (rt *RateTracker) Track(client string) {
	rt.mu.Lock()
	data, exists := rt.rates[client]
	if !exists {
		data = &RateData{requests: make([]time.Time, 0)}
		rt.rates[client] = data
	}
	rt.mu.Unlock()

	data.mu.Lock()
	data.requests = append(data.requests, time.Now())
	data.mu.Unlock()
}

// GetRate returns how many requests the client made inside the window.
func (rt *RateTracker) GetRate(client string, window time.Duration) int {
	rt.mu.RLock()
	data, exists := rt.rates[client]
	rt.mu.RUnlock()

	if !exists {
		return 0
	}

	return rt.getRate(data, window)
}

func (rt *RateTracker) getRate(data *RateData, window time.Duration) int {
	data.mu.RLock()
	defer data.mu.RUnlock()

	cutoff := time.Now().Add(-window)

	count := 0
	for _, t := range data.requests {
		if t.After(cutoff) {
			count++
		}
	}

	return count
}

func (rt *RateTracker) GetStats() *RateStats {
	rt.mu.RLock()
	defer rt.mu.RUnlock()

	stats := &RateStats{
		ClientRates: make(map[string]map[string]int),
	}

	for client, data := range rt.rates {
		stats.ClientRates[client] = map[string]int{
			"minute": rt.getRate(data, rt.config.MinuteWindow),
			"hour":   rt.getRate(data, rt.config.HourWindow),
			"day":    rt.getRate(data, rt.config.DayWindow),
		}
	}

	return stats
}

func (rt *RateTracker) cleanupRoutine() {
	ticker := time.NewTicker(rt.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rt.cleanup()
		case <-rt.stop:
			return
		}
	}
}

func (rt *RateTracker) cleanup() {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	// Nothing older than the day window can influence any check.
	cutoff := time.Now().Add(-rt.config.DayWindow)

	for client, data := range rt.rates {
		if rt.cleanupData(data, cutoff) {
			delete(rt.rates, client)
		}
	}
}

func (rt *RateTracker) cleanupData(data *RateData, cutoff time.Time) bool {
	data.mu.Lock()
	defer data.mu.Unlock()

	kept := data.requests[:0]
	for _, t := range data.requests {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	data.requests = kept

	return len(data.requests) == 0
}

// Stop stops the cleanup goroutine.
func (rt *RateTracker) Stop() {
	close(rt.stop)
}
