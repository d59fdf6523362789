package simulator

import (
	"sync"
	"time"
)

// lastGoodTTL is how long a last-known-good entry stays usable.
const lastGoodTTL = 24 * time.Hour

// lastGoodEntry retains the outcome of a successful full-data run.
type lastGoodEntry struct {
	savedAt  time.Time
	schedule []float64
	prices   []float64
}

// lastGoodCache maps property ids to their most recent ok-quality run.
// Degraded runs read it to reuse the last real price series instead of a
// synthetic curve. Entries expire after 24 hours and are evicted lazily on
// read; the cache does not survive a process restart.
type lastGoodCache struct {
	mu      sync.Mutex
	entries map[string]lastGoodEntry
}

func newLastGoodCache() *lastGoodCache {
	return &lastGoodCache{entries: make(map[string]lastGoodEntry)}
}

// store records the schedule and price series of an ok-quality run.
func (c *lastGoodCache) store(propertyID string, schedule, prices []float64, now time.Time) {
	if propertyID == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[propertyID] = lastGoodEntry{
		savedAt:  now,
		schedule: schedule,
		prices:   prices,
	}
}

// prices returns the cached real price series for the property if it is
// fresh and has exactly n entries. Stale entries are evicted.
func (c *lastGoodCache) pricesFor(propertyID string, n int, now time.Time) ([]float64, bool) {
	if propertyID == "" {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[propertyID]
	if !ok {
		return nil, false
	}
	if now.Sub(entry.savedAt) > lastGoodTTL {
		delete(c.entries, propertyID)
		return nil, false
	}
	if len(entry.prices) != n {
		return nil, false
	}
	return entry.prices, true
}

// reset drops all entries.
func (c *lastGoodCache) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]lastGoodEntry)
}
