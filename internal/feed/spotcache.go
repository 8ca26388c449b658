// Package feed runs the live market-data loops: the spot-price stream and
// the indicator loop that turns it into trading signals.
package feed

import (
	"sync"
	"time"
)

// SpotCache holds the latest spot best bid/ask. Single writer (the stream),
// many readers.
type SpotCache struct {
	mu        sync.RWMutex
	bid, ask  float64
	updatedAt time.Time
}

func NewSpotCache() *SpotCache {
	return &SpotCache{}
}

// Update stores a fresh quote.
func (c *SpotCache) Update(bid, ask float64, at time.Time) {
	c.mu.Lock()
	c.bid, c.ask, c.updatedAt = bid, ask, at
	c.mu.Unlock()
}

// Mid returns the midpoint price and quote time, ok=false before the first
// quote.
func (c *SpotCache) Mid() (price float64, at time.Time, ok bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.updatedAt.IsZero() {
		return 0, time.Time{}, false
	}
	return (c.bid + c.ask) / 2, c.updatedAt, true
}
