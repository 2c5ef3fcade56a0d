// Package pricecache holds the last observed native/USD price.
package pricecache

import (
	"sync"
	"time"
)

type Cache struct {
	mu       sync.RWMutex
	price    float64
	observed time.Time
}

func New() *Cache {
	return &Cache{}
}

// Set stores a positive price. Non-positive values are ignored.
func (c *Cache) Set(price float64, at time.Time) {
	if !(price > 0) {
		return
	}
	c.mu.Lock()
	c.price = price
	c.observed = at
	c.mu.Unlock()
}

// NativeUSD returns the cached price, false when nothing was observed yet.
func (c *Cache) NativeUSD() (float64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.price, c.price > 0
}

func (c *Cache) ObservedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.observed
}
