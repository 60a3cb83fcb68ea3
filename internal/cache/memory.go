// Package cache holds short-lived lookups in memory.
package cache

import (
	"sync"
	"time"

	"mixtape/pkg/models"
)

type entry[V any] struct {
	value   V
	expires time.Time
}

// TTLCache keeps values for a fixed time. A background sweeper drops
// expired entries until Close is called.
type TTLCache[V any] struct {
	mu    sync.RWMutex
	items map[string]entry[V]
	ttl   time.Duration
	stop  chan struct{}
	once  sync.Once
}

// NewTTLCache creates a cache whose sweeper runs every interval.
func NewTTLCache[V any](ttl, interval time.Duration) *TTLCache[V] {
	c := &TTLCache[V]{
		items: make(map[string]entry[V]),
		ttl:   ttl,
		stop:  make(chan struct{}),
	}
	go c.sweepEvery(interval)
	return c
}

func (c *TTLCache[V]) Put(key string, value V) {
	c.mu.Lock()
	c.items[key] = entry[V]{value: value, expires: time.Now().Add(c.ttl)}
	c.mu.Unlock()
}

// Lookup returns the value for key unless it is missing or expired.
func (c *TTLCache[V]) Lookup(key string) (V, bool) {
	c.mu.RLock()
	e, ok := c.items[key]
	c.mu.RUnlock()
	if !ok || time.Now().After(e.expires) {
		var zero V
		return zero, false
	}
	return e.value, true
}

// Close stops the sweeper. It is safe to call more than once.
func (c *TTLCache[V]) Close() {
	c.once.Do(func() { close(c.stop) })
}

func (c *TTLCache[V]) sweepEvery(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}

func (c *TTLCache[V]) sweep() {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, e := range c.items {
		if now.After(e.expires) {
			delete(c.items, key)
		}
	}
}

// AssetCache caches asset lookups by mint address.
type AssetCache struct {
	*TTLCache[*models.Asset]
}

// NewAssetCache creates an asset cache with the given TTL. Sweeps run at
// most once a minute.
func NewAssetCache(ttl time.Duration) *AssetCache {
	interval := ttl
	if interval < time.Minute {
		interval = time.Minute
	}
	return &AssetCache{TTLCache: NewTTLCache[*models.Asset](ttl, interval)}
}

func (ac *AssetCache) SetAsset(address string, asset *models.Asset) {
	ac.Put(address, asset)
}

func (ac *AssetCache) GetAsset(address string) (*models.Asset, bool) {
	return ac.Lookup(address)
}
