package cache

import (
	"context"
	"runtime/debug"
	"sync"
	"time"

	"github.com/coder/quartz"
	"github.com/dpup/prefab/errors"
	"github.com/dpup/prefab/logging"
)

// Cache provides thread-safe in-memory caching with TTL. Values are stored as
// is and shared between readers, so cached values must be treated as
// read-only.
type Cache[V any] struct {
	entries map[string]entry[V]
	mutex   sync.RWMutex
	clock   quartz.Clock
}

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// New creates a new in-memory cache using the real clock
func New[V any]() *Cache[V] {
	return NewWithClock[V](quartz.NewReal())
}

// NewWithClock creates a new in-memory cache that reads time from clock
func NewWithClock[V any](clock quartz.Clock) *Cache[V] {
	return &Cache[V]{
		entries: make(map[string]entry[V]),
		clock:   clock,
	}
}

// Set stores a value with the given TTL
func (c *Cache[V]) Set(key string, value V, ttl time.Duration) {
	e := entry[V]{value: value, expiresAt: c.clock.Now().Add(ttl)}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.entries[key] = e
}

// Get retrieves a value if present and not stale
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mutex.RLock()
	e, exists := c.entries[key]
	c.mutex.RUnlock()

	var zero V
	if !exists || c.clock.Now().After(e.expiresAt) {
		return zero, false
	}
	return e.value, true
}

// Delete removes an entry from cache
func (c *Cache[V]) Delete(key string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	delete(c.entries, key)
}

// CleanupStale removes all stale entries from cache
func (c *Cache[V]) CleanupStale() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	now := c.clock.Now()
	var removed int

	for key, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, key)
			removed++
		}
	}

	return removed
}

// StartPeriodicCleanup starts a goroutine that periodically cleans up stale
// entries until ctx is cancelled.
func (c *Cache[V]) StartPeriodicCleanup(ctx context.Context, interval time.Duration) {
	ctx = logging.EnsureLogger(ctx)
	go func() {
		defer func() {
			// Recover from any panics in the cache cleanup goroutine
			if r := recover(); r != nil {
				err, _ := errors.ParseStack(debug.Stack())
				skipFrames := 3
				numFrames := 5
				logging.Errorw(ctx, "Cache cleanup: recovered from panic",
					"error", r, "error.stack_trace", err.MinimalStack(skipFrames, numFrames))
			}
		}()

		ticker := c.clock.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if removed := c.CleanupStale(); removed > 0 {
					logging.Infow(ctx, "Cache cleanup: removed stale entries", "removed", removed)
				}
			}
		}
	}()
}
