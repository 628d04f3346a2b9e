package cache

import (
	"context"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/dpup/prefab/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// stored counts entries, stale ones included
func stored[V any](c *Cache[V]) int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return len(c.entries)
}

func TestCache_SetGet(t *testing.T) {
	clock := quartz.NewMock(t)
	c := NewWithClock[[]string](clock)

	c.Set("trails", []string{"main", "spurs"}, 15*time.Minute)

	value, found := c.Get("trails")
	require.True(t, found, "Fresh entry should be returned")
	assert.Equal(t, []string{"main", "spurs"}, value)

	_, found = c.Get("missing")
	assert.False(t, found, "Missing key should not be found")
}

func TestCache_Expiry(t *testing.T) {
	clock := quartz.NewMock(t)
	c := NewWithClock[int](clock)

	c.Set("network", 42, time.Minute)

	clock.Advance(59 * time.Second)
	_, found := c.Get("network")
	assert.True(t, found, "Entry should still be fresh before TTL")

	clock.Advance(2 * time.Second)
	value, found := c.Get("network")
	assert.False(t, found, "Entry should be stale after TTL")
	assert.Zero(t, value)

	// Stale entries stay stored until cleanup
	assert.Equal(t, 1, stored(c))
}

func TestCache_CleanupStale(t *testing.T) {
	clock := quartz.NewMock(t)
	c := NewWithClock[string](clock)

	c.Set("short", "a", time.Second)
	c.Set("long", "b", time.Hour)

	clock.Advance(2 * time.Second)

	assert.Equal(t, 1, c.CleanupStale())
	assert.Equal(t, 1, stored(c))
	_, found := c.Get("long")
	assert.True(t, found)

	assert.Zero(t, c.CleanupStale(), "Nothing left to remove")
}

func TestCache_Delete(t *testing.T) {
	c := New[string]()

	c.Set("a", "1", time.Hour)
	c.Set("b", "2", time.Hour)

	c.Delete("a")
	_, found := c.Get("a")
	assert.False(t, found)
	_, found = c.Get("b")
	assert.True(t, found)

	c.Delete("missing")
	assert.Equal(t, 1, stored(c))
}

func TestCache_PeriodicCleanup(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clock := quartz.NewMock(t)
	trap := clock.Trap().NewTicker()
	defer trap.Close()

	c := NewWithClock[string](clock)
	c.Set("short", "a", time.Second)

	// A bare context is fine; the cleanup goroutine brings its own logger
	c.StartPeriodicCleanup(ctx, time.Minute)
	trap.MustWait(ctx).MustRelease(ctx)

	clock.Advance(time.Minute).MustWait(ctx)
	assert.Eventually(t, func() bool { return stored(c) == 0 }, time.Second, time.Millisecond)

	cancel()
}

func TestCache_PeriodicCleanupWithLogger(t *testing.T) {
	ctx, cancel := context.WithCancel(logging.With(context.Background(), logging.NewDevLogger()))
	defer cancel()

	clock := quartz.NewMock(t)
	trap := clock.Trap().NewTicker()
	defer trap.Close()

	c := NewWithClock[string](clock)
	c.Set("short", "a", time.Second)
	c.Set("long", "b", time.Hour)

	c.StartPeriodicCleanup(ctx, 30*time.Second)
	trap.MustWait(ctx).MustRelease(ctx)

	clock.Advance(30 * time.Second).MustWait(ctx)
	assert.Eventually(t, func() bool { return stored(c) == 1 }, time.Second, time.Millisecond)
}
