package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTTLCache_SetGet(t *testing.T) {
	c := NewTTLCache[string]("test", time.Hour, 100)

	c.Set("a", "1")

	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, "1", v)

	_, ok = c.Get("missing")
	assert.False(t, ok)
}

func TestTTLCache_Expiry(t *testing.T) {
	c := NewTTLCache[string]("test", time.Hour, 100)

	now := time.Now()
	c.now = func() time.Time { return now }
	c.Set("a", "1")

	_, ok := c.Get("a")
	require.True(t, ok)

	// Advance past the TTL; the entry must read as a miss even before the
	// background sweep runs.
	c.now = func() time.Time { return now.Add(time.Hour + time.Minute) }
	_, ok = c.Get("a")
	assert.False(t, ok)

	removed := c.sweep()
	assert.Equal(t, 1, removed)
	assert.Equal(t, 0, c.Len())
}

func TestTTLCache_SweepTrimsOverCapacity(t *testing.T) {
	c := NewTTLCache[int]("test", time.Hour, 5)

	for i := 0; i < 10; i++ {
		c.Set(fmt.Sprintf("key-%d", i), i)
	}
	require.Equal(t, 10, c.Len())

	c.sweep()
	assert.Equal(t, 5, c.Len())
}

func TestTTLCache_ConcurrentAccess(t *testing.T) {
	c := NewTTLCache[int]("test", time.Hour, 1000)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				key := fmt.Sprintf("key-%d", j)
				c.Set(key, n)
				c.Get(key)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 100, c.Len())
}
