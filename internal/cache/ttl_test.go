package cache

import (
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	now time.Time
}

func (f *fakeClock) Now() time.Time { return f.now }

func (f *fakeClock) Advance(d time.Duration) { f.now = f.now.Add(d) }

func TestTTLGetSet(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	c := NewTTL[string, int](time.Minute, WithClock(clock.Now))

	_, ok := c.Get("missing")
	assert.False(t, ok)

	c.Set("a", 1)
	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)
}

func TestTTLExpiryEvicts(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	c := NewTTL[string, string](1800*time.Second, WithClock(clock.Now))
	c.Set("cat-1", "Shoes")

	// exactly ttl old is still valid
	clock.Advance(1800 * time.Second)
	_, ok := c.Get("cat-1")
	assert.True(t, ok)

	clock.Advance(time.Second)
	_, ok = c.Get("cat-1")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len(), "stale entry should be evicted by the read")
}

func TestTTLOverwriteRefreshesCreation(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	c := NewTTL[string, string](time.Minute, WithClock(clock.Now))
	c.Set("k", "v1")
	first, ok := c.Entry("k")
	require.True(t, ok)

	clock.Advance(30 * time.Second)
	c.Set("k", "v2")
	second, ok := c.Entry("k")
	require.True(t, ok)

	assert.Equal(t, "v2", second.Value)
	assert.True(t, second.Created.After(first.Created))
}

func TestTTLDelete(t *testing.T) {
	c := NewTTL[int, int](time.Minute)
	c.Set(1, 1)
	c.Delete(1)
	_, ok := c.Get(1)
	assert.False(t, ok)
}

func TestLockedConcurrentAccess(t *testing.T) {
	c := NewLocked[string, int](time.Minute)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := strconv.Itoa(i % 10)
			c.Set(key, i)
			c.Get(key)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 10, c.Len())
}
