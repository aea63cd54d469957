package marketdata

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheFreshStaleMiss(t *testing.T) {
	clock := newFakeClock()
	cache := NewCache(CacheOptions{TTL: time.Minute, StaleTTL: 5 * time.Minute, Now: clock.Now})

	_, _, err := cache.Put("bitcoin:1:usd", sampleChart(100, 3), "coingecko")
	require.NoError(t, err)

	entry, state := cache.Get("bitcoin:1:usd")
	require.Equal(t, CacheFresh, state)
	assert.Equal(t, "coingecko", entry.Source)
	assert.Len(t, entry.Chart.Prices, 3)

	clock.Advance(2 * time.Minute)
	_, state = cache.Get("bitcoin:1:usd")
	require.Equal(t, CacheStale, state)

	clock.Advance(4 * time.Minute)
	_, state = cache.Get("bitcoin:1:usd")
	require.Equal(t, CacheMiss, state)
	assert.Equal(t, 0, cache.Len(), "expired entry should be evicted on read")
}

func TestCachePutSameHashRefreshesTimestampOnly(t *testing.T) {
	clock := newFakeClock()
	cache := NewCache(CacheOptions{TTL: time.Minute, StaleTTL: 5 * time.Minute, Now: clock.Now})

	first := sampleChart(100, 3)
	hash1, changed, err := cache.Put("k", first, "coingecko")
	require.NoError(t, err)
	require.True(t, changed)

	clock.Advance(50 * time.Second)
	hash2, changed, err := cache.Put("k", sampleChart(100, 3), "binance")
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, hash1, hash2)

	entry, _ := cache.Get("k")
	assert.Same(t, first, entry.Chart, "payload should be kept when hash is unchanged")
	assert.Equal(t, "coingecko", entry.Source)
	assert.Equal(t, clock.Now(), entry.UpdatedAt)

	clock.Advance(50 * time.Second)
	_, state := cache.Get("k")
	assert.Equal(t, CacheFresh, state, "refreshed timestamp should extend freshness")

	_, changed, err = cache.Put("k", sampleChart(200, 3), "binance")
	require.NoError(t, err)
	assert.True(t, changed)
}

func TestCacheEvictsOldestBeyondMaxEntries(t *testing.T) {
	clock := newFakeClock()
	cache := NewCache(CacheOptions{TTL: time.Hour, MaxEntries: 2, Now: clock.Now})

	_, _, err := cache.Put("a", sampleChart(1, 1), "s")
	require.NoError(t, err)
	clock.Advance(time.Second)
	_, _, err = cache.Put("b", sampleChart(2, 1), "s")
	require.NoError(t, err)
	clock.Advance(time.Second)
	_, _, err = cache.Put("c", sampleChart(3, 1), "s")
	require.NoError(t, err)

	assert.Equal(t, 2, cache.Len())
	_, state := cache.Get("a")
	assert.Equal(t, CacheMiss, state)
	_, state = cache.Get("c")
	assert.Equal(t, CacheFresh, state)
}

func TestCacheSweep(t *testing.T) {
	clock := newFakeClock()
	cache := NewCache(CacheOptions{TTL: time.Minute, StaleTTL: 2 * time.Minute, Now: clock.Now})

	_, _, err := cache.Put("old", sampleChart(1, 1), "s")
	require.NoError(t, err)
	clock.Advance(90 * time.Second)
	_, _, err = cache.Put("new", sampleChart(2, 1), "s")
	require.NoError(t, err)
	clock.Advance(time.Minute)

	assert.Equal(t, 1, cache.Sweep())
	assert.Equal(t, 1, cache.Len())
	hash, ok := cache.LastHash("new")
	assert.True(t, ok)
	assert.NotEmpty(t, hash)
}

func TestCacheTouchRequiresMatchingHash(t *testing.T) {
	clock := newFakeClock()
	cache := NewCache(CacheOptions{TTL: time.Minute, Now: clock.Now})

	hash, _, err := cache.Put("k", sampleChart(1, 2), "s")
	require.NoError(t, err)
	clock.Advance(2 * time.Minute)

	assert.False(t, cache.Touch("k", "other", clock.Now()))
	assert.True(t, cache.Touch("k", hash, clock.Now()))
	_, state := cache.Get("k")
	assert.Equal(t, CacheFresh, state)
	assert.False(t, cache.Touch("missing", hash, clock.Now()))
}

func TestCacheGetWhileTouching(t *testing.T) {
	c := NewCache(CacheOptions{TTL: time.Minute})
	hash, _, err := c.Put("bitcoin:1:usd", sampleChart(100, 4), "stub")
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		start := time.Now()
		for i := 0; i < 2000; i++ {
			c.Touch("bitcoin:1:usd", hash, start.Add(time.Duration(i)*time.Millisecond))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 2000; i++ {
			entry, state := c.Get("bitcoin:1:usd")
			assert.Equal(t, CacheFresh, state)
			assert.Equal(t, hash, entry.Hash)
		}
	}()
	wg.Wait()
}
