package cache_test

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/lightchain-l1/trv1-core/pkg/cache"
)

func key(b byte) cache.PubKey {
	var h common.Hash
	h[len(h)-1] = b
	return h
}

func account(dataLen int) cache.Account {
	return cache.Account{Lamports: 1, Data: make([]byte, dataLen)}
}

// TestCacheLRUEviction is end-to-end scenario 6: a 700-byte cache at 0.9
// target utilization (watermark 630) holding four 170-byte entries evicts
// exactly the oldest one.
func TestCacheLRUEviction(t *testing.T) {
	r := require.New(t)
	c := cache.New(cache.Config{
		MaxSizeBytes:      700,
		TargetUtilization: 0.9,
		EvictionBatchSize: 10,
		Policy:            cache.EvictionLRU,
	})

	// fixedEntryOverhead(64) + dataLen must total 170 bytes/entry.
	dataLen := 170 - 64
	a, b, c2, d := key(0xA), key(0xB), key(0xC), key(0xD)
	c.Insert(a, account(dataLen))
	c.Insert(b, account(dataLen))
	c.Insert(c2, account(dataLen))
	c.Insert(d, account(dataLen))

	r.Equal(int64(680), c.CurrentSizeBytes())
	r.True(c.NeedsEviction(), "680 > 630 watermark")

	evicted := c.EvictToWarm()
	r.Len(evicted, 1)
	r.Equal(a, evicted[0].Key, "oldest entry (A) should be evicted first under LRU")

	_, stillA := c.Peek(a)
	r.False(stillA)
	for _, k := range []cache.PubKey{b, c2, d} {
		_, ok := c.Peek(k)
		r.True(ok)
	}
	r.False(c.NeedsEviction())
}

// TestCacheSizeAccounting is property P13.
func TestCacheSizeAccounting(t *testing.T) {
	r := require.New(t)
	c := cache.New(cache.Config{MaxSizeBytes: 10_000, TargetUtilization: 1, EvictionBatchSize: 2, Policy: cache.EvictionLRU})

	keys := []cache.PubKey{key(1), key(2), key(3), key(4), key(5)}
	for i, k := range keys {
		c.Insert(k, account(10*(i+1)))
	}
	c.Get(keys[0])
	c.Remove(keys[2])
	c.Insert(keys[1], account(500))

	var want int64
	for _, k := range keys {
		if a, ok := c.Peek(k); ok {
			want += a.MemorySize()
		}
	}
	r.Equal(want, c.CurrentSizeBytes())
	r.Equal(c.EntryCount(), c.ArenaSize()-c.FreeListSize())
}

func TestCacheGetReordersToFront(t *testing.T) {
	r := require.New(t)
	c := cache.New(cache.Config{MaxSizeBytes: 200, TargetUtilization: 1, EvictionBatchSize: 1, Policy: cache.EvictionLRU})

	a, b, c2 := key(1), key(2), key(3)
	c.Insert(a, account(0)) // MemorySize == fixedEntryOverhead (64) per entry
	c.Insert(b, account(0))
	c.Insert(c2, account(0))

	_, ok := c.Get(a) // touch a, so it is no longer the LRU tail
	r.True(ok)

	c.Insert(key(4), account(0)) // fourth entry (256 bytes total) pushes size over the 200-byte watermark
	evicted := c.EvictToWarm()
	r.Len(evicted, 1)
	r.NotEqual(a, evicted[0].Key, "recently-touched a should not be the LRU victim")
}

func TestCacheMissAndHitStats(t *testing.T) {
	r := require.New(t)
	c := cache.New(cache.Config{MaxSizeBytes: 1000, TargetUtilization: 1, EvictionBatchSize: 1})
	k := key(1)

	_, ok := c.Get(k)
	r.False(ok)
	c.Insert(k, account(10))
	_, ok = c.Get(k)
	r.True(ok)

	stats := c.Stats()
	r.Equal(uint64(1), stats.Hits)
	r.Equal(uint64(1), stats.Misses)
	r.InDelta(0.5, stats.HitRate(), 1e-9)
}

func TestLFUEvictionPrefersLeastAccessed(t *testing.T) {
	r := require.New(t)
	c := cache.New(cache.Config{MaxSizeBytes: 300, TargetUtilization: 0.5, EvictionBatchSize: 1, Policy: cache.EvictionLFU})

	a, b := key(1), key(2)
	c.Insert(a, account(50))
	c.Insert(b, account(50))
	// a is accessed repeatedly; b never is. Under LFU, b should evict first.
	for i := 0; i < 5; i++ {
		c.Get(a)
	}

	evicted := c.EvictToWarm()
	r.NotEmpty(evicted)
	r.Equal(b, evicted[0].Key)
}
