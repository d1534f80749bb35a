package cache

import "time"

// nilIndex is the arena sentinel (Rust's usize::MAX translated to -1 over a
// Go slice), matching the original account_cache.rs free-list convention.
const nilIndex = -1

// cacheNode is one arena slot: an account plus its doubly-linked-list
// position, expressed as indices rather than pointers so the arena can be a
// plain growable slice with a recyclable free list.
type cacheNode struct {
	key          PubKey
	account      Account
	memorySize   int64
	accessCount  uint64
	lastAccessed time.Time
	prev, next   int
}

// Config tunes a HotCache's capacity and eviction behavior.
type Config struct {
	MaxSizeBytes      int64
	TargetUtilization float64 // in (0, 1]
	EvictionBatchSize int
	Policy            EvictionPolicy
}

// HotCache is an O(1)-per-operation LRU/LFU cache over a single arena. It is
// single-writer: Get mutates (reorders for LRU, bumps access_count for LFU
// scoring) and so requires the same exclusive access as Insert/Remove. It
// performs no I/O and no internal locking — callers needing concurrent
// access wrap it in a sync.RWMutex or shard by key prefix, per spec §5.
type HotCache struct {
	cfg Config

	nodes    []cacheNode
	freeList []int
	index    map[PubKey]int
	head     int // most recently used
	tail     int // least recently used

	currentSizeBytes int64
	stats            Stats
}

// New builds an empty HotCache from cfg.
func New(cfg Config) *HotCache {
	if cfg.TargetUtilization <= 0 || cfg.TargetUtilization > 1 {
		cfg.TargetUtilization = 1
	}
	if cfg.EvictionBatchSize <= 0 {
		cfg.EvictionBatchSize = 1
	}
	return &HotCache{
		cfg:   cfg,
		index: make(map[PubKey]int),
		head:  nilIndex,
		tail:  nilIndex,
	}
}

// Watermark is the byte threshold above which eviction is demanded.
func (c *HotCache) Watermark() int64 {
	return int64(float64(c.cfg.MaxSizeBytes) * c.cfg.TargetUtilization)
}

// NeedsEviction reports whether current_size_bytes exceeds the watermark.
func (c *HotCache) NeedsEviction() bool {
	return c.currentSizeBytes > c.Watermark()
}

// CurrentSizeBytes returns the cache's current byte footprint.
func (c *HotCache) CurrentSizeBytes() int64 { return c.currentSizeBytes }

// EntryCount returns the number of live entries.
func (c *HotCache) EntryCount() int { return len(c.index) }

// ArenaSize returns the number of allocated arena slots (live + freed).
func (c *HotCache) ArenaSize() int { return len(c.nodes) }

// FreeListSize returns the number of recycled-but-unused arena slots.
func (c *HotCache) FreeListSize() int { return len(c.freeList) }

// Stats returns a snapshot of the running counters.
func (c *HotCache) Stats() Stats { return c.stats }

// Get returns the account for key, reordering it to the head (most
// recently used) and bumping its access count on a hit.
func (c *HotCache) Get(key PubKey) (Account, bool) {
	idx, ok := c.index[key]
	if !ok {
		c.stats.Misses++
		return Account{}, false
	}
	c.stats.Hits++
	c.nodes[idx].accessCount++
	c.nodes[idx].lastAccessed = now()
	c.moveToFront(idx)
	return c.nodes[idx].account, true
}

// Peek returns the account for key without affecting LRU order, access
// count, or hit/miss statistics. Useful for read-only inspection.
func (c *HotCache) Peek(key PubKey) (Account, bool) {
	idx, ok := c.index[key]
	if !ok {
		return Account{}, false
	}
	return c.nodes[idx].account, true
}

// Insert adds or updates the account for key, moving it to the head.
func (c *HotCache) Insert(key PubKey, account Account) {
	newSize := account.MemorySize()
	if idx, ok := c.index[key]; ok {
		delta := newSize - c.nodes[idx].memorySize
		c.nodes[idx].account = account
		c.nodes[idx].memorySize = newSize
		c.nodes[idx].lastAccessed = now()
		c.currentSizeBytes += delta
		c.moveToFront(idx)
		return
	}

	idx := c.allocate(key, account, newSize)
	c.index[key] = idx
	c.currentSizeBytes += newSize
	c.linkFront(idx)
}

// Remove evicts key unconditionally, returning its account if present.
func (c *HotCache) Remove(key PubKey) (Account, bool) {
	idx, ok := c.index[key]
	if !ok {
		return Account{}, false
	}
	account := c.nodes[idx].account
	c.unlink(idx)
	delete(c.index, key)
	c.currentSizeBytes -= c.nodes[idx].memorySize
	c.nodes[idx] = cacheNode{}
	c.freeList = append(c.freeList, idx)
	return account, true
}

// EvictToWarm pops entries per the configured policy until current_size_bytes
// falls to or below the watermark, or eviction_batch_size entries have been
// evicted, whichever comes first. It performs no I/O — the caller is
// responsible for persisting the returned pairs to warm storage.
func (c *HotCache) EvictToWarm() []EvictedEntry {
	switch c.cfg.Policy {
	case EvictionLFU:
		return c.evictLFU()
	default:
		return c.evictLRU()
	}
}

func (c *HotCache) evictLRU() []EvictedEntry {
	var out []EvictedEntry
	for c.NeedsEviction() && len(out) < c.cfg.EvictionBatchSize && c.tail != nilIndex {
		idx := c.tail
		entry := EvictedEntry{Key: c.nodes[idx].key, Account: c.nodes[idx].account}
		c.unlink(idx)
		delete(c.index, entry.Key)
		c.currentSizeBytes -= c.nodes[idx].memorySize
		c.nodes[idx] = cacheNode{}
		c.freeList = append(c.freeList, idx)
		c.stats.Evictions++
		out = append(out, entry)
	}
	return out
}

// evictLFU scans the least-recently-used quartile (bounded to
// max(1, |map|/4) nodes, walked from the tail) for the lowest access_count,
// amortizing the cost of a full scan across large caches.
func (c *HotCache) evictLFU() []EvictedEntry {
	var out []EvictedEntry
	for c.NeedsEviction() && len(out) < c.cfg.EvictionBatchSize && c.tail != nilIndex {
		bound := len(c.index) / 4
		if bound < 1 {
			bound = 1
		}

		victim := nilIndex
		var victimCount uint64
		cur := c.tail
		for steps := 0; cur != nilIndex && steps < bound; steps++ {
			if victim == nilIndex || c.nodes[cur].accessCount < victimCount {
				victim = cur
				victimCount = c.nodes[cur].accessCount
			}
			cur = c.nodes[cur].prev
		}
		if victim == nilIndex {
			break
		}

		entry := EvictedEntry{Key: c.nodes[victim].key, Account: c.nodes[victim].account}
		c.unlink(victim)
		delete(c.index, entry.Key)
		c.currentSizeBytes -= c.nodes[victim].memorySize
		c.nodes[victim] = cacheNode{}
		c.freeList = append(c.freeList, victim)
		c.stats.Evictions++
		out = append(out, entry)
	}
	return out
}

func (c *HotCache) allocate(key PubKey, account Account, memorySize int64) int {
	node := cacheNode{
		key:          key,
		account:      account,
		memorySize:   memorySize,
		accessCount:  0,
		lastAccessed: now(),
		prev:         nilIndex,
		next:         nilIndex,
	}
	if n := len(c.freeList); n > 0 {
		idx := c.freeList[n-1]
		c.freeList = c.freeList[:n-1]
		c.nodes[idx] = node
		return idx
	}
	c.nodes = append(c.nodes, node)
	return len(c.nodes) - 1
}

// linkFront splices idx in as the new head.
func (c *HotCache) linkFront(idx int) {
	c.nodes[idx].prev = nilIndex
	c.nodes[idx].next = c.head
	if c.head != nilIndex {
		c.nodes[c.head].prev = idx
	}
	c.head = idx
	if c.tail == nilIndex {
		c.tail = idx
	}
}

// unlink splices idx out of the list without touching the free list.
func (c *HotCache) unlink(idx int) {
	n := c.nodes[idx]
	if n.prev != nilIndex {
		c.nodes[n.prev].next = n.next
	} else {
		c.head = n.next
	}
	if n.next != nilIndex {
		c.nodes[n.next].prev = n.prev
	} else {
		c.tail = n.prev
	}
}

func (c *HotCache) moveToFront(idx int) {
	if idx == c.head {
		return
	}
	c.unlink(idx)
	c.linkFront(idx)
}
