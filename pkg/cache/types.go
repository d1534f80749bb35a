// Package cache implements the tiered account cache: an arena-backed hot
// LRU/LFU cache in front of a rent-expiry cold archive with Merkle-verified
// revival.
package cache

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// PubKey identifies an account. Cold-storage records fix the identity and
// owner fields at 32 raw bytes (spec §6), so this package uses common.Hash
// rather than the 20-byte common.Address the consensus package uses for
// validator identities.
type PubKey = common.Hash

// Owner identifies the owning program of an account, also 32 bytes.
type Owner = common.Hash

// Account is the payload tracked by both the hot cache and the archive.
type Account struct {
	Lamports   uint64
	Owner      Owner
	Executable bool
	Data       []byte
}

// fixedEntryOverhead approximates the bookkeeping cost (map entry, arena
// slot, linked-list pointers) charged against every cached account in
// addition to its raw data length, so current_size_bytes reflects real
// memory pressure rather than just payload bytes.
const fixedEntryOverhead = 64

// MemorySize is the byte cost an Account contributes to current_size_bytes.
func (a Account) MemorySize() int64 {
	return fixedEntryOverhead + int64(len(a.Data))
}

// EvictionPolicy selects the tail-eviction strategy.
type EvictionPolicy int

const (
	EvictionLRU EvictionPolicy = iota
	EvictionLFU
	// EvictionARC falls back to LRU in this iteration — the ghost-list
	// refinement is out of scope, per spec §9 open questions.
	EvictionARC
)

func (p EvictionPolicy) String() string {
	switch p {
	case EvictionLRU:
		return "lru"
	case EvictionLFU:
		return "lfu"
	case EvictionARC:
		return "arc"
	default:
		return "unknown"
	}
}

// EvictedEntry is one (pubkey, account) pair popped by EvictToWarm. The
// cache performs no I/O; the caller persists these to warm/cold storage.
type EvictedEntry struct {
	Key     PubKey
	Account Account
}

// Stats are the cache's running counters.
type Stats struct {
	Hits      uint64
	Misses    uint64
	Evictions uint64
}

// HitRate returns hits / (hits + misses), or 0 if no lookups have happened.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// now stamps a cache entry's lastAccessed on each touch (and an archive
// record's ArchiveTimestamp). Wall-clock time is
// descriptive only — eviction order is governed by the linked list (LRU) or
// access_count (LFU), never by this timestamp directly.
func now() time.Time { return time.Now() }
