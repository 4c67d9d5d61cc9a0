package translate

import (
	"fmt"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru"

	"xlate/isa"
)

// TranslationResultCache memoizes completed block translations keyed by
// (src, dst, block content hash). Eviction is least-recently-used with a
// fixed capacity sized to the hot working set.
//
// A hit must be byte-for-byte what a fresh translation would produce, so
// blocks are deep-copied both into and out of the cache; neither the
// inserter nor a later reader can mutate a cached entry.
type TranslationResultCache struct {
	entries *lru.Cache

	hits   atomic.Uint64
	misses atomic.Uint64
}

// NewTranslationResultCache builds an LRU result cache with the given
// capacity.
func NewTranslationResultCache(capacity int) (*TranslationResultCache, error) {
	entries, err := lru.New(capacity)
	if err != nil {
		return nil, fmt.Errorf("result cache: %w", err)
	}
	return &TranslationResultCache{entries: entries}, nil
}

// Get returns a copy of the cached translation for key, if present.
func (c *TranslationResultCache) Get(key isa.Key) ([]isa.Instruction, bool) {
	v, ok := c.entries.Get(key)
	if !ok {
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return isa.CloneBlock(v.([]isa.Instruction)), true
}

// Add stores a copy of block under key, evicting the least recently used
// entry if the cache is full.
func (c *TranslationResultCache) Add(key isa.Key, block []isa.Instruction) {
	c.entries.Add(key, isa.CloneBlock(block))
}

// Len returns the number of cached blocks.
func (c *TranslationResultCache) Len() int { return c.entries.Len() }

// Clear evicts everything; counters are preserved.
func (c *TranslationResultCache) Clear() { c.entries.Purge() }

// Hits and Misses expose the lookup counters.
func (c *TranslationResultCache) Hits() uint64   { return c.hits.Load() }
func (c *TranslationResultCache) Misses() uint64 { return c.misses.Load() }

// HitRate returns hits/(hits+misses), or 0 before any lookup.
func (c *TranslationResultCache) HitRate() float64 {
	h, m := c.hits.Load(), c.misses.Load()
	if h+m == 0 {
		return 0
	}
	return float64(h) / float64(h+m)
}
