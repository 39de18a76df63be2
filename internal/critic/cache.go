package critic

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
)

// CacheStats mirrors the teacher's CacheStats shape, minus the fields
// (TotalWrites aside) that don't apply to a read-through score cache.
type CacheStats struct {
	Hits      int64
	Misses    int64
	Size      int
	Evictions int64
}

// EntailmentCache is the per-run entailment-score cache keyed by
// hash(premise + '\x00' + hypothesis + '\x00' + variant) (spec.md
// §4.3). Unlike the teacher's MemoryCache (LRU), this evicts FIFO:
// the oldest inserted key is evicted first, regardless of access
// pattern, per spec.md §4.3's explicit "FIFO eviction" requirement.
type EntailmentCache struct {
	mu      sync.Mutex
	maxSize int
	values  map[string]Relation
	order   []string // insertion order, oldest first
	stats   CacheStats
}

// Relation is the cached (entailment, contradiction, neutral) triple.
type Relation struct {
	Entailment    float64
	Contradiction float64
	Neutral       float64
}

// NewEntailmentCache builds a bounded FIFO cache. maxSize <= 0 falls
// back to the spec's default of 10,000 entries.
func NewEntailmentCache(maxSize int) *EntailmentCache {
	if maxSize <= 0 {
		maxSize = 10000
	}
	return &EntailmentCache{
		maxSize: maxSize,
		values:  make(map[string]Relation, maxSize),
	}
}

// Key computes the cache key for a (premise, hypothesis, variant) triple.
func Key(premise, hypothesis, variant string) string {
	h := sha256.New()
	h.Write([]byte(premise))
	h.Write([]byte{0})
	h.Write([]byte(hypothesis))
	h.Write([]byte{0})
	h.Write([]byte(variant))
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns the cached relation for key, if present.
func (c *EntailmentCache) Get(key string) (Relation, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rel, ok := c.values[key]
	if ok {
		c.stats.Hits++
	} else {
		c.stats.Misses++
	}
	return rel, ok
}

// Set inserts or overwrites key's relation, evicting the oldest entry
// first if the cache is at capacity.
func (c *EntailmentCache) Set(key string, rel Relation) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.values[key]; exists {
		c.values[key] = rel
		return
	}

	if len(c.values) >= c.maxSize && len(c.order) > 0 {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.values, oldest)
		c.stats.Evictions++
	}

	c.values[key] = rel
	c.order = append(c.order, key)
}

// Stats returns a snapshot of the cache's hit/miss/eviction counters.
func (c *EntailmentCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.Size = len(c.values)
	return s
}
