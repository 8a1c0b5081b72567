package cache

import (
	"hash/fnv"
	"sort"
	"sync"
	"time"
)

const numShards = 16

// Sharded is a string-keyed map split across RW-locked shards so that writers
// for different keys rarely contend. Used for high-rate entities such as quotes.
type Sharded[V any] struct {
	shards [numShards]*shard[V]
}

type shard[V any] struct {
	mu    sync.RWMutex
	items map[string]entry[V]
}

type entry[V any] struct {
	value     V
	updatedAt time.Time
}

// NewSharded creates an empty sharded map.
func NewSharded[V any]() *Sharded[V] {
	c := &Sharded[V]{}
	for i := 0; i < numShards; i++ {
		c.shards[i] = &shard[V]{items: make(map[string]entry[V])}
	}
	return c
}

func (c *Sharded[V]) getShard(key string) *shard[V] {
	h := fnv.New32a()
	h.Write([]byte(key))
	return c.shards[h.Sum32()%numShards]
}

// Set stores v under key, replacing any previous value.
func (c *Sharded[V]) Set(key string, v V) {
	s := c.getShard(key)
	s.mu.Lock()
	s.items[key] = entry[V]{value: v, updatedAt: time.Now()}
	s.mu.Unlock()
}

// SetIfAbsent stores v only when key is not present. It reports whether v was stored.
func (c *Sharded[V]) SetIfAbsent(key string, v V) bool {
	s := c.getShard(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[key]; ok {
		return false
	}
	s.items[key] = entry[V]{value: v, updatedAt: time.Now()}
	return true
}

// Get retrieves the value stored under key.
func (c *Sharded[V]) Get(key string) (V, bool) {
	s := c.getShard(key)
	s.mu.RLock()
	e, ok := s.items[key]
	s.mu.RUnlock()
	return e.value, ok
}

// GetWithAge retrieves a value and the time since it was last written.
func (c *Sharded[V]) GetWithAge(key string) (V, time.Duration, bool) {
	s := c.getShard(key)
	s.mu.RLock()
	e, ok := s.items[key]
	s.mu.RUnlock()
	if !ok {
		var zero V
		return zero, 0, false
	}
	return e.value, time.Since(e.updatedAt), true
}

// Delete removes key.
func (c *Sharded[V]) Delete(key string) {
	s := c.getShard(key)
	s.mu.Lock()
	delete(s.items, key)
	s.mu.Unlock()
}

// Len returns total items across all shards.
func (c *Sharded[V]) Len() int {
	total := 0
	for _, s := range c.shards {
		s.mu.RLock()
		total += len(s.items)
		s.mu.RUnlock()
	}
	return total
}

// Values returns a snapshot of all values ordered by key. Shards are locked one
// at a time, so the result is per-shard consistent only.
func (c *Sharded[V]) Values() []V {
	type kv struct {
		key   string
		value V
	}
	var all []kv
	for _, s := range c.shards {
		s.mu.RLock()
		for k, e := range s.items {
			all = append(all, kv{k, e.value})
		}
		s.mu.RUnlock()
	}
	sort.Slice(all, func(i, j int) bool { return all[i].key < all[j].key })

	res := make([]V, len(all))
	for i, e := range all {
		res[i] = e.value
	}
	return res
}

// Stats provides cache statistics.
type Stats struct {
	TotalItems  int            `json:"total_items"`
	ShardCounts [numShards]int `json:"shard_counts"`
	OldestAge   time.Duration  `json:"oldest_age"`
}

// Stats returns cache statistics.
func (c *Sharded[V]) Stats() Stats {
	stats := Stats{}
	var oldest time.Time

	for i, s := range c.shards {
		s.mu.RLock()
		stats.ShardCounts[i] = len(s.items)
		stats.TotalItems += len(s.items)
		for _, e := range s.items {
			if oldest.IsZero() || e.updatedAt.Before(oldest) {
				oldest = e.updatedAt
			}
		}
		s.mu.RUnlock()
	}

	if !oldest.IsZero() {
		stats.OldestAge = time.Since(oldest)
	}
	return stats
}
