package utils

import (
	"hash/fnv"
	"sync"
)

const numShards = 256

// Hasher maps a key onto a shard index source.
type Hasher[K comparable] func(K) uint32

// StringHasher distributes string keys with FNV-1a.
func StringHasher(key string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(key))
	return h.Sum32()
}

// Uint64Hasher distributes numeric keys (object indexes) by folding the
// high half into the low half.
func Uint64Hasher(key uint64) uint32 {
	return uint32(key) ^ uint32(key>>32)
}

// ShardedMap is a concurrent map with sharding for reduced lock
// contention. More efficient than sync.Map for high-throughput
// scenarios with mixed reads/writes.
type ShardedMap[K comparable, V any] struct {
	hash   Hasher[K]
	shards [numShards]shard[K, V]
}

type shard[K comparable, V any] struct {
	sync.RWMutex
	m map[K]V
}

// NewShardedMap creates a new sharded map using the given hasher.
func NewShardedMap[K comparable, V any](hash Hasher[K]) *ShardedMap[K, V] {
	sm := &ShardedMap[K, V]{hash: hash}
	for i := range sm.shards {
		sm.shards[i].m = make(map[K]V)
	}
	return sm
}

func (sm *ShardedMap[K, V]) getShard(key K) *shard[K, V] {
	return &sm.shards[sm.hash(key)%numShards]
}

// Load returns the value for a key, or the zero value if not found.
func (sm *ShardedMap[K, V]) Load(key K) (V, bool) {
	s := sm.getShard(key)
	s.RLock()
	v, ok := s.m[key]
	s.RUnlock()
	return v, ok
}

// Store sets a value for a key.
func (sm *ShardedMap[K, V]) Store(key K, value V) {
	s := sm.getShard(key)
	s.Lock()
	s.m[key] = value
	s.Unlock()
}

// LoadOrStore returns the existing value if present, otherwise stores and returns the new value.
// Returns true if the value was loaded, false if stored.
func (sm *ShardedMap[K, V]) LoadOrStore(key K, value V) (V, bool) {
	s := sm.getShard(key)

	// Fast path: check with read lock first
	s.RLock()
	if v, ok := s.m[key]; ok {
		s.RUnlock()
		return v, true
	}
	s.RUnlock()

	s.Lock()
	defer s.Unlock()

	// Double-check after acquiring write lock
	if v, ok := s.m[key]; ok {
		return v, true
	}

	s.m[key] = value
	return value, false
}

// Delete removes a key from the map.
func (sm *ShardedMap[K, V]) Delete(key K) {
	s := sm.getShard(key)
	s.Lock()
	delete(s.m, key)
	s.Unlock()
}

// Range calls f for each key-value pair in the map.
// If f returns false, iteration stops.
func (sm *ShardedMap[K, V]) Range(f func(key K, value V) bool) {
	for i := range sm.shards {
		s := &sm.shards[i]
		s.RLock()
		for k, v := range s.m {
			if !f(k, v) {
				s.RUnlock()
				return
			}
		}
		s.RUnlock()
	}
}

// Len returns the total number of entries across all shards.
func (sm *ShardedMap[K, V]) Len() int {
	count := 0
	for i := range sm.shards {
		s := &sm.shards[i]
		s.RLock()
		count += len(s.m)
		s.RUnlock()
	}
	return count
}

// Clear removes all entries from the map.
func (sm *ShardedMap[K, V]) Clear() {
	for i := range sm.shards {
		s := &sm.shards[i]
		s.Lock()
		s.m = make(map[K]V)
		s.Unlock()
	}
}
