package sharded

import "sync"

type mapShard[V any] struct {
	mu    sync.RWMutex
	items map[string]V
}

// Map is a concurrent map from string keys to values of type V.
type Map[V any] struct {
	shards [numShards]*mapShard[V]
}

// NewMap creates an empty sharded map.
func NewMap[V any]() *Map[V] {
	m := &Map[V]{}
	for i := range m.shards {
		m.shards[i] = &mapShard[V]{items: make(map[string]V)}
	}
	return m
}

func (m *Map[V]) shard(key string) *mapShard[V] {
	return m.shards[shardIndex(key)]
}

// Store adds a key-value pair to the map.
func (m *Map[V]) Store(key string, value V) {
	shard := m.shard(key)
	shard.mu.Lock()
	shard.items[key] = value
	shard.mu.Unlock()
}

// Load retrieves the value associated with a key.
func (m *Map[V]) Load(key string) (value V, ok bool) {
	shard := m.shard(key)
	shard.mu.RLock()
	value, ok = shard.items[key]
	shard.mu.RUnlock()
	return value, ok
}

// Count returns the total number of elements in the map.
func (m *Map[V]) Count() int {
	count := 0
	for _, shard := range m.shards {
		shard.mu.RLock()
		count += len(shard.items)
		shard.mu.RUnlock()
	}
	return count
}

// Range calls f sequentially for each key and value present in the map.
// If f returns false, iteration stops. One shard is locked at a time; f must
// not modify the map.
func (m *Map[V]) Range(f func(key string, value V) bool) {
	for _, shard := range m.shards {
		shard.mu.RLock()
		for k, v := range shard.items {
			if !f(k, v) {
				shard.mu.RUnlock()
				return
			}
		}
		shard.mu.RUnlock()
	}
}
