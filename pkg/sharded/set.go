package sharded

import "sync"

type setShard struct {
	mu    sync.RWMutex
	items map[string]struct{}
}

// Set is a concurrent set of string keys.
type Set struct {
	shards [numShards]*setShard
}

// NewSet creates an empty sharded set.
func NewSet() *Set {
	s := &Set{}
	for i := range s.shards {
		s.shards[i] = &setShard{items: make(map[string]struct{})}
	}
	return s
}

func (s *Set) shard(key string) *setShard {
	return s.shards[shardIndex(key)]
}

// Store adds a key to the set.
func (s *Set) Store(key string) {
	shard := s.shard(key)
	shard.mu.Lock()
	shard.items[key] = struct{}{}
	shard.mu.Unlock()
}

// Has checks for the presence of a key.
func (s *Set) Has(key string) bool {
	shard := s.shard(key)
	shard.mu.RLock()
	_, ok := shard.items[key]
	shard.mu.RUnlock()
	return ok
}
