// Package sharded provides string-keyed concurrent collections that spread
// lock contention across a fixed number of shards.
package sharded

import "hash/fnv"

// numShards must be a power of 2 for the bitwise modulus below.
const numShards = 64

// shardIndex calculates the shard index for a given key using FNV-1a.
func shardIndex(key string) int {
	h := fnv.New32a()
	// Write never returns an error for FNV-1a.
	h.Write([]byte(key))
	return int(h.Sum32() & uint32(numShards-1))
}
