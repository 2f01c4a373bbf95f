// Package limiter provides a shared memory budget so concurrency can be
// bounded by memory usage rather than only by a fixed worker count.
package limiter

import (
	"sync"
)

// Memory manages a shared memory budget. It is safe for concurrent use.
type Memory struct {
	mu        sync.Mutex
	available int64
	capacity  int64
}

// NewMemory creates a new memory limiter with the specified total capacity in bytes.
func NewMemory(limit int64) *Memory {
	return &Memory{
		available: limit,
		capacity:  limit,
	}
}

// TryAcquire attempts to reserve 'n' bytes from the memory budget.
// It returns false if not enough budget is currently available, or if 'n'
// exceeds the limiter's total capacity (so the caller can fall back to a
// streaming approach instead of waiting forever).
func (m *Memory) TryAcquire(n int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if n > m.capacity {
		return false
	}

	if m.available >= n {
		m.available -= n
		return true
	}

	return false
}

// Release returns 'n' bytes back to the budget.
// Must be paired with a successful TryAcquire.
func (m *Memory) Release(n int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.available += n

	// Guard against double release.
	if m.available > m.capacity {
		m.available = m.capacity
	}
}

// Capacity returns the limiter's total budget in bytes.
func (m *Memory) Capacity() int64 {
	return m.capacity
}
