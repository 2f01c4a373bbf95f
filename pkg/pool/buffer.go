// Package pool provides reusable byte buffers for the hot I/O paths (hashing
// and copying), built on sync.Pool to relieve GC pressure.
package pool

import (
	"fmt"
	"math/bits"
	"sync"
)

func isPowerOfTwo(n int64) bool {
	return n > 0 && (n&(n-1)) == 0
}

// FixedBufferPool hands out buffers of a single size, used for chunked reads
// where every worker needs the same buffer.
type FixedBufferPool struct {
	size int64
	pool sync.Pool
}

// NewFixedBuffer creates a pool of buffers of exactly size bytes.
func NewFixedBuffer(size int64) *FixedBufferPool {
	return &FixedBufferPool{
		size: size,
		pool: sync.Pool{
			New: func() any {
				b := make([]byte, int(size))
				return &b
			},
		},
	}
}

// Get retrieves a buffer of the pool's fixed size.
func (fp *FixedBufferPool) Get() *[]byte {
	return fp.pool.Get().(*[]byte)
}

// Put returns a buffer to the pool. Foreign-sized buffers are dropped.
func (fp *FixedBufferPool) Put(b *[]byte) {
	if b == nil || int64(cap(*b)) != fp.size {
		return
	}
	*b = (*b)[:fp.size]
	fp.pool.Put(b)
}

// Size returns the pool's buffer size in bytes.
func (fp *FixedBufferPool) Size() int64 { return fp.size }

// BucketedBufferPool provides an O(1) lookup for reusable byte slices of
// varying sizes, bucketed by power of two. Used for the whole-file read fast
// path where the requested size depends on the file.
type BucketedBufferPool struct {
	minBucketExp int
	maxBucketExp int
	maxPoolSize  int64
	pools        []sync.Pool
}

// NewBucketedBufferPool creates a pool covering [minSize, maxSize].
// Both bounds MUST be powers of two (e.g., 4096, 1048576).
func NewBucketedBufferPool(minSize, maxSize int64) *BucketedBufferPool {
	if !isPowerOfTwo(minSize) {
		panic(fmt.Sprintf("minSize %d must be a power of two", minSize))
	}
	if !isPowerOfTwo(maxSize) {
		panic(fmt.Sprintf("maxSize %d must be a power of two", maxSize))
	}
	if maxSize <= minSize {
		panic("maxSize must be greater than minSize")
	}

	// bits.TrailingZeros returns the exponent for a power-of-two number.
	minExp := bits.TrailingZeros64(uint64(minSize))
	maxExp := bits.TrailingZeros64(uint64(maxSize))

	bp := &BucketedBufferPool{
		minBucketExp: minExp,
		maxBucketExp: maxExp,
		maxPoolSize:  int64(1) << maxExp,
		pools:        make([]sync.Pool, maxExp+1),
	}

	for i := minExp; i <= maxExp; i++ {
		size := int64(1) << i
		bp.pools[i].New = func() any {
			b := make([]byte, int(size))
			return &b
		}
	}
	return bp
}

// Get retrieves a pointer to a byte slice of exactly 'size' length (backed by
// a capacity of the next power of two).
func (bp *BucketedBufferPool) Get(size int64) *[]byte {
	if size <= 0 {
		b := make([]byte, 0)
		return &b
	}

	// Don't pool huge buffers; allocate fresh to prevent memory bloat.
	if size > bp.maxPoolSize {
		b := make([]byte, int(size))
		return &b
	}

	// Smallest power of 2 that is >= size.
	idx := bits.Len64(uint64(size - 1))
	if idx < bp.minBucketExp {
		idx = bp.minBucketExp
	}

	bufPtr := bp.pools[idx].Get().(*[]byte)
	*bufPtr = (*bufPtr)[:int(size)]
	return bufPtr
}

// Put returns the buffer to the pool if it matches one of the bucket capacities.
func (bp *BucketedBufferPool) Put(bufPtr *[]byte) {
	if bufPtr == nil {
		return
	}

	capacity := int64(cap(*bufPtr))
	if capacity < (int64(1)<<bp.minBucketExp) || capacity > bp.maxPoolSize || !isPowerOfTwo(capacity) {
		return
	}

	idx := bits.TrailingZeros64(uint64(capacity))

	// Reset to full capacity so the next Get has the whole buffer available.
	*bufPtr = (*bufPtr)[:capacity]
	bp.pools[idx].Put(bufPtr)
}
