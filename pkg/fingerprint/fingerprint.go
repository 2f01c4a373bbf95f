// Package fingerprint computes content digests for files and coordinates the
// CPU-bound digest worker pool.
//
// The digest is SHA-256 over the full byte stream of the file, so it depends
// only on content: chunk size, path spelling and platform never change it.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"

	"github.com/dupsync/dupsync/pkg/fail"
	"github.com/dupsync/dupsync/pkg/limiter"
	"github.com/dupsync/dupsync/pkg/pool"
)

// Digest is the lowercase hex encoding of a 256-bit content fingerprint.
// Equal digests are treated as equal content throughout the system.
type Digest string

// Sum returns the digest of an in-memory byte slice.
func Sum(data []byte) Digest {
	sum := sha256.Sum256(data)
	return Digest(hex.EncodeToString(sum[:]))
}

// EncodeSum converts a raw SHA-256 sum into a Digest.
func EncodeSum(sum []byte) Digest {
	return Digest(hex.EncodeToString(sum))
}

const (
	// minWholeFileBuffer avoids pooling tiny buckets in the whole-file pool.
	minWholeFileBuffer = 4 * 1024
	// maxWholeFileBuffer caps single-read buffers; larger files always stream.
	maxWholeFileBuffer = 16 * 1024 * 1024
)

// Hasher computes file digests through pooled buffers. Small files are read
// in a single buffer when the shared memory budget allows; larger files are
// streamed chunk by chunk. Safe for concurrent use.
type Hasher struct {
	chunkPool *pool.FixedBufferPool
	wholePool *pool.BucketedBufferPool
	mem       *limiter.Memory
}

// NewHasher creates a Hasher with the given read chunk size and whole-file
// memory budget in bytes. A zero budget disables the single-read fast path.
func NewHasher(chunkSize, wholeFileBudget int64) *Hasher {
	if chunkSize <= 0 {
		chunkSize = 64 * 1024
	}
	h := &Hasher{
		chunkPool: pool.NewFixedBuffer(chunkSize),
	}
	if wholeFileBudget > 0 {
		h.mem = limiter.NewMemory(wholeFileBudget)
		h.wholePool = pool.NewBucketedBufferPool(minWholeFileBuffer, maxWholeFileBuffer)
	}
	return h
}

// File computes the digest of the file at path.
func (h *Hasher) File(path string) (Digest, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fail.Wrap(fail.KindIO, "open", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", fail.Wrap(fail.KindIO, "stat", path, err)
	}

	size := info.Size()
	if h.mem != nil && size > 0 && size <= maxWholeFileBuffer && h.mem.TryAcquire(size) {
		defer h.mem.Release(size)
		return h.sumWhole(f, path, size)
	}
	return h.sumChunked(f, path)
}

// sumWhole reads the entire file into one pooled buffer and hashes it.
// A file that changed size between Stat and read still gets a digest over the
// full byte stream: short reads just hash less, growth streams the remainder.
func (h *Hasher) sumWhole(f *os.File, path string, size int64) (Digest, error) {
	bufPtr := h.wholePool.Get(size)
	defer h.wholePool.Put(bufPtr)
	buf := *bufPtr

	n, err := io.ReadFull(f, buf)
	if err != nil && err != io.ErrUnexpectedEOF {
		return "", fail.Wrap(fail.KindIO, "read", path, err)
	}

	hash := sha256.New()
	hash.Write(buf[:n])

	if err == nil {
		// The buffer filled completely; the file may have grown after Stat.
		chunkPtr := h.chunkPool.Get()
		_, cerr := io.CopyBuffer(hash, f, (*chunkPtr)[:cap(*chunkPtr)])
		h.chunkPool.Put(chunkPtr)
		if cerr != nil {
			return "", fail.Wrap(fail.KindIO, "read", path, cerr)
		}
	}
	return EncodeSum(hash.Sum(nil)), nil
}

// sumChunked streams the file through a fixed-size pooled buffer.
func (h *Hasher) sumChunked(f *os.File, path string) (Digest, error) {
	bufPtr := h.chunkPool.Get()
	defer h.chunkPool.Put(bufPtr)

	hash := sha256.New()
	if _, err := io.CopyBuffer(hash, f, (*bufPtr)[:cap(*bufPtr)]); err != nil {
		return "", fail.Wrap(fail.KindIO, "read", path, err)
	}
	return EncodeSum(hash.Sum(nil)), nil
}
