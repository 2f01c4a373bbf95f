// Package fpcache persists file fingerprints between runs.
//
// The cache maps a normalized relative path to the size, modification time
// and content digest observed the last time the file was hashed. An entry is
// trusted only when the live size and modification time still match exactly;
// any drift forces a re-hash. The cache is an accelerator, never an oracle:
// deleting it is always safe and only costs re-hashing.
package fpcache

import (
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	gzip "github.com/klauspost/compress/gzip"
	"github.com/klauspost/pgzip"

	"github.com/dupsync/dupsync/pkg/fail"
	"github.com/dupsync/dupsync/pkg/fingerprint"
)

// FormatVersion is bumped whenever the on-disk layout changes. A cache with
// an unknown version is discarded, not migrated.
const FormatVersion = 1

// Entry is one cached fingerprint.
type Entry struct {
	SizeBytes    int64              `json:"size_bytes"`
	ModifiedTime int64              `json:"modified_time"`
	Digest       fingerprint.Digest `json:"digest"`
	LastVerified int64              `json:"last_verified_time"`
}

// fileFormat is the serialized shape of the cache.
type fileFormat struct {
	Version int              `json:"version"`
	Entries map[string]Entry `json:"entries"`
}

// Cache is a mutable fingerprint store backed by a JSON file, optionally
// gzip-compressed when the path ends in .gz. Safe for concurrent use.
type Cache struct {
	mu       sync.Mutex
	path     string
	entries  map[string]Entry
	dirty    bool
	readOnly bool
}

// New returns an empty cache bound to path. Nothing is written until Flush.
func New(path string) *Cache {
	return &Cache{
		path:    path,
		entries: make(map[string]Entry),
	}
}

// Load reads the cache file at path. A missing file yields an empty usable
// cache and no error. A corrupt or version-mismatched file also yields an
// empty usable cache, together with a KindCorruptCache error the caller
// should surface as a warning before proceeding.
func Load(path string) (*Cache, error) {
	c := New(path)

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return c, nil
		}
		return c, fail.Wrap(fail.KindIO, "open", path, err)
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return c, fail.Wrap(fail.KindCorruptCache, "decompress", path, err)
		}
		defer gz.Close()
		r = gz
	}

	var raw fileFormat
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return c, fail.Wrap(fail.KindCorruptCache, "decode", path, err)
	}
	if raw.Version != FormatVersion {
		return c, fail.Wrap(fail.KindCorruptCache, "decode", path,
			errors.New("unsupported cache version"))
	}
	if raw.Entries != nil {
		c.entries = raw.Entries
	}
	return c, nil
}

// Path returns the file the cache flushes to.
func (c *Cache) Path() string {
	return c.path
}

// SetReadOnly suppresses all disk writes. In-memory upserts still happen, so
// a dry run exercises the same code paths without touching the cache file.
func (c *Cache) SetReadOnly(ro bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.readOnly = ro
}

// Len reports the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Lookup returns the cached digest for relPath when the entry matches the
// live size and modification time exactly. Any mismatch is a miss.
func (c *Cache) Lookup(relPath string, size, modTime int64) (fingerprint.Digest, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[relPath]
	if !ok || e.SizeBytes != size || e.ModifiedTime != modTime {
		return "", false
	}
	return e.Digest, true
}

// Upsert records a freshly verified fingerprint and marks the cache dirty.
func (c *Cache) Upsert(relPath string, size, modTime int64, digest fingerprint.Digest) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[relPath] = Entry{
		SizeBytes:    size,
		ModifiedTime: modTime,
		Digest:       digest,
		LastVerified: time.Now().UnixNano(),
	}
	c.dirty = true
}

// PruneExcept drops every entry whose key is not in keep. Called once after a
// run completes, so entries for files deleted mid-run survive interruption.
func (c *Cache) PruneExcept(keep map[string]struct{}) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	pruned := 0
	for k := range c.entries {
		if _, ok := keep[k]; !ok {
			delete(c.entries, k)
			pruned++
		}
	}
	if pruned > 0 {
		c.dirty = true
	}
	return pruned
}

// Flush writes the cache atomically: serialize to a temp file in the target
// directory, then rename over the old cache. An interrupted flush leaves the
// previous cache intact, never a truncated one. Flush is a no-op when the
// cache is clean or read-only.
func (c *Cache) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.dirty || c.readOnly {
		return nil
	}

	raw := fileFormat{
		Version: FormatVersion,
		Entries: c.entries,
	}

	dir := filepath.Dir(c.path)
	tmp, err := os.CreateTemp(dir, ".dupsync-cache-*.tmp")
	if err != nil {
		return fail.Wrap(fail.KindIO, "create", c.path, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := writeFormat(tmp, c.path, raw); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fail.Wrap(fail.KindIO, "close", tmpName, err)
	}
	if err := os.Rename(tmpName, c.path); err != nil {
		return fail.Wrap(fail.KindIO, "rename", c.path, err)
	}

	c.dirty = false
	return nil
}

func writeFormat(w io.Writer, path string, raw fileFormat) error {
	if strings.HasSuffix(path, ".gz") {
		gz := pgzip.NewWriter(w)
		if err := encodeJSON(gz, path, raw); err != nil {
			gz.Close()
			return err
		}
		if err := gz.Close(); err != nil {
			return fail.Wrap(fail.KindIO, "compress", path, err)
		}
		return nil
	}
	return encodeJSON(w, path, raw)
}

func encodeJSON(w io.Writer, path string, raw fileFormat) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(raw); err != nil {
		return fail.Wrap(fail.KindIO, "encode", path, err)
	}
	return nil
}
