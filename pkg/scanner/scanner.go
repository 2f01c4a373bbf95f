// Package scanner walks a directory tree concurrently and produces the file
// records that feed duplicate detection and sync planning.
//
// Traversal fans out one worker per discovered directory, bounded by a
// semaphore, with a single collector goroutine draining results. A tree of
// many shallow siblings and a tree with one deep branch both keep the pool
// busy. Symbolic links are never followed: following them risks traversal
// cycles, so the termination guarantee wins over completeness. Unreadable
// subtrees produce a Warning and scanning continues elsewhere.
package scanner

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/dupsync/dupsync/pkg/fail"
	"github.com/dupsync/dupsync/pkg/util"
)

// FileRecord describes one regular file discovered under a scan root.
// Identity within a root is the normalized RelPath. The content digest is
// computed lazily by the fingerprint engine, never here.
type FileRecord struct {
	AbsPath string
	// RelPath is the normalized relative path key (forward slashes, NFC).
	RelPath string
	Size    int64
	// ModTime is the modification time in Unix nanoseconds.
	ModTime int64
	Mode    fs.FileMode
}

// Warning records a subtree or entry that could not be scanned.
type Warning struct {
	Path string
	Err  error
}

// Session is the ephemeral result of one scan: owned by the invocation that
// created it and safe to discard on interruption.
type Session struct {
	Root     string
	Files    map[string]FileRecord
	Warnings []Warning
}

// SortedKeys returns the relative path keys in lexicographic order. Traversal
// order is nondeterministic; every consumer that needs determinism sorts.
func (s *Session) SortedKeys() []string {
	keys := make([]string, 0, len(s.Files))
	for k := range s.Files {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Scanner traverses directory trees with a bounded worker pool.
type Scanner struct {
	workers int
}

// New creates a Scanner with the given traversal pool size.
func New(workers int) *Scanner {
	if workers < 1 {
		workers = 1
	}
	return &Scanner{workers: workers}
}

// result is the collector's input: exactly one of rec/warn is set.
type result struct {
	rec  *FileRecord
	warn *Warning
}

// Scan produces the complete set of regular files reachable from root.
// The set is complete but unordered; downstream logic must not depend on
// discovery order. Scan fails only on setup problems (root missing or not a
// directory) or context cancellation.
func (sc *Scanner) Scan(ctx context.Context, root string) (*Session, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fail.Wrap(fail.KindIO, "resolve", root, err)
	}

	info, err := os.Lstat(absRoot)
	if err != nil {
		return nil, fail.Wrap(fail.KindIO, "stat", absRoot, err)
	}
	if !info.IsDir() {
		return nil, fail.Config("scan root is not a directory: %s", absRoot)
	}

	session := &Session{
		Root:  absRoot,
		Files: make(map[string]FileRecord),
	}

	w := &walker{
		ctx:     ctx,
		root:    absRoot,
		sem:     make(chan struct{}, sc.workers),
		results: make(chan result, sc.workers*64),
	}

	// Fan-in: a single collector owns the session maps, so workers share no
	// mutable state beyond the results channel.
	var collectorWg sync.WaitGroup
	collectorWg.Add(1)
	go func() {
		defer collectorWg.Done()
		for r := range w.results {
			if r.rec != nil {
				session.Files[r.rec.RelPath] = *r.rec
			} else if r.warn != nil {
				session.Warnings = append(session.Warnings, *r.warn)
			}
		}
	}()

	w.wg.Add(1)
	go w.dir(absRoot)

	w.wg.Wait()
	close(w.results)
	collectorWg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return session, nil
}

// walker holds the shared state of one traversal.
type walker struct {
	ctx     context.Context
	root    string
	sem     chan struct{}
	results chan result
	wg      sync.WaitGroup
}

// dir lists one directory, emits its regular files, and fans out a worker per
// subdirectory. The semaphore bounds how many listings run at once; the
// goroutine itself is cheap and may briefly wait for a slot.
func (w *walker) dir(absDir string) {
	defer w.wg.Done()

	select {
	case w.sem <- struct{}{}:
	case <-w.ctx.Done():
		return
	}
	defer func() { <-w.sem }()

	entries, err := os.ReadDir(absDir)
	if err != nil {
		// Unreadable subtree: report and keep scanning elsewhere.
		w.emit(result{warn: &Warning{Path: absDir, Err: fail.Wrap(fail.KindIO, "readdir", absDir, err)}})
		return
	}

	for _, entry := range entries {
		if w.ctx.Err() != nil {
			return
		}

		absPath := filepath.Join(absDir, entry.Name())
		mode := entry.Type()

		switch {
		case mode&fs.ModeSymlink != 0:
			// Never followed, whether it points to a file or a directory.
			continue
		case mode.IsDir():
			w.wg.Add(1)
			go w.dir(absPath)
		case mode.IsRegular():
			info, err := entry.Info()
			if err != nil {
				w.emit(result{warn: &Warning{Path: absPath, Err: fail.Wrap(fail.KindIO, "stat", absPath, err)}})
				continue
			}
			relKey, err := util.NormalizedRelPath(w.root, absPath)
			if err != nil {
				w.emit(result{warn: &Warning{Path: absPath, Err: err}})
				continue
			}
			w.emit(result{rec: &FileRecord{
				AbsPath: absPath,
				RelPath: relKey,
				Size:    info.Size(),
				ModTime: info.ModTime().UnixNano(),
				Mode:    info.Mode(),
			}})
		default:
			// Sockets, pipes, devices: not regular files, not scanned.
		}
	}
}

func (w *walker) emit(r result) {
	select {
	case w.results <- r:
	case <-w.ctx.Done():
	}
}
