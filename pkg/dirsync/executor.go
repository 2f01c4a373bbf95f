package dirsync

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/dupsync/dupsync/pkg/fingerprint"
	"github.com/dupsync/dupsync/pkg/fpcache"
	"github.com/dupsync/dupsync/pkg/metrics"
	"github.com/dupsync/dupsync/pkg/plog"
	"github.com/dupsync/dupsync/pkg/pool"
	"github.com/dupsync/dupsync/pkg/scanner"
	"github.com/dupsync/dupsync/pkg/sharded"
	"github.com/dupsync/dupsync/pkg/util"
)

// ExecStats summarizes one execution pass.
type ExecStats struct {
	Copied      int64
	CopiedBytes int64
	Skipped     int64
	Failed      int64
}

// Executor runs a plan's Copy actions against a destination root.
type Executor struct {
	dstRoot string
	cache   *fpcache.Cache
	bufPool *pool.FixedBufferPool
	workers int
	dryRun  bool
	metrics metrics.Metrics

	// createdDirs records destination directories already ensured this run,
	// and dirGroup collapses concurrent MkdirAll attempts on the same path
	// so only the first worker performs the I/O.
	createdDirs *sharded.Set
	dirGroup    singleflight.Group
}

// NewExecutor creates an executor writing into dstRoot.
func NewExecutor(dstRoot string, cache *fpcache.Cache, bufPool *pool.FixedBufferPool,
	workers int, dryRun bool, m metrics.Metrics) *Executor {
	if workers < 1 {
		workers = 1
	}
	return &Executor{
		dstRoot:     dstRoot,
		cache:       cache,
		bufPool:     bufPool,
		workers:     workers,
		dryRun:      dryRun,
		metrics:     m,
		createdDirs: sharded.NewSet(),
	}
}

// Run executes every Copy action on the bounded I/O pool. Copies touch
// disjoint destination paths, so order between them is free. Per-file
// failures are logged and counted, never fatal; only cancellation aborts,
// and an aborted copy leaves at worst a discarded temp file, never a partial
// file at its final path.
func (e *Executor) Run(ctx context.Context, plan *Plan) (ExecStats, error) {
	var copied, copiedBytes, skipped, failed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)

	for _, action := range plan.Actions {
		if gctx.Err() != nil {
			break
		}
		switch action.Kind {
		case ActionSkip:
			skipped.Add(1)
			e.metrics.AddFilesUpToDate(1)
			plog.Debug("SKIP", "path", action.Record.RelPath, "reason", action.Reason)
			continue
		case ActionCopy:
		}

		rec := action.Record
		reason := action.Reason
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if e.dryRun {
				plog.Notice("COPY (dry-run)", "path", rec.RelPath, "size", rec.Size, "reason", reason)
				copied.Add(1)
				copiedBytes.Add(rec.Size)
				return nil
			}
			digest, err := e.copyFile(rec)
			if err != nil {
				plog.Warn("Failed to copy file", "path", rec.RelPath, "error", err)
				e.metrics.AddErrors(1)
				failed.Add(1)
				return nil
			}
			plog.Notice("COPY", "path", rec.RelPath, "size", rec.Size, "reason", reason)
			e.metrics.AddFilesCopied(1)
			e.metrics.AddBytesCopied(rec.Size)
			copied.Add(1)
			copiedBytes.Add(rec.Size)

			// Checkpoint after the rename so the cache only ever describes
			// completed copies. That is what makes re-running after an
			// interruption resume instead of re-copying.
			e.cache.Upsert(rec.RelPath, rec.Size, rec.ModTime, digest)
			if err := e.cache.Flush(); err != nil {
				plog.Warn("Cache checkpoint failed", "error", err)
			}
			return nil
		})
	}

	err := g.Wait()
	stats := ExecStats{
		Copied:      copied.Load(),
		CopiedBytes: copiedBytes.Load(),
		Skipped:     skipped.Load(),
		Failed:      failed.Load(),
	}
	if err != nil {
		return stats, err
	}
	// The group context is canceled once Wait returns; only the caller's
	// context decides whether the run was cut short.
	return stats, ctx.Err()
}

// copyFile transfers one file atomically: temp file in the destination
// directory, content streamed through a digest tee, permissions and source
// modification time applied, then renamed into place. The digest comes for
// free from the tee, so the cache entry after a copy always holds the true
// content fingerprint.
func (e *Executor) copyFile(rec scanner.FileRecord) (fingerprint.Digest, error) {
	absDst := util.DenormalizedAbsPath(e.dstRoot, rec.RelPath)
	if err := e.ensureParentDir(filepath.Dir(absDst)); err != nil {
		return "", err
	}

	in, err := os.Open(rec.AbsPath)
	if err != nil {
		return "", fmt.Errorf("open source %s: %w", rec.AbsPath, err)
	}
	defer in.Close()

	out, err := os.CreateTemp(filepath.Dir(absDst), "dupsync-*.tmp")
	if err != nil {
		return "", fmt.Errorf("create temp in %s: %w", filepath.Dir(absDst), err)
	}
	defer out.Close()

	tmpPath := out.Name()
	defer func() {
		if tmpPath != "" {
			os.Remove(tmpPath)
		}
	}()

	if rec.Size > 0 {
		_ = out.Truncate(rec.Size)
	}

	bufPtr := e.bufPool.Get()
	defer e.bufPool.Put(bufPtr)
	buf := *bufPtr
	buf = buf[:cap(buf)]

	h := sha256.New()
	if _, err := io.CopyBuffer(io.MultiWriter(out, h), in, buf); err != nil {
		return "", fmt.Errorf("copy %s: %w", rec.AbsPath, err)
	}

	// Keep owner-write set so a read-only source cannot lock us out of the
	// destination on the next run.
	if err := out.Chmod(util.WithUserWritePermission(rec.Mode)); err != nil {
		return "", fmt.Errorf("chmod temp %s: %w", tmpPath, err)
	}

	// Close before Chtimes: flushing on close may bump the mtime.
	if err := out.Close(); err != nil {
		return "", fmt.Errorf("close temp %s: %w", tmpPath, err)
	}
	mt := time.Unix(0, rec.ModTime)
	if err := os.Chtimes(tmpPath, mt, mt); err != nil {
		return "", fmt.Errorf("chtimes %s: %w", tmpPath, err)
	}

	if err := os.Rename(tmpPath, absDst); err != nil {
		return "", fmt.Errorf("rename into place %s: %w", absDst, err)
	}
	tmpPath = ""

	return fingerprint.EncodeSum(h.Sum(nil)), nil
}

// ensureParentDir creates the destination directory chain once per run.
// Concurrent workers copying into the same new directory collapse onto a
// single MkdirAll through the singleflight group.
func (e *Executor) ensureParentDir(absDir string) error {
	if e.createdDirs.Has(absDir) {
		return nil
	}
	_, err, _ := e.dirGroup.Do(absDir, func() (any, error) {
		if e.createdDirs.Has(absDir) {
			return nil, nil
		}
		if err := os.MkdirAll(absDir, util.UserWritableDirPerms); err != nil {
			return nil, err
		}
		e.metrics.AddDirsCreated(1)
		e.createdDirs.Store(absDir)
		return nil, nil
	})
	return err
}
