package cmd

import (
	"context"
	"errors"
	"path/filepath"
	"time"

	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"github.com/dupsync/dupsync/pkg/buildinfo"
	"github.com/dupsync/dupsync/pkg/dirsync"
	"github.com/dupsync/dupsync/pkg/fail"
	"github.com/dupsync/dupsync/pkg/filelock"
	"github.com/dupsync/dupsync/pkg/fingerprint"
	"github.com/dupsync/dupsync/pkg/fpcache"
	"github.com/dupsync/dupsync/pkg/metrics"
	"github.com/dupsync/dupsync/pkg/plog"
	"github.com/dupsync/dupsync/pkg/pool"
	"github.com/dupsync/dupsync/pkg/preflight"
	"github.com/dupsync/dupsync/pkg/report"
	"github.com/dupsync/dupsync/pkg/scanner"
)

const lockHeartbeat = 30 * time.Second

func syncCommand() *cli.Command {
	return &cli.Command{
		Name:      "sync",
		Usage:     "One-way sync of a source directory into a destination",
		UsageText: buildinfo.Name + " sync [options] SOURCE DEST",
		Description: `Copies files from SOURCE into DEST so DEST resembles SOURCE. Files
unique to DEST are never deleted. Unchanged files are skipped; the
fingerprint cache makes repeated runs and resumed runs cheap. Deep scan
compares file content instead of trusting size and modification time.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "cache",
				Usage: "fingerprint cache file (default from configuration)",
			},
			&cli.BoolFlag{
				Name:  "enable-deep-scan",
				Usage: "verify content digests instead of size and modification time",
			},
			&cli.BoolFlag{
				Name:  "dry-run",
				Usage: "report the full copy plan without writing anything",
			},
		},
		Action: runSync,
	}
}

func runSync(ctx context.Context, cmd *cli.Command) error {
	start := time.Now()

	args := cmd.Args()
	if args.Len() != 2 {
		return fail.Config("sync requires exactly 2 arguments: SOURCE DEST")
	}
	srcRoot, dstRoot := args.Get(0), args.Get(1)
	deep := cmd.Bool("enable-deep-scan")
	dryRun := cmd.Bool("dry-run")

	cfg, closeLog, err := setupRun(cmd, start)
	if err != nil {
		return err
	}
	defer closeLog()

	cachePath := cmd.String("cache")
	if cachePath == "" {
		cachePath = cfg.Sync.CachePath
	}

	if err := preflight.CheckSourceDir(srcRoot); err != nil {
		return err
	}
	if err := preflight.CheckNotNested(srcRoot, dstRoot); err != nil {
		return err
	}
	if err := preflight.CheckCacheFile(cachePath); err != nil {
		return err
	}
	if !dryRun {
		if err := preflight.CheckDestRoot(dstRoot); err != nil {
			return err
		}

		// The cache has a single writer: one live sync per cache at a time.
		lock, err := filelock.Acquire(ctx, cachePath+".lock", buildinfo.Name, lockHeartbeat)
		if err != nil {
			var held *filelock.ErrHeld
			if errors.As(err, &held) {
				return fail.Config("another sync is using this cache: %v", held)
			}
			return err
		}
		defer lock.Release()
	}

	cache, err := fpcache.Load(cachePath)
	if err != nil {
		plog.Warn("Fingerprint cache unusable, starting fresh", "path", cachePath, "error", err)
	}
	if dryRun {
		cache.SetReadOnly(true)
	}

	m := &metrics.RunMetrics{}

	// Source and destination scans are independent.
	var srcSession, dstSession *scanner.Session
	sc := scanner.New(cfg.Performance.EffectiveScanWorkers())
	g, scanCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		srcSession, err = sc.Scan(scanCtx, srcRoot)
		return err
	})
	g.Go(func() error {
		var err error
		dstSession, err = sc.Scan(scanCtx, dstRoot)
		if err != nil && fail.Is(err, fail.KindNotFound) {
			// First sync into a missing destination (dry-run never creates
			// it): plan against an empty tree.
			abs, aerr := filepath.Abs(dstRoot)
			if aerr != nil {
				return err
			}
			dstSession = &scanner.Session{Root: abs, Files: map[string]scanner.FileRecord{}}
			return nil
		}
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}

	m.AddFilesScanned(int64(len(srcSession.Files)))
	for _, w := range append(srcSession.Warnings, dstSession.Warnings...) {
		plog.Warn("Scan warning", "path", w.Path, "error", w.Err)
		m.AddErrors(1)
	}

	hasher := fingerprint.NewHasher(cfg.Performance.ChunkSize(), cfg.Performance.WholeFileBudget())
	planner := dirsync.NewPlanner(cache, hasher, deep,
		time.Duration(cfg.Sync.ModTimeWindowSeconds)*time.Second,
		cfg.Performance.EffectiveHashWorkers(), m)

	plan, err := planner.Build(ctx, srcSession, dstSession)
	if err != nil {
		return err
	}
	plog.Info("Sync plan ready", "copy", plan.CopyCount, "skip", plan.SkipCount, "bytes", plan.CopyBytes)

	if !dryRun && plan.CopyBytes > 0 {
		if err := preflight.EnsureFreeSpace(dstRoot, uint64(plan.CopyBytes)); err != nil {
			return err
		}
	}

	bufPool := pool.NewFixedBuffer(cfg.Performance.BufferSize())
	executor := dirsync.NewExecutor(dstSession.Root, cache, bufPool,
		cfg.Performance.EffectiveCopyWorkers(), dryRun, m)

	stats, err := executor.Run(ctx, plan)
	if err != nil {
		return err
	}

	// The plan ran to completion, so the source scan is authoritative:
	// entries for files no longer in the source can go.
	keep := make(map[string]struct{}, len(srcSession.Files))
	for k := range srcSession.Files {
		keep[k] = struct{}{}
	}
	if n := cache.PruneExcept(keep); n > 0 {
		plog.Info("Pruned stale cache entries", "count", n)
	}
	if err := cache.Flush(); err != nil {
		plog.Warn("Final cache flush failed", "error", err)
	}

	m.Log()
	report.SyncSummary{
		Source:      srcSession.Root,
		Dest:        dstSession.Root,
		TotalFiles:  len(srcSession.Files),
		Copied:      stats.Copied,
		CopiedBytes: stats.CopiedBytes,
		UpToDate:    stats.Skipped,
		Failed:      stats.Failed,
		CacheHits:   m.CacheHits.Load(),
		Deep:        deep,
		DryRun:      dryRun,
		Duration:    time.Since(start),
	}.Print()

	return nil
}
