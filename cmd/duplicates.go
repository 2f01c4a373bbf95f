package cmd

import (
	"context"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/dupsync/dupsync/pkg/dupfind"
	"github.com/dupsync/dupsync/pkg/fail"
	"github.com/dupsync/dupsync/pkg/fingerprint"
	"github.com/dupsync/dupsync/pkg/fpcache"
	"github.com/dupsync/dupsync/pkg/metrics"
	"github.com/dupsync/dupsync/pkg/plog"
	"github.com/dupsync/dupsync/pkg/preflight"
	"github.com/dupsync/dupsync/pkg/report"
	"github.com/dupsync/dupsync/pkg/scanner"
)

func duplicatesCommand() *cli.Command {
	return &cli.Command{
		Name:  "duplicates",
		Usage: "Find files with identical content inside a directory tree",
		Description: `Scans a directory, groups files with identical content, and writes a
JSON report. With --delete, every group keeps its oldest member (ties
broken by path) and removes the rest. A previously written report can be
replayed with --input-json instead of rescanning.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "path",
				Usage: "directory tree to scan for duplicates",
			},
			&cli.StringFlag{
				Name:  "output-json",
				Usage: "report file to write (default: out_<timestamp>.json)",
			},
			&cli.StringFlag{
				Name:  "input-json",
				Usage: "reuse a previously written report instead of scanning",
			},
			&cli.BoolFlag{
				Name:  "delete",
				Usage: "delete all non-kept members of each duplicate group",
			},
			&cli.BoolFlag{
				Name:  "dry-run",
				Usage: "compute and log the full plan without touching the filesystem",
			},
		},
		Action: runDuplicates,
	}
}

func runDuplicates(ctx context.Context, cmd *cli.Command) error {
	start := time.Now()

	scanPath := cmd.String("path")
	inputJSON := cmd.String("input-json")
	outputJSON := cmd.String("output-json")
	doDelete := cmd.Bool("delete")
	dryRun := cmd.Bool("dry-run")

	switch {
	case scanPath == "" && inputJSON == "":
		return fail.Config("either --path or --input-json is required")
	case scanPath != "" && inputJSON != "":
		return fail.Config("--path and --input-json are mutually exclusive")
	}

	cfg, closeLog, err := setupRun(cmd, start)
	if err != nil {
		return err
	}
	defer closeLog()

	m := &metrics.RunMetrics{}

	var result *dupfind.Result
	var cache *fpcache.Cache
	var keep map[string]struct{}

	if inputJSON != "" {
		result, err = dupfind.LoadReport(inputJSON)
		if err != nil {
			return err
		}
		plog.Info("Loaded duplicate report", "path", inputJSON, "groups", len(result.Groups))
	} else {
		if err := preflight.CheckSourceDir(scanPath); err != nil {
			return err
		}
		if err := preflight.CheckCacheFile(cfg.Sync.CachePath); err != nil {
			return err
		}

		cache, err = fpcache.Load(cfg.Sync.CachePath)
		if err != nil {
			plog.Warn("Fingerprint cache unusable, starting fresh", "path", cfg.Sync.CachePath, "error", err)
		}
		if dryRun {
			cache.SetReadOnly(true)
		}

		session, err := scanner.New(cfg.Performance.EffectiveScanWorkers()).Scan(ctx, scanPath)
		if err != nil {
			return err
		}
		for _, w := range session.Warnings {
			plog.Warn("Scan warning", "path", w.Path, "error", w.Err)
			m.AddErrors(1)
		}

		hasher := fingerprint.NewHasher(cfg.Performance.ChunkSize(), cfg.Performance.WholeFileBudget())
		result, err = dupfind.Find(ctx, session, hasher, cache,
			cfg.Performance.EffectiveHashWorkers(), m)
		if err != nil {
			return err
		}

		keep = make(map[string]struct{}, len(session.Files))
		for k := range session.Files {
			keep[k] = struct{}{}
		}

		if !dryRun || outputJSON != "" {
			reportPath := outputJSON
			if reportPath == "" {
				reportPath = dupfind.DefaultReportName(start)
			}
			if err := dupfind.WriteReport(reportPath, result); err != nil {
				return err
			}
			plog.Info("Wrote duplicate report", "path", reportPath, "groups", len(result.Groups))
		}
	}

	var stats dupfind.DeleteStats
	if doDelete {
		stats, err = dupfind.Delete(ctx, result, cfg.Performance.EffectiveDeleteWorkers(), dryRun, m)
		if err != nil {
			return err
		}
	}

	// A completed scan is the only safe moment to drop entries for files
	// that no longer exist; an interrupted run must keep them.
	if cache != nil && keep != nil {
		if n := cache.PruneExcept(keep); n > 0 {
			plog.Info("Pruned stale cache entries", "count", n)
		}
		if err := cache.Flush(); err != nil {
			plog.Warn("Final cache flush failed", "error", err)
		}
	}

	m.Log()
	report.DuplicatesSummary{
		Root:        result.Root,
		TotalFiles:  result.TotalFiles,
		Candidates:  result.Candidates,
		GroupCount:  len(result.Groups),
		DoomedCount: result.DoomedCount(),
		WastedBytes: result.WastedBytes(),
		Deleted:     stats.Deleted,
		Reclaimed:   stats.Reclaimed,
		Errors:      m.Errors.Load(),
		DryRun:      dryRun,
		Duration:    time.Since(start),
	}.Print()

	return nil
}
