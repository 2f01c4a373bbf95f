package dupfind

import (
	"context"
	"os"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/dupsync/dupsync/pkg/hints"
	"github.com/dupsync/dupsync/pkg/metrics"
	"github.com/dupsync/dupsync/pkg/plog"
)

// DeleteStats summarizes one deletion pass.
type DeleteStats struct {
	Deleted   int64
	Reclaimed int64
	Skipped   int64
}

// Delete removes every non-kept member of every group on a bounded worker
// pool. Deletions touch disjoint paths, so order between them is free. A
// member that vanished since the scan is a skip, not an error; permission
// failures are logged per file and never abort the batch. In dry-run mode the
// same plan is walked and logged with zero filesystem mutations.
func Delete(ctx context.Context, r *Result, workers int, dryRun bool, m metrics.Metrics) (DeleteStats, error) {
	var deleted, reclaimed, skipped atomic.Int64

	if workers < 1 {
		workers = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i := range r.Groups {
		group := &r.Groups[i]
		for _, member := range group.Doomed() {
			if gctx.Err() != nil {
				break
			}
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				if dryRun {
					plog.Notice("DEL (dry-run)", "path", member.AbsPath, "keeping", group.Kept().AbsPath)
					deleted.Add(1)
					reclaimed.Add(member.Size)
					return nil
				}
				if err := removeDoomed(member.AbsPath); err != nil {
					if hints.IsHint(err) {
						plog.Info("File already gone", "path", member.AbsPath)
						skipped.Add(1)
						return nil
					}
					plog.Warn("Failed to delete duplicate", "path", member.AbsPath, "error", err)
					m.AddErrors(1)
					skipped.Add(1)
					return nil
				}
				plog.Notice("DEL", "path", member.AbsPath, "keeping", group.Kept().AbsPath)
				m.AddFilesDeleted(1)
				deleted.Add(1)
				reclaimed.Add(member.Size)
				return nil
			})
		}
	}

	err := g.Wait()
	stats := DeleteStats{
		Deleted:   deleted.Load(),
		Reclaimed: reclaimed.Load(),
		Skipped:   skipped.Load(),
	}
	if err != nil {
		return stats, err
	}
	// The group context is canceled once Wait returns; only the caller's
	// context decides whether the run was cut short.
	return stats, ctx.Err()
}

// removeDoomed deletes one file, mapping "already gone" to a hint so the
// caller can treat it as an ignorable outcome.
func removeDoomed(path string) error {
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return hints.Wrap(err)
		}
		return err
	}
	return nil
}
