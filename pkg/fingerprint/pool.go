package fingerprint

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/dupsync/dupsync/pkg/sharded"
)

// Results holds the outcome of a pooled digest run. Digests and Errors are
// keyed by the path given to HashAll; every input path appears in exactly one
// of the two maps (unless the run was canceled).
type Results struct {
	Digests *sharded.Map[Digest]
	Errors  *sharded.Map[error]
}

// HashAll digests every path on a bounded CPU worker pool and returns when
// the pool has fully drained. That return is the synchronization barrier the
// callers rely on: no digest is half-computed once grouping or planning
// starts. Per-file failures land in Results.Errors and never abort the run;
// only context cancellation produces a non-nil error.
//
// onDigest, when non-nil, is invoked from the worker that finished each file
// and must be safe for concurrent use. Callers use it to checkpoint the
// fingerprint cache as digests complete instead of at end-of-run.
func (h *Hasher) HashAll(ctx context.Context, paths []string, workers int, onDigest func(path string, d Digest)) (*Results, error) {
	res := &Results{
		Digests: sharded.NewMap[Digest](),
		Errors:  sharded.NewMap[error](),
	}
	if len(paths) == 0 {
		return res, nil
	}
	if workers < 1 {
		workers = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for _, path := range paths {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			d, err := h.File(path)
			if err != nil {
				res.Errors.Store(path, err)
				return nil
			}
			res.Digests.Store(path, d)
			if onDigest != nil {
				onDigest(path, d)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return res, err
	}
	// The group context is canceled once Wait returns; only the caller's
	// context decides whether the run was cut short.
	return res, ctx.Err()
}
