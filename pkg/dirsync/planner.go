// Package dirsync plans and executes one-way directory synchronization.
//
// The planner compares a source scan against a destination scan and emits an
// immutable action list: Copy for files that are missing or changed, Skip for
// files already up to date. Files that exist only in the destination produce
// no action; one-way sync never deletes from the destination. The executor
// then runs the Copy actions on a bounded I/O pool, writing each file to a
// temporary path and renaming it into place so the destination never exposes
// a half-written file.
package dirsync

import (
	"context"
	"sort"
	"time"

	"github.com/dupsync/dupsync/pkg/fingerprint"
	"github.com/dupsync/dupsync/pkg/fpcache"
	"github.com/dupsync/dupsync/pkg/metrics"
	"github.com/dupsync/dupsync/pkg/plog"
	"github.com/dupsync/dupsync/pkg/scanner"
)

// Kind discriminates planned actions.
type Kind int

const (
	// ActionCopy transfers the source file to the destination.
	ActionCopy Kind = iota
	// ActionSkip leaves the destination file untouched.
	ActionSkip
)

// Skip reasons, recorded for the log and the run summary.
const (
	ReasonMissing   = "missing in destination"
	ReasonSizeDiff  = "size differs"
	ReasonModTime   = "modified time differs"
	ReasonContent   = "content differs"
	ReasonUnchanged = "unchanged"
	ReasonVerified  = "content verified"
)

// Action is one planned operation. Never mutated after planning.
type Action struct {
	Kind   Kind
	Record scanner.FileRecord
	// Reason explains a Skip, or why a Copy was deemed necessary.
	Reason string
}

// Plan is the immutable output of one planning pass, ordered by relative
// path so logs and dry-run output are deterministic.
type Plan struct {
	Actions   []Action
	CopyCount int
	SkipCount int
	// CopyBytes is the total payload of all planned copies.
	CopyBytes int64
}

// Planner compares scans in either shallow or deep mode.
type Planner struct {
	cache  *fpcache.Cache
	hasher *fingerprint.Hasher
	// deep forces content comparison for same-size pairs instead of
	// trusting size plus modification time.
	deep bool
	// window is the modification time tolerance for shallow comparison,
	// absorbing filesystem timestamp granularity differences.
	window      time.Duration
	hashWorkers int
	metrics     metrics.Metrics
}

// NewPlanner creates a planner. window applies to shallow mode only.
func NewPlanner(cache *fpcache.Cache, hasher *fingerprint.Hasher, deep bool,
	window time.Duration, hashWorkers int, m metrics.Metrics) *Planner {
	return &Planner{
		cache:       cache,
		hasher:      hasher,
		deep:        deep,
		window:      window,
		hashWorkers: hashWorkers,
		metrics:     m,
	}
}

// Build computes the action list for syncing src into dst.
//
// Per relative path: only in source means Copy; in both, shallow mode skips
// when size matches and modification times agree within the window, while
// deep mode compares digests for same-size pairs. The source digest comes
// from the cache when size and modification time still match the entry,
// otherwise it is recomputed; the destination is always hashed fresh, which
// is what lets deep mode catch silent corruption. All required digests are
// computed in one pooled pass before any pair is judged.
func (p *Planner) Build(ctx context.Context, src, dst *scanner.Session) (*Plan, error) {
	keys := src.SortedKeys()

	var srcToHash, dstToHash []string
	srcByAbs := make(map[string]scanner.FileRecord)

	if p.deep {
		for _, key := range keys {
			srcRec := src.Files[key]
			dstRec, inDst := dst.Files[key]
			if !inDst || srcRec.Size != dstRec.Size {
				continue
			}
			dstToHash = append(dstToHash, dstRec.AbsPath)
			if _, ok := p.cache.Lookup(key, srcRec.Size, srcRec.ModTime); !ok {
				srcToHash = append(srcToHash, srcRec.AbsPath)
				srcByAbs[srcRec.AbsPath] = srcRec
			} else {
				p.metrics.AddCacheHits(1)
			}
		}
	}

	var digests *fingerprint.Results
	if len(srcToHash)+len(dstToHash) > 0 {
		all := make([]string, 0, len(srcToHash)+len(dstToHash))
		all = append(all, srcToHash...)
		all = append(all, dstToHash...)

		// Checkpoint only source digests: cache entries describe the source
		// tree, and destination digests are throwaway verification input.
		res, err := p.hasher.HashAll(ctx, all, p.hashWorkers, func(path string, d fingerprint.Digest) {
			p.metrics.AddFilesHashed(1)
			rec, isSrc := srcByAbs[path]
			if !isSrc {
				return
			}
			p.metrics.AddBytesHashed(rec.Size)
			p.cache.Upsert(rec.RelPath, rec.Size, rec.ModTime, d)
			if err := p.cache.Flush(); err != nil {
				plog.Warn("Cache checkpoint failed", "error", err)
			}
		})
		if err != nil {
			return nil, err
		}
		digests = res
	}

	plan := &Plan{}
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		srcRec := src.Files[key]
		dstRec, inDst := dst.Files[key]

		action := p.judge(key, srcRec, dstRec, inDst, digests)
		if action.Kind == ActionCopy {
			plan.CopyCount++
			plan.CopyBytes += srcRec.Size
		} else {
			plan.SkipCount++
		}
		plan.Actions = append(plan.Actions, action)
	}

	sort.Slice(plan.Actions, func(i, j int) bool {
		return plan.Actions[i].Record.RelPath < plan.Actions[j].Record.RelPath
	})
	return plan, nil
}

func (p *Planner) judge(key string, srcRec, dstRec scanner.FileRecord, inDst bool,
	digests *fingerprint.Results) Action {

	if !inDst {
		return Action{Kind: ActionCopy, Record: srcRec, Reason: ReasonMissing}
	}
	if srcRec.Size != dstRec.Size {
		return Action{Kind: ActionCopy, Record: srcRec, Reason: ReasonSizeDiff}
	}

	if !p.deep {
		diff := time.Duration(srcRec.ModTime - dstRec.ModTime)
		if diff < 0 {
			diff = -diff
		}
		if diff <= p.window {
			return Action{Kind: ActionSkip, Record: srcRec, Reason: ReasonUnchanged}
		}
		return Action{Kind: ActionCopy, Record: srcRec, Reason: ReasonModTime}
	}

	srcDigest, srcOK := p.cache.Lookup(key, srcRec.Size, srcRec.ModTime)
	if !srcOK && digests != nil {
		srcDigest, srcOK = digests.Digests.Load(srcRec.AbsPath)
	}
	var dstDigest fingerprint.Digest
	dstOK := false
	if digests != nil {
		dstDigest, dstOK = digests.Digests.Load(dstRec.AbsPath)
	}

	// A failed hash on either side means the pair cannot be proven equal;
	// copying is the safe outcome and surfaces the I/O problem if it
	// persists.
	if !srcOK || !dstOK {
		plog.Warn("Digest unavailable, copying to be safe", "path", key)
		return Action{Kind: ActionCopy, Record: srcRec, Reason: ReasonContent}
	}
	if srcDigest == dstDigest {
		return Action{Kind: ActionSkip, Record: srcRec, Reason: ReasonVerified}
	}
	return Action{Kind: ActionCopy, Record: srcRec, Reason: ReasonContent}
}
