// Package dupfind groups identical files and applies the retention rule.
//
// Detection is two-phase: a cheap size partition first, so a size bucket with
// a single file is dropped without ever reading content, then a digest pass
// over the surviving candidates. Files are duplicates only when both size and
// digest match. Within a group exactly one member is kept: the oldest by
// modification time, ties broken by the lexicographically smaller relative
// path. The rule is fixed so repeated runs over an unchanged tree always
// retain the same member.
package dupfind

import (
	"context"
	"sort"

	"github.com/dupsync/dupsync/pkg/fingerprint"
	"github.com/dupsync/dupsync/pkg/fpcache"
	"github.com/dupsync/dupsync/pkg/metrics"
	"github.com/dupsync/dupsync/pkg/plog"
	"github.com/dupsync/dupsync/pkg/scanner"
)

// Member is one file inside a duplicate group.
type Member struct {
	AbsPath string
	RelPath string
	Size    int64
	ModTime int64
}

// Group is a set of files with identical size and digest. Members is ordered
// by the retention rule: the kept member first, deletion candidates after.
type Group struct {
	Digest  fingerprint.Digest
	Size    int64
	Members []Member
}

// Kept returns the member retained by the retention rule.
func (g *Group) Kept() Member {
	return g.Members[0]
}

// Doomed returns the deletion candidates.
func (g *Group) Doomed() []Member {
	return g.Members[1:]
}

// WastedBytes is the space reclaimed by deleting every non-kept member.
func (g *Group) WastedBytes() int64 {
	return int64(len(g.Members)-1) * g.Size
}

// Result is the outcome of one detection run.
type Result struct {
	Root       string
	TotalFiles int
	// Candidates counts files that survived the size prefilter.
	Candidates int
	Groups     []Group
}

// WastedBytes sums the reclaimable space across all groups.
func (r *Result) WastedBytes() int64 {
	var total int64
	for i := range r.Groups {
		total += r.Groups[i].WastedBytes()
	}
	return total
}

// DoomedCount is the number of files the deletion plan would remove.
func (r *Result) DoomedCount() int {
	n := 0
	for i := range r.Groups {
		n += len(r.Groups[i].Members) - 1
	}
	return n
}

type groupKey struct {
	size   int64
	digest fingerprint.Digest
}

// Find detects duplicate groups in a scanned tree. Cached digests are reused
// when size and modification time still match; everything else is hashed on
// the bounded worker pool, and the cache is checkpointed as each digest
// completes so an interrupted run keeps its progress. Per-file hash failures
// are logged and drop the file from consideration; only cancellation aborts.
func Find(ctx context.Context, session *scanner.Session, hasher *fingerprint.Hasher,
	cache *fpcache.Cache, workers int, m metrics.Metrics) (*Result, error) {

	result := &Result{
		Root:       session.Root,
		TotalFiles: len(session.Files),
	}
	m.AddFilesScanned(int64(len(session.Files)))

	// Phase 1: size partition.
	bySize := make(map[int64][]scanner.FileRecord)
	for _, key := range session.SortedKeys() {
		rec := session.Files[key]
		bySize[rec.Size] = append(bySize[rec.Size], rec)
	}

	byAbs := make(map[string]scanner.FileRecord)
	digests := make(map[string]fingerprint.Digest)
	var toHash []string

	for _, recs := range bySize {
		if len(recs) < 2 {
			continue
		}
		result.Candidates += len(recs)
		for _, rec := range recs {
			byAbs[rec.AbsPath] = rec
			if d, ok := cache.Lookup(rec.RelPath, rec.Size, rec.ModTime); ok {
				digests[rec.AbsPath] = d
				m.AddCacheHits(1)
				continue
			}
			toHash = append(toHash, rec.AbsPath)
		}
	}
	sort.Strings(toHash)

	// Phase 2: digest the cache misses. The checkpoint callback runs on the
	// hash workers; cache.Upsert and Flush serialize internally.
	res, err := hasher.HashAll(ctx, toHash, workers, func(path string, d fingerprint.Digest) {
		rec := byAbs[path]
		m.AddFilesHashed(1)
		m.AddBytesHashed(rec.Size)
		cache.Upsert(rec.RelPath, rec.Size, rec.ModTime, d)
		if err := cache.Flush(); err != nil {
			plog.Warn("Cache checkpoint failed", "error", err)
		}
	})
	if err != nil {
		return nil, err
	}
	plog.Debug("Digest pass complete", "hashed", res.Digests.Count(), "failed", res.Errors.Count())
	res.Errors.Range(func(path string, ferr error) bool {
		plog.Warn("Failed to hash file", "path", path, "error", ferr)
		m.AddErrors(1)
		return true
	})
	res.Digests.Range(func(path string, d fingerprint.Digest) bool {
		digests[path] = d
		return true
	})

	// Phase 3: re-partition by (size, digest) and apply retention.
	buckets := make(map[groupKey][]Member)
	for abs, d := range digests {
		rec := byAbs[abs]
		k := groupKey{size: rec.Size, digest: d}
		buckets[k] = append(buckets[k], Member{
			AbsPath: rec.AbsPath,
			RelPath: rec.RelPath,
			Size:    rec.Size,
			ModTime: rec.ModTime,
		})
	}

	for k, members := range buckets {
		if len(members) < 2 {
			continue
		}
		orderByRetention(members)
		result.Groups = append(result.Groups, Group{
			Digest:  k.digest,
			Size:    k.size,
			Members: members,
		})
	}
	sortGroups(result.Groups)

	return result, nil
}

// orderByRetention sorts members so the kept file comes first: oldest
// modification time wins, ties broken by the smaller relative path.
func orderByRetention(members []Member) {
	sort.Slice(members, func(i, j int) bool {
		if members[i].ModTime != members[j].ModTime {
			return members[i].ModTime < members[j].ModTime
		}
		return members[i].RelPath < members[j].RelPath
	})
}

// sortGroups orders groups by wasted bytes descending, digest ascending, so
// report output is deterministic and the biggest wins come first.
func sortGroups(groups []Group) {
	sort.Slice(groups, func(i, j int) bool {
		wi, wj := groups[i].WastedBytes(), groups[j].WastedBytes()
		if wi != wj {
			return wi > wj
		}
		return groups[i].Digest < groups[j].Digest
	})
}
