package dupfind

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/dupsync/dupsync/pkg/fingerprint"
	"github.com/dupsync/dupsync/pkg/fpcache"
	"github.com/dupsync/dupsync/pkg/metrics"
	"github.com/dupsync/dupsync/pkg/scanner"
)

func mustWrite(t *testing.T, path string, data []byte, mtime time.Time) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}
	if !mtime.IsZero() {
		if err := os.Chtimes(path, mtime, mtime); err != nil {
			t.Fatal(err)
		}
	}
}

func findIn(t *testing.T, root string) *Result {
	t.Helper()
	session, err := scanner.New(4).Scan(context.Background(), root)
	if err != nil {
		t.Fatal(err)
	}
	hasher := fingerprint.NewHasher(4*1024, 0)
	cache := fpcache.New(filepath.Join(t.TempDir(), "cache.json"))
	result, err := Find(context.Background(), session, hasher, cache, 4, &metrics.NoopMetrics{})
	if err != nil {
		t.Fatal(err)
	}
	return result
}

func TestFindGroupsIdenticalContent(t *testing.T) {
	root := t.TempDir()
	now := time.Now()
	mustWrite(t, filepath.Join(root, "one.txt"), []byte("same payload"), now)
	mustWrite(t, filepath.Join(root, "sub", "two.txt"), []byte("same payload"), now)
	mustWrite(t, filepath.Join(root, "three.txt"), []byte("different"), now)

	result := findIn(t, root)
	if len(result.Groups) != 1 {
		t.Fatalf("got %d groups; want 1", len(result.Groups))
	}
	g := result.Groups[0]
	if len(g.Members) != 2 {
		t.Fatalf("group has %d members; want 2", len(g.Members))
	}
	if g.WastedBytes() != int64(len("same payload")) {
		t.Errorf("WastedBytes = %d; want %d", g.WastedBytes(), len("same payload"))
	}
}

func TestNoFalseDuplicatesOnEqualSize(t *testing.T) {
	root := t.TempDir()
	// Same size, different content: the size prefilter keeps both as
	// candidates, the digest must separate them.
	mustWrite(t, filepath.Join(root, "a.bin"), []byte("AAAAAAAA"), time.Time{})
	mustWrite(t, filepath.Join(root, "b.bin"), []byte("BBBBBBBB"), time.Time{})

	result := findIn(t, root)
	if len(result.Groups) != 0 {
		t.Errorf("got %d groups for distinct content of equal size; want 0", len(result.Groups))
	}
	if result.Candidates != 2 {
		t.Errorf("Candidates = %d; want 2 (size prefilter keeps both)", result.Candidates)
	}
}

func TestSingletonSizesAreNeverHashed(t *testing.T) {
	root := t.TempDir()
	mustWrite(t, filepath.Join(root, "a"), []byte("x"), time.Time{})
	mustWrite(t, filepath.Join(root, "b"), []byte("yy"), time.Time{})
	mustWrite(t, filepath.Join(root, "c"), []byte("zzz"), time.Time{})

	result := findIn(t, root)
	if result.Candidates != 0 {
		t.Errorf("Candidates = %d; want 0 when every size is unique", result.Candidates)
	}
}

func TestRetentionOldestWins(t *testing.T) {
	root := t.TempDir()
	older := time.Now().Add(-2 * time.Hour).Truncate(time.Second)
	newer := time.Now().Truncate(time.Second)
	// The older file has the lexicographically larger name, so the test
	// proves age beats path order.
	mustWrite(t, filepath.Join(root, "b.txt"), []byte("payload"), older)
	mustWrite(t, filepath.Join(root, "a.txt"), []byte("payload"), newer)

	result := findIn(t, root)
	if len(result.Groups) != 1 {
		t.Fatalf("got %d groups; want 1", len(result.Groups))
	}
	if kept := result.Groups[0].Kept(); kept.RelPath != "b.txt" {
		t.Errorf("kept = %q; want b.txt (oldest wins)", kept.RelPath)
	}
	doomed := result.Groups[0].Doomed()
	if len(doomed) != 1 || doomed[0].RelPath != "a.txt" {
		t.Errorf("doomed = %v; want [a.txt]", doomed)
	}
}

func TestRetentionTieBreaksOnPath(t *testing.T) {
	root := t.TempDir()
	same := time.Now().Truncate(time.Second)
	mustWrite(t, filepath.Join(root, "zebra.txt"), []byte("payload"), same)
	mustWrite(t, filepath.Join(root, "alpha.txt"), []byte("payload"), same)

	result := findIn(t, root)
	if len(result.Groups) != 1 {
		t.Fatalf("got %d groups; want 1", len(result.Groups))
	}
	if kept := result.Groups[0].Kept(); kept.RelPath != "alpha.txt" {
		t.Errorf("kept = %q; want alpha.txt (lexicographic tie-break)", kept.RelPath)
	}
}

func TestFindIsDeterministic(t *testing.T) {
	root := t.TempDir()
	mtime := time.Now().Truncate(time.Second)
	for _, name := range []string{"a", "b", "c", "d"} {
		mustWrite(t, filepath.Join(root, name+".dup"), []byte("dup content"), mtime)
	}
	mustWrite(t, filepath.Join(root, "other1"), []byte("other data A"), mtime)
	mustWrite(t, filepath.Join(root, "other2"), []byte("other data B"), mtime)

	first := findIn(t, root)
	second := findIn(t, root)
	if !reflect.DeepEqual(first.Groups, second.Groups) {
		t.Errorf("repeated runs differ:\nfirst:  %+v\nsecond: %+v", first.Groups, second.Groups)
	}
}

func TestFindUsesCachedDigests(t *testing.T) {
	root := t.TempDir()
	mtime := time.Now().Truncate(time.Second)
	mustWrite(t, filepath.Join(root, "a"), []byte("cached content"), mtime)
	mustWrite(t, filepath.Join(root, "b"), []byte("cached content"), mtime)

	session, err := scanner.New(2).Scan(context.Background(), root)
	if err != nil {
		t.Fatal(err)
	}
	cache := fpcache.New(filepath.Join(t.TempDir(), "cache.json"))
	hasher := fingerprint.NewHasher(1024, 0)

	m1 := &metrics.RunMetrics{}
	if _, err := Find(context.Background(), session, hasher, cache, 2, m1); err != nil {
		t.Fatal(err)
	}
	if m1.FilesHashed.Load() != 2 {
		t.Fatalf("first run hashed %d files; want 2", m1.FilesHashed.Load())
	}

	// Second run over the same unchanged tree: every digest comes from the
	// cache, nothing is re-hashed.
	m2 := &metrics.RunMetrics{}
	result, err := Find(context.Background(), session, hasher, cache, 2, m2)
	if err != nil {
		t.Fatal(err)
	}
	if m2.FilesHashed.Load() != 0 {
		t.Errorf("second run hashed %d files; want 0", m2.FilesHashed.Load())
	}
	if m2.CacheHits.Load() != 2 {
		t.Errorf("second run cache hits = %d; want 2", m2.CacheHits.Load())
	}
	if len(result.Groups) != 1 {
		t.Errorf("cached run found %d groups; want 1", len(result.Groups))
	}
}

func TestFindNilErrorAfterHashing(t *testing.T) {
	root := t.TempDir()
	mtime := time.Now().Truncate(time.Second)
	mustWrite(t, filepath.Join(root, "one"), []byte("payload"), mtime)
	mustWrite(t, filepath.Join(root, "two"), []byte("payload"), mtime)

	session, err := scanner.New(2).Scan(context.Background(), root)
	if err != nil {
		t.Fatal(err)
	}
	cache := fpcache.New(filepath.Join(t.TempDir(), "cache.json"))
	hasher := fingerprint.NewHasher(1024, 0)
	m := &metrics.RunMetrics{}

	result, err := Find(context.Background(), session, hasher, cache, 2, m)
	if err != nil {
		t.Fatalf("Find returned %v after a completed run; want nil", err)
	}
	if m.FilesHashed.Load() != 2 {
		t.Fatalf("hashed %d files; want 2 (the pool must have done work)", m.FilesHashed.Load())
	}
	if len(result.Groups) != 1 {
		t.Errorf("got %d groups; want 1", len(result.Groups))
	}
}

func TestGroupsSortedByWastedBytes(t *testing.T) {
	root := t.TempDir()
	mtime := time.Now().Truncate(time.Second)
	big := make([]byte, 8192)
	for _, name := range []string{"big1", "big2"} {
		mustWrite(t, filepath.Join(root, name), big, mtime)
	}
	for _, name := range []string{"small1", "small2"} {
		mustWrite(t, filepath.Join(root, name), []byte("small"), mtime)
	}

	result := findIn(t, root)
	if len(result.Groups) != 2 {
		t.Fatalf("got %d groups; want 2", len(result.Groups))
	}
	if result.Groups[0].Size != 8192 {
		t.Errorf("first group size = %d; want the biggest waste first", result.Groups[0].Size)
	}
	if result.WastedBytes() != 8192+int64(len("small")) {
		t.Errorf("WastedBytes = %d; want %d", result.WastedBytes(), 8192+len("small"))
	}
}
