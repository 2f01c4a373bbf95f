package dupfind

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	gzip "github.com/klauspost/compress/gzip"
	"github.com/klauspost/pgzip"

	"github.com/dupsync/dupsync/pkg/fail"
	"github.com/dupsync/dupsync/pkg/fingerprint"
	"github.com/dupsync/dupsync/pkg/plog"
	"github.com/dupsync/dupsync/pkg/util"
)

// wireGroup is the persisted report shape. Files lists absolute paths with
// the kept member first; kept-first ordering is what makes a reloaded report
// produce the same deletion plan as a fresh scan.
type wireGroup struct {
	Digest    string   `json:"digest"`
	SizeBytes int64    `json:"size_bytes"`
	SizeHuman string   `json:"size_human"`
	Files     []string `json:"files"`
}

// DefaultReportName returns the report filename used when --output-json is
// not given.
func DefaultReportName(now time.Time) string {
	return "out_" + now.Format("20060102_150405") + ".json"
}

// WriteReport persists the duplicate groups as JSON, gzip-compressed when
// path ends in .gz. The write is atomic: temp file in the target directory,
// then rename.
func WriteReport(path string, r *Result) error {
	groups := make([]wireGroup, 0, len(r.Groups))
	for i := range r.Groups {
		g := &r.Groups[i]
		files := make([]string, 0, len(g.Members))
		for _, member := range g.Members {
			files = append(files, member.AbsPath)
		}
		groups = append(groups, wireGroup{
			Digest:    string(g.Digest),
			SizeBytes: g.Size,
			SizeHuman: humanize.IBytes(uint64(g.Size)),
			Files:     files,
		})
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".dupsync-report-*.tmp")
	if err != nil {
		return fail.Wrap(fail.KindIO, "create", path, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := encodeReport(tmp, path, groups); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fail.Wrap(fail.KindIO, "close", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fail.Wrap(fail.KindIO, "rename", path, err)
	}
	return nil
}

func encodeReport(w io.Writer, path string, groups []wireGroup) error {
	var out io.Writer = w
	var gz *pgzip.Writer
	if strings.HasSuffix(path, ".gz") {
		gz = pgzip.NewWriter(w)
		out = gz
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(groups); err != nil {
		if gz != nil {
			gz.Close()
		}
		return fail.Wrap(fail.KindIO, "encode", path, err)
	}
	if gz != nil {
		if err := gz.Close(); err != nil {
			return fail.Wrap(fail.KindIO, "compress", path, err)
		}
	}
	return nil
}

// LoadReport reads a previously written report and rebuilds the deletion
// plan against the current filesystem. Every listed file is re-stat'ed:
// vanished files are skipped with a warning, files whose size changed since
// the report are skipped too (their recorded digest is stale), and the
// retention rule is re-applied so the plan stays deterministic even if the
// report was edited by hand.
func LoadReport(path string) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fail.Wrap(fail.KindIO, "open", path, err)
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, fail.Wrap(fail.KindIO, "decompress", path, err)
		}
		defer gz.Close()
		r = gz
	}

	var groups []wireGroup
	if err := json.NewDecoder(r).Decode(&groups); err != nil {
		return nil, fail.Wrap(fail.KindIO, "decode", path, err)
	}

	result := &Result{}
	for _, wg := range groups {
		members := make([]Member, 0, len(wg.Files))
		for _, fp := range wg.Files {
			info, err := os.Lstat(fp)
			if err != nil {
				plog.Warn("Report entry no longer exists, skipping", "path", fp)
				continue
			}
			if !info.Mode().IsRegular() || info.Size() != wg.SizeBytes {
				plog.Warn("Report entry changed since report was written, skipping", "path", fp)
				continue
			}
			members = append(members, Member{
				AbsPath: fp,
				RelPath: util.NormalizePath(fp),
				Size:    info.Size(),
				ModTime: info.ModTime().UnixNano(),
			})
		}
		if len(members) < 2 {
			continue
		}
		orderByRetention(members)
		result.Groups = append(result.Groups, Group{
			Digest:  fingerprint.Digest(wg.Digest),
			Size:    wg.SizeBytes,
			Members: members,
		})
		result.TotalFiles += len(members)
		result.Candidates += len(members)
	}
	sortGroups(result.Groups)

	return result, nil
}
