// Package preflight validates the environment before a run starts. The
// checks fail fast with actionable errors instead of letting a scan or copy
// pool discover the problem halfway through.
package preflight

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/dupsync/dupsync/pkg/fail"
)

// CheckSourceDir verifies the scan or sync source exists and is a directory.
func CheckSourceDir(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fail.Config("source directory does not exist: %s", path)
		}
		return fail.Wrap(fail.KindIO, "stat", path, err)
	}
	if !info.IsDir() {
		return fail.Config("source path is not a directory: %s", path)
	}
	return nil
}

// CheckDestRoot verifies the sync destination is usable: the path (or its
// nearest existing ancestor) must be a directory we can create files in. The
// directory is created if missing and probed with a throwaway write.
func CheckDestRoot(path string) error {
	info, err := os.Stat(path)
	switch {
	case os.IsNotExist(err):
		parent := filepath.Dir(path)
		if _, perr := os.Stat(parent); perr != nil {
			if os.IsNotExist(perr) {
				return fail.Config("destination and its parent directory do not exist: %s", parent)
			}
			return fail.Wrap(fail.KindIO, "stat", parent, perr)
		}
	case err != nil:
		return fail.Wrap(fail.KindIO, "stat", path, err)
	case !info.IsDir():
		return fail.Config("destination path is not a directory: %s", path)
	}

	if err := os.MkdirAll(path, 0755); err != nil {
		return fail.Wrap(fail.KindIO, "mkdir", path, err)
	}

	probe := filepath.Join(path, ".dupsync-writetest.tmp")
	f, err := os.Create(probe)
	if err != nil {
		return fail.Wrap(fail.KindPermission, "write", path, err)
	}
	f.Close()
	_ = os.Remove(probe)
	return nil
}

// CheckNotNested rejects a destination inside the source tree (and the
// reverse). Syncing into a subtree of what is being scanned would feed the
// scanner its own output.
func CheckNotNested(source, dest string) error {
	absSrc, err := filepath.Abs(source)
	if err != nil {
		return fail.Wrap(fail.KindIO, "resolve", source, err)
	}
	absDst, err := filepath.Abs(dest)
	if err != nil {
		return fail.Wrap(fail.KindIO, "resolve", dest, err)
	}
	if absSrc == absDst {
		return fail.Config("source and destination are the same directory: %s", absSrc)
	}
	sep := string(filepath.Separator)
	if strings.HasPrefix(absDst+sep, absSrc+sep) {
		return fail.Config("destination %s is inside source %s", absDst, absSrc)
	}
	if strings.HasPrefix(absSrc+sep, absDst+sep) {
		return fail.Config("source %s is inside destination %s", absSrc, absDst)
	}
	return nil
}

// CheckCacheFile verifies the cache path is usable: the parent directory must
// exist, and if the file exists it must be a regular file.
func CheckCacheFile(path string) error {
	dir := filepath.Dir(path)
	if info, err := os.Stat(dir); err != nil {
		if os.IsNotExist(err) {
			return fail.Config("cache directory does not exist: %s", dir)
		}
		return fail.Wrap(fail.KindIO, "stat", dir, err)
	} else if !info.IsDir() {
		return fail.Config("cache parent is not a directory: %s", dir)
	}

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fail.Wrap(fail.KindIO, "stat", path, err)
	}
	if info.IsDir() {
		return fail.Config("cache path is a directory: %s", path)
	}
	return nil
}
