//go:build !windows

package preflight

import (
	"github.com/dustin/go-humanize"
	"golang.org/x/sys/unix"

	"github.com/dupsync/dupsync/pkg/fail"
)

// EnsureFreeSpace verifies the filesystem holding path has at least need
// bytes available to the current user.
func EnsureFreeSpace(path string, need uint64) error {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return fail.Wrap(fail.KindIO, "statfs", path, err)
	}
	avail := st.Bavail * uint64(st.Bsize)
	if avail < need {
		return fail.Config("insufficient free space at %s: need %s, have %s",
			path, humanize.IBytes(need), humanize.IBytes(avail))
	}
	return nil
}
