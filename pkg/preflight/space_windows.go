//go:build windows

package preflight

import (
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/dupsync/dupsync/pkg/fail"
	"github.com/dustin/go-humanize"
)

// EnsureFreeSpace verifies the volume holding path has at least need bytes
// available to the current user.
func EnsureFreeSpace(path string, need uint64) error {
	p, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return fail.Wrap(fail.KindIO, "statfs", path, err)
	}
	var avail, total, free uint64
	r1, _, callErr := windows.NewLazySystemDLL("kernel32.dll").
		NewProc("GetDiskFreeSpaceExW").
		Call(uintptr(unsafe.Pointer(p)),
			uintptr(unsafe.Pointer(&avail)),
			uintptr(unsafe.Pointer(&total)),
			uintptr(unsafe.Pointer(&free)))
	if r1 == 0 {
		return fail.Wrap(fail.KindIO, "statfs", path, callErr)
	}
	if avail < need {
		return fail.Config("insufficient free space at %s: need %s, have %s",
			path, humanize.IBytes(need), humanize.IBytes(avail))
	}
	return nil
}
