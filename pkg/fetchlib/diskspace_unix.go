//go:build !windows

package fetchlib

import (
	"fmt"
	"syscall"

	"github.com/spf13/afero"
)

// checkDiskSpace verifies that the filesystem behind path has room for
// requiredBytes before a download starts writing there. Non-OS
// filesystems (in-memory test fs) and unreadable mounts are skipped:
// better to try and fail later than to block a download on a bad stat.
func checkDiskSpace(fs afero.Fs, path string, requiredBytes int64) error {
	if requiredBytes <= 0 {
		return nil
	}
	if _, ok := fs.(*afero.OsFs); !ok {
		return nil
	}

	var stat syscall.Statfs_t
	err := syscall.Statfs(path, &stat)
	if err != nil {
		return nil
	}

	// Bavail is available blocks for unprivileged users
	availableBytes := int64(stat.Bavail) * int64(stat.Bsize)

	if availableBytes < requiredBytes {
		return fmt.Errorf("%w: required space %s, available space %s",
			ErrInsufficientDiskSpace,
			ByteCount(requiredBytes),
			ByteCount(availableBytes))
	}
	return nil
}
