//go:build windows

package fetchlib

import "github.com/spf13/afero"

// checkDiskSpace is a no-op on platforms without a statfs syscall
// wrapper; the download fails later if the disk fills up.
func checkDiskSpace(fs afero.Fs, path string, requiredBytes int64) error {
	return nil
}
