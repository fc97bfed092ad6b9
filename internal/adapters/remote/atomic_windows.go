//go:build windows

package remote

import (
	"io/fs"
	"os"
)

// atomicWriteFile writes data then renames into place. Windows lacks the
// POSIX rename guarantees renameio relies on, so this is best effort.
func atomicWriteFile(path string, data []byte, perm fs.FileMode) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, perm); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
