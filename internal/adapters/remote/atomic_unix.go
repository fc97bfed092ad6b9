//go:build !windows

package remote

import (
	"io/fs"

	"github.com/google/renameio/v2"
)

// atomicWriteFile writes data to path atomically via a rename, so readers
// never observe a partially written control file.
func atomicWriteFile(path string, data []byte, perm fs.FileMode) error {
	return renameio.WriteFile(path, data, perm)
}
