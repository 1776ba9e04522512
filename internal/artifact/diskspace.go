//go:build !windows

package artifact

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// DiskSpace holds free and total bytes for the filesystem backing the store.
type DiskSpace struct {
	Free  uint64 `json:"free"`
	Total uint64 `json:"total"`
}

// FreeSpace reports disk usage for the store's data root. The ingest path
// uses it as a pre-flight check before accepting an upload.
func (s *Store) FreeSpace() (DiskSpace, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(s.root, &st); err != nil {
		return DiskSpace{}, fmt.Errorf("artifact: statfs %s: %w", s.root, err)
	}
	return DiskSpace{
		Free:  st.Bavail * uint64(st.Bsize),
		Total: st.Blocks * uint64(st.Bsize),
	}, nil
}
