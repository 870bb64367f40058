//go:build linux || darwin || freebsd

package sensors

import "golang.org/x/sys/unix"

func statfs(path string) (diskStats, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return diskStats{}, err
	}
	bsize := uint64(st.Bsize)
	return diskStats{
		Total:     uint64(st.Blocks) * bsize,
		Available: uint64(st.Bavail) * bsize,
		Used:      (uint64(st.Blocks) - uint64(st.Bfree)) * bsize,
	}, nil
}
