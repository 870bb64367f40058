//go:build !linux && !darwin && !freebsd

package sensors

import "errors"

func statfs(string) (diskStats, error) {
	return diskStats{}, errors.New("filesystem statistics are not supported on this platform")
}
