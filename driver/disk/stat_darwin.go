//go:build darwin

package disk

import (
	"syscall"
	"time"
)

// extractBirthTime extracts the birth time (creation time) on macOS.
func extractBirthTime(stat *syscall.Stat_t) time.Time {
	return time.Unix(stat.Birthtimespec.Sec, stat.Birthtimespec.Nsec)
}
