//go:build unix

package disk

import (
	"os"
	"syscall"
	"time"
)

// createdTime extracts the creation time where the platform reports one.
func createdTime(info os.FileInfo) time.Time {
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return time.Time{}
	}
	return extractBirthTime(stat)
}
