//go:build windows

package disk

import (
	"os"
	"syscall"
	"time"
)

// createdTime extracts the creation time on Windows.
func createdTime(info os.FileInfo) time.Time {
	data, ok := info.Sys().(*syscall.Win32FileAttributeData)
	if !ok {
		return time.Time{}
	}
	return time.Unix(0, data.CreationTime.Nanoseconds())
}
