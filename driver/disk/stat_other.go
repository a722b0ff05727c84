//go:build !unix && !windows

package disk

import (
	"os"
	"time"
)

func createdTime(os.FileInfo) time.Time {
	return time.Time{}
}
