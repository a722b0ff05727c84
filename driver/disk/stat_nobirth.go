//go:build unix && !darwin

package disk

import (
	"syscall"
	"time"
)

// extractBirthTime returns the zero time: the standard Stat_t carries no
// birth time outside of macOS.
func extractBirthTime(*syscall.Stat_t) time.Time {
	return time.Time{}
}
