package utils

import (
	"fmt"
	"time"
)

// Millis converts a duration to whole milliseconds, clamped at zero.
func Millis(d time.Duration) int64 {
	if d < 0 {
		return 0
	}
	return d.Milliseconds()
}

// FormatMillis renders a millisecond count for human-readable output,
// switching to seconds above one second.
func FormatMillis(ms int64) string {
	if ms < 0 {
		ms = 0
	}
	if ms < 1000 {
		return fmt.Sprintf("%dms", ms)
	}
	return fmt.Sprintf("%.1fs", float64(ms)/1000.0)
}
