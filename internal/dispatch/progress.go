package dispatch

import (
	"fmt"
	"time"
)

// FormatDuration renders a duration the way the progress line expects:
// "12.3s", "5m12s", "1h5m".
func FormatDuration(d time.Duration) string {
	seconds := d.Seconds()
	switch {
	case seconds < 60:
		return fmt.Sprintf("%.1fs", seconds)
	case seconds < 3600:
		return fmt.Sprintf("%dm%ds", int(seconds)/60, int(seconds)%60)
	default:
		return fmt.Sprintf("%dh%dm", int(seconds)/3600, (int(seconds)%3600)/60)
	}
}
