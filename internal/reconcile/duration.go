package reconcile

import (
	"fmt"
	"time"
)

// FormatHoldingDuration renders a holding period as "HH:MM:SS", or
// "N day(s) HH:MM:SS" once it spans a full day.
func FormatHoldingDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	days := int(d / (24 * time.Hour))
	d -= time.Duration(days) * 24 * time.Hour
	hours := int(d / time.Hour)
	minutes := int(d/time.Minute) % 60
	seconds := int(d/time.Second) % 60

	clock := fmt.Sprintf("%02d:%02d:%02d", hours, minutes, seconds)
	switch {
	case days == 0:
		return clock
	case days == 1:
		return "1 day " + clock
	default:
		return fmt.Sprintf("%d days %s", days, clock)
	}
}
