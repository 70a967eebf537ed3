package reconcile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatHoldingDuration(t *testing.T) {
	cases := []struct {
		name string
		d    time.Duration
		want string
	}{
		{"zero", 0, "00:00:00"},
		{"negative clamps to zero", -time.Hour, "00:00:00"},
		{"intraday", 2*time.Hour + 5*time.Minute + 9*time.Second, "02:05:09"},
		{"single day", 26*time.Hour + 30*time.Minute, "1 day 02:30:00"},
		{"multi day", 50*time.Hour + 30*time.Minute + 15*time.Second, "2 days 02:30:15"},
		{"sub-second truncates", 1500 * time.Millisecond, "00:00:01"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, FormatHoldingDuration(tc.d))
		})
	}
}
