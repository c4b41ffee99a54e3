package util

import (
	"fmt"
	"time"
)

// FormatTrackLength renders a millisecond track length as "m:ss" or
// "h:mm:ss" for tracks over an hour.
//
// Parameters:
// - ms: track length in milliseconds.
//
// Returns:
// - A formatted length string, or "live" for streams (ms <= 0).
func FormatTrackLength(ms int64) string {
	if ms <= 0 {
		return "live"
	}

	d := time.Duration(ms) * time.Millisecond
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60

	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}
