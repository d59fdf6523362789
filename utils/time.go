// Package utils provides utility functions for the fleet charging optimizer.
package utils //nolint:revive // utils is a common and acceptable package name

import "time"

// Midnight truncates a time to 00:00 in its own location.
func Midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// DaysBetween returns the number of whole days from start to end,
// both truncated to midnight in their own location first.
func DaysBetween(start, end time.Time) int {
	return int(Midnight(end).Sub(Midnight(start)).Hours() / 24)
}
