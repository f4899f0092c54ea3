package utils

import "time"

// NowUTC stamps persisted and reported times. It carries no monotonic
// reading, so in-process interval clocks use time.Now instead.
func NowUTC() time.Time {
	return time.Now().UTC()
}

// Later returns whichever of a and b is later.
func Later(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}
