// Package eligibility implements the cancellation-penalty policy: a persona
// with too many cancelled turnos inside a trailing window may not book new
// ones. The functions are pure; the persisted habilitado flag is a cache the
// caller refreshes from their results.
package eligibility

import "time"

const (
	// Window is the trailing period over which cancellations count.
	// Bounding the penalty avoids permanent lockout while still
	// discouraging chronic no-shows.
	Window = 180 * 24 * time.Hour

	// MaxCancellations is the count at which a persona becomes ineligible.
	MaxCancellations = 5
)

// WindowStart returns the beginning of the trailing penalty window ending at now.
func WindowStart(now time.Time) time.Time {
	return now.Add(-Window)
}

// Eligible reports whether a persona with the given number of cancellations
// inside the window may book.
func Eligible(cancelledInWindow int) bool {
	return cancelledInWindow < MaxCancellations
}

// CountInWindow counts the fechas that fall inside [WindowStart(now), now].
func CountInWindow(fechas []time.Time, now time.Time) int {
	start := WindowStart(now)
	n := 0
	for _, f := range fechas {
		if !f.Before(start) && !f.After(now) {
			n++
		}
	}
	return n
}
