package eligibility

import (
	"testing"
	"time"
)

func TestEligible_Threshold(t *testing.T) {
	for count, want := range map[int]bool{0: true, 4: true, 5: false, 9: false} {
		if got := Eligible(count); got != want {
			t.Errorf("Eligible(%d) = %v, want %v", count, got, want)
		}
	}
}

func TestCountInWindow_Boundaries(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	start := WindowStart(now)

	fechas := []time.Time{
		start,                     // exactly at the window start: counted
		start.Add(-time.Hour),     // just before: not counted
		now,                       // now: counted
		now.Add(24 * time.Hour),   // future: not counted
		now.Add(-90 * 24 * time.Hour), // inside
	}
	if got := CountInWindow(fechas, now); got != 3 {
		t.Fatalf("CountInWindow = %d, want 3", got)
	}
}

func TestCountInWindow_Idempotent(t *testing.T) {
	now := time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)
	fechas := []time.Time{now.Add(-24 * time.Hour), now.Add(-48 * time.Hour)}
	first := CountInWindow(fechas, now)
	second := CountInWindow(fechas, now)
	if first != second {
		t.Fatalf("recomputation changed the result: %d then %d", first, second)
	}
}
