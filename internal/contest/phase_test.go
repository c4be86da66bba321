package contest

import (
	"testing"
	"time"
)

func TestPhaseAt(t *testing.T) {
	start := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	end := start.Add(2 * time.Hour)
	cases := []struct {
		name string
		now  time.Time
		want Phase
	}{
		{"before", start.Add(-time.Nanosecond), PhaseUpcoming},
		{"at start", start, PhaseRunning},
		{"middle", start.Add(time.Hour), PhaseRunning},
		{"at end", end, PhaseRunning},
		{"after", end.Add(time.Nanosecond), PhaseEnded},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := PhaseAt(tc.now, start, end); got != tc.want {
				t.Fatalf("PhaseAt = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestElapsed(t *testing.T) {
	start := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	if got := Elapsed(start, start.Add(40*time.Minute+59*time.Second)); got != 40 {
		t.Fatalf("Elapsed = %d, want 40", got)
	}
	if got := Elapsed(start, start.Add(-time.Minute)); got != 0 {
		t.Fatalf("Elapsed before start = %d", got)
	}
}
