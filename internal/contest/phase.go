// Package contest holds the contest clock.
package contest

import "time"

// Phase is a contest's position on its schedule. It is never stored,
// only recomputed from the clock.
type Phase string

const (
	PhaseUpcoming Phase = "Upcoming"
	PhaseRunning  Phase = "Running"
	PhaseEnded    Phase = "Ended"
)

// PhaseAt reports the phase at now. Both bounds are inclusive: a submission
// stamped exactly at end is still accepted.
func PhaseAt(now, start, end time.Time) Phase {
	switch {
	case now.Before(start):
		return PhaseUpcoming
	case now.After(end):
		return PhaseEnded
	default:
		return PhaseRunning
	}
}

// Elapsed returns the whole minutes between start and at, floored at zero.
func Elapsed(start, at time.Time) int64 {
	if at.Before(start) {
		return 0
	}
	return int64(at.Sub(start) / time.Minute)
}
