package model

import "time"

// ProblemResult is a participant's best result on one problem.
type ProblemResult struct {
	BestScore int64 `json:"best_score"`
	Attempts  int   `json:"attempts"`
	// WrongAttempts counts non-AC attempts before the first AC.
	WrongAttempts int        `json:"wrong_attempts"`
	SolvedAt      *time.Time `json:"solved_at,omitempty"`
}

// Solved reports whether the problem received an AC.
func (r ProblemResult) Solved() bool {
	return r.SolvedAt != nil
}

// Standing is one participant's row on a contest leaderboard.
// Rank is assigned on read and never stored.
type Standing struct {
	Rank           int                      `json:"rank"`
	ParticipantID  string                   `json:"participant_id"`
	TotalScore     int64                    `json:"total_score"`
	SolvedCount    int                      `json:"solved_count"`
	Penalty        int64                    `json:"penalty"`
	LastAcceptedAt *time.Time               `json:"last_accepted_at,omitempty"`
	PerProblem     map[string]ProblemResult `json:"per_problem"`
}

// Clone returns a deep copy.
func (s Standing) Clone() Standing {
	out := s
	if s.LastAcceptedAt != nil {
		t := *s.LastAcceptedAt
		out.LastAcceptedAt = &t
	}
	out.PerProblem = make(map[string]ProblemResult, len(s.PerProblem))
	for id, r := range s.PerProblem {
		if r.SolvedAt != nil {
			t := *r.SolvedAt
			r.SolvedAt = &t
		}
		out.PerProblem[id] = r
	}
	return out
}

// Update is pushed to live subscribers after a change to a contest board.
type Update struct {
	ContestID string     `json:"contest_id"`
	Version   uint64     `json:"version"`
	Standings []Standing `json:"standings"`
}
