package model

import (
	"time"

	"contestjudge/internal/judge/result"
)

// State is the lifecycle position of a submission.
type State string

const (
	StateCreated    State = "Created"
	StateDispatched State = "Dispatched"
	StateJudging    State = "Judging"
	StateJudged     State = "Judged"
	StateFailed     State = "Failed"
)

// IsTerminal reports whether no further transition may leave s.
func (s State) IsTerminal() bool {
	return s == StateJudged || s == StateFailed
}

// Submission is one competitor attempt at a contest problem.
// Identity, language and source never change after creation.
type Submission struct {
	ID            string `json:"id"`
	ContestID     string `json:"contest_id"`
	ProblemID     string `json:"problem_id"`
	ParticipantID string `json:"participant_id"`
	Language      string `json:"language"`
	SourceCode    string `json:"source_code,omitempty"`
	// SourceKey locates the archived source in object storage, if archived.
	SourceKey string `json:"source_key,omitempty"`

	State           State                   `json:"state"`
	TestCount       int                     `json:"test_count"`
	TestCaseResults []result.TestCaseResult `json:"test_case_results"`
	Verdict         result.Verdict          `json:"verdict,omitempty"`
	Score           int64                   `json:"score"`
	MaxScore        int64                   `json:"max_score"`

	SubmittedAt time.Time  `json:"submitted_at"`
	JudgedAt    *time.Time `json:"judged_at,omitempty"`

	// ErrorDetail explains SE/CANCELLED outcomes to operators.
	ErrorDetail string `json:"error_detail,omitempty"`
}

// Clone returns a deep copy safe to hand to readers.
func (s *Submission) Clone() Submission {
	out := *s
	if s.TestCaseResults != nil {
		out.TestCaseResults = make([]result.TestCaseResult, len(s.TestCaseResults))
		copy(out.TestCaseResults, s.TestCaseResults)
	}
	if s.JudgedAt != nil {
		judgedAt := *s.JudgedAt
		out.JudgedAt = &judgedAt
	}
	return out
}

// WithoutSource drops the source text, e.g. before caching or publishing.
func (s Submission) WithoutSource() Submission {
	s.SourceCode = ""
	return s
}
