package model

import (
	"time"

	"contestjudge/internal/judge/result"
)

// FinalStatusEvent is published once per submission when it reaches a terminal state.
type FinalStatusEvent struct {
	SubmissionID  string         `json:"submission_id"`
	ContestID     string         `json:"contest_id"`
	ProblemID     string         `json:"problem_id"`
	ParticipantID string         `json:"participant_id"`
	State         State          `json:"state"`
	Verdict       result.Verdict `json:"verdict"`
	Score         int64          `json:"score"`
	MaxScore      int64          `json:"max_score"`
	SubmittedAt   time.Time      `json:"submitted_at"`
	JudgedAt      time.Time      `json:"judged_at"`
}

// NewFinalStatusEvent builds the event for a terminal submission.
func NewFinalStatusEvent(sub Submission) FinalStatusEvent {
	ev := FinalStatusEvent{
		SubmissionID:  sub.ID,
		ContestID:     sub.ContestID,
		ProblemID:     sub.ProblemID,
		ParticipantID: sub.ParticipantID,
		State:         sub.State,
		Verdict:       sub.Verdict,
		Score:         sub.Score,
		MaxScore:      sub.MaxScore,
		SubmittedAt:   sub.SubmittedAt,
	}
	if sub.JudgedAt != nil {
		ev.JudgedAt = *sub.JudgedAt
	}
	return ev
}
