package model

import (
	"time"

	judgemodel "contestjudge/internal/judge/model"
)

// Contest is a scheduled set of problems.
type Contest struct {
	ID       string    `json:"id" yaml:"id"`
	Title    string    `json:"title" yaml:"title"`
	StartAt  time.Time `json:"start_at" yaml:"startAt"`
	EndAt    time.Time `json:"end_at" yaml:"endAt"`
	Problems []Problem `json:"problems" yaml:"problems"`
}

// Problem is a contest problem together with its judging data.
type Problem struct {
	ID            string                `json:"id" yaml:"id"`
	Title         string                `json:"title" yaml:"title"`
	TimeLimitMs   int64                 `json:"time_limit_ms" yaml:"timeLimitMs"`
	MemoryLimitKb int64                 `json:"memory_limit_kb" yaml:"memoryLimitKb"`
	TestCases     []judgemodel.TestCase `json:"test_cases" yaml:"testCases"`
}

// Problem looks up a problem of the contest by id.
func (c Contest) Problem(id string) (Problem, bool) {
	for _, p := range c.Problems {
		if p.ID == id {
			return p, true
		}
	}
	return Problem{}, false
}

// Snapshot copies the judging view of the problem.
func (p Problem) Snapshot() judgemodel.ProblemSnapshot {
	cases := make([]judgemodel.TestCase, len(p.TestCases))
	copy(cases, p.TestCases)
	return judgemodel.ProblemSnapshot{
		ProblemID:     p.ID,
		TimeLimitMs:   p.TimeLimitMs,
		MemoryLimitKb: p.MemoryLimitKb,
		TestCases:     cases,
	}
}

// MaxScore is the sum of test case points.
func (p Problem) MaxScore() int64 {
	var total int64
	for _, tc := range p.TestCases {
		total += tc.Points
	}
	return total
}
