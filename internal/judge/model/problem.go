package model

// TestCase is one judged input of a problem, copied at dispatch time so that
// later edits to the problem never change an in-flight submission.
type TestCase struct {
	ID             string `json:"id" yaml:"id"`
	Input          string `json:"input" yaml:"input"`
	ExpectedOutput string `json:"expected_output" yaml:"expectedOutput"`
	Points         int64  `json:"points" yaml:"points"`
}

// ProblemSnapshot is the immutable judging view of a problem.
type ProblemSnapshot struct {
	ProblemID     string     `json:"problem_id"`
	TimeLimitMs   int64      `json:"time_limit_ms"`
	MemoryLimitKb int64      `json:"memory_limit_kb"`
	TestCases     []TestCase `json:"test_cases"`
}

// Points returns the points of every test case in canonical order.
func (p ProblemSnapshot) Points() []int64 {
	points := make([]int64, len(p.TestCases))
	for i, tc := range p.TestCases {
		points[i] = tc.Points
	}
	return points
}
