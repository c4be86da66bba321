package result

import (
	"errors"
	"fmt"
)

var (
	// ErrIncomplete is returned when results do not yet cover every test case
	// and no compile error short-circuits judging.
	ErrIncomplete = errors.New("results do not cover every test case")
	// ErrTooManyResults means more results than snapshotted test cases.
	ErrTooManyResults = errors.New("more results than test cases")
)

// Summary is the aggregated judgment of a submission.
type Summary struct {
	Verdict  Verdict `json:"verdict"`
	Score    int64   `json:"score"`
	MaxScore int64   `json:"max_score"`
}

// MaxScore sums the points of the full test-case set.
func MaxScore(points []int64) int64 {
	var total int64
	for _, p := range points {
		total += p
	}
	return total
}

// Aggregate computes the submission verdict from results in canonical
// test-case order. points holds the snapshotted points of every test case,
// so len(points) is the authoritative test-case count.
//
// A CE anywhere yields CE with score 0. Otherwise every test case must be
// accounted for; all AC yields AC with the full score, and anything else
// reports the first non-AC outcome with the sum of AC points.
func Aggregate(results []TestCaseResult, points []int64) (Summary, error) {
	maxScore := MaxScore(points)
	if len(results) > len(points) {
		return Summary{}, fmt.Errorf("%w: %d > %d", ErrTooManyResults, len(results), len(points))
	}
	for i, r := range results {
		if !r.Outcome.IsOutcome() {
			return Summary{}, fmt.Errorf("result %d has invalid outcome %q", i, r.Outcome)
		}
		if r.Outcome == VerdictCE {
			return Summary{Verdict: VerdictCE, Score: 0, MaxScore: maxScore}, nil
		}
	}
	if len(results) < len(points) {
		return Summary{}, fmt.Errorf("%w: %d of %d", ErrIncomplete, len(results), len(points))
	}

	summary := Summary{Verdict: VerdictAC, MaxScore: maxScore}
	for _, r := range results {
		if r.Outcome == VerdictAC {
			summary.Score += r.Points
			continue
		}
		if summary.Verdict == VerdictAC {
			summary.Verdict = r.Outcome
		}
	}
	if summary.Verdict == VerdictAC {
		summary.Score = maxScore
	}
	return summary, nil
}
