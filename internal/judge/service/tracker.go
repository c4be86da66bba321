package service

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"contestjudge/internal/judge/model"
	"contestjudge/internal/judge/result"
)

var (
	// ErrTerminal is returned for any event after Judged or Failed.
	ErrTerminal = errors.New("submission is already in a terminal state")
	// ErrDuplicateResult means a second result arrived for a resolved test case.
	ErrDuplicateResult = errors.New("duplicate result for test case")
	// ErrInvalidTransition is returned for events not allowed in the current state.
	ErrInvalidTransition = errors.New("invalid submission state transition")
)

// Tracker owns the mutable state of one submission.
// Results may arrive in any order; they are buffered and applied in
// canonical test-case order so TestCaseResults only ever grows at the tail.
type Tracker struct {
	mu      sync.Mutex
	sub     model.Submission
	problem model.ProblemSnapshot
	points  []int64
	pending map[int]result.TestCaseResult
	now     func() time.Time
}

// NewTracker starts tracking sub, which must be in state Created.
func NewTracker(sub model.Submission, now func() time.Time) *Tracker {
	if now == nil {
		now = time.Now
	}
	if sub.State == "" {
		sub.State = model.StateCreated
	}
	return &Tracker{
		sub:     sub,
		pending: make(map[int]result.TestCaseResult),
		now:     now,
	}
}

// Dispatch snapshots the test-case set and moves Created to Dispatched.
func (t *Tracker) Dispatch(problem model.ProblemSnapshot) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sub.State.IsTerminal() {
		return ErrTerminal
	}
	if t.sub.State != model.StateCreated {
		return fmt.Errorf("%w: dispatch from %s", ErrInvalidTransition, t.sub.State)
	}
	t.problem = problem
	t.points = problem.Points()
	t.sub.State = model.StateDispatched
	t.sub.TestCount = len(problem.TestCases)
	t.sub.MaxScore = result.MaxScore(t.points)
	t.sub.TestCaseResults = make([]result.TestCaseResult, 0, len(problem.TestCases))
	return nil
}

// Record accepts one test-case result. It returns true when the result
// completed judging and the submission moved to Judged.
func (t *Tracker) Record(r result.TestCaseResult) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch t.sub.State {
	case model.StateJudged, model.StateFailed:
		return false, ErrTerminal
	case model.StateCreated:
		return false, fmt.Errorf("%w: result before dispatch", ErrInvalidTransition)
	}
	if r.Index < 0 || r.Index >= len(t.points) {
		return false, fmt.Errorf("%w: index %d out of range [0,%d)", ErrInvalidTransition, r.Index, len(t.points))
	}
	if !r.Outcome.IsOutcome() {
		return false, fmt.Errorf("%w: outcome %q", ErrInvalidTransition, r.Outcome)
	}
	if _, dup := t.pending[r.Index]; dup || r.Index < len(t.sub.TestCaseResults) {
		return false, fmt.Errorf("%w: index %d", ErrDuplicateResult, r.Index)
	}

	// Points and identity come from the dispatch-time snapshot.
	r.Points = t.points[r.Index]
	r.TestCaseID = t.problem.TestCases[r.Index].ID
	t.sub.State = model.StateJudging

	if r.Outcome == result.VerdictCE {
		t.flushContiguous()
		for idx := range t.pending {
			if idx < r.Index {
				t.sub.TestCaseResults = append(t.sub.TestCaseResults, t.pending[idx])
			}
		}
		slices.SortFunc(t.sub.TestCaseResults, func(a, b result.TestCaseResult) int {
			return cmp.Compare(a.Index, b.Index)
		})
		t.sub.TestCaseResults = append(t.sub.TestCaseResults, r)
		clear(t.pending)
		return true, t.finish()
	}

	t.pending[r.Index] = r
	t.flushContiguous()
	if len(t.sub.TestCaseResults) < len(t.points) {
		return false, nil
	}
	return true, t.finish()
}

func (t *Tracker) flushContiguous() {
	for {
		next := len(t.sub.TestCaseResults)
		r, ok := t.pending[next]
		if !ok {
			return
		}
		delete(t.pending, next)
		t.sub.TestCaseResults = append(t.sub.TestCaseResults, r)
	}
}

func (t *Tracker) finish() error {
	summary, err := result.Aggregate(t.sub.TestCaseResults, t.points)
	if err != nil {
		t.fail(result.VerdictSE, fmt.Sprintf("aggregate failed: %v", err))
		return err
	}
	judgedAt := t.now()
	t.sub.State = model.StateJudged
	t.sub.Verdict = summary.Verdict
	t.sub.Score = summary.Score
	t.sub.MaxScore = summary.MaxScore
	t.sub.JudgedAt = &judgedAt
	return nil
}

// Fail moves a non-terminal submission to Failed with verdict SE or
// CANCELLED. It returns false if the submission had already terminated.
func (t *Tracker) Fail(verdict result.Verdict, detail string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sub.State.IsTerminal() {
		return false
	}
	t.fail(verdict, detail)
	return true
}

func (t *Tracker) fail(verdict result.Verdict, detail string) {
	if !verdict.IsSystem() {
		verdict = result.VerdictSE
	}
	judgedAt := t.now()
	t.sub.State = model.StateFailed
	t.sub.Verdict = verdict
	t.sub.Score = 0
	t.sub.JudgedAt = &judgedAt
	t.sub.ErrorDetail = detail
	clear(t.pending)
}

// Snapshot returns a copy of the current submission.
func (t *Tracker) Snapshot() model.Submission {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sub.Clone()
}

// State returns the current lifecycle state.
func (t *Tracker) State() model.State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sub.State
}
