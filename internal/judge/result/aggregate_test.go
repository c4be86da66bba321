package result

import (
	"encoding/json"
	"errors"
	"math/rand"
	"testing"
)

func results(outcomes ...Verdict) []TestCaseResult {
	points := []int64{10, 20, 70}
	out := make([]TestCaseResult, 0, len(outcomes))
	for i, o := range outcomes {
		out = append(out, TestCaseResult{Index: i, Points: points[i], Outcome: o})
	}
	return out
}

func TestAggregateScenarios(t *testing.T) {
	t.Parallel()
	points := []int64{10, 20, 70}

	cases := []struct {
		name    string
		results []TestCaseResult
		want    Summary
		wantErr error
	}{
		{
			name:    "full accept",
			results: results(VerdictAC, VerdictAC, VerdictAC),
			want:    Summary{Verdict: VerdictAC, Score: 100, MaxScore: 100},
		},
		{
			name:    "partial credit reports first failure",
			results: results(VerdictAC, VerdictWA, VerdictAC),
			want:    Summary{Verdict: VerdictWA, Score: 80, MaxScore: 100},
		},
		{
			name:    "first failure not worst failure",
			results: results(VerdictTLE, VerdictWA, VerdictRE),
			want:    Summary{Verdict: VerdictTLE, Score: 0, MaxScore: 100},
		},
		{
			name:    "compile error short circuits",
			results: results(VerdictCE),
			want:    Summary{Verdict: VerdictCE, Score: 0, MaxScore: 100},
		},
		{
			name:    "compile error after accepted results",
			results: results(VerdictAC, VerdictCE),
			want:    Summary{Verdict: VerdictCE, Score: 0, MaxScore: 100},
		},
		{
			name:    "incomplete without compile error",
			results: results(VerdictAC, VerdictAC),
			wantErr: ErrIncomplete,
		},
		{
			name:    "no results",
			results: nil,
			wantErr: ErrIncomplete,
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := Aggregate(tc.results, points)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("err = %v, want %v", err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("Aggregate() = %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestAggregateRejectsInvalidInput(t *testing.T) {
	t.Parallel()
	if _, err := Aggregate(results(VerdictAC, VerdictAC, VerdictAC), []int64{10, 20}); !errors.Is(err, ErrTooManyResults) {
		t.Fatalf("err = %v, want ErrTooManyResults", err)
	}
	bad := []TestCaseResult{{Index: 0, Points: 10, Outcome: VerdictSE}}
	if _, err := Aggregate(bad, []int64{10}); err == nil {
		t.Fatalf("expected error for system verdict as test outcome")
	}
}

func TestAggregateEmptyProblem(t *testing.T) {
	t.Parallel()
	got, err := Aggregate(nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != (Summary{Verdict: VerdictAC}) {
		t.Fatalf("Aggregate() = %+v", got)
	}
}

func TestAggregateIsDeterministic(t *testing.T) {
	t.Parallel()
	outcomes := []Verdict{VerdictAC, VerdictWA, VerdictTLE, VerdictMLE, VerdictRE}
	rng := rand.New(rand.NewSource(7))

	for round := 0; round < 200; round++ {
		n := 1 + rng.Intn(8)
		points := make([]int64, n)
		rs := make([]TestCaseResult, n)
		for i := range rs {
			points[i] = int64(rng.Intn(50))
			rs[i] = TestCaseResult{Index: i, Points: points[i], Outcome: outcomes[rng.Intn(len(outcomes))]}
		}
		first, err := Aggregate(rs, points)
		if err != nil {
			t.Fatalf("round %d: %v", round, err)
		}
		second, _ := Aggregate(rs, points)
		if first != second {
			t.Fatalf("round %d: %+v != %+v", round, first, second)
		}
		if first.Score > first.MaxScore || first.Score < 0 {
			t.Fatalf("round %d: score %d out of range [0,%d]", round, first.Score, first.MaxScore)
		}
		var acPoints int64
		firstFail := VerdictAC
		for _, r := range rs {
			if r.Outcome == VerdictAC {
				acPoints += r.Points
			} else if firstFail == VerdictAC {
				firstFail = r.Outcome
			}
		}
		if first.Verdict != firstFail {
			t.Fatalf("round %d: verdict %s, want %s", round, first.Verdict, firstFail)
		}
		if firstFail != VerdictAC && first.Score != acPoints {
			t.Fatalf("round %d: score %d, want %d", round, first.Score, acPoints)
		}
	}
}

func TestVerdictEnumeration(t *testing.T) {
	t.Parallel()
	if VerdictWA.Display() != "Wrong Answer" {
		t.Fatalf("Display() = %q", VerdictWA.Display())
	}
	if Verdict("").Display() != "Pending" {
		t.Fatalf("empty verdict should display as pending")
	}
	if _, err := ParseVerdict("Accepted"); err == nil {
		t.Fatalf("display names must not parse as verdicts")
	}
	if v, err := ParseVerdict("CANCELLED"); err != nil || v != VerdictCancelled {
		t.Fatalf("ParseVerdict(CANCELLED) = %v, %v", v, err)
	}
	if VerdictCE.IsSystem() || !VerdictSE.IsSystem() || VerdictSE.IsOutcome() {
		t.Fatalf("verdict classification is wrong")
	}

	var decoded struct {
		V Verdict `json:"v"`
	}
	if err := json.Unmarshal([]byte(`{"v":"ac"}`), &decoded); err == nil {
		t.Fatalf("lowercase verdict should be rejected")
	}
	if err := json.Unmarshal([]byte(`{"v":"MLE"}`), &decoded); err != nil || decoded.V != VerdictMLE {
		t.Fatalf("decode MLE: %v %v", decoded.V, err)
	}
}
