// Package result defines judging verdicts, per-test-case results and the
// rules that aggregate them into a submission verdict.
package result

import "fmt"

// Verdict is the closed set of judgments a test case or submission can receive.
type Verdict string

const (
	VerdictAC        Verdict = "AC"
	VerdictWA        Verdict = "WA"
	VerdictTLE       Verdict = "TLE"
	VerdictMLE       Verdict = "MLE"
	VerdictRE        Verdict = "RE"
	VerdictCE        Verdict = "CE"
	VerdictSE        Verdict = "SE"
	VerdictCancelled Verdict = "CANCELLED"
)

var displayNames = map[Verdict]string{
	VerdictAC:        "Accepted",
	VerdictWA:        "Wrong Answer",
	VerdictTLE:       "Time Limit Exceeded",
	VerdictMLE:       "Memory Limit Exceeded",
	VerdictRE:        "Runtime Error",
	VerdictCE:        "Compilation Error",
	VerdictSE:        "System Error",
	VerdictCancelled: "Cancelled",
}

// ParseVerdict accepts canonical codes only.
func ParseVerdict(s string) (Verdict, error) {
	v := Verdict(s)
	if _, ok := displayNames[v]; !ok {
		return "", fmt.Errorf("unknown verdict %q", s)
	}
	return v, nil
}

// Display is the human-readable name shown to competitors.
func (v Verdict) Display() string {
	if name, ok := displayNames[v]; ok {
		return name
	}
	return "Pending"
}

// IsOutcome reports whether v can be the outcome of a single test-case run.
func (v Verdict) IsOutcome() bool {
	switch v {
	case VerdictAC, VerdictWA, VerdictTLE, VerdictMLE, VerdictRE, VerdictCE:
		return true
	}
	return false
}

// IsSystem reports verdicts produced by the judge itself rather than by the program.
func (v Verdict) IsSystem() bool {
	return v == VerdictSE || v == VerdictCancelled
}

func (v Verdict) MarshalText() ([]byte, error) {
	return []byte(v), nil
}

// UnmarshalText rejects anything outside the enumeration, including
// free-form spellings such as "Accepted".
func (v *Verdict) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*v = ""
		return nil
	}
	parsed, err := ParseVerdict(string(text))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// TestCaseResult is the immutable record of one test-case execution.
type TestCaseResult struct {
	TestCaseID string  `json:"test_case_id"`
	Index      int     `json:"index"`
	Points     int64   `json:"points"`
	Outcome    Verdict `json:"outcome"`
	CPUTimeMs  int64   `json:"cpu_time_ms"`
	MemoryKb   int64   `json:"memory_kb"`
	// Detail keeps raw executor errors for operators. Never rendered to competitors.
	Detail string `json:"detail,omitempty"`
}
