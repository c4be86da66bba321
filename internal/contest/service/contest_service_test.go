package service

import (
	"context"
	"testing"
	"time"

	"contestjudge/internal/contest"
	"contestjudge/internal/contest/model"
	"contestjudge/internal/contest/repository"
	appErr "contestjudge/pkg/errors"
)

var start = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

func newService(t *testing.T, now time.Time) *ContestService {
	t.Helper()
	catalog, err := repository.NewCatalog(model.Contest{
		ID:       "c1",
		StartAt:  start,
		EndAt:    start.Add(3 * time.Hour),
		Problems: []model.Problem{{ID: "a", TimeLimitMs: 1000}},
	})
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	return NewContestService(catalog, func() time.Time { return now })
}

func TestRequireRunning(t *testing.T) {
	svc := newService(t, start)
	cases := []struct {
		name    string
		at      time.Time
		problem string
		code    appErr.ErrorCode
	}{
		{"upcoming", start.Add(-time.Second), "a", appErr.ContestNotRunning},
		{"ended", start.Add(3*time.Hour + time.Second), "a", appErr.ContestNotRunning},
		{"unknown problem", start.Add(time.Minute), "z", appErr.ProblemNotFound},
		{"running", start.Add(time.Minute), "a", appErr.Success},
		{"exactly at end", start.Add(3 * time.Hour), "a", appErr.Success},
	}
	for _, tc := range cases {
		_, p, err := svc.RequireRunning(context.Background(), "c1", tc.problem, tc.at)
		if tc.code == appErr.Success {
			if err != nil || p.ID != tc.problem {
				t.Fatalf("%s: unexpected error %v", tc.name, err)
			}
			continue
		}
		if !appErr.Is(err, tc.code) {
			t.Fatalf("%s: expected code %d, got %v", tc.name, tc.code, err)
		}
	}
}

func TestGetPhase(t *testing.T) {
	svc := newService(t, start.Add(4*time.Hour))
	view, err := svc.GetPhase(context.Background(), "c1")
	if err != nil {
		t.Fatalf("get phase: %v", err)
	}
	if view.Phase != contest.PhaseEnded {
		t.Fatalf("phase = %s", view.Phase)
	}
	if _, err := svc.GetPhase(context.Background(), "missing"); !appErr.Is(err, appErr.ContestNotFound) {
		t.Fatalf("expected ContestNotFound, got %v", err)
	}
}
