package repository

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"contestjudge/internal/common/cache"
	"contestjudge/internal/common/db"
	"contestjudge/internal/contest/model"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

const catalogYAML = `
contests:
  - id: spring
    title: Spring Round
    startAt: 2026-05-01T09:00:00Z
    endAt: 2026-05-01T12:00:00Z
    problems:
      - id: a
        title: Sum
        timeLimitMs: 1000
        memoryLimitKb: 262144
        testCases:
          - {id: a1, input: "1 2", expectedOutput: "3", points: 10}
          - {id: a2, input: "2 2", expectedOutput: "4", points: 90}
`

func TestParseCatalog(t *testing.T) {
	catalog, err := ParseCatalog([]byte(catalogYAML))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	contest, problem, err := GetProblem(context.Background(), catalog, "spring", "a")
	if err != nil {
		t.Fatalf("get problem failed: %v", err)
	}
	if !contest.StartAt.Equal(time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)) {
		t.Fatalf("start = %v", contest.StartAt)
	}
	if problem.MaxScore() != 100 || len(problem.TestCases) != 2 || problem.TestCases[1].ExpectedOutput != "4" {
		t.Fatalf("unexpected problem: %+v", problem)
	}
	snap := problem.Snapshot()
	snap.TestCases[0].Points = 0
	if problem.TestCases[0].Points != 10 {
		t.Fatalf("snapshot shares test case storage")
	}

	if _, _, err := GetProblem(context.Background(), catalog, "spring", "z"); !errors.Is(err, ErrProblemNotFound) {
		t.Fatalf("expected ErrProblemNotFound, got %v", err)
	}
	if _, err := catalog.GetContest(context.Background(), "autumn"); !errors.Is(err, ErrContestNotFound) {
		t.Fatalf("expected ErrContestNotFound, got %v", err)
	}
	if all := catalog.Contests(); len(all) != 1 || all[0].ID != "spring" {
		t.Fatalf("contests = %+v", all)
	}
}

func TestValidate(t *testing.T) {
	start := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	cases := []struct {
		name    string
		contest model.Contest
	}{
		{"missing id", model.Contest{StartAt: start, EndAt: start}},
		{"end before start", model.Contest{ID: "c", StartAt: start, EndAt: start.Add(-time.Minute)}},
		{"duplicate problem", model.Contest{ID: "c", StartAt: start, EndAt: start, Problems: []model.Problem{
			{ID: "a", TimeLimitMs: 1}, {ID: "a", TimeLimitMs: 1},
		}}},
		{"zero time limit", model.Contest{ID: "c", StartAt: start, EndAt: start, Problems: []model.Problem{{ID: "a"}}}},
	}
	for _, tc := range cases {
		if err := Validate(tc.contest); err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
	}
}

func TestSQLRepositoryServesFromCache(t *testing.T) {
	mr := miniredis.RunT(t)
	c, err := cache.NewRedisCacheWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	catalog, _ := ParseCatalog([]byte(catalogYAML))
	spring, _ := catalog.GetContest(context.Background(), "spring")
	_ = mr.Set(contestKeyPrefix+"spring", marshalContest(spring))
	_ = mr.Set(contestKeyPrefix+"gone", cache.NullCacheValue)

	// The database is never reached on cache hits.
	repo := NewSQLContestRepository(nil, c)
	got, err := repo.GetContest(context.Background(), "spring")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Title != "Spring Round" || len(got.Problems) != 1 || len(got.Problems[0].TestCases) != 2 {
		t.Fatalf("unexpected contest: %+v", got)
	}
	if _, err := repo.GetContest(context.Background(), "gone"); !errors.Is(err, ErrContestNotFound) {
		t.Fatalf("expected ErrContestNotFound for cached miss, got %v", err)
	}
}

func TestSchemaDialects(t *testing.T) {
	mysql := strings.Join(Schema(db.DialectMySQL), "\n")
	postgres := strings.Join(Schema(db.DialectPostgres), "\n")
	if !strings.Contains(mysql, "LONGTEXT") || strings.Contains(postgres, "LONGTEXT") {
		t.Fatalf("unexpected text column types")
	}
}
