package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"contestjudge/internal/common/cache"
	"contestjudge/internal/common/db"
	"contestjudge/internal/contest/model"
	judgemodel "contestjudge/internal/judge/model"
)

const (
	defaultContestTTL      = 10 * time.Minute
	defaultContestEmptyTTL = time.Minute
	contestKeyPrefix       = "contest:"
)

// SQLContestRepository loads contests from the database with a cache-aside layer.
type SQLContestRepository struct {
	db       db.Database
	cache    cache.Cache
	ttl      time.Duration
	emptyTTL time.Duration
}

func NewSQLContestRepository(database db.Database, cacheClient cache.Cache) *SQLContestRepository {
	return NewSQLContestRepositoryWithTTL(database, cacheClient, defaultContestTTL, defaultContestEmptyTTL)
}

func NewSQLContestRepositoryWithTTL(database db.Database, cacheClient cache.Cache, ttl, emptyTTL time.Duration) *SQLContestRepository {
	if ttl <= 0 {
		ttl = defaultContestTTL
	}
	if emptyTTL <= 0 {
		emptyTTL = defaultContestEmptyTTL
	}
	return &SQLContestRepository{db: database, cache: cacheClient, ttl: ttl, emptyTTL: emptyTTL}
}

func (r *SQLContestRepository) GetContest(ctx context.Context, contestID string) (model.Contest, error) {
	if r.cache == nil {
		return r.getContestFromDB(ctx, contestID)
	}
	contest, err := cache.GetWithCached[model.Contest](
		ctx,
		r.cache,
		contestKeyPrefix+contestID,
		cache.JitterTTL(r.ttl),
		cache.JitterTTL(r.emptyTTL),
		func(c model.Contest) bool { return c.ID == "" },
		marshalContest,
		unmarshalContest,
		func(ctx context.Context) (model.Contest, error) {
			c, err := r.getContestFromDB(ctx, contestID)
			if errors.Is(err, ErrContestNotFound) {
				return model.Contest{}, nil
			}
			return c, err
		},
	)
	if err != nil {
		return model.Contest{}, err
	}
	if contest.ID == "" {
		return model.Contest{}, ErrContestNotFound
	}
	return contest, nil
}

// Save writes a contest with its problems and test cases, replacing any previous version.
func (r *SQLContestRepository) Save(ctx context.Context, contest model.Contest) error {
	if err := Validate(contest); err != nil {
		return err
	}
	save := func(ctx context.Context) error {
		return r.db.Transaction(ctx, func(tx db.Transaction) error {
			for _, stmt := range []string{
				"DELETE FROM contest_test_cases WHERE contest_id = ?",
				"DELETE FROM contest_problems WHERE contest_id = ?",
				"DELETE FROM contests WHERE id = ?",
			} {
				if _, err := tx.Exec(ctx, stmt, contest.ID); err != nil {
					return err
				}
			}
			if _, err := tx.Exec(ctx,
				"INSERT INTO contests (id, title, start_at, end_at) VALUES (?, ?, ?, ?)",
				contest.ID, contest.Title, contest.StartAt.UTC(), contest.EndAt.UTC(),
			); err != nil {
				return err
			}
			for i, p := range contest.Problems {
				if _, err := tx.Exec(ctx,
					"INSERT INTO contest_problems (contest_id, problem_id, ordinal, title, time_limit_ms, memory_limit_kb) VALUES (?, ?, ?, ?, ?, ?)",
					contest.ID, p.ID, i, p.Title, p.TimeLimitMs, p.MemoryLimitKb,
				); err != nil {
					return err
				}
				for j, tc := range p.TestCases {
					if _, err := tx.Exec(ctx,
						"INSERT INTO contest_test_cases (contest_id, problem_id, ordinal, test_case_id, input, expected_output, points) VALUES (?, ?, ?, ?, ?, ?, ?)",
						contest.ID, p.ID, j, tc.ID, tc.Input, tc.ExpectedOutput, tc.Points,
					); err != nil {
						return err
					}
				}
			}
			return nil
		})
	}
	if r.cache == nil {
		return save(ctx)
	}
	return cache.UpdateCached(ctx, r.cache, contestKeyPrefix+contest.ID, save)
}

func (r *SQLContestRepository) getContestFromDB(ctx context.Context, contestID string) (model.Contest, error) {
	var contest model.Contest
	row := r.db.QueryRow(ctx, "SELECT id, title, start_at, end_at FROM contests WHERE id = ?", contestID)
	if err := row.Scan(&contest.ID, &contest.Title, &contest.StartAt, &contest.EndAt); err != nil {
		if db.IsNoRows(err) {
			return model.Contest{}, ErrContestNotFound
		}
		return model.Contest{}, fmt.Errorf("load contest failed: %w", err)
	}

	rows, err := r.db.Query(ctx,
		"SELECT problem_id, title, time_limit_ms, memory_limit_kb FROM contest_problems WHERE contest_id = ? ORDER BY ordinal",
		contestID)
	if err != nil {
		return model.Contest{}, err
	}
	index := make(map[string]int)
	for rows.Next() {
		var p model.Problem
		if err := rows.Scan(&p.ID, &p.Title, &p.TimeLimitMs, &p.MemoryLimitKb); err != nil {
			_ = rows.Close()
			return model.Contest{}, fmt.Errorf("scan problem failed: %w", err)
		}
		index[p.ID] = len(contest.Problems)
		contest.Problems = append(contest.Problems, p)
	}
	if err := closeRows(rows); err != nil {
		return model.Contest{}, err
	}

	rows, err = r.db.Query(ctx,
		"SELECT problem_id, test_case_id, input, expected_output, points FROM contest_test_cases WHERE contest_id = ? ORDER BY problem_id, ordinal",
		contestID)
	if err != nil {
		return model.Contest{}, err
	}
	for rows.Next() {
		var problemID string
		var tc judgemodel.TestCase
		if err := rows.Scan(&problemID, &tc.ID, &tc.Input, &tc.ExpectedOutput, &tc.Points); err != nil {
			_ = rows.Close()
			return model.Contest{}, fmt.Errorf("scan test case failed: %w", err)
		}
		if i, ok := index[problemID]; ok {
			contest.Problems[i].TestCases = append(contest.Problems[i].TestCases, tc)
		}
	}
	if err := closeRows(rows); err != nil {
		return model.Contest{}, err
	}
	return contest, nil
}

// Schema returns the DDL for the contest tables.
func Schema(dialect db.Dialect) []string {
	text := "TEXT"
	if dialect == db.DialectMySQL {
		text = "LONGTEXT"
	}
	return []string{
		`CREATE TABLE IF NOT EXISTS contests (
			id VARCHAR(64) PRIMARY KEY,
			title VARCHAR(255) NOT NULL,
			start_at TIMESTAMP NOT NULL,
			end_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS contest_problems (
			contest_id VARCHAR(64) NOT NULL,
			problem_id VARCHAR(64) NOT NULL,
			ordinal INT NOT NULL,
			title VARCHAR(255) NOT NULL,
			time_limit_ms BIGINT NOT NULL,
			memory_limit_kb BIGINT NOT NULL,
			PRIMARY KEY (contest_id, problem_id)
		)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS contest_test_cases (
			contest_id VARCHAR(64) NOT NULL,
			problem_id VARCHAR(64) NOT NULL,
			ordinal INT NOT NULL,
			test_case_id VARCHAR(64) NOT NULL,
			input %[1]s NOT NULL,
			expected_output %[1]s NOT NULL,
			points BIGINT NOT NULL,
			PRIMARY KEY (contest_id, problem_id, ordinal)
		)`, text),
	}
}

func closeRows(rows db.Rows) error {
	iterErr := rows.Err()
	closeErr := rows.Close()
	if iterErr != nil {
		return iterErr
	}
	return closeErr
}

func marshalContest(c model.Contest) string {
	payload, err := json.Marshal(c)
	if err != nil {
		return ""
	}
	return string(payload)
}

func unmarshalContest(data string) (model.Contest, error) {
	var c model.Contest
	if err := json.Unmarshal([]byte(data), &c); err != nil {
		return model.Contest{}, err
	}
	return c, nil
}
