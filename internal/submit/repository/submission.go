package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"contestjudge/internal/common/cache"
	"contestjudge/internal/common/db"
	"contestjudge/internal/judge/model"
	"contestjudge/internal/judge/result"
)

const (
	defaultSubmissionCacheTTL      = 30 * time.Minute
	defaultSubmissionCacheEmptyTTL = time.Minute
	submissionCacheKeyPrefix       = "submission:"
)

var (
	ErrSubmissionNotFound = errors.New("submission not found")
	ErrSubmissionExists   = errors.New("submission already exists")
)

// SubmissionRepository defines submission persistence.
type SubmissionRepository interface {
	Create(ctx context.Context, tx db.Transaction, sub model.Submission, sourceHash string) error
	// SaveResult stores the judging outcome of a submission.
	SaveResult(ctx context.Context, tx db.Transaction, sub model.Submission) error
	GetByID(ctx context.Context, tx db.Transaction, submissionID string) (model.Submission, error)
	Delete(ctx context.Context, tx db.Transaction, submissionID string) error
}

// SQLSubmissionRepository implements SubmissionRepository on MySQL or PostgreSQL.
// Only terminal submissions are cached: earlier states change too often.
type SQLSubmissionRepository struct {
	db       db.Database
	cache    cache.Cache
	ttl      time.Duration
	emptyTTL time.Duration
}

// NewSubmissionRepository creates a submission repository with defaults.
func NewSubmissionRepository(database db.Database, cacheClient cache.Cache) *SQLSubmissionRepository {
	return NewSubmissionRepositoryWithTTL(database, cacheClient, defaultSubmissionCacheTTL, defaultSubmissionCacheEmptyTTL)
}

// NewSubmissionRepositoryWithTTL creates a submission repository with custom TTL.
func NewSubmissionRepositoryWithTTL(database db.Database, cacheClient cache.Cache, ttl, emptyTTL time.Duration) *SQLSubmissionRepository {
	if ttl <= 0 {
		ttl = defaultSubmissionCacheTTL
	}
	if emptyTTL <= 0 {
		emptyTTL = defaultSubmissionCacheEmptyTTL
	}
	return &SQLSubmissionRepository{
		db:       database,
		cache:    cacheClient,
		ttl:      ttl,
		emptyTTL: emptyTTL,
	}
}

const submissionColumns = "submission_id, contest_id, problem_id, participant_id, language, source_code, source_key, " +
	"state, test_count, results, verdict, score, max_score, submitted_at, judged_at, error_detail"

// Create inserts a submission record.
func (r *SQLSubmissionRepository) Create(ctx context.Context, tx db.Transaction, sub model.Submission, sourceHash string) error {
	if err := validateNew(sub); err != nil {
		return err
	}
	query := `
		INSERT INTO submissions
		(submission_id, contest_id, problem_id, participant_id, language, source_code, source_key, source_hash,
		 state, test_count, results, verdict, score, max_score, submitted_at, error_detail)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := db.GetQuerier(r.db, tx).Exec(
		ctx,
		query,
		sub.ID,
		sub.ContestID,
		sub.ProblemID,
		sub.ParticipantID,
		sub.Language,
		sub.SourceCode,
		sub.SourceKey,
		sourceHash,
		string(sub.State),
		sub.TestCount,
		"[]",
		string(sub.Verdict),
		sub.Score,
		sub.MaxScore,
		sub.SubmittedAt.UTC(),
		sub.ErrorDetail,
	)
	if err != nil {
		if _, dup := db.UniqueViolation(err); dup {
			return ErrSubmissionExists
		}
		return err
	}
	return nil
}

// SaveResult updates the judging columns of an existing submission.
func (r *SQLSubmissionRepository) SaveResult(ctx context.Context, tx db.Transaction, sub model.Submission) error {
	results, err := json.Marshal(resultsOrEmpty(sub.TestCaseResults))
	if err != nil {
		return fmt.Errorf("marshal results failed: %w", err)
	}
	var judgedAt interface{}
	if sub.JudgedAt != nil {
		judgedAt = sub.JudgedAt.UTC()
	}
	update := func(ctx context.Context) error {
		query := `
			UPDATE submissions
			SET state = ?, test_count = ?, results = ?, verdict = ?, score = ?, max_score = ?, judged_at = ?, error_detail = ?
			WHERE submission_id = ?
		`
		res, err := db.GetQuerier(r.db, tx).Exec(ctx, query,
			string(sub.State), sub.TestCount, string(results), string(sub.Verdict),
			sub.Score, sub.MaxScore, judgedAt, sub.ErrorDetail, sub.ID,
		)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return ErrSubmissionNotFound
		}
		return nil
	}
	if r.cache == nil || tx != nil {
		return update(ctx)
	}
	return cache.UpdateCached(ctx, r.cache, submissionCacheKey(sub.ID), update)
}

// GetByID retrieves a submission by id.
func (r *SQLSubmissionRepository) GetByID(ctx context.Context, tx db.Transaction, submissionID string) (model.Submission, error) {
	if submissionID == "" {
		return model.Submission{}, errors.New("submissionID is required")
	}
	if r.cache == nil || tx != nil {
		return r.getByIDFromDB(ctx, tx, submissionID)
	}

	// cache-aside limited to terminal submissions
	if cached, err := r.cache.Get(ctx, submissionCacheKey(submissionID)); err == nil && cached != "" {
		if cached == cache.NullCacheValue {
			return model.Submission{}, ErrSubmissionNotFound
		}
		var sub model.Submission
		if err := json.Unmarshal([]byte(cached), &sub); err == nil {
			return sub, nil
		}
	}
	sub, err := r.getByIDFromDB(ctx, nil, submissionID)
	switch {
	case errors.Is(err, ErrSubmissionNotFound):
		_ = r.cache.Set(ctx, submissionCacheKey(submissionID), cache.NullCacheValue, cache.JitterTTL(r.emptyTTL))
		return model.Submission{}, err
	case err != nil:
		return model.Submission{}, err
	}
	if sub.State.IsTerminal() {
		if payload, err := json.Marshal(sub); err == nil {
			_ = r.cache.Set(ctx, submissionCacheKey(submissionID), string(payload), cache.JitterTTL(r.ttl))
		}
	}
	return sub, nil
}

// Delete removes a submission that never started judging.
func (r *SQLSubmissionRepository) Delete(ctx context.Context, tx db.Transaction, submissionID string) error {
	del := func(ctx context.Context) error {
		_, err := db.GetQuerier(r.db, tx).Exec(ctx, "DELETE FROM submissions WHERE submission_id = ?", submissionID)
		return err
	}
	if r.cache == nil || tx != nil {
		return del(ctx)
	}
	return cache.UpdateCached(ctx, r.cache, submissionCacheKey(submissionID), del)
}

func (r *SQLSubmissionRepository) getByIDFromDB(ctx context.Context, tx db.Transaction, submissionID string) (model.Submission, error) {
	query := "SELECT " + submissionColumns + " FROM submissions WHERE submission_id = ?"
	row := db.GetQuerier(r.db, tx).QueryRow(ctx, query, submissionID)
	sub, err := scanSubmission(row)
	if err != nil {
		if db.IsNoRows(err) {
			return model.Submission{}, ErrSubmissionNotFound
		}
		return model.Submission{}, err
	}
	return sub, nil
}

func scanSubmission(scanner db.Scanner) (model.Submission, error) {
	var (
		sub      model.Submission
		state    string
		results  string
		verdict  string
		judgedAt *time.Time
	)
	if err := scanner.Scan(
		&sub.ID,
		&sub.ContestID,
		&sub.ProblemID,
		&sub.ParticipantID,
		&sub.Language,
		&sub.SourceCode,
		&sub.SourceKey,
		&state,
		&sub.TestCount,
		&results,
		&verdict,
		&sub.Score,
		&sub.MaxScore,
		&sub.SubmittedAt,
		&judgedAt,
		&sub.ErrorDetail,
	); err != nil {
		return model.Submission{}, err
	}
	sub.State = model.State(state)
	if verdict != "" {
		v, err := result.ParseVerdict(verdict)
		if err != nil {
			return model.Submission{}, err
		}
		sub.Verdict = v
	}
	if results != "" {
		if err := json.Unmarshal([]byte(results), &sub.TestCaseResults); err != nil {
			return model.Submission{}, fmt.Errorf("decode results failed: %w", err)
		}
	}
	sub.JudgedAt = judgedAt
	return sub, nil
}

func validateNew(sub model.Submission) error {
	switch {
	case sub.ID == "":
		return errors.New("submissionID is required")
	case sub.ContestID == "":
		return errors.New("contestID is required")
	case sub.ProblemID == "":
		return errors.New("problemID is required")
	case sub.ParticipantID == "":
		return errors.New("participantID is required")
	case sub.Language == "":
		return errors.New("language is required")
	case sub.SourceCode == "" && sub.SourceKey == "":
		return errors.New("source code or source key is required")
	}
	return nil
}

func resultsOrEmpty(results []result.TestCaseResult) []result.TestCaseResult {
	if results == nil {
		return []result.TestCaseResult{}
	}
	return results
}

func submissionCacheKey(submissionID string) string {
	return submissionCacheKeyPrefix + submissionID
}

// Schema returns the DDL for the submissions table.
func Schema(dialect db.Dialect) []string {
	text, index := "TEXT", ""
	if dialect == db.DialectMySQL {
		text = "MEDIUMTEXT"
		index = ",\n\t\t\tKEY idx_submissions_contest (contest_id, participant_id)"
	}
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS submissions (
			submission_id VARCHAR(64) PRIMARY KEY,
			contest_id VARCHAR(64) NOT NULL,
			problem_id VARCHAR(64) NOT NULL,
			participant_id VARCHAR(64) NOT NULL,
			language VARCHAR(32) NOT NULL,
			source_code %[1]s NOT NULL,
			source_key VARCHAR(255) NOT NULL,
			source_hash CHAR(64) NOT NULL,
			state VARCHAR(16) NOT NULL,
			test_count INT NOT NULL,
			results %[1]s NOT NULL,
			verdict VARCHAR(16) NOT NULL,
			score BIGINT NOT NULL,
			max_score BIGINT NOT NULL,
			submitted_at TIMESTAMP NOT NULL,
			judged_at TIMESTAMP NULL,
			error_detail %[1]s NOT NULL%[2]s
		)`, text, index),
	}
	if dialect == db.DialectPostgres {
		stmts = append(stmts, "CREATE INDEX IF NOT EXISTS idx_submissions_contest ON submissions (contest_id, participant_id)")
	}
	return stmts
}
