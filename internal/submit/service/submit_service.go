package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"contestjudge/internal/common/cache"
	contestmodel "contestjudge/internal/contest/model"
	"contestjudge/internal/judge/model"
	judgeService "contestjudge/internal/judge/service"
	"contestjudge/internal/submit/repository"
	appErr "contestjudge/pkg/errors"
	"contestjudge/pkg/utils/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	idempotencyKeyPrefix  = "submit:idempotency:"
	rateParticipantPrefix = "submit:rate:participant:"
	rateIPKeyPrefix       = "submit:rate:ip:"
	processingMarker      = "processing"
	defaultMaxCodeBytes   = 64 << 10
	defaultIdempotencyTTL = 10 * time.Minute
)

// ContestGate admits submissions only while a contest is running.
type ContestGate interface {
	RequireRunning(ctx context.Context, contestID, problemID string, at time.Time) (contestmodel.Contest, contestmodel.Problem, error)
}

// Judge runs submissions. Implemented by the judge service.
type Judge interface {
	Start(ctx context.Context, sub model.Submission, problem model.ProblemSnapshot) error
	Get(submissionID string) (model.Submission, bool)
	Cancel(submissionID string) error
}

// StatusReader reads the live status written by any judging instance.
type StatusReader interface {
	Get(ctx context.Context, submissionID string) (model.Submission, error)
}

// RateLimitConfig holds throttling configuration.
type RateLimitConfig struct {
	ParticipantMax int           `yaml:"participantMax"`
	IPMax          int           `yaml:"ipMax"`
	Window         time.Duration `yaml:"window"`
}

// TimeoutConfig holds timeout settings for external calls.
type TimeoutConfig struct {
	DB      time.Duration `yaml:"db"`
	Cache   time.Duration `yaml:"cache"`
	Storage time.Duration `yaml:"storage"`
	Status  time.Duration `yaml:"status"`
}

// Config holds submit service dependencies and settings.
type Config struct {
	SubmissionRepo repository.SubmissionRepository
	Contests       ContestGate
	Judge          Judge
	// Status and Cache are optional. Without Cache there is no rate limit and no idempotency.
	Status  StatusReader
	Cache   cache.Cache
	Archive *SourceArchive

	Languages      []string
	MaxCodeBytes   int
	IdempotencyTTL time.Duration
	RateLimit      RateLimitConfig
	Timeouts       TimeoutConfig
	Now            func() time.Time
}

// SubmitService handles submission intake, queries and cancellation.
type SubmitService struct {
	submissionRepo repository.SubmissionRepository
	contests       ContestGate
	judge          Judge
	status         StatusReader
	cache          cache.Cache
	archive        *SourceArchive

	languages      []string
	maxCodeBytes   int
	idempotencyTTL time.Duration
	rateLimit      RateLimitConfig
	timeouts       TimeoutConfig
	now            func() time.Time
}

// SubmitInput describes a submission request.
type SubmitInput struct {
	ContestID      string
	ProblemID      string
	ParticipantID  string
	Language       string
	SourceCode     string
	IdempotencyKey string
	ClientIP       string
}

// NewSubmitService creates a new submit service.
func NewSubmitService(cfg Config) (*SubmitService, error) {
	if cfg.SubmissionRepo == nil {
		return nil, fmt.Errorf("submission repository is required")
	}
	if cfg.Contests == nil {
		return nil, fmt.Errorf("contest gate is required")
	}
	if cfg.Judge == nil {
		return nil, fmt.Errorf("judge is required")
	}
	if cfg.MaxCodeBytes <= 0 {
		cfg.MaxCodeBytes = defaultMaxCodeBytes
	}
	if cfg.IdempotencyTTL <= 0 {
		cfg.IdempotencyTTL = defaultIdempotencyTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &SubmitService{
		submissionRepo: cfg.SubmissionRepo,
		contests:       cfg.Contests,
		judge:          cfg.Judge,
		status:         cfg.Status,
		cache:          cfg.Cache,
		archive:        cfg.Archive,
		languages:      cfg.Languages,
		maxCodeBytes:   cfg.MaxCodeBytes,
		idempotencyTTL: cfg.IdempotencyTTL,
		rateLimit:      cfg.RateLimit,
		timeouts:       cfg.Timeouts,
		now:            cfg.Now,
	}, nil
}

// CreateSubmission validates and records a submission, then starts judging it.
// It returns once judging has been dispatched.
func (s *SubmitService) CreateSubmission(ctx context.Context, input SubmitInput) (string, error) {
	if err := s.validateInput(input); err != nil {
		return "", err
	}
	submittedAt := s.now()
	_, problem, err := s.contests.RequireRunning(ctx, input.ContestID, input.ProblemID, submittedAt)
	if err != nil {
		return "", err
	}
	if len(problem.TestCases) == 0 {
		return "", appErr.New(appErr.ProblemNotSubmittable).WithMessage("problem has no test cases")
	}
	if err := s.checkRateLimit(ctx, input.ContestID, input.ParticipantID, input.ClientIP); err != nil {
		return "", err
	}

	acquired, existingID, err := s.acquireIdempotency(ctx, input.ParticipantID, input.IdempotencyKey)
	if err != nil {
		return "", err
	}
	if !acquired && existingID != "" {
		return existingID, nil
	}

	submissionID := uuid.NewString()
	sub := model.Submission{
		ID:            submissionID,
		ContestID:     input.ContestID,
		ProblemID:     input.ProblemID,
		ParticipantID: input.ParticipantID,
		Language:      input.Language,
		SourceCode:    input.SourceCode,
		State:         model.StateCreated,
		TestCount:     len(problem.TestCases),
		MaxScore:      problem.MaxScore(),
		SubmittedAt:   submittedAt,
	}

	record := sub
	if s.archive != nil {
		key, err := s.archiveSource(ctx, submissionID, input.SourceCode)
		if err != nil {
			s.releaseIdempotency(ctx, input.ParticipantID, input.IdempotencyKey, acquired)
			return "", err
		}
		sub.SourceKey = key
		record.SourceKey = key
		record.SourceCode = ""
	}

	if err := s.createSubmission(ctx, record, hashSource(input.SourceCode)); err != nil {
		s.releaseIdempotency(ctx, input.ParticipantID, input.IdempotencyKey, acquired)
		return "", err
	}

	if err := s.judge.Start(ctx, sub, problem.Snapshot()); err != nil {
		s.deleteSubmission(ctx, submissionID)
		s.releaseIdempotency(ctx, input.ParticipantID, input.IdempotencyKey, acquired)
		return "", err
	}

	s.finalizeIdempotency(ctx, input.ParticipantID, input.IdempotencyKey, submissionID, acquired)
	logger.Info(ctx, "submission accepted",
		zap.String("submission_id", submissionID),
		zap.String("contest_id", input.ContestID),
		zap.String("problem_id", input.ProblemID),
		zap.String("participant_id", input.ParticipantID),
	)
	return submissionID, nil
}

// GetSubmission returns a submission, including partial results while it is
// being judged. The source code is never included.
func (s *SubmitService) GetSubmission(ctx context.Context, submissionID string) (*model.Submission, error) {
	if submissionID == "" {
		return nil, appErr.ValidationError("submission_id", "required")
	}
	if live, ok := s.judge.Get(submissionID); ok {
		live = live.WithoutSource()
		return &live, nil
	}
	if s.status != nil {
		ctxStatus := withTimeout(ctx, s.timeouts.Status)
		status, err := s.status.Get(ctxStatus.ctx, submissionID)
		ctxStatus.cancel()
		if err == nil {
			return &status, nil
		}
		if !appErr.Is(err, appErr.SubmissionNotFound) {
			logger.Warn(ctx, "read submission status failed", zap.String("submission_id", submissionID), zap.Error(err))
		}
	}
	sub, err := s.getStored(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	sub = sub.WithoutSource()
	return &sub, nil
}

// GetSource returns the source code of a submission.
func (s *SubmitService) GetSource(ctx context.Context, submissionID string) (string, error) {
	if submissionID == "" {
		return "", appErr.ValidationError("submission_id", "required")
	}
	sub, err := s.getStored(ctx, submissionID)
	if err != nil {
		return "", err
	}
	if sub.SourceCode != "" || sub.SourceKey == "" {
		return sub.SourceCode, nil
	}
	if s.archive == nil {
		return "", appErr.New(appErr.ServiceUnavailable).WithMessage("source archive is not configured")
	}
	ctxStorage := withTimeout(ctx, s.timeouts.Storage)
	defer ctxStorage.cancel()
	source, err := s.archive.Get(ctxStorage.ctx, sub.SourceKey)
	if err != nil {
		return "", appErr.Wrapf(err, appErr.ServiceUnavailable, "load archived source failed")
	}
	return source, nil
}

// CancelSubmission aborts judging; the submission ends Failed/CANCELLED.
func (s *SubmitService) CancelSubmission(ctx context.Context, submissionID string) error {
	if submissionID == "" {
		return appErr.ValidationError("submission_id", "required")
	}
	err := s.judge.Cancel(submissionID)
	if err == nil {
		logger.Info(ctx, "submission cancel requested", zap.String("submission_id", submissionID))
		return nil
	}
	if !errors.Is(err, judgeService.ErrNotActive) {
		return appErr.Wrapf(err, appErr.SubmissionCancelFailed, "cancel submission failed")
	}
	sub, lookupErr := s.GetSubmission(ctx, submissionID)
	if lookupErr != nil {
		return lookupErr
	}
	if sub.State.IsTerminal() {
		return appErr.New(appErr.SubmissionAlreadyFinished).WithDetail("state", string(sub.State))
	}
	return appErr.New(appErr.SubmissionCancelFailed).WithMessage("submission is judged by another instance")
}

// HandleTerminal persists the outcome of a finished submission.
func (s *SubmitService) HandleTerminal(ctx context.Context, sub model.Submission) error {
	ctxDB := withTimeout(ctx, s.timeouts.DB)
	defer ctxDB.cancel()
	if err := s.submissionRepo.SaveResult(ctxDB.ctx, nil, sub.WithoutSource()); err != nil {
		return appErr.Wrapf(err, appErr.DatabaseError, "persist submission result failed")
	}
	return nil
}

func (s *SubmitService) getStored(ctx context.Context, submissionID string) (model.Submission, error) {
	ctxDB := withTimeout(ctx, s.timeouts.DB)
	defer ctxDB.cancel()
	sub, err := s.submissionRepo.GetByID(ctxDB.ctx, nil, submissionID)
	if err != nil {
		if errors.Is(err, repository.ErrSubmissionNotFound) {
			return model.Submission{}, appErr.New(appErr.SubmissionNotFound).WithMessage("submission not found")
		}
		return model.Submission{}, appErr.Wrapf(err, appErr.DatabaseError, "get submission failed")
	}
	return sub, nil
}

func (s *SubmitService) validateInput(input SubmitInput) error {
	if strings.TrimSpace(input.ContestID) == "" {
		return appErr.ValidationError("contest_id", "required")
	}
	if strings.TrimSpace(input.ProblemID) == "" {
		return appErr.ValidationError("problem_id", "required")
	}
	if strings.TrimSpace(input.ParticipantID) == "" {
		return appErr.ValidationError("participant_id", "required")
	}
	if strings.TrimSpace(input.Language) == "" {
		return appErr.ValidationError("language", "required")
	}
	if strings.TrimSpace(input.SourceCode) == "" {
		return appErr.ValidationError("source_code", "required")
	}
	if len(s.languages) > 0 && !slices.Contains(s.languages, input.Language) {
		return appErr.New(appErr.LanguageNotSupported).WithDetail("language", input.Language)
	}
	if len(input.SourceCode) > s.maxCodeBytes {
		return appErr.New(appErr.CodeTooLarge).WithMessage("source code too large")
	}
	return nil
}

func (s *SubmitService) archiveSource(ctx context.Context, submissionID, source string) (string, error) {
	ctxStorage := withTimeout(ctx, s.timeouts.Storage)
	defer ctxStorage.cancel()
	key, err := s.archive.Put(ctxStorage.ctx, submissionID, source)
	if err != nil {
		return "", appErr.Wrapf(err, appErr.SubmissionCreateFailed, "upload source failed")
	}
	return key, nil
}

func (s *SubmitService) createSubmission(ctx context.Context, sub model.Submission, sourceHash string) error {
	ctxDB := withTimeout(ctx, s.timeouts.DB)
	defer ctxDB.cancel()
	if err := s.submissionRepo.Create(ctxDB.ctx, nil, sub, sourceHash); err != nil {
		return appErr.Wrapf(err, appErr.SubmissionCreateFailed, "create submission failed")
	}
	return nil
}

func (s *SubmitService) deleteSubmission(ctx context.Context, submissionID string) {
	ctxDB := withTimeout(context.WithoutCancel(ctx), s.timeouts.DB)
	defer ctxDB.cancel()
	if err := s.submissionRepo.Delete(ctxDB.ctx, nil, submissionID); err != nil {
		logger.Warn(ctx, "delete undispatched submission failed", zap.String("submission_id", submissionID), zap.Error(err))
	}
}

type timeoutCtx struct {
	ctx    context.Context
	cancel context.CancelFunc
}

func withTimeout(ctx context.Context, timeout time.Duration) timeoutCtx {
	if timeout <= 0 {
		return timeoutCtx{ctx: ctx, cancel: func() {}}
	}
	ctxTimeout, cancel := context.WithTimeout(ctx, timeout)
	return timeoutCtx{ctx: ctxTimeout, cancel: cancel}
}
