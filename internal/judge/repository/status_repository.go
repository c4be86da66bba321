package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"contestjudge/internal/common/cache"
	"contestjudge/internal/judge/model"
	appErr "contestjudge/pkg/errors"
)

const (
	statusKeyPrefix   = "judge:status:"
	defaultStatusTTL  = 24 * time.Hour
	terminalStatusTTL = 7 * 24 * time.Hour
)

// StatusRepository keeps the live judging status of submissions in the cache,
// so any instance can serve a submission another instance is judging.
type StatusRepository struct {
	cache cache.Cache
	TTL   time.Duration
}

// NewStatusRepository creates a new repository.
func NewStatusRepository(cacheClient cache.Cache, ttl time.Duration) *StatusRepository {
	if ttl <= 0 {
		ttl = defaultStatusTTL
	}
	return &StatusRepository{cache: cacheClient, TTL: ttl}
}

// Get returns status by submission id.
func (r *StatusRepository) Get(ctx context.Context, submissionID string) (model.Submission, error) {
	if submissionID == "" {
		return model.Submission{}, appErr.ValidationError("submission_id", "required")
	}
	if r.cache == nil {
		return model.Submission{}, appErr.New(appErr.CacheError).WithMessage("cache client is not initialized")
	}
	val, err := r.cache.Get(ctx, statusKeyPrefix+submissionID)
	if err != nil {
		return model.Submission{}, appErr.Wrapf(err, appErr.CacheError, "load status failed")
	}
	if val == "" {
		return model.Submission{}, appErr.New(appErr.SubmissionNotFound).WithMessage("submission status not found")
	}
	var sub model.Submission
	if err := json.Unmarshal([]byte(val), &sub); err != nil {
		return model.Submission{}, appErr.Wrapf(err, appErr.CacheError, "decode status failed")
	}
	return sub, nil
}

// Save persists status. Source code is never written to the status cache.
func (r *StatusRepository) Save(ctx context.Context, sub model.Submission) error {
	if sub.ID == "" {
		return appErr.ValidationError("submission_id", "required")
	}
	if r.cache == nil {
		return appErr.New(appErr.CacheError).WithMessage("cache client is not initialized")
	}
	data, err := json.Marshal(sub.WithoutSource())
	if err != nil {
		return fmt.Errorf("marshal status failed: %w", err)
	}
	ttl := r.TTL
	if sub.State.IsTerminal() && ttl < terminalStatusTTL {
		ttl = terminalStatusTTL
	}
	if err := r.cache.Set(ctx, statusKeyPrefix+sub.ID, string(data), cache.JitterTTL(ttl)); err != nil {
		return appErr.Wrapf(err, appErr.CacheError, "store status failed")
	}
	return nil
}
