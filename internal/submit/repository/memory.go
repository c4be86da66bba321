package repository

import (
	"context"
	"sync"

	"contestjudge/internal/common/db"
	"contestjudge/internal/judge/model"
)

// MemorySubmissionRepository keeps submissions in process memory.
// Used for local runs without a database.
type MemorySubmissionRepository struct {
	mu          sync.RWMutex
	submissions map[string]model.Submission
}

func NewMemorySubmissionRepository() *MemorySubmissionRepository {
	return &MemorySubmissionRepository{submissions: make(map[string]model.Submission)}
}

func (r *MemorySubmissionRepository) Create(ctx context.Context, tx db.Transaction, sub model.Submission, sourceHash string) error {
	if err := validateNew(sub); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.submissions[sub.ID]; exists {
		return ErrSubmissionExists
	}
	r.submissions[sub.ID] = sub.Clone()
	return nil
}

func (r *MemorySubmissionRepository) SaveResult(ctx context.Context, tx db.Transaction, sub model.Submission) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.submissions[sub.ID]
	if !ok {
		return ErrSubmissionNotFound
	}
	next := sub.Clone()
	next.SourceCode = stored.SourceCode
	next.SourceKey = stored.SourceKey
	r.submissions[sub.ID] = next
	return nil
}

func (r *MemorySubmissionRepository) GetByID(ctx context.Context, tx db.Transaction, submissionID string) (model.Submission, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sub, ok := r.submissions[submissionID]
	if !ok {
		return model.Submission{}, ErrSubmissionNotFound
	}
	return sub.Clone(), nil
}

func (r *MemorySubmissionRepository) Delete(ctx context.Context, tx db.Transaction, submissionID string) error {
	r.mu.Lock()
	delete(r.submissions, submissionID)
	r.mu.Unlock()
	return nil
}
