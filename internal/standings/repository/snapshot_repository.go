package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"contestjudge/internal/common/cache"
	"contestjudge/internal/standings/service"
	appErr "contestjudge/pkg/errors"
)

const snapshotKeyPrefix = "standings:"

// SnapshotRepository persists board entries in a Redis hash per contest,
// one field per participant.
type SnapshotRepository struct {
	cache cache.Cache
}

func NewSnapshotRepository(cacheClient cache.Cache) *SnapshotRepository {
	return &SnapshotRepository{cache: cacheClient}
}

// SaveEntry writes one participant's entry.
func (r *SnapshotRepository) SaveEntry(ctx context.Context, contestID string, entry service.BoardEntry) error {
	if r.cache == nil {
		return appErr.New(appErr.CacheError).WithMessage("cache client is not initialized")
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal board entry failed: %w", err)
	}
	if err := r.cache.HSet(ctx, snapshotKeyPrefix+contestID, entry.Standing.ParticipantID, string(data)); err != nil {
		return appErr.Wrapf(err, appErr.CacheError, "store board entry failed")
	}
	return nil
}

// LoadEntries reads every persisted entry of a contest.
func (r *SnapshotRepository) LoadEntries(ctx context.Context, contestID string) ([]service.BoardEntry, error) {
	if r.cache == nil {
		return nil, appErr.New(appErr.CacheError).WithMessage("cache client is not initialized")
	}
	fields, err := r.cache.HGetAll(ctx, snapshotKeyPrefix+contestID)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.CacheError, "load board failed")
	}
	entries := make([]service.BoardEntry, 0, len(fields))
	for participantID, raw := range fields {
		var entry service.BoardEntry
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			return nil, appErr.Wrapf(err, appErr.CacheError, "decode board entry %s failed", participantID)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
