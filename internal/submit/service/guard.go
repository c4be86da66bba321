package service

import (
	"context"
	"strings"

	appErr "contestjudge/pkg/errors"
	"contestjudge/pkg/utils/logger"

	"go.uber.org/zap"
)

// Idempotency keys are scoped per participant so two users cannot collide.
func idempotencyCacheKey(participantID, key string) string {
	return idempotencyKeyPrefix + participantID + ":" + strings.TrimSpace(key)
}

func (s *SubmitService) acquireIdempotency(ctx context.Context, participantID, key string) (bool, string, error) {
	if s.cache == nil || strings.TrimSpace(key) == "" {
		return true, "", nil
	}
	cacheKey := idempotencyCacheKey(participantID, key)
	ctxCache := withTimeout(ctx, s.timeouts.Cache)
	defer ctxCache.cancel()

	ok, err := s.cache.SetNX(ctxCache.ctx, cacheKey, processingMarker, s.idempotencyTTL)
	if err != nil {
		return false, "", appErr.Wrapf(err, appErr.CacheError, "reserve idempotency key failed")
	}
	if ok {
		return true, "", nil
	}
	existing, err := s.cache.Get(ctxCache.ctx, cacheKey)
	if err != nil {
		return false, "", appErr.Wrapf(err, appErr.CacheError, "read idempotency key failed")
	}
	if existing != "" && existing != processingMarker {
		return false, existing, nil
	}
	return false, "", appErr.New(appErr.TooManyRequests).WithMessage("request is processing")
}

func (s *SubmitService) finalizeIdempotency(ctx context.Context, participantID, key, submissionID string, acquired bool) {
	if !acquired || s.cache == nil || strings.TrimSpace(key) == "" {
		return
	}
	ctxCache := withTimeout(ctx, s.timeouts.Cache)
	defer ctxCache.cancel()
	if err := s.cache.Set(ctxCache.ctx, idempotencyCacheKey(participantID, key), submissionID, s.idempotencyTTL); err != nil {
		logger.Warn(ctx, "update idempotency key failed", zap.Error(err))
	}
}

func (s *SubmitService) releaseIdempotency(ctx context.Context, participantID, key string, acquired bool) {
	if !acquired || s.cache == nil || strings.TrimSpace(key) == "" {
		return
	}
	ctxCache := withTimeout(context.WithoutCancel(ctx), s.timeouts.Cache)
	defer ctxCache.cancel()
	if err := s.cache.Del(ctxCache.ctx, idempotencyCacheKey(participantID, key)); err != nil {
		logger.Warn(ctx, "release idempotency key failed", zap.Error(err))
	}
}

func (s *SubmitService) checkRateLimit(ctx context.Context, contestID, participantID, clientIP string) error {
	if s.cache == nil || s.rateLimit.Window <= 0 || (s.rateLimit.ParticipantMax <= 0 && s.rateLimit.IPMax <= 0) {
		return nil
	}
	ctxCache := withTimeout(ctx, s.timeouts.Cache)
	defer ctxCache.cancel()

	if s.rateLimit.ParticipantMax > 0 {
		key := rateParticipantPrefix + contestID + ":" + participantID
		if err := s.checkRateCounter(ctxCache.ctx, key, s.rateLimit.ParticipantMax); err != nil {
			return err
		}
	}
	if s.rateLimit.IPMax > 0 && clientIP != "" {
		if err := s.checkRateCounter(ctxCache.ctx, rateIPKeyPrefix+clientIP, s.rateLimit.IPMax); err != nil {
			return err
		}
	}
	return nil
}

func (s *SubmitService) checkRateCounter(ctx context.Context, key string, max int) error {
	count, err := s.cache.Incr(ctx, key)
	if err != nil {
		return appErr.Wrapf(err, appErr.CacheError, "rate limit check failed")
	}
	if count == 1 {
		_ = s.cache.Expire(ctx, key, s.rateLimit.Window)
	}
	if int(count) > max {
		return appErr.New(appErr.SubmitTooFrequently).WithMessage("submit too frequently")
	}
	return nil
}
