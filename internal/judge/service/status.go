package service

import (
	"context"

	"contestjudge/internal/judge/model"
	"contestjudge/pkg/utils/logger"

	"go.uber.org/zap"
)

func (s *JudgeService) saveStatus(ctx context.Context, sub model.Submission) {
	if s.statusStore == nil {
		return
	}
	ctxStatus, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.statusTimeout)
	defer cancel()
	if err := s.statusStore.Save(ctxStatus, sub); err != nil {
		logger.Warn(ctx, "update judge status failed", zap.Error(err))
	}
}

// notifyTerminal delivers the final submission to every handler. A failing
// handler is logged and does not stop the others.
func (s *JudgeService) notifyTerminal(ctx context.Context, sub model.Submission) {
	base := context.WithoutCancel(ctx)
	s.saveStatus(base, sub)
	for _, h := range s.handlers {
		ctxHandler, cancel := context.WithTimeout(base, s.handlerTimeout)
		err := h.HandleTerminal(ctxHandler, sub)
		cancel()
		if err != nil {
			logger.Error(ctx, "terminal handler failed",
				zap.String("state", string(sub.State)), zap.Error(err))
		}
	}
}
