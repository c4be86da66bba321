package controller

import (
	"context"

	"contestjudge/internal/judge/model"
	"contestjudge/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

// LiveJudge exposes submissions judged by this instance.
type LiveJudge interface {
	Get(submissionID string) (model.Submission, bool)
	ActiveCount() int
}

// StatusSource reads the shared status cache.
type StatusSource interface {
	Get(ctx context.Context, submissionID string) (model.Submission, error)
}

// JudgeController serves operator views of judging, including error details
// that competitors never see.
type JudgeController struct {
	judge  LiveJudge
	status StatusSource
}

// NewJudgeController creates a new controller.
func NewJudgeController(judge LiveJudge, status StatusSource) *JudgeController {
	return &JudgeController{judge: judge, status: status}
}

// GetStatus returns the full judging record for one submission.
func (h *JudgeController) GetStatus(c *gin.Context) {
	submissionID := c.Param("id")
	if submissionID == "" {
		response.BadRequest(c, "Invalid submission id")
		return
	}
	if sub, ok := h.judge.Get(submissionID); ok {
		response.Success(c, sub.WithoutSource())
		return
	}
	if h.status == nil {
		response.NotFound(c, "submission is not being judged")
		return
	}
	status, err := h.status.Get(c.Request.Context(), submissionID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, status)
}

// StatsResponse describes the local judge load.
type StatsResponse struct {
	Active int `json:"active"`
}

// Stats returns the number of submissions judged by this instance.
func (h *JudgeController) Stats(c *gin.Context) {
	response.Success(c, StatsResponse{Active: h.judge.ActiveCount()})
}
