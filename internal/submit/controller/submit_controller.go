package controller

import (
	"strings"
	"time"

	"contestjudge/internal/common/http/middleware"
	"contestjudge/internal/judge/model"
	"contestjudge/internal/judge/result"
	"contestjudge/internal/submit/service"
	"contestjudge/pkg/errors"
	"contestjudge/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

// SubmitController handles submission HTTP endpoints.
type SubmitController struct {
	submitService *service.SubmitService
}

// NewSubmitController creates a new SubmitController.
func NewSubmitController(submitService *service.SubmitService) *SubmitController {
	return &SubmitController{submitService: submitService}
}

// Create handles POST /contests/:contest_id/submissions.
func (h *SubmitController) Create(c *gin.Context) {
	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request parameters")
		return
	}

	submissionID, err := h.submitService.CreateSubmission(c.Request.Context(), service.SubmitInput{
		ContestID:      c.Param("contest_id"),
		ProblemID:      req.ProblemID,
		ParticipantID:  middleware.UserID(c),
		Language:       req.Language,
		SourceCode:     req.SourceCode,
		IdempotencyKey: strings.TrimSpace(c.GetHeader("Idempotency-Key")),
		ClientIP:       c.ClientIP(),
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, SubmitResponse{SubmissionID: submissionID})
}

// Get handles GET /submissions/:id. Participants only see their own submissions.
func (h *SubmitController) Get(c *gin.Context) {
	sub, err := h.submitService.GetSubmission(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	if !canView(c, sub.ParticipantID) {
		response.ErrorWithCode(c, errors.Forbidden, "not your submission")
		return
	}
	response.Success(c, NewSubmissionView(*sub))
}

// GetSource handles GET /submissions/:id/source.
func (h *SubmitController) GetSource(c *gin.Context) {
	id := c.Param("id")
	sub, err := h.submitService.GetSubmission(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	if !canView(c, sub.ParticipantID) {
		response.ErrorWithCode(c, errors.Forbidden, "not your submission")
		return
	}
	source, err := h.submitService.GetSource(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, SourceResponse{SubmissionID: id, Language: sub.Language, SourceCode: source})
}

// Cancel handles POST /submissions/:id/cancel.
func (h *SubmitController) Cancel(c *gin.Context) {
	id := c.Param("id")
	if err := h.submitService.CancelSubmission(c.Request.Context(), id); err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, SubmitResponse{SubmissionID: id})
}

func canView(c *gin.Context, participantID string) bool {
	return strings.EqualFold(middleware.UserRole(c), middleware.RoleAdmin) || middleware.UserID(c) == participantID
}

// SubmitRequest defines submission payload.
type SubmitRequest struct {
	ProblemID  string `json:"problem_id" binding:"required"`
	Language   string `json:"language" binding:"required"`
	SourceCode string `json:"source_code" binding:"required"`
}

// SubmitResponse defines submission response payload.
type SubmitResponse struct {
	SubmissionID string `json:"submission_id"`
}

// SourceResponse defines source query response payload.
type SourceResponse struct {
	SubmissionID string `json:"submission_id"`
	Language     string `json:"language"`
	SourceCode   string `json:"source_code"`
}

// TestCaseView is a test case result as shown to competitors.
type TestCaseView struct {
	Index     int            `json:"index"`
	Outcome   result.Verdict `json:"outcome"`
	Display   string         `json:"display"`
	Points    int64          `json:"points"`
	CPUTimeMs int64          `json:"cpu_time_ms"`
	MemoryKb  int64          `json:"memory_kb"`
}

// SubmissionView is the competitor-facing submission. Operator diagnostics are omitted.
type SubmissionView struct {
	SubmissionID  string         `json:"submission_id"`
	ContestID     string         `json:"contest_id"`
	ProblemID     string         `json:"problem_id"`
	ParticipantID string         `json:"participant_id"`
	Language      string         `json:"language"`
	State         model.State    `json:"state"`
	Verdict       result.Verdict `json:"verdict,omitempty"`
	Display       string         `json:"display,omitempty"`
	Score         int64          `json:"score"`
	MaxScore      int64          `json:"max_score"`
	TestCount     int            `json:"test_count"`
	TestCases     []TestCaseView `json:"test_cases"`
	SubmittedAt   string         `json:"submitted_at"`
	JudgedAt      string         `json:"judged_at,omitempty"`
}

// NewSubmissionView builds the competitor-facing view.
func NewSubmissionView(sub model.Submission) SubmissionView {
	view := SubmissionView{
		SubmissionID:  sub.ID,
		ContestID:     sub.ContestID,
		ProblemID:     sub.ProblemID,
		ParticipantID: sub.ParticipantID,
		Language:      sub.Language,
		State:         sub.State,
		Verdict:       sub.Verdict,
		Score:         sub.Score,
		MaxScore:      sub.MaxScore,
		TestCount:     sub.TestCount,
		TestCases:     make([]TestCaseView, 0, len(sub.TestCaseResults)),
		SubmittedAt:   sub.SubmittedAt.UTC().Format(time.RFC3339),
	}
	if sub.Verdict != "" {
		view.Display = sub.Verdict.Display()
	}
	if sub.JudgedAt != nil {
		view.JudgedAt = sub.JudgedAt.UTC().Format(time.RFC3339)
	}
	for _, r := range sub.TestCaseResults {
		view.TestCases = append(view.TestCases, TestCaseView{
			Index:     r.Index,
			Outcome:   r.Outcome,
			Display:   r.Outcome.Display(),
			Points:    r.Points,
			CPUTimeMs: r.CPUTimeMs,
			MemoryKb:  r.MemoryKb,
		})
	}
	return view
}
