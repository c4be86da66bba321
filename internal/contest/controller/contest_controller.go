package controller

import (
	"contestjudge/internal/contest/service"
	"contestjudge/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

// ContestController handles contest schedule endpoints.
type ContestController struct {
	contestService *service.ContestService
}

func NewContestController(contestService *service.ContestService) *ContestController {
	return &ContestController{contestService: contestService}
}

// GetPhase handles GET /contests/:contest_id/phase.
func (h *ContestController) GetPhase(c *gin.Context) {
	view, err := h.contestService.GetPhase(c.Request.Context(), c.Param("contest_id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, view)
}
