package handlers

import (
	"github.com/gin-gonic/gin"

	"webflowwizard/engine/internal/models"
	"webflowwizard/engine/pkg/response"
)

type executionView struct {
	*models.ExecutionRun
	Results []models.ExecutionResult `json:"results"`
}

func (h *Handler) GetExecutionStatus(c *gin.Context) {
	runID := c.Query("run_id")
	if runID == "" {
		response.BadRequest(c, "run_id is required")
		return
	}
	response.Success(c, h.ctrl.ExecutionStatus(runID))
}

func (h *Handler) StopExecution(c *gin.Context) {
	if err := h.ctrl.StopExecution(c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	response.SuccessWithMessage(c, "stop requested", nil)
}

func (h *Handler) GetExecution(c *gin.Context) {
	run, err := h.ctrl.Run(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	results, err := run.GetResults()
	if err != nil {
		h.fail(c, err)
		return
	}
	if results == nil {
		results = []models.ExecutionResult{}
	}
	response.Success(c, executionView{ExecutionRun: run, Results: results})
}

func (h *Handler) ExecutionWebSocket(c *gin.Context) {
	runID := c.Query("run_id")
	if runID == "" {
		response.BadRequest(c, "run_id is required")
		return
	}
	h.stream(c, runID)
}
