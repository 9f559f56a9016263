package handlers

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"webflowwizard/engine/internal/models"
	"webflowwizard/engine/internal/services"
	"webflowwizard/engine/pkg/response"
)

func (h *Handler) StartRecording(c *gin.Context) {
	var req struct {
		TargetURL string `json:"target_url" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	sessionID, err := h.ctrl.StartRecording(c.Request.Context(), req.TargetURL)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.SuccessWithMessage(c, "recording started", gin.H{
		"session_id": sessionID,
	})
}

func (h *Handler) StopRecording(c *gin.Context) {
	var req struct {
		SessionID string `json:"session_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	steps, err := h.ctrl.StopRecording(c.Request.Context(), req.SessionID)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.SuccessWithMessage(c, "recording stopped", gin.H{
		"session_id": req.SessionID,
		"steps":      nonNil(steps),
	})
}

func (h *Handler) GetRecordingStatus(c *gin.Context) {
	sessionID := c.Query("session_id")
	if sessionID == "" {
		response.BadRequest(c, "session_id is required")
		return
	}

	isRecording, steps, err := h.ctrl.RecordingStatus(sessionID)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, gin.H{
		"is_recording": isRecording,
		"steps":        nonNil(steps),
	})
}

func (h *Handler) SaveRecording(c *gin.Context) {
	var req services.SaveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if err := services.ValidateCron(req.CronExpression); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	wf, err := h.ctrl.SaveRecording(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.schedule(wf)
	response.SuccessWithMessage(c, "recording saved", wf)
}

func (h *Handler) RecordingWebSocket(c *gin.Context) {
	sessionID := c.Query("session_id")
	if sessionID == "" {
		response.BadRequest(c, "session_id is required")
		return
	}
	if _, _, err := h.ctrl.RecordingStatus(sessionID); err != nil {
		h.fail(c, err)
		return
	}
	h.stream(c, sessionID)
}

func (h *Handler) schedule(wf *models.Workflow) {
	if h.scheduler == nil {
		return
	}
	if err := h.scheduler.Sync(wf); err != nil {
		h.logger.Warn("failed to schedule workflow", zap.String("workflow_id", wf.ID), zap.Error(err))
	}
}

func nonNil(steps []models.Step) []models.Step {
	if steps == nil {
		return []models.Step{}
	}
	return steps
}
