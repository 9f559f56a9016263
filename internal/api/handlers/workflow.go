package handlers

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"webflowwizard/engine/internal/models"
	"webflowwizard/engine/internal/services"
	"webflowwizard/engine/pkg/response"
)

func (h *Handler) GetWorkflows(c *gin.Context) {
	st := h.ctrl.Store()
	if st == nil {
		h.fail(c, services.ErrNoStore)
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "10"))
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 10
	}

	workflows, total, err := st.ListWorkflows(c.Request.Context(), (page-1)*pageSize, pageSize)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Page(c, workflows, total, page, pageSize)
}

func (h *Handler) GetWorkflow(c *gin.Context) {
	st := h.ctrl.Store()
	if st == nil {
		h.fail(c, services.ErrNoStore)
		return
	}
	wf, err := st.FindWorkflow(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, wf)
}

// CreateWorkflow accepts a workflow envelope, typically one exported by the
// CLI recorder. A missing id is generated.
func (h *Handler) CreateWorkflow(c *gin.Context) {
	wf, ok := h.bindWorkflow(c)
	if !ok {
		return
	}
	if wf.ID == "" {
		wf.ID = uuid.NewString()
	}

	if err := h.ctrl.Store().AppendWorkflow(c.Request.Context(), wf); err != nil {
		h.fail(c, err)
		return
	}
	h.schedule(wf)
	response.SuccessWithMessage(c, "workflow created", wf)
}

func (h *Handler) UpdateWorkflow(c *gin.Context) {
	wf, ok := h.bindWorkflow(c)
	if !ok {
		return
	}
	wf.ID = c.Param("id")

	if err := h.ctrl.Store().ReplaceWorkflow(c.Request.Context(), wf); err != nil {
		h.fail(c, err)
		return
	}
	h.schedule(wf)
	response.SuccessWithMessage(c, "workflow updated", wf)
}

func (h *Handler) DeleteWorkflow(c *gin.Context) {
	st := h.ctrl.Store()
	if st == nil {
		h.fail(c, services.ErrNoStore)
		return
	}
	id := c.Param("id")
	if err := st.DeleteWorkflow(c.Request.Context(), id); err != nil {
		h.fail(c, err)
		return
	}
	if h.scheduler != nil {
		h.scheduler.Remove(id)
	}
	response.SuccessWithMessage(c, "workflow deleted", nil)
}

func (h *Handler) ExecuteWorkflow(c *gin.Context) {
	var req services.ExecuteRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}
	}
	req.Trigger = services.TriggerManual

	runID, err := h.ctrl.ExecuteStored(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.SuccessWithMessage(c, "execution started", gin.H{"run_id": runID})
}

// bindWorkflow decodes and checks a workflow body, answering the request
// itself when it is unusable.
func (h *Handler) bindWorkflow(c *gin.Context) (*models.Workflow, bool) {
	if h.ctrl.Store() == nil {
		h.fail(c, services.ErrNoStore)
		return nil, false
	}
	body, err := c.GetRawData()
	if err != nil {
		response.BadRequest(c, err.Error())
		return nil, false
	}
	wf, err := models.DecodeWorkflow(body)
	if err != nil {
		response.BadRequest(c, err.Error())
		return nil, false
	}

	wf.Name = strings.TrimSpace(wf.Name)
	if wf.Name == "" {
		response.BadRequest(c, "name is required")
		return nil, false
	}
	for _, s := range wf.Steps {
		if err := s.Validate(); err != nil {
			response.BadRequest(c, err.Error())
			return nil, false
		}
	}
	wf.CronExpression = strings.TrimSpace(wf.CronExpression)
	if err := services.ValidateCron(wf.CronExpression); err != nil {
		response.BadRequest(c, err.Error())
		return nil, false
	}
	return wf, true
}
