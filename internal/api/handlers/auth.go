package handlers

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"

	"webflowwizard/engine/pkg/auth"
	"webflowwizard/engine/pkg/response"
)

type TokenRequest struct {
	Client string `json:"client" binding:"required,min=1,max=64"`
	APIKey string `json:"api_key" binding:"required"`
}

func (h *Handler) IssueToken(c *gin.Context) {
	var req TokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	token, err := h.jwt.Exchange(req.Client, req.APIKey)
	switch {
	case errors.Is(err, auth.ErrInvalidKey), errors.Is(err, auth.ErrNoKey):
		response.Unauthorized(c, err.Error())
		return
	case err != nil:
		response.InternalServerError(c, "failed to issue token")
		return
	}
	response.Success(c, gin.H{"token": token})
}

func (h *Handler) HealthCheck(c *gin.Context) {
	response.Success(c, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
		"engine":    h.ctrl.Health(),
	})
}
