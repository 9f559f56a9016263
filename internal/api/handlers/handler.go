package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"webflowwizard/engine/internal/executor"
	"webflowwizard/engine/internal/models"
	"webflowwizard/engine/internal/notify"
	"webflowwizard/engine/internal/recorder"
	"webflowwizard/engine/internal/services"
	"webflowwizard/engine/internal/store"
	"webflowwizard/engine/pkg/auth"
	"webflowwizard/engine/pkg/response"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type Handler struct {
	ctrl      *services.Controller
	scheduler *services.Scheduler
	hub       *notify.Hub
	jwt       *auth.JWT
	logger    *zap.Logger
}

// New builds the API handlers. scheduler may be nil when persistence is off.
func New(ctrl *services.Controller, scheduler *services.Scheduler, hub *notify.Hub, j *auth.JWT, logger *zap.Logger) *Handler {
	return &Handler{
		ctrl:      ctrl,
		scheduler: scheduler,
		hub:       hub,
		jwt:       j,
		logger:    logger.Named("api"),
	}
}

// fail maps domain errors onto the response envelope codes.
func (h *Handler) fail(c *gin.Context, err error) {
	msg := err.Error()
	switch {
	case errors.Is(err, recorder.ErrSessionNotFound),
		errors.Is(err, executor.ErrRunNotFound),
		errors.Is(err, store.ErrNotFound):
		response.NotFound(c, msg)
	case errors.Is(err, services.ErrInvalidURL),
		errors.Is(err, executor.ErrEmptyWorkflow),
		errors.Is(err, models.ErrInvalidConfig),
		errors.Is(err, models.ErrUnsupportedVersion):
		response.BadRequest(c, msg)
	case errors.Is(err, services.ErrStillActive),
		errors.Is(err, recorder.ErrAlreadyRecording),
		errors.Is(err, recorder.ErrNotRecording),
		errors.Is(err, executor.ErrRunExists):
		response.Conflict(c, msg)
	case errors.Is(err, executor.ErrQueueFull),
		errors.Is(err, services.ErrNoStore):
		response.ServiceUnavailable(c, msg)
	default:
		h.logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		response.InternalServerError(c, msg)
	}
}

// stream upgrades the request and forwards hub events on topic until the
// client disconnects.
func (h *Handler) stream(c *gin.Context, topic string) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()
	h.hub.Serve(topic, conn)
}
