package routes

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"webflowwizard/engine/internal/api/handlers"
	"webflowwizard/engine/internal/api/middleware"
	"webflowwizard/engine/pkg/auth"
)

func SetupRoutes(h *handlers.Handler, j *auth.JWT, logger *zap.Logger) *gin.Engine {
	router := gin.New()

	router.Use(middleware.LoggerMiddleware(logger))
	router.Use(middleware.CORSMiddleware())
	router.Use(gin.Recovery())

	v1 := router.Group("/api/v1")
	{
		v1.POST("/auth/token", h.IssueToken)
		v1.GET("/health", h.HealthCheck)

		// Streams are addressed by unguessable session and run ids.
		v1.GET("/ws/recording", h.RecordingWebSocket)
		v1.GET("/ws/executions", h.ExecutionWebSocket)

		protected := v1.Group("")
		protected.Use(middleware.AuthMiddleware(j))
		{
			recording := protected.Group("/recording")
			{
				recording.POST("/start", h.StartRecording)
				recording.POST("/stop", h.StopRecording)
				recording.GET("/status", h.GetRecordingStatus)
				recording.POST("/save", h.SaveRecording)
			}

			workflows := protected.Group("/workflows")
			{
				workflows.GET("", h.GetWorkflows)
				workflows.POST("", h.CreateWorkflow)
				workflows.GET("/:id", h.GetWorkflow)
				workflows.PUT("/:id", h.UpdateWorkflow)
				workflows.DELETE("/:id", h.DeleteWorkflow)
				workflows.POST("/:id/execute", h.ExecuteWorkflow)
			}

			executions := protected.Group("/executions")
			{
				executions.GET("/status", h.GetExecutionStatus)
				executions.GET("/:id", h.GetExecution)
				executions.POST("/:id/stop", h.StopExecution)
			}
		}
	}

	return router
}
