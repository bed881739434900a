package api

import (
	"github.com/gin-gonic/gin"

	"monitoring-service/internal/logging"
)

func NewRouter(logger *logging.Logger, basePath string, h *Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLoggingMiddleware(logger))

	r.GET("/health", h.Health)

	api := r.Group(basePath)
	{
		// Notifications
		api.POST("/notify", h.Notify)
		api.GET("/notification-types", h.NotificationTypes)
		api.GET("/notification-priorities", h.NotificationPriorities)

		// Dead letters
		api.GET("/deadletters", h.DeadLetters)
		api.GET("/deadletters/unprocessed", h.UnprocessedDeadLetters)
		api.POST("/deadletters/:id/process", h.ProcessDeadLetter)
		api.POST("/deadletters/:id/resend", h.ResendDeadLetter)

		// Templates
		api.GET("/templates/:name", h.GetTemplate)
		api.PUT("/templates/:name", h.PutTemplate)

		// Alerting
		api.POST("/metrics", h.EvaluateMetric)
		api.GET("/alerts", h.Alerts)
		api.GET("/health", h.Health)
	}
	return r
}
