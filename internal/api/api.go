// Package api exposes the control surface of the monitoring service over HTTP.
package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"monitoring-service/internal/alerting"
	"monitoring-service/internal/db"
	"monitoring-service/internal/logging"
	"monitoring-service/internal/notification"
	"monitoring-service/internal/permanent"
)

type Handler struct {
	notifier *notification.Service
	engine   *alerting.Engine
	store    db.Store
	logger   *logging.Logger
}

func NewHandler(notifier *notification.Service, engine *alerting.Engine, store db.Store, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Handler{notifier: notifier, engine: engine, store: store, logger: logger}
}

// result is the body of write endpoints.
type result struct {
	Success      bool   `json:"success"`
	ID           string `json:"id,omitempty"`
	ErrorMessage string `json:"errorMessage,omitempty"`
}

func fail(c *gin.Context, status int, err error) {
	c.JSON(status, result{Success: false, ErrorMessage: err.Error()})
}

// statusOf maps service errors onto HTTP statuses.
func statusOf(err error) int {
	switch {
	case errors.Is(err, db.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, db.ErrAlreadyProcessed):
		return http.StatusConflict
	case errors.Is(err, alerting.ErrHistoryUnavailable):
		return http.StatusServiceUnavailable
	case permanent.Is(err):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
