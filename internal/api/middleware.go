package api

import (
	"time"

	"github.com/gin-gonic/gin"

	"monitoring-service/internal/logging"
)

func RequestLoggingMiddleware(logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method
		c.Next()
		latency := time.Since(start)
		status := c.Writer.Status()
		log := logger.WithFields(logging.Fields{"method": method, "path": path, "status": status, "latency": latency})
		if status >= 500 {
			log.Errorf("Request failed: %s", c.Errors.String())
			return
		}
		log.Debugf("Request served")
	}
}
