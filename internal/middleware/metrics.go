package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/mashov-bridge/internal/service"
)

// Metrics records request latency per route template. Unmatched paths share
// one label so scanners cannot grow the series count, and scrapes of the
// metrics endpoint are not counted.
func Metrics(metricsSvc *service.MetricsService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if metricsSvc == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		route := c.FullPath()
		switch route {
		case "/metrics":
			return
		case "":
			route = "unmatched"
		}
		metricsSvc.ObserveHTTPRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}
