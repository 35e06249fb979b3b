package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/wms-platform/verification-service/pkg/metrics"
)

// probePaths are polled by the platform, not by operators. They stay out of
// request metrics, request logs and traces.
var probePaths = []string{"/health", "/ready", "/metrics"}

func isProbe(path string) bool {
	for _, p := range probePaths {
		if p == path {
			return true
		}
	}
	return false
}

// MetricsMiddleware records operator traffic by route pattern. Unknown paths
// share one label so scanners probing stale URLs cannot grow the series set.
func MetricsMiddleware(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		if isProbe(c.Request.URL.Path) {
			c.Next()
			return
		}

		m.IncrementHTTPRequestsInFlight()
		defer m.DecrementHTTPRequestsInFlight()

		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.RecordHTTPRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}

// MetricsEndpoint serves the service registry only; there are no global collectors.
func MetricsEndpoint(m *metrics.Metrics) gin.HandlerFunc {
	return gin.WrapH(m.Handler())
}
