package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/FeatureScope/internal/infrastructure/monitoring/prometheus"
)

// Metrics records request counts, latency and in-flight requests. The path
// label is the route template so session ids do not explode cardinality.
func Metrics(m *prometheus.AppMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		method := c.Request.Method
		m.HTTPActiveRequests.WithLabelValues(method).Inc()
		start := time.Now()

		c.Next()

		m.HTTPActiveRequests.WithLabelValues(method).Dec()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		prometheus.RecordHTTPRequest(m, method, route, c.Writer.Status(), time.Since(start))
	}
}
