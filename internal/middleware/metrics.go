package middleware

import (
	"time"

	"github.com/GoPolymarket/reqlog/internal/pkg/metrics"
	"github.com/gin-gonic/gin"
)

// MetricsMiddleware observes latency per route template. Unmatched paths share
// one label so proxied traffic cannot blow up cardinality.
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		duration := time.Since(start).Seconds()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		metrics.LatencyBucket.WithLabelValues(endpoint).Observe(duration)
	}
}
