package middleware

import (
	"time"

	"github.com/Miraines/MoonyAndStarry/auth-gateway/internal/infra/metrics"
	"github.com/gin-gonic/gin"
)

// RouteKey lets handlers that dispatch by hand name the route for metrics.
const RouteKey = "metrics_route"

func Metrics(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		ts := time.Now()
		c.Next()

		route := c.GetString(RouteKey)
		if route == "" {
			route = c.FullPath()
		}
		if route == "" {
			route = "unmatched"
		}
		m.ObserveHTTP(route, c.Request.Method, c.Writer.Status(), time.Since(ts))
	}
}
