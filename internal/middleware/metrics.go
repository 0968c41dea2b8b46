// Package middleware provides the Gin middleware of the supplier portal API. All
// middleware is registered in internal/api/router.go before any route handler:
//
//	Recovery → RequestID → Metrics → Logger → CORS → SecurityHeaders →
//	RequestInfo → RateLimit → SupplierSession / AdminAuth → handler
package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/intelleges/iaos-compliance-platform-sub001/internal/telemetry"
)

// MetricsMiddleware records http_requests_total{method,path,status} and
// http_request_duration_seconds{method,path} for every request.
//
// The path label is the matched route template (/api/v1/supplier/responses/:questionId)
// rather than the raw URL. Unmatched requests use "<no-route>" so unknown paths do
// not inflate label cardinality.
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "<no-route>"
		}
		method := c.Request.Method

		telemetry.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(c.Writer.Status())).Inc()
		telemetry.HTTPRequestDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	}
}
