package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/intelleges/iaos-compliance-platform-sub001/internal/audit"
)

// RequestInfoMiddleware attaches the caller's IP, user agent and request ID to the
// request context so audit entries can be attributed before any session exists.
// It must run after RequestIDMiddleware.
func RequestInfoMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := audit.WithRequestInfo(c.Request.Context(), audit.RequestInfo{
			IPAddress: c.ClientIP(),
			UserAgent: c.Request.UserAgent(),
			RequestID: RequestID(c),
		})
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
