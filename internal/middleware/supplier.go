package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/intelleges/iaos-compliance-platform-sub001/internal/api/apierr"
	"github.com/intelleges/iaos-compliance-platform-sub001/internal/session"
)

// SessionKey is the gin.Context key holding the resolved *session.Session.
const SessionKey = "supplier_session"

// SupplierSessionMiddleware resolves the session from the cookie or bearer token and
// rejects the request with UNAUTHENTICATED and a reason when it is not usable.
func SupplierSessionMiddleware(manager *session.Manager, cookieName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, err := manager.ResolveRequest(c.Request.Context(), c.Request, cookieName)
		if err != nil {
			apierr.Respond(c, err)
			return
		}
		c.Set(SessionKey, sess)
		c.Next()
	}
}

// SessionFromContext returns the session set by SupplierSessionMiddleware.
func SessionFromContext(c *gin.Context) (*session.Session, bool) {
	v, ok := c.Get(SessionKey)
	if !ok {
		return nil, false
	}
	sess, ok := v.(*session.Session)
	return sess, ok && sess != nil
}
