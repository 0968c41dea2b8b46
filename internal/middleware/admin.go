package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/intelleges/iaos-compliance-platform-sub001/internal/api/apierr"
	"github.com/intelleges/iaos-compliance-platform-sub001/internal/auth"
)

// AdminActorID identifies administrative callers in the audit trail.
const AdminActorID = "admin"

// AdminAuthMiddleware checks the Authorization bearer key against the configured
// admin key hash. When no hash is configured every admin route answers 403.
func AdminAuthMiddleware(verifier *auth.AdminVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		err := verifier.Verify(c.GetHeader("Authorization"))
		switch {
		case errors.Is(err, auth.ErrNoAdminKey):
			apierr.Abort(c, http.StatusForbidden, apierr.CodeForbidden, "admin API is disabled", nil)
			return
		case err != nil:
			apierr.Abort(c, http.StatusUnauthorized, apierr.CodeUnauthenticated, err.Error(), gin.H{"reason": "invalid"})
			return
		}
		c.Set("actor_id", AdminActorID)
		c.Next()
	}
}
