// Package admin implements the administrative API: access-code issuance, review
// outcomes, touchpoint reads and the audit trail. Every route sits behind
// middleware.AdminAuthMiddleware.
package admin

import (
	"context"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/intelleges/iaos-compliance-platform-sub001/internal/audit"
	"github.com/intelleges/iaos-compliance-platform-sub001/internal/db/models"
	"github.com/intelleges/iaos-compliance-platform-sub001/internal/db/repositories"
	"github.com/intelleges/iaos-compliance-platform-sub001/internal/middleware"
)

// AccessCodeIssuer creates access codes.
type AccessCodeIssuer interface {
	Issue(ctx context.Context, partnerID, assignmentID string, ttl time.Duration) (*models.AccessCode, error)
}

// AssignmentReader loads assignments.
type AssignmentReader interface {
	GetByID(ctx context.Context, id string) (*models.Assignment, error)
}

// Reviewer records review outcomes.
type Reviewer interface {
	Review(ctx context.Context, assignmentID, decision string, actor audit.Actor) (models.AssignmentStatus, error)
}

// TouchpointReader loads touchpoints.
type TouchpointReader interface {
	GetTouchpoint(ctx context.Context, id string) (*models.Touchpoint, error)
}

// AuditLogLister queries the audit trail.
type AuditLogLister interface {
	ListAuditLogs(ctx context.Context, filters repositories.AuditFilters, limit, offset int) ([]models.AuditLog, int, error)
}

// Deps are the collaborators of Handlers.
type Deps struct {
	AccessCodes AccessCodeIssuer
	Assignments AssignmentReader
	Reviewer    Reviewer
	Touchpoints TouchpointReader
	AuditLogs   AuditLogLister
	Recorder    *audit.Recorder
	// DefaultCodeTTL applies when an issuance request names no ttl_days.
	DefaultCodeTTL time.Duration
}

// Handlers serves the admin API.
type Handlers struct {
	Deps
	now func() time.Time
}

// NewHandlers creates the admin handlers.
func NewHandlers(d Deps) *Handlers {
	if d.DefaultCodeTTL <= 0 {
		d.DefaultCodeTTL = 30 * 24 * time.Hour
	}
	return &Handlers{Deps: d, now: time.Now}
}

// RegisterRoutes mounts the admin endpoints on a group already guarded by
// AdminAuthMiddleware.
func (h *Handlers) RegisterRoutes(g *gin.RouterGroup) {
	g.POST("/assignments/:id/access-codes", h.IssueAccessCode())
	g.POST("/assignments/:id/review", h.Review())
	g.GET("/touchpoints/:id", h.GetTouchpoint())
	g.GET("/audit-logs", h.ListAuditLogs())
	g.GET("/audit-logs/export", h.ExportAuditLogs())
}

// actor is the audited identity of the caller.
func actor(c *gin.Context) audit.Actor {
	id := c.GetString("actor_id")
	if id == "" {
		id = middleware.AdminActorID
	}
	return audit.Actor{ID: id, Type: models.ActorUser}
}

func (h *Handlers) record(ctx context.Context, e audit.Event) {
	if err := h.Recorder.Record(ctx, e); err != nil {
		slog.ErrorContext(ctx, "failed to record audit event", "action", e.Action, "error", err)
	}
}
