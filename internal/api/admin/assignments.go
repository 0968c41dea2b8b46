package admin

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/intelleges/iaos-compliance-platform-sub001/internal/api/apierr"
	"github.com/intelleges/iaos-compliance-platform-sub001/internal/audit"
	"github.com/intelleges/iaos-compliance-platform-sub001/internal/responses"
)

// IssueAccessCodeRequest optionally overrides the code lifetime.
type IssueAccessCodeRequest struct {
	TTLDays int `json:"ttl_days" binding:"omitempty,min=1,max=365"`
}

// ReviewRequest carries the reviewer decision.
type ReviewRequest struct {
	Decision string `json:"decision" binding:"required"`
}

// @Summary      Issue access code
// @Description  Creates a new access code for an assignment. Earlier codes stay valid until used or expired.
// @Tags         Admin
// @Security     AdminKey
// @Accept       json
// @Produce      json
// @Param        id    path  string                  true   "Assignment ID"
// @Param        body  body  IssueAccessCodeRequest  false  "Lifetime in days (default from config)"
// @Success      201  {object}  map[string]interface{}  "code, expires_at, assignment_id"
// @Failure      404  {object}  map[string]interface{}  "NOT_FOUND"
// @Failure      409  {object}  map[string]interface{}  "CONFLICT when already submitted"
// @Router       /api/v1/admin/assignments/{id}/access-codes [post]
func (h *Handlers) IssueAccessCode() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req IssueAccessCodeRequest
		if c.Request.ContentLength != 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				apierr.BadRequest(c, "ttl_days must be between 1 and 365")
				return
			}
		}
		ctx := c.Request.Context()

		a, err := h.Assignments.GetByID(ctx, c.Param("id"))
		if err != nil {
			apierr.Internal(c, err)
			return
		}
		if a == nil {
			apierr.Respond(c, responses.ErrNotFound)
			return
		}
		if a.Status.Submitted() {
			apierr.Respond(c, responses.ErrConflict)
			return
		}

		ttl := h.DefaultCodeTTL
		if req.TTLDays > 0 {
			ttl = time.Duration(req.TTLDays) * 24 * time.Hour
		}
		ac, err := h.AccessCodes.Issue(ctx, a.PartnerID, a.ID, ttl)
		if err != nil {
			apierr.Internal(c, err)
			return
		}

		h.record(ctx, audit.Event{
			Action:     audit.ActionAccessCodeIssued,
			EntityType: audit.EntityAccessCode,
			EntityID:   ac.ID,
			Actor:      actor(c),
			Metadata: map[string]interface{}{
				"assignment_id": a.ID,
				"partner_id":    a.PartnerID,
				"expires_at":    ac.ExpiresAt.UTC().Format(time.RFC3339),
			},
		})

		c.JSON(http.StatusCreated, gin.H{
			"code":          ac.Code,
			"expires_at":    ac.ExpiresAt,
			"assignment_id": a.ID,
		})
	}
}

// @Summary      Review assignment
// @Description  Approves or rejects a submitted assignment.
// @Tags         Admin
// @Security     AdminKey
// @Accept       json
// @Produce      json
// @Param        id    path  string         true  "Assignment ID"
// @Param        body  body  ReviewRequest  true  "approve or reject"
// @Success      200  {object}  map[string]interface{}  "status"
// @Failure      400  {object}  map[string]interface{}  "BAD_REQUEST for an unknown decision"
// @Failure      409  {object}  map[string]interface{}  "CONFLICT when not awaiting review"
// @Router       /api/v1/admin/assignments/{id}/review [post]
func (h *Handlers) Review() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ReviewRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			apierr.BadRequest(c, "decision is required")
			return
		}
		status, err := h.Reviewer.Review(c.Request.Context(), c.Param("id"), req.Decision, actor(c))
		if err != nil && status == "" {
			apierr.Respond(c, err)
			return
		}
		if err != nil {
			// The outcome is stored; only the audit append failed.
			apierr.Internal(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"assignment_id": c.Param("id"), "status": status})
	}
}
