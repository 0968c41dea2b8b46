// Package supplier implements the partner-facing HTTP handlers: access-code login,
// session status, questionnaire answering and submission.
//
// The access-code endpoints are public and rate limited per IP. Everything else is
// registered behind middleware.SupplierSessionMiddleware, which places the resolved
// session in the gin.Context; handlers only ever act on that session's assignment.
package supplier

import (
	"context"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/intelleges/iaos-compliance-platform-sub001/internal/api/apierr"
	"github.com/intelleges/iaos-compliance-platform-sub001/internal/audit"
	"github.com/intelleges/iaos-compliance-platform-sub001/internal/config"
	"github.com/intelleges/iaos-compliance-platform-sub001/internal/db/models"
	"github.com/intelleges/iaos-compliance-platform-sub001/internal/middleware"
	"github.com/intelleges/iaos-compliance-platform-sub001/internal/notify"
	"github.com/intelleges/iaos-compliance-platform-sub001/internal/responses"
	"github.com/intelleges/iaos-compliance-platform-sub001/internal/session"
	"github.com/intelleges/iaos-compliance-platform-sub001/internal/storage"
	"github.com/intelleges/iaos-compliance-platform-sub001/internal/verification"
)

// AccessCodeValidator checks an access code.
type AccessCodeValidator interface {
	Validate(ctx context.Context, code string) (*models.AccessCode, error)
}

// CodeVerifier issues and checks email one-time codes.
type CodeVerifier interface {
	Issue(ctx context.Context, ac *models.AccessCode, to verification.Recipient) (*verification.Issued, error)
	Verify(ctx context.Context, ac *models.AccessCode, submitted string) error
}

// PartnerStore reads and updates partner contact details.
type PartnerStore interface {
	GetByID(ctx context.Context, id string) (*models.Partner, error)
	UpdateContact(ctx context.Context, p *models.Partner) error
}

// TouchpointReader loads touchpoints.
type TouchpointReader interface {
	GetTouchpoint(ctx context.Context, id string) (*models.Touchpoint, error)
}

// AssignmentReader loads assignments.
type AssignmentReader interface {
	GetByID(ctx context.Context, id string) (*models.Assignment, error)
}

// ResponseService persists answers and submissions.
type ResponseService interface {
	Load(ctx context.Context, assignmentID string) (*responses.Snapshot, error)
	Progress(ctx context.Context, assignmentID string) (int, error)
	SaveDraft(ctx context.Context, sess *session.Session, answers []responses.Answer) (*responses.SaveResult, error)
	Submit(ctx context.Context, sess *session.Session, sig responses.Signature) (*models.Assignment, error)
}

// Deps are the collaborators of Handlers.
type Deps struct {
	AccessCodes AccessCodeValidator
	Verifier    CodeVerifier
	Sessions    *session.Manager
	Partners    PartnerStore
	Touchpoints TouchpointReader
	Assignments AssignmentReader
	Responses   ResponseService
	Storage     storage.Storage
	Recorder    *audit.Recorder
	// Notifier sends the submission receipt. Nil disables receipts.
	Notifier notify.Sender
	// Cookie holds the session cookie settings.
	Cookie config.SessionConfig
	// MaxUploadBytes caps file-upload answers. Zero means 25 MiB.
	MaxUploadBytes int64
}

// Handlers serves the supplier API.
type Handlers struct {
	Deps
	now func() time.Time
}

// NewHandlers creates Handlers.
func NewHandlers(d Deps) *Handlers {
	if d.MaxUploadBytes <= 0 {
		d.MaxUploadBytes = 25 << 20
	}
	return &Handlers{Deps: d, now: time.Now}
}

// currentSession returns the session placed in the context by the session middleware.
func currentSession(c *gin.Context) (*session.Session, bool) {
	sess, ok := middleware.SessionFromContext(c)
	if !ok {
		apierr.Unauthenticated(c, session.ErrMissing)
		return nil, false
	}
	return sess, true
}

func supplierActor(partnerID string) audit.Actor {
	return audit.Actor{ID: partnerID, Type: models.ActorSupplier}
}

// record appends an audit entry. Failures are logged, never surfaced. CUI reads call
// Recorder.RecordRead directly and fail the request instead.
func (h *Handlers) record(ctx context.Context, e audit.Event) {
	if err := h.Recorder.Record(ctx, e); err != nil {
		slog.ErrorContext(ctx, "failed to record audit entry", "action", e.Action, "error", err)
	}
}

// RegisterRoutes mounts the access-code endpoints on login, session status and logout
// on public, and everything else on gated. The caller attaches rate limiting and
// session middleware to the groups.
func (h *Handlers) RegisterRoutes(login, public, gated *gin.RouterGroup) {
	login.POST("/access-code/validate", h.ValidateAccessCode())
	login.POST("/access-code/send-verification", h.SendVerification())
	login.POST("/access-code/verify", h.Verify())

	public.GET("/session", h.SessionStatus())
	public.POST("/logout", h.Logout())

	gated.GET("/questionnaire", h.GetQuestionnaire())
	gated.POST("/questionnaire/navigate", h.Navigate())
	gated.GET("/touchpoint", h.GetTouchpoint())
	gated.GET("/progress", h.GetProgress())
	gated.PUT("/responses", h.SaveResponses())
	gated.PUT("/responses/:questionId", h.SaveResponse())
	gated.POST("/questions/:questionId/upload", h.Upload())
	gated.PUT("/partner", h.UpdatePartner())
	gated.POST("/submit", h.Submit())
}
