package audit

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/intelleges/iaos-compliance-platform-sub001/internal/db/models"
	"github.com/intelleges/iaos-compliance-platform-sub001/internal/safego"
	"github.com/intelleges/iaos-compliance-platform-sub001/internal/telemetry"
)

// Audited actions.
const (
	ActionAccessCodeIssued       = "ACCESS_CODE_ISSUED"
	ActionAccessCodeValidated    = "ACCESS_CODE_VALIDATED"
	ActionVerificationCodeSent   = "VERIFICATION_CODE_SENT"
	ActionLoginSuccess           = "LOGIN_SUCCESS"
	ActionLoginFailed            = "LOGIN_FAILED"
	ActionLogout                 = "LOGOUT"
	ActionPartnerUpdated         = "PARTNER_UPDATED"
	ActionQuestionnaireSubmitted = "QUESTIONNAIRE_SUBMITTED"
	ActionAssignmentReviewed     = "ASSIGNMENT_REVIEWED"
	ActionCUIAccessed            = "CUI_ACCESSED"
	ActionAuditLogExported       = "AUDIT_LOG_EXPORTED"
)

// Entity types.
const (
	EntityAccessCode = "access_code"
	EntityAssignment = "assignment"
	EntityPartner    = "partner"
	EntityTouchpoint = "touchpoint"
	EntityQuestion   = "question"
	EntityAuditLog   = "audit_log"
)

// Store appends audit rows.
type Store interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// Actor identifies who performed an action. An empty ID is recorded as NULL.
type Actor struct {
	ID   string
	Type models.ActorType
}

// Event is one audited occurrence.
type Event struct {
	Action     string
	EntityType string
	EntityID   string
	Actor      Actor
	Metadata   map[string]interface{}
	IsCUI      bool
}

// Entity describes something that was read, for CUI access logging.
type Entity struct {
	Type  string
	ID    string
	Title string
	IsCUI bool
}

// Recorder appends audit entries and ships them to external destinations.
type Recorder struct {
	store   Store
	shipper Shipper
	now     func() time.Time
	wg      sync.WaitGroup
}

// NewRecorder creates a Recorder. shipper may be nil.
func NewRecorder(store Store, shipper Shipper) *Recorder {
	return &Recorder{store: store, shipper: shipper, now: time.Now}
}

// Record appends one entry. Transport metadata comes from the context (see
// WithRequestInfo). The database write is synchronous; shipping is not.
func (r *Recorder) Record(ctx context.Context, e Event) error {
	info := RequestInfoFromContext(ctx)
	actorType := e.Actor.Type
	if actorType == "" {
		actorType = models.ActorSystem
	}

	entry := &models.AuditLog{
		ID:          uuid.New().String(),
		Timestamp:   r.now().UTC(),
		Action:      e.Action,
		EntityType:  e.EntityType,
		EntityID:    optional(e.EntityID),
		ActorID:     optional(e.Actor.ID),
		ActorType:   actorType,
		IPAddress:   optional(info.IPAddress),
		UserAgent:   optional(info.UserAgent),
		IsCUIAccess: e.IsCUI,
		Metadata:    e.Metadata,
	}
	if err := r.store.CreateAuditLog(ctx, entry); err != nil {
		return fmt.Errorf("failed to append audit entry %s: %w", e.Action, err)
	}

	if r.shipper != nil {
		shipped := entryFromLog(entry, info.RequestID)
		r.wg.Add(1)
		safego.Go("audit-ship", func() {
			defer r.wg.Done()
			shipCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := r.shipper.Ship(shipCtx, shipped); err != nil {
				slog.Warn("failed to ship audit entry", "id", shipped.ID, "action", shipped.Action, "error", err)
			}
		})
	}
	return nil
}

// RecordRead logs a read of ent. A CUI-flagged entity produces exactly one
// CUI_ACCESSED entry; any other entity produces none.
func (r *Recorder) RecordRead(ctx context.Context, actor Actor, ent Entity) error {
	if !ent.IsCUI {
		return nil
	}
	err := r.Record(ctx, Event{
		Action:     ActionCUIAccessed,
		EntityType: ent.Type,
		EntityID:   ent.ID,
		Actor:      actor,
		IsCUI:      true,
		Metadata: map[string]interface{}{
			"id":      ent.ID,
			"title":   ent.Title,
			"message": fmt.Sprintf("CUI %s %q accessed by %s %s", ent.Type, ent.Title, actorLabel(actor.Type), actor.ID),
		},
	})
	if err != nil {
		return err
	}
	telemetry.CUIAccessEventsTotal.WithLabelValues(ent.Type).Inc()
	return nil
}

// Wait blocks until in-flight shipping has finished. Used during shutdown.
func (r *Recorder) Wait() {
	r.wg.Wait()
}

func actorLabel(t models.ActorType) string {
	if t == "" {
		return string(models.ActorSystem)
	}
	return string(t)
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
