package responses

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"

	"github.com/intelleges/iaos-compliance-platform-sub001/internal/audit"
	"github.com/intelleges/iaos-compliance-platform-sub001/internal/db/models"
	"github.com/intelleges/iaos-compliance-platform-sub001/internal/events"
	"github.com/intelleges/iaos-compliance-platform-sub001/internal/questionnaire"
	"github.com/intelleges/iaos-compliance-platform-sub001/internal/session"
	"github.com/intelleges/iaos-compliance-platform-sub001/internal/telemetry"
)

// Submit moves the assignment to submitted. All required questions must be answered
// and, when the questionnaire asks for one, a signature must be present; otherwise a
// *ValidationError lists every unmet condition and nothing changes. Submitting twice
// returns ErrConflict. On success the session's access code is consumed.
func (s *Service) Submit(ctx context.Context, sess *session.Session, sig Signature) (*models.Assignment, error) {
	a, err := s.assignment(ctx, sess.AssignmentID)
	if err != nil {
		return nil, err
	}
	if a.Status.Submitted() {
		telemetry.QuestionnaireSubmissionsTotal.WithLabelValues("conflict").Inc()
		return nil, ErrConflict
	}
	qn, err := s.questionnaires.GetQuestionnaire(ctx, a.QuestionnaireID)
	if err != nil {
		return nil, fmt.Errorf("failed to load questionnaire: %w", err)
	}
	if qn == nil {
		return nil, fmt.Errorf("questionnaire %s for assignment %s is missing", a.QuestionnaireID, a.ID)
	}
	questions, err := s.engine.LoadQuestions(ctx, a)
	if err != nil {
		return nil, err
	}

	submitted, err := s.commitSubmission(ctx, sess, qn, questions, sig)
	if err != nil {
		var verr *ValidationError
		switch {
		case errors.As(err, &verr):
			telemetry.QuestionnaireSubmissionsTotal.WithLabelValues("incomplete").Inc()
		case errors.Is(err, ErrConflict):
			telemetry.QuestionnaireSubmissionsTotal.WithLabelValues("conflict").Inc()
		}
		return nil, err
	}
	telemetry.QuestionnaireSubmissionsTotal.WithLabelValues("submitted").Inc()

	if err := s.recorder.Record(ctx, audit.Event{
		Action:     audit.ActionQuestionnaireSubmitted,
		EntityType: audit.EntityAssignment,
		EntityID:   submitted.ID,
		Actor:      supplierActor(sess),
		Metadata: map[string]interface{}{
			"questionnaire_id": submitted.QuestionnaireID,
			"touchpoint_id":    submitted.TouchpointID,
			"signer_name":      sig.Name,
			"signer_email":     sig.Email,
		},
	}); err != nil {
		slog.Error("failed to audit submission", "assignment_id", submitted.ID, "error", err)
	}

	ev := events.New(events.TypeAssignmentSubmitted, map[string]interface{}{
		"assignment_id":    submitted.ID,
		"partner_id":       submitted.PartnerID,
		"touchpoint_id":    submitted.TouchpointID,
		"questionnaire_id": submitted.QuestionnaireID,
		"completed_date":   submitted.CompletedDate,
	})
	if err := s.publisher.Publish(ctx, ev); err != nil {
		slog.Error("failed to publish submission event", "assignment_id", submitted.ID, "event_id", ev.ID, "error", err)
	}
	return submitted, nil
}

func (s *Service) commitSubmission(ctx context.Context, sess *session.Session, qn *models.Questionnaire, questions []models.Question, sig Signature) (*models.Assignment, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	a, err := s.assignments.LockForUpdateTx(ctx, tx, sess.AssignmentID)
	if err != nil {
		return nil, fmt.Errorf("failed to lock assignment: %w", err)
	}
	if a == nil {
		return nil, ErrNotFound
	}
	if a.Status.Submitted() {
		return nil, ErrConflict
	}

	rows, err := s.responses.ListByAssignmentTx(ctx, tx, a.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load responses: %w", err)
	}
	values, err := s.decodeAll(a.ID, questions, rows)
	if err != nil {
		return nil, err
	}
	issues := questionnaire.ValidateAll(questions, values)
	if qn.RequiresSignature {
		issues = append(issues, signatureIssues(sig)...)
	}
	if len(issues) > 0 {
		return nil, &ValidationError{Issues: issues}
	}

	now := s.now().UTC()
	a.CompletedDate = &now
	if sig.Name != "" || sig.Email != "" || sig.Image != "" {
		a.SignerName = optional(sig.Name)
		a.SignerEmail = optional(sig.Email)
		a.SignerIP = optional(sig.IP)
		a.SignatureImage = optional(sig.Image)
		a.SignedAt = &now
	}
	ok, err := s.assignments.MarkSubmittedTx(ctx, tx, a)
	if err != nil {
		return nil, fmt.Errorf("failed to submit assignment: %w", err)
	}
	if !ok {
		return nil, ErrConflict
	}
	a.Status = models.AssignmentSubmitted
	a.UpdatedAt = now

	used, err := s.accessCodes.MarkUsedTx(ctx, tx, sess.AccessCode, now)
	if err != nil {
		return nil, fmt.Errorf("failed to consume access code: %w", err)
	}
	if !used {
		// The code expired during the session; it can no longer authenticate anyway.
		slog.Warn("access code was not consumable at submission", "assignment_id", a.ID)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit submission: %w", err)
	}
	return a, nil
}

func signatureIssues(sig Signature) []questionnaire.Issue {
	var issues []questionnaire.Issue
	add := func(msg string) {
		issues = append(issues, questionnaire.Issue{QuestionID: SignatureIssueID, Title: "E-signature", Message: msg})
	}
	if strings.TrimSpace(sig.Name) == "" {
		add("Signer name is required")
	}
	email := strings.TrimSpace(sig.Email)
	switch {
	case email == "" && sig.Image == "":
		add("Signer email or a drawn signature is required")
	case email != "":
		if _, err := mail.ParseAddress(email); err != nil {
			add("Signer email is not a valid address")
		}
	}
	return issues
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
