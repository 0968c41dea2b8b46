package responses

import (
	"context"
	"fmt"

	"github.com/intelleges/iaos-compliance-platform-sub001/internal/audit"
	"github.com/intelleges/iaos-compliance-platform-sub001/internal/db/models"
)

// Decisions accepted by Review.
const (
	DecisionApprove = "approve"
	DecisionReject  = "reject"
)

// ErrInvalidDecision is returned for a decision other than approve or reject.
var ErrInvalidDecision = fmt.Errorf("decision must be %q or %q", DecisionApprove, DecisionReject)

// Review records the reviewer outcome. Only submitted assignments can be reviewed.
func (s *Service) Review(ctx context.Context, assignmentID, decision string, actor audit.Actor) (models.AssignmentStatus, error) {
	var status models.AssignmentStatus
	switch decision {
	case DecisionApprove:
		status = models.AssignmentApproved
	case DecisionReject:
		status = models.AssignmentRejected
	default:
		return "", ErrInvalidDecision
	}

	ok, err := s.assignments.SetReviewOutcome(ctx, assignmentID, status, s.now().UTC())
	if err != nil {
		return "", fmt.Errorf("failed to set review outcome: %w", err)
	}
	if !ok {
		if _, err := s.assignment(ctx, assignmentID); err != nil {
			return "", err
		}
		return "", ErrNotAwaitingReview
	}

	if err := s.recorder.Record(ctx, audit.Event{
		Action:     audit.ActionAssignmentReviewed,
		EntityType: audit.EntityAssignment,
		EntityID:   assignmentID,
		Actor:      actor,
		Metadata:   map[string]interface{}{"decision": decision, "status": string(status)},
	}); err != nil {
		return status, fmt.Errorf("review saved but audit failed: %w", err)
	}
	return status, nil
}
