package responses

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/intelleges/iaos-compliance-platform-sub001/internal/db/models"
	"github.com/intelleges/iaos-compliance-platform-sub001/internal/questionnaire"
	"github.com/intelleges/iaos-compliance-platform-sub001/internal/session"
	"github.com/intelleges/iaos-compliance-platform-sub001/internal/telemetry"
)

// SaveDraft upserts a batch of answers in one transaction. Every answer in the batch
// is parsed and checked before anything is written; one malformed answer rejects
// the whole batch with a *ValidationError. Empty answers are allowed and clear the
// stored value. Once the assignment is submitted the batch is ignored.
func (s *Service) SaveDraft(ctx context.Context, sess *session.Session, answers []Answer) (*SaveResult, error) {
	a, err := s.assignment(ctx, sess.AssignmentID)
	if err != nil {
		return nil, err
	}
	questions, err := s.engine.LoadQuestions(ctx, a)
	if err != nil {
		return nil, err
	}

	var result *SaveResult
	if a.Status.Submitted() {
		result = &SaveResult{Ignored: true}
	} else {
		rows, err := s.prepare(a.ID, questions, answers)
		if err != nil {
			telemetry.ResponseSavesTotal.WithLabelValues("rejected").Inc()
			return nil, err
		}
		if result, err = s.write(ctx, a.ID, rows); err != nil {
			return nil, err
		}
	}

	if result.Ignored {
		telemetry.ResponseSavesTotal.WithLabelValues("ignored").Inc()
	} else {
		telemetry.ResponseSavesTotal.WithLabelValues("saved").Inc()
		// No-op unless the assignment is still invited.
		if a.Status == models.AssignmentInvited {
			if err := s.assignments.MarkStarted(ctx, a.ID, s.now()); err != nil {
				slog.Warn("failed to mark assignment started", "assignment_id", a.ID, "error", err)
			}
		}
	}

	stored, err := s.responses.ListByAssignment(ctx, a.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load responses: %w", err)
	}
	values, err := s.decodeAll(a.ID, questions, stored)
	if err != nil {
		return nil, err
	}
	result.Progress = questionnaire.CalculateProgress(questions, values)
	return result, nil
}

func (s *Service) prepare(assignmentID string, questions []models.Question, answers []Answer) ([]*models.QuestionResponse, error) {
	byID := indexQuestions(questions)
	var issues []questionnaire.Issue
	rows := make([]*models.QuestionResponse, 0, len(answers))

	for _, ans := range answers {
		q, ok := byID[ans.QuestionID]
		if !ok {
			issues = append(issues, questionnaire.Issue{
				QuestionID: ans.QuestionID,
				Message:    questionnaire.ErrUnknownQuestion.Error(),
			})
			continue
		}
		v, err := questionnaire.ParseValue(q, ans.Value)
		if err != nil {
			issues = append(issues, questionnaire.Issue{QuestionID: q.ID, Title: q.Title, Message: err.Error()})
			continue
		}
		if !v.IsEmpty() {
			if is := questionnaire.ValidateResponse(q, v); is != nil {
				issues = append(issues, *is)
				continue
			}
		}

		value, sealed, err := s.encode(assignmentID, q, v)
		if err != nil {
			return nil, err
		}
		row := &models.QuestionResponse{
			AssignmentID:   assignmentID,
			QuestionID:     q.ID,
			Value:          value,
			EncryptedValue: sealed,
			Comment:        ans.Comment,
		}
		if ans.ClientSavedAt != nil {
			row.ClientSavedAt = ans.ClientSavedAt.UTC()
		} else {
			row.ClientSavedAt = s.now().UTC()
		}
		rows = append(rows, row)
	}

	if len(issues) > 0 {
		return nil, &ValidationError{Issues: issues}
	}
	return rows, nil
}

// write applies rows under a shared lock on the assignment. Submission takes the
// exclusive lock, so a save either lands before it or observes the submitted status.
func (s *Service) write(ctx context.Context, assignmentID string, rows []*models.QuestionResponse) (*SaveResult, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	locked, err := s.assignments.LockForShareTx(ctx, tx, assignmentID)
	if err != nil {
		return nil, fmt.Errorf("failed to lock assignment: %w", err)
	}
	if locked == nil {
		return nil, ErrNotFound
	}
	if locked.Status.Submitted() {
		return &SaveResult{Ignored: true}, nil
	}

	result := &SaveResult{}
	for _, row := range rows {
		applied, err := s.responses.UpsertTx(ctx, tx, row)
		if err != nil {
			return nil, fmt.Errorf("failed to save answer for question %s: %w", row.QuestionID, err)
		}
		if applied {
			result.Saved++
		} else {
			result.Stale++
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit answers: %w", err)
	}
	return result, nil
}
