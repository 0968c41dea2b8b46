// response_repository.go implements ResponseRepository: per-question answers with
// last-write-wins upserts keyed on (assignment_id, question_id).
package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/intelleges/iaos-compliance-platform-sub001/internal/db/models"
	"github.com/jmoiron/sqlx"
)

// ResponseRepository handles question response database operations
type ResponseRepository struct {
	db *sqlx.DB
}

// NewResponseRepository creates a new ResponseRepository
func NewResponseRepository(db *sqlx.DB) *ResponseRepository {
	return &ResponseRepository{db: db}
}

const listResponsesQuery = `
	SELECT id, assignment_id, question_id, value, encrypted_value, comment, client_saved_at, created_at, updated_at
	FROM question_responses
	WHERE assignment_id = $1
`

// ListByAssignment returns all saved answers for an assignment.
func (r *ResponseRepository) ListByAssignment(ctx context.Context, assignmentID string) ([]models.QuestionResponse, error) {
	return listResponses(ctx, r.db, assignmentID)
}

// ListByAssignmentTx reads answers inside the caller's transaction so submission
// validates exactly what it commits.
func (r *ResponseRepository) ListByAssignmentTx(ctx context.Context, tx *sqlx.Tx, assignmentID string) ([]models.QuestionResponse, error) {
	return listResponses(ctx, tx, assignmentID)
}

func listResponses(ctx context.Context, q sqlx.QueryerContext, assignmentID string) ([]models.QuestionResponse, error) {
	out := make([]models.QuestionResponse, 0)
	if err := sqlx.SelectContext(ctx, q, &out, listResponsesQuery, assignmentID); err != nil {
		return nil, err
	}
	return out, nil
}

// UpsertTx writes one answer. The existing row is only replaced when the incoming
// client_saved_at is not older than the stored one; the returned bool is false when a
// newer answer was already stored.
func (r *ResponseRepository) UpsertTx(ctx context.Context, tx *sqlx.Tx, resp *models.QuestionResponse) (bool, error) {
	if resp.ID == "" {
		resp.ID = uuid.New().String()
	}
	now := time.Now()
	if resp.ClientSavedAt.IsZero() {
		resp.ClientSavedAt = now
	}
	resp.UpdatedAt = now

	query := `
		INSERT INTO question_responses
			(id, assignment_id, question_id, value, encrypted_value, comment, client_saved_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
		ON CONFLICT (assignment_id, question_id) DO UPDATE SET
			value = EXCLUDED.value,
			encrypted_value = EXCLUDED.encrypted_value,
			comment = EXCLUDED.comment,
			client_saved_at = EXCLUDED.client_saved_at,
			updated_at = EXCLUDED.updated_at
		WHERE question_responses.client_saved_at <= EXCLUDED.client_saved_at
	`
	res, err := tx.ExecContext(ctx, query,
		resp.ID, resp.AssignmentID, resp.QuestionID, resp.Value, resp.EncryptedValue,
		resp.Comment, resp.ClientSavedAt, now)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
