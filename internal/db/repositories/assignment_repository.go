// assignment_repository.go implements AssignmentRepository. Status transitions are
// conditional updates so concurrent callers cannot move an assignment backwards.
package repositories

import (
	"context"
	"database/sql"
	"time"

	"github.com/intelleges/iaos-compliance-platform-sub001/internal/db/models"
	"github.com/jmoiron/sqlx"
)

const assignmentColumns = `id, partner_id, touchpoint_id, questionnaire_id, status, invited_at, started_at,
	completed_date, signer_name, signer_email, signer_ip, signature_image, signed_at, reviewed_at,
	created_at, updated_at`

// AssignmentRepository handles assignment database operations
type AssignmentRepository struct {
	db *sqlx.DB
}

// NewAssignmentRepository creates a new AssignmentRepository
func NewAssignmentRepository(db *sqlx.DB) *AssignmentRepository {
	return &AssignmentRepository{db: db}
}

// GetByID returns the assignment, or nil.
func (r *AssignmentRepository) GetByID(ctx context.Context, id string) (*models.Assignment, error) {
	return getAssignment(ctx, r.db, `SELECT `+assignmentColumns+` FROM assignments WHERE id = $1`, id)
}

// LockForUpdateTx reads the assignment with an exclusive row lock. Submission holds this
// lock so no draft save can interleave with it.
func (r *AssignmentRepository) LockForUpdateTx(ctx context.Context, tx *sqlx.Tx, id string) (*models.Assignment, error) {
	return getAssignment(ctx, tx, `SELECT `+assignmentColumns+` FROM assignments WHERE id = $1 FOR UPDATE`, id)
}

// LockForShareTx reads the assignment with a shared row lock. Concurrent draft saves
// share the lock; submission waits for them.
func (r *AssignmentRepository) LockForShareTx(ctx context.Context, tx *sqlx.Tx, id string) (*models.Assignment, error) {
	return getAssignment(ctx, tx, `SELECT `+assignmentColumns+` FROM assignments WHERE id = $1 FOR SHARE`, id)
}

func getAssignment(ctx context.Context, q sqlx.QueryerContext, query, id string) (*models.Assignment, error) {
	var a models.Assignment
	err := sqlx.GetContext(ctx, q, &a, query, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// MarkStarted moves an invited assignment to in_progress. It is a no-op for any
// other status.
func (r *AssignmentRepository) MarkStarted(ctx context.Context, id string, at time.Time) error {
	query := `
		UPDATE assignments
		SET status = 'in_progress', started_at = $2, updated_at = $2
		WHERE id = $1 AND status = 'invited'
	`
	_, err := r.db.ExecContext(ctx, query, id, at)
	return err
}

// MarkSubmittedTx records the submission and signature. It returns false when the
// assignment was no longer editable.
func (r *AssignmentRepository) MarkSubmittedTx(ctx context.Context, tx *sqlx.Tx, a *models.Assignment) (bool, error) {
	query := `
		UPDATE assignments SET
			status = 'submitted',
			completed_date = $2,
			signer_name = $3,
			signer_email = $4,
			signer_ip = $5,
			signature_image = $6,
			signed_at = $7,
			updated_at = $2
		WHERE id = $1 AND status IN ('invited', 'in_progress')
	`
	res, err := tx.ExecContext(ctx, query,
		a.ID, a.CompletedDate, a.SignerName, a.SignerEmail, a.SignerIP, a.SignatureImage, a.SignedAt)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// SetReviewOutcome moves a submitted assignment to approved or rejected. It returns
// false when the assignment was not in the submitted state.
func (r *AssignmentRepository) SetReviewOutcome(ctx context.Context, id string, status models.AssignmentStatus, at time.Time) (bool, error) {
	query := `
		UPDATE assignments
		SET status = $2, reviewed_at = $3, updated_at = $3
		WHERE id = $1 AND status = 'submitted'
	`
	res, err := r.db.ExecContext(ctx, query, id, status, at)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
