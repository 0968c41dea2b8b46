// access_code_repository.go implements AccessCodeRepository, providing the queries behind
// access code issuance, lookup and the atomic single-use transition.
package repositories

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/intelleges/iaos-compliance-platform-sub001/internal/db/models"
	"github.com/jmoiron/sqlx"
)

const accessCodeColumns = `id, code, partner_id, assignment_id, expires_at, used, used_at, created_at`

// AccessCodeRepository handles access code database operations
type AccessCodeRepository struct {
	db *sqlx.DB
}

// NewAccessCodeRepository creates a new AccessCodeRepository
func NewAccessCodeRepository(db *sqlx.DB) *AccessCodeRepository {
	return &AccessCodeRepository{db: db}
}

// Create inserts a new access code. A duplicate code surfaces as a unique violation
// (see IsUniqueViolation) so callers can retry with a fresh code.
func (r *AccessCodeRepository) Create(ctx context.Context, code *models.AccessCode) error {
	if code.ID == "" {
		code.ID = uuid.New().String()
	}
	if code.CreatedAt.IsZero() {
		code.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO access_codes (id, code, partner_id, assignment_id, expires_at, used, created_at)
		VALUES ($1, $2, $3, $4, $5, false, $6)
	`
	_, err := r.db.ExecContext(ctx, query,
		code.ID, code.Code, code.PartnerID, code.AssignmentID, code.ExpiresAt, code.CreatedAt)
	return err
}

// GetByCode returns the access code with the given (already normalised) value, or nil.
func (r *AccessCodeRepository) GetByCode(ctx context.Context, code string) (*models.AccessCode, error) {
	var ac models.AccessCode
	err := r.db.GetContext(ctx, &ac, `SELECT `+accessCodeColumns+` FROM access_codes WHERE code = $1`, code)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ac, nil
}

// MarkUsed atomically flips used=false to used=true for an unexpired code. It returns
// false when no row changed, meaning another caller won the race or the code is no
// longer valid.
func (r *AccessCodeRepository) MarkUsed(ctx context.Context, code string, at time.Time) (bool, error) {
	return markAccessCodeUsed(ctx, r.db, code, at)
}

// MarkUsedTx is MarkUsed inside the caller's transaction.
func (r *AccessCodeRepository) MarkUsedTx(ctx context.Context, tx *sqlx.Tx, code string, at time.Time) (bool, error) {
	return markAccessCodeUsed(ctx, tx, code, at)
}

func markAccessCodeUsed(ctx context.Context, exec sqlx.ExecerContext, code string, at time.Time) (bool, error) {
	query := `
		UPDATE access_codes
		SET used = true, used_at = $2
		WHERE code = $1 AND used = false AND expires_at > $2
	`
	res, err := exec.ExecContext(ctx, query, code, at)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
