// verification_code_repository.go implements VerificationCodeRepository for email
// one-time codes. Only hashes are stored; only the newest row per access code counts.
package repositories

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/intelleges/iaos-compliance-platform-sub001/internal/db/models"
	"github.com/jmoiron/sqlx"
)

// VerificationCodeRepository handles verification code database operations
type VerificationCodeRepository struct {
	db *sqlx.DB
}

// NewVerificationCodeRepository creates a new VerificationCodeRepository
func NewVerificationCodeRepository(db *sqlx.DB) *VerificationCodeRepository {
	return &VerificationCodeRepository{db: db}
}

// Create stores a newly issued code hash.
func (r *VerificationCodeRepository) Create(ctx context.Context, vc *models.VerificationCode) error {
	if vc.ID == "" {
		vc.ID = uuid.New().String()
	}
	if vc.CreatedAt.IsZero() {
		vc.CreatedAt = time.Now()
	}
	query := `
		INSERT INTO verification_codes (id, access_code_id, email, code_hash, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.db.ExecContext(ctx, query, vc.ID, vc.AccessCodeID, vc.Email, vc.CodeHash, vc.ExpiresAt, vc.CreatedAt)
	return err
}

// Latest returns the most recently issued code for an access code, or nil.
func (r *VerificationCodeRepository) Latest(ctx context.Context, accessCodeID string) (*models.VerificationCode, error) {
	var vc models.VerificationCode
	query := `
		SELECT id, access_code_id, email, code_hash, expires_at, consumed_at, created_at
		FROM verification_codes
		WHERE access_code_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`
	err := r.db.GetContext(ctx, &vc, query, accessCodeID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &vc, nil
}

// Consume marks a code as used. It returns false when the code was already consumed.
func (r *VerificationCodeRepository) Consume(ctx context.Context, id string, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE verification_codes SET consumed_at = $2 WHERE id = $1 AND consumed_at IS NULL`, id, at)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// DeleteStale removes codes that expired or were consumed before the cutoff.
func (r *VerificationCodeRepository) DeleteStale(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM verification_codes WHERE expires_at < $1 OR consumed_at < $1`, before)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
