// partner_repository.go implements PartnerRepository: partner lookup and the
// self-service contact confirmation update.
package repositories

import (
	"context"
	"database/sql"
	"time"

	"github.com/intelleges/iaos-compliance-platform-sub001/internal/db/models"
	"github.com/jmoiron/sqlx"
)

// PartnerRepository handles partner database operations
type PartnerRepository struct {
	db *sqlx.DB
}

// NewPartnerRepository creates a new PartnerRepository
func NewPartnerRepository(db *sqlx.DB) *PartnerRepository {
	return &PartnerRepository{db: db}
}

// GetByID returns the partner, or nil when it does not exist.
func (r *PartnerRepository) GetByID(ctx context.Context, id string) (*models.Partner, error) {
	var p models.Partner
	query := `
		SELECT id, enterprise_id, company_name, contact_first_name, contact_last_name, email,
		       phone, address1, address2, city, state, zipcode, country, active, created_at, updated_at
		FROM partners
		WHERE id = $1
	`
	err := r.db.GetContext(ctx, &p, query, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// UpdateContact writes the partner-editable contact fields. Email and company name are
// owned by the enterprise and are not changed here.
func (r *PartnerRepository) UpdateContact(ctx context.Context, p *models.Partner) error {
	p.UpdatedAt = time.Now()
	query := `
		UPDATE partners SET
			contact_first_name = :contact_first_name,
			contact_last_name = :contact_last_name,
			phone = :phone,
			address1 = :address1,
			address2 = :address2,
			city = :city,
			state = :state,
			zipcode = :zipcode,
			country = :country,
			updated_at = :updated_at
		WHERE id = :id
	`
	_, err := r.db.NamedExecContext(ctx, query, p)
	return err
}
