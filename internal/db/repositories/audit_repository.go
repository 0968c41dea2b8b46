// audit_repository.go implements AuditRepository, providing the append and filtered
// query operations over the immutable audit_logs table. There is deliberately no update
// or delete method; the table also rejects them with a trigger.
package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/intelleges/iaos-compliance-platform-sub001/internal/db/models"
	"github.com/jmoiron/sqlx"
)

// AuditRepository handles audit log database operations
type AuditRepository struct {
	db *sqlx.DB
}

// NewAuditRepository creates a new AuditRepository
func NewAuditRepository(db *sqlx.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// AuditFilters contains filters for querying audit logs
type AuditFilters struct {
	StartDate  *time.Time
	EndDate    *time.Time
	Action     *string
	EntityType *string
	ActorID    *string
	// IPContains matches any entry whose IP address contains the substring.
	IPContains *string
	CUIOnly    *bool
}

const auditColumns = `id, timestamp, action, entity_type, entity_id, actor_id, actor_type,
	ip_address, user_agent, is_cui_access, metadata`

// CreateAuditLog appends a new audit log entry
func (r *AuditRepository) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	if log.ID == "" {
		log.ID = uuid.New().String()
	}
	if log.Timestamp.IsZero() {
		log.Timestamp = time.Now()
	}

	query := `
		INSERT INTO audit_logs (` + auditColumns + `)
		VALUES (:id, :timestamp, :action, :entity_type, :entity_id, :actor_id, :actor_type,
		        :ip_address, :user_agent, :is_cui_access, :metadata)
	`
	_, err := r.db.NamedExecContext(ctx, query, log)
	return err
}

// ListAuditLogs retrieves audit logs matching the filters, newest first, along with the
// total number of matching rows.
func (r *AuditRepository) ListAuditLogs(ctx context.Context, filters AuditFilters, limit, offset int) ([]models.AuditLog, int, error) {
	where, args := buildAuditWhere(filters)

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM audit_logs`+where, args...); err != nil {
		return nil, 0, err
	}

	paramIndex := len(args) + 1
	query := `SELECT ` + auditColumns + ` FROM audit_logs` + where +
		fmt.Sprintf(` ORDER BY timestamp DESC LIMIT $%d OFFSET $%d`, paramIndex, paramIndex+1)
	args = append(args, limit, offset)

	logs := make([]models.AuditLog, 0)
	if err := r.db.SelectContext(ctx, &logs, query, args...); err != nil {
		return nil, 0, err
	}
	return logs, total, nil
}

func buildAuditWhere(filters AuditFilters) (string, []interface{}) {
	where := ` WHERE 1=1`
	args := make([]interface{}, 0)
	add := func(clause string, arg interface{}) {
		args = append(args, arg)
		where += fmt.Sprintf(clause, len(args))
	}

	if filters.StartDate != nil {
		add(` AND timestamp >= $%d`, *filters.StartDate)
	}
	if filters.EndDate != nil {
		add(` AND timestamp <= $%d`, *filters.EndDate)
	}
	if filters.Action != nil {
		add(` AND action = $%d`, *filters.Action)
	}
	if filters.EntityType != nil {
		add(` AND entity_type = $%d`, *filters.EntityType)
	}
	if filters.ActorID != nil {
		add(` AND actor_id = $%d`, *filters.ActorID)
	}
	if filters.IPContains != nil {
		add(` AND strpos(ip_address, $%d) > 0`, *filters.IPContains)
	}
	if filters.CUIOnly != nil {
		add(` AND is_cui_access = $%d`, *filters.CUIOnly)
	}
	return where, args
}
