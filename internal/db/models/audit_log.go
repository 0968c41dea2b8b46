package models

import "time"

// ActorType identifies who performed an audited action.
type ActorType string

const (
	ActorUser     ActorType = "user"
	ActorSupplier ActorType = "supplier"
	ActorSystem   ActorType = "system"
)

// AuditLog is an immutable audit entry. Rows are never updated or deleted.
type AuditLog struct {
	ID          string    `db:"id" json:"id"`
	Timestamp   time.Time `db:"timestamp" json:"timestamp"`
	Action      string    `db:"action" json:"action"`
	EntityType  string    `db:"entity_type" json:"entity_type"`
	EntityID    *string   `db:"entity_id" json:"entity_id,omitempty"`
	ActorID     *string   `db:"actor_id" json:"actor_id,omitempty"`
	ActorType   ActorType `db:"actor_type" json:"actor_type"`
	IPAddress   *string   `db:"ip_address" json:"ip_address,omitempty"`
	UserAgent   *string   `db:"user_agent" json:"user_agent,omitempty"`
	IsCUIAccess bool      `db:"is_cui_access" json:"is_cui_access"`
	Metadata    JSONMap   `db:"metadata" json:"metadata,omitempty"`
}
