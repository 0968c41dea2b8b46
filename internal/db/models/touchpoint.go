package models

import "time"

// Touchpoint is a compliance data-collection campaign. Touchpoints flagged IsCUI carry
// Controlled Unclassified Information and every read is audited.
type Touchpoint struct {
	ID           string    `db:"id" json:"id"`
	EnterpriseID string    `db:"enterprise_id" json:"enterprise_id"`
	ProtocolID   string    `db:"protocol_id" json:"protocol_id"`
	Title        string    `db:"title" json:"title"`
	Description  *string   `db:"description" json:"description,omitempty"`
	IsCUI        bool      `db:"is_cui" json:"is_cui"`
	Active       bool      `db:"active" json:"active"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// Questionnaire is the set of questions presented for a touchpoint.
type Questionnaire struct {
	ID                string    `db:"id" json:"id"`
	TouchpointID      string    `db:"touchpoint_id" json:"touchpoint_id"`
	Title             string    `db:"title" json:"title"`
	RequiresSignature bool      `db:"requires_signature" json:"requires_signature"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
}
