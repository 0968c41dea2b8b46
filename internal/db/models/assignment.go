package models

import "time"

// AssignmentStatus is the lifecycle state of a partner's questionnaire assignment.
type AssignmentStatus string

const (
	AssignmentInvited    AssignmentStatus = "invited"
	AssignmentInProgress AssignmentStatus = "in_progress"
	AssignmentSubmitted  AssignmentStatus = "submitted"
	AssignmentApproved   AssignmentStatus = "approved"
	AssignmentRejected   AssignmentStatus = "rejected"
	// AssignmentReviewed is a legacy terminal state still present on old rows.
	AssignmentReviewed AssignmentStatus = "reviewed"
)

// Editable reports whether responses may still be saved.
func (s AssignmentStatus) Editable() bool {
	return s == AssignmentInvited || s == AssignmentInProgress
}

// Submitted reports whether the assignment has passed the submission barrier.
func (s AssignmentStatus) Submitted() bool {
	switch s {
	case AssignmentSubmitted, AssignmentApproved, AssignmentRejected, AssignmentReviewed:
		return true
	}
	return false
}

// Assignment links a partner to one questionnaire within a touchpoint.
type Assignment struct {
	ID              string           `db:"id" json:"id"`
	PartnerID       string           `db:"partner_id" json:"partner_id"`
	TouchpointID    string           `db:"touchpoint_id" json:"touchpoint_id"`
	QuestionnaireID string           `db:"questionnaire_id" json:"questionnaire_id"`
	Status          AssignmentStatus `db:"status" json:"status"`
	InvitedAt       time.Time        `db:"invited_at" json:"invited_at"`
	StartedAt       *time.Time       `db:"started_at" json:"started_at,omitempty"`
	CompletedDate   *time.Time       `db:"completed_date" json:"completed_date,omitempty"`
	SignerName      *string          `db:"signer_name" json:"signer_name,omitempty"`
	SignerEmail     *string          `db:"signer_email" json:"signer_email,omitempty"`
	SignerIP        *string          `db:"signer_ip" json:"-"`
	SignatureImage  *string          `db:"signature_image" json:"-"`
	SignedAt        *time.Time       `db:"signed_at" json:"signed_at,omitempty"`
	ReviewedAt      *time.Time       `db:"reviewed_at" json:"reviewed_at,omitempty"`
	CreatedAt       time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time        `db:"updated_at" json:"updated_at"`
}
