package models

import "time"

// AccessCode is a single-use, time-boxed credential bound to one assignment.
type AccessCode struct {
	ID           string     `db:"id" json:"id"`
	Code         string     `db:"code" json:"code"`
	PartnerID    string     `db:"partner_id" json:"partner_id"`
	AssignmentID string     `db:"assignment_id" json:"assignment_id"`
	ExpiresAt    time.Time  `db:"expires_at" json:"expires_at"`
	Used         bool       `db:"used" json:"used"`
	UsedAt       *time.Time `db:"used_at" json:"used_at,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
}

// IsExpired reports whether now is at or past the expiry instant.
func (a *AccessCode) IsExpired(now time.Time) bool {
	return !now.Before(a.ExpiresAt)
}

// IsValid reports whether the code can still authenticate.
func (a *AccessCode) IsValid(now time.Time) bool {
	return !a.Used && !a.IsExpired(now)
}

// VerificationCode is an email one-time code issued after access-code validation.
// Only the bcrypt hash of the code is stored.
type VerificationCode struct {
	ID           string     `db:"id"`
	AccessCodeID string     `db:"access_code_id"`
	Email        string     `db:"email"`
	CodeHash     string     `db:"code_hash"`
	ExpiresAt    time.Time  `db:"expires_at"`
	ConsumedAt   *time.Time `db:"consumed_at"`
	CreatedAt    time.Time  `db:"created_at"`
}
