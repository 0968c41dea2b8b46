package models

import "time"

// Partner is an external supplier organisation contact invited to answer questionnaires.
type Partner struct {
	ID               string    `db:"id" json:"id"`
	EnterpriseID     string    `db:"enterprise_id" json:"enterprise_id"`
	CompanyName      string    `db:"company_name" json:"company_name"`
	ContactFirstName string    `db:"contact_first_name" json:"contact_first_name"`
	ContactLastName  string    `db:"contact_last_name" json:"contact_last_name"`
	Email            string    `db:"email" json:"email"`
	Phone            *string   `db:"phone" json:"phone,omitempty"`
	Address1         *string   `db:"address1" json:"address1,omitempty"`
	Address2         *string   `db:"address2" json:"address2,omitempty"`
	City             *string   `db:"city" json:"city,omitempty"`
	State            *string   `db:"state" json:"state,omitempty"`
	Zipcode          *string   `db:"zipcode" json:"zipcode,omitempty"`
	Country          *string   `db:"country" json:"country,omitempty"`
	Active           bool      `db:"active" json:"active"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
}

// ContactName returns "First Last", or the company name when no contact is recorded.
func (p *Partner) ContactName() string {
	switch {
	case p.ContactFirstName != "" && p.ContactLastName != "":
		return p.ContactFirstName + " " + p.ContactLastName
	case p.ContactFirstName != "":
		return p.ContactFirstName
	default:
		return p.CompanyName
	}
}
