package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// ResponseType identifies how a question is answered and how its value is shaped.
type ResponseType string

const (
	ResponseText       ResponseType = "text"
	ResponseTextarea   ResponseType = "textarea"
	ResponseYesNo      ResponseType = "yes_no"
	ResponseDropdown   ResponseType = "dropdown"
	ResponseCheckbox   ResponseType = "checkbox"
	ResponseDate       ResponseType = "date"
	ResponseFileUpload ResponseType = "file_upload"
)

// ResponseOption is one selectable choice. Code is the stable value stored in responses.
type ResponseOption struct {
	Code  string `json:"code"`
	Label string `json:"label"`
}

// ResponseOptions is stored as a JSONB array.
type ResponseOptions []ResponseOption

// Value implements driver.Valuer.
func (o ResponseOptions) Value() (driver.Value, error) {
	if o == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(o)
}

// Scan implements sql.Scanner.
func (o *ResponseOptions) Scan(src interface{}) error {
	b, err := jsonBytes(src)
	if err != nil || b == nil {
		*o = nil
		return err
	}
	return json.Unmarshal(b, o)
}

// Has reports whether code is one of the options.
func (o ResponseOptions) Has(code string) bool {
	for _, opt := range o {
		if opt.Code == code {
			return true
		}
	}
	return false
}

// Question is a single item in a questionnaire. Tag is the label skip logic jumps to.
type Question struct {
	ID              string          `db:"id" json:"id"`
	QuestionnaireID string          `db:"questionnaire_id" json:"questionnaire_id"`
	SortOrder       int             `db:"sort_order" json:"sort_order"`
	Title           string          `db:"title" json:"title"`
	Text            string          `db:"text" json:"text"`
	ResponseType    ResponseType    `db:"response_type" json:"response_type"`
	ResponseOptions ResponseOptions `db:"response_options" json:"response_options,omitempty"`
	Required        bool            `db:"required" json:"required"`
	Tag             *string         `db:"tag" json:"tag,omitempty"`
	SkipLogicAnswer *string         `db:"skip_logic_answer" json:"skip_logic_answer,omitempty"`
	SkipLogicJump   *string         `db:"skip_logic_jump" json:"skip_logic_jump,omitempty"`
	IsCUI           bool            `db:"is_cui" json:"is_cui"`
	CreatedAt       time.Time       `db:"created_at" json:"-"`
}

// QuestionResponse is the persisted answer for one (assignment, question) pair.
// CUI answers are stored sealed in EncryptedValue and Value is null.
type QuestionResponse struct {
	ID             string          `db:"id" json:"id"`
	AssignmentID   string          `db:"assignment_id" json:"assignment_id"`
	QuestionID     string          `db:"question_id" json:"question_id"`
	Value          RawJSON         `db:"value" json:"value"`
	EncryptedValue *string         `db:"encrypted_value" json:"-"`
	Comment        *string         `db:"comment" json:"comment,omitempty"`
	ClientSavedAt  time.Time       `db:"client_saved_at" json:"client_saved_at"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at" json:"updated_at"`
}
