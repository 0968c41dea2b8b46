// Package questionnaire holds the rules for answering a questionnaire: answer value
// shapes, skip-logic navigation, validation and progress. Everything here is pure
// except Engine, which loads questions from storage.
package questionnaire

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/intelleges/iaos-compliance-platform-sub001/internal/db/models"
)

// Canonical yes/no tokens.
const (
	Yes = "1"
	No  = "0"
)

// DateLayout is the accepted date format.
const DateLayout = "2006-01-02"

// ErrMalformed is wrapped by every ParseValue shape error.
var ErrMalformed = errors.New("malformed answer")

// FileRef points at an uploaded file answer.
type FileRef struct {
	Key         string `json:"key"`
	Filename    string `json:"filename"`
	Size        int64  `json:"size"`
	ContentType string `json:"content_type"`
}

// Value is an answer. Type selects which field is meaningful:
// Text for text, textarea, yes_no, dropdown and date; Codes for checkbox; File for
// file_upload.
type Value struct {
	Type  models.ResponseType
	Text  string
	Codes []string
	File  *FileRef
}

// IsEmpty reports whether the value carries no meaningful answer.
func (v Value) IsEmpty() bool {
	switch v.Type {
	case models.ResponseCheckbox:
		return len(v.Codes) == 0
	case models.ResponseFileUpload:
		return v.File == nil || v.File.Key == ""
	default:
		return strings.TrimSpace(v.Text) == ""
	}
}

// MarshalJSON encodes the canonical stored form. Empty values encode as null.
func (v Value) MarshalJSON() ([]byte, error) {
	if v.IsEmpty() {
		return []byte("null"), nil
	}
	switch v.Type {
	case models.ResponseCheckbox:
		return json.Marshal(v.Codes)
	case models.ResponseFileUpload:
		return json.Marshal(v.File)
	default:
		return json.Marshal(v.Text)
	}
}

// ParseValue decodes raw JSON into a Value for q, normalising yes/no tokens. Shape
// errors wrap ErrMalformed. Option membership is checked by ValidateResponse.
func ParseValue(q *models.Question, raw json.RawMessage) (Value, error) {
	v := Value{Type: q.ResponseType}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return v, nil
	}

	switch q.ResponseType {
	case models.ResponseText, models.ResponseTextarea, models.ResponseDropdown, models.ResponseDate:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return v, fmt.Errorf("%w: expected a string", ErrMalformed)
		}
		v.Text = s
		if q.ResponseType == models.ResponseDropdown || q.ResponseType == models.ResponseDate {
			v.Text = strings.TrimSpace(s)
		}

	case models.ResponseYesNo:
		tok, err := parseYesNo(raw)
		if err != nil {
			return v, err
		}
		v.Text = tok

	case models.ResponseCheckbox:
		var codes []string
		if err := json.Unmarshal(raw, &codes); err != nil {
			return v, fmt.Errorf("%w: expected an array of option codes", ErrMalformed)
		}
		seen := make(map[string]bool, len(codes))
		for _, c := range codes {
			c = strings.TrimSpace(c)
			if c == "" || seen[c] {
				continue
			}
			seen[c] = true
			v.Codes = append(v.Codes, c)
		}

	case models.ResponseFileUpload:
		var f FileRef
		if err := json.Unmarshal(raw, &f); err != nil {
			return v, fmt.Errorf("%w: expected a file reference", ErrMalformed)
		}
		if f.Key != "" {
			v.File = &f
		}

	default:
		return v, fmt.Errorf("%w: unsupported response type %q", ErrMalformed, q.ResponseType)
	}
	return v, nil
}

func parseYesNo(raw json.RawMessage) (string, error) {
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		if b {
			return Yes, nil
		}
		return No, nil
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		switch n {
		case 1:
			return Yes, nil
		case 0:
			return No, nil
		}
		return "", fmt.Errorf("%w: yes/no answer must be yes or no", ErrMalformed)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", fmt.Errorf("%w: yes/no answer must be yes or no", ErrMalformed)
	}
	if strings.TrimSpace(s) == "" {
		return "", nil
	}
	tok, ok := NormalizeYesNo(s)
	if !ok {
		return "", fmt.Errorf("%w: yes/no answer must be yes or no", ErrMalformed)
	}
	return tok, nil
}

// NormalizeYesNo maps the accepted spellings to Yes or No.
func NormalizeYesNo(s string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "yes", "y", "true":
		return Yes, true
	case "0", "no", "n", "false":
		return No, true
	}
	return "", false
}

func validDate(s string) bool {
	_, err := time.Parse(DateLayout, s)
	return err == nil
}
