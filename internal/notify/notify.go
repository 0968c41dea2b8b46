// Package notify delivers templated messages to partners. Delivery is behind the Sender
// interface so the portal does not depend on a particular provider.
package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"text/template"
)

// Template identifiers understood by Render.
const (
	TemplateVerificationCode  = "verification_code"
	TemplateSubmissionReceipt = "submission_receipt"
)

// ErrUnknownTemplate is returned for a TemplateID that has no registered template.
var ErrUnknownTemplate = errors.New("unknown notification template")

// Message is a request to deliver one templated message.
type Message struct {
	To         string
	TemplateID string
	Variables  map[string]string
}

// Result describes an accepted delivery.
type Result struct {
	MessageID string
}

// Sender delivers messages.
type Sender interface {
	Send(ctx context.Context, msg Message) (Result, error)
}

type emailTemplate struct {
	subject *template.Template
	body    *template.Template
}

var templates = map[string]emailTemplate{
	TemplateVerificationCode: {
		subject: template.Must(template.New("subject").Parse(`Your verification code: {{.code}}`)),
		body: template.Must(template.New("body").Parse(`Hello {{.partner_name}},

Your verification code for {{.company_name}} is:

    {{.code}}

The code expires in {{.expires_minutes}} minutes. If you did not request it, you can ignore this email.
`)),
	},
	TemplateSubmissionReceipt: {
		subject: template.Must(template.New("subject").Parse(`Questionnaire submitted: {{.touchpoint_title}}`)),
		body: template.Must(template.New("body").Parse(`Hello {{.signer_name}},

Your responses for {{.touchpoint_title}} were submitted on {{.submitted_at}}.
Reference: {{.assignment_id}}
`)),
	},
}

// Render produces the subject and plain-text body for a message.
func Render(msg Message) (subject, body string, err error) {
	t, ok := templates[msg.TemplateID]
	if !ok {
		return "", "", fmt.Errorf("%w: %q", ErrUnknownTemplate, msg.TemplateID)
	}
	var sb, bb bytes.Buffer
	if err := t.subject.Execute(&sb, msg.Variables); err != nil {
		return "", "", fmt.Errorf("render subject: %w", err)
	}
	if err := t.body.Execute(&bb, msg.Variables); err != nil {
		return "", "", fmt.Errorf("render body: %w", err)
	}
	return sb.String(), bb.String(), nil
}
