package notify

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

// LogSender writes messages to the structured log instead of delivering them. It is
// used when notifications are disabled, typically in development.
type LogSender struct {
	logger *slog.Logger
}

// NewLogSender creates a LogSender. A nil logger uses slog.Default().
func NewLogSender(logger *slog.Logger) *LogSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSender{logger: logger}
}

// Send renders the message and logs it.
func (s *LogSender) Send(ctx context.Context, msg Message) (Result, error) {
	subject, body, err := Render(msg)
	if err != nil {
		return Result{}, err
	}
	id := uuid.New().String()
	s.logger.InfoContext(ctx, "notification not delivered (notifications disabled)",
		"message_id", id, "to", msg.To, "template", msg.TemplateID, "subject", subject)
	s.logger.DebugContext(ctx, "notification body", "message_id", id, "body", body)
	return Result{MessageID: id}, nil
}
