// Package events publishes domain events to downstream consumers such as scoring and
// notification services.
package events

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/intelleges/iaos-compliance-platform-sub001/internal/config"
)

// TypeAssignmentSubmitted is published after a questionnaire submission commits.
const TypeAssignmentSubmitted = "assignment.submitted"

// Event is the envelope delivered to consumers.
type Event struct {
	ID         string                 `json:"id"`
	Type       string                 `json:"type"`
	OccurredAt time.Time              `json:"occurred_at"`
	Data       map[string]interface{} `json:"data"`
}

// New builds an event with a fresh id.
func New(eventType string, data map[string]interface{}) Event {
	return Event{
		ID:         uuid.New().String(),
		Type:       eventType,
		OccurredAt: time.Now().UTC(),
		Data:       data,
	}
}

// Publisher delivers events.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// WebhookPublisher POSTs each event as JSON.
type WebhookPublisher struct {
	url     string
	headers map[string]string
	client  *http.Client
}

// NewWebhookPublisher creates a publisher for url. A zero timeout means 10 seconds.
func NewWebhookPublisher(url string, headers map[string]string, timeout time.Duration) *WebhookPublisher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookPublisher{
		url:     url,
		headers: headers,
		client:  &http.Client{Timeout: timeout},
	}
}

// Publish sends e and fails on any non-2xx response.
func (p *WebhookPublisher) Publish(ctx context.Context, e Event) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Event-Type", e.Type)
	req.Header.Set("X-Event-ID", e.ID)
	for k, v := range p.headers {
		req.Header.Set(k, v)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to deliver event: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("event webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// LogPublisher writes events to the log. It is used when no webhook is configured.
type LogPublisher struct {
	logger *slog.Logger
}

// NewLogPublisher creates a LogPublisher. A nil logger uses slog.Default().
func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(ctx context.Context, e Event) error {
	p.logger.InfoContext(ctx, "domain event", "id", e.ID, "type", e.Type, "data", e.Data)
	return nil
}

// NewFromConfig returns a webhook publisher when a URL is configured, otherwise a
// LogPublisher.
func NewFromConfig(cfg config.EventsConfig) Publisher {
	if cfg.WebhookURL == "" {
		return NewLogPublisher(nil)
	}
	return NewWebhookPublisher(cfg.WebhookURL, cfg.Headers, time.Duration(cfg.TimeoutSecs)*time.Second)
}
