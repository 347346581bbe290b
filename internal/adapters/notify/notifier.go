// Package notify delivers alerts and card ageing reminders.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/eshaffer321/recon-monitor/internal/domain/alerts"
)

// Message is one delivery to a set of recipients.
type Message struct {
	Audience   string          `json:"audience"`
	Recipients []string        `json:"recipients"`
	Subject    string          `json:"subject"`
	Severity   alerts.Severity `json:"severity"`
	Alerts     []AlertPayload  `json:"alerts"`
}

// AlertPayload is the wire form of an alert.
type AlertPayload struct {
	ID                string    `json:"id"`
	Severity          string    `json:"severity"`
	Category          string    `json:"category"`
	Title             string    `json:"title"`
	Description       string    `json:"description"`
	AffectedEntities  []string  `json:"affected_entities"`
	RecommendedAction string    `json:"recommended_action"`
	Immediate         bool      `json:"requires_immediate_attention"`
	Stage             string    `json:"stage,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

func toPayload(a alerts.Alert) AlertPayload {
	return AlertPayload{
		ID:                a.ID,
		Severity:          string(a.Severity),
		Category:          string(a.Category),
		Title:             a.Title,
		Description:       a.Description,
		AffectedEntities:  a.AffectedEntities,
		RecommendedAction: a.RecommendedAction,
		Immediate:         a.RequiresImmediateAttention,
		Stage:             string(a.Stage),
		CreatedAt:         a.CreatedAt,
	}
}

// Notifier delivers a message.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, msg Message) error
}

// LogNotifier writes messages to a logger. It is the default channel and the
// one used when no webhook is configured.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a log-backed notifier.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger.With("system", "notify")}
}

// Name implements Notifier.
func (n *LogNotifier) Name() string { return "log" }

// Notify implements Notifier.
func (n *LogNotifier) Notify(_ context.Context, msg Message) error {
	n.logger.Info(msg.Subject,
		"audience", msg.Audience,
		"recipients", len(msg.Recipients),
		"severity", msg.Severity,
		"alerts", len(msg.Alerts),
	)
	for _, a := range msg.Alerts {
		n.logger.Debug("alert", "id", a.ID, "title", a.Title, "action", a.RecommendedAction)
	}
	return nil
}

// WebhookNotifier POSTs messages as JSON.
type WebhookNotifier struct {
	url    string
	client *retryablehttp.Client
}

// NewWebhookNotifier creates a webhook notifier with retries.
func NewWebhookNotifier(url string, retryMax int, timeout time.Duration) *WebhookNotifier {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	client := retryablehttp.NewClient()
	client.RetryMax = retryMax
	client.RetryWaitMin = 200 * time.Millisecond
	client.RetryWaitMax = 2 * time.Second
	client.HTTPClient.Timeout = timeout
	client.Logger = nil

	return &WebhookNotifier{url: url, client: client}
}

// Name implements Notifier.
func (n *WebhookNotifier) Name() string { return "webhook" }

// Notify implements Notifier.
func (n *WebhookNotifier) Notify(ctx context.Context, msg Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook delivery failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
