package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// Request is a notification-dispatch order. Delivery is fire-and-forget from
// the alerting core's point of view: failures are logged on the alert record
// but never block a lifecycle transition.
type Request struct {
	AlertID  uuid.UUID `json:"alert_id"`
	DeviceID uuid.UUID `json:"device_id"`
	Severity string    `json:"severity"`
	Title    string    `json:"title"`
	Message  string    `json:"message"`
	Tier     int       `json:"tier"`
	TierName string    `json:"tier_name,omitempty"`
	Channels []string  `json:"channels"`
}

type Dispatcher interface {
	Dispatch(ctx context.Context, req Request) error
}

// WebhookDispatcher posts notification requests to an external delivery
// service (chat/pager/email fan-out happens there).
type WebhookDispatcher struct {
	url    string
	client *http.Client
}

func NewWebhookDispatcher(url string, timeout time.Duration) *WebhookDispatcher {
	return &WebhookDispatcher{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

func (d *WebhookDispatcher) Dispatch(ctx context.Context, req Request) error {
	body, err := json.Marshal(req)
	if err != nil {
		return err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("webhook dispatch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook dispatch failed: status %d", resp.StatusCode)
	}
	return nil
}

// LogDispatcher is the fallback when no webhook is configured.
type LogDispatcher struct{}

func (LogDispatcher) Dispatch(ctx context.Context, req Request) error {
	slog.Info("Notification dispatched",
		"alert_id", req.AlertID,
		"severity", req.Severity,
		"tier", req.Tier,
		"channels", req.Channels,
	)
	return nil
}
