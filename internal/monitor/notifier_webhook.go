// Keywatch - Chat Keyword Monitoring and Solicitation Scoring
// Copyright 2026 The Keywatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/keywatch/keywatch

package monitor

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/goccy/go-json"
)

// WebhookNotifier posts notifications to a generic HTTP endpoint. The
// destination identifier is forwarded in the payload so one endpoint can
// route for many categories.
type WebhookNotifier struct {
	url     string
	headers map[string]string
	enabled bool
	client  *http.Client
}

// WebhookNotifierConfig configures the generic webhook notifier.
type WebhookNotifierConfig struct {
	URL     string
	Headers map[string]string // Custom headers (e.g., auth)
	Enabled bool
}

// webhookEnvelope is the JSON body sent to the endpoint.
type webhookEnvelope struct {
	EventType   string           `json:"event_type"` // keyword_match
	Destination string           `json:"destination"`
	Payload     *DispatchPayload `json:"payload"`
	Timestamp   time.Time        `json:"timestamp"`
	Source      string           `json:"source"` // keywatch
}

// NewWebhookNotifier creates a generic webhook notifier.
func NewWebhookNotifier(config WebhookNotifierConfig) *WebhookNotifier {
	headers := make(map[string]string)
	for k, v := range config.Headers {
		headers[k] = v
	}

	return &WebhookNotifier{
		url:     config.URL,
		headers: headers,
		enabled: config.Enabled,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Name returns the notifier name.
func (n *WebhookNotifier) Name() string {
	return "webhook"
}

// Enabled returns whether this notifier is enabled.
func (n *WebhookNotifier) Enabled() bool {
	return n.enabled && n.url != ""
}

// Send posts one payload to the webhook endpoint.
func (n *WebhookNotifier) Send(ctx context.Context, destination string, payload *DispatchPayload) error {
	if !n.Enabled() {
		return nil
	}

	body, err := json.Marshal(webhookEnvelope{
		EventType:   "keyword_match",
		Destination: destination,
		Payload:     payload,
		Timestamp:   time.Now(),
		Source:      "keywatch",
	})
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for key, value := range n.headers {
		req.Header.Set(key, value)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

var _ Notifier = (*TelegramNotifier)(nil)
var _ Notifier = (*WebhookNotifier)(nil)
