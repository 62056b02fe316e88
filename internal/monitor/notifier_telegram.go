// Keywatch - Chat Keyword Monitoring and Solicitation Scoring
// Copyright 2026 The Keywatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/keywatch/keywatch

package monitor

import (
	"bytes"
	"context"
	"fmt"
	"html"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"
)

// TelegramNotifier delivers notifications as HTML messages through the
// Telegram Bot API. A shared token-bucket limiter keeps the notifier under
// the Bot API's global send rate, and a circuit breaker sheds sends while
// the API is failing instead of piling up blocked goroutines.
type TelegramNotifier struct {
	botToken string
	apiBase  string
	enabled  bool
	client   *http.Client
	limiter  *rate.Limiter
	breaker  *gobreaker.CircuitBreaker[*http.Response]
}

// TelegramNotifierConfig configures the Telegram notifier.
type TelegramNotifierConfig struct {
	BotToken string
	APIBase  string
	Enabled  bool

	// SendRate is messages per second across all destinations. The Bot API
	// allows roughly 30; defaults to 25 to keep headroom.
	SendRate float64
}

// NewTelegramNotifier creates a Telegram notifier.
func NewTelegramNotifier(config TelegramNotifierConfig) *TelegramNotifier {
	apiBase := config.APIBase
	if apiBase == "" {
		apiBase = "https://api.telegram.org"
	}
	sendRate := config.SendRate
	if sendRate <= 0 {
		sendRate = 25
	}

	breaker := gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:        "telegram-api",
		MaxRequests: 3,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})

	return &TelegramNotifier{
		botToken: config.BotToken,
		apiBase:  strings.TrimRight(apiBase, "/"),
		enabled:  config.Enabled,
		limiter:  rate.NewLimiter(rate.Limit(sendRate), 1),
		breaker:  breaker,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Name returns the notifier name.
func (n *TelegramNotifier) Name() string {
	return "telegram"
}

// Enabled returns whether this notifier is configured for delivery.
func (n *TelegramNotifier) Enabled() bool {
	return n.enabled && n.botToken != ""
}

type telegramSendMessage struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

// Send delivers one payload to a Telegram chat identified by destination.
func (n *TelegramNotifier) Send(ctx context.Context, destination string, payload *DispatchPayload) error {
	if !n.Enabled() {
		return nil
	}

	if err := n.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("telegram rate limit wait: %w", err)
	}

	body, err := json.Marshal(telegramSendMessage{
		ChatID:                destination,
		Text:                  renderTelegramHTML(payload),
		ParseMode:             "HTML",
		DisableWebPagePreview: true,
	})
	if err != nil {
		return fmt.Errorf("marshal telegram message: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.apiBase, n.botToken)
	_, err = n.breaker.Execute(func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("create telegram request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := n.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("send telegram message: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 400 {
			return nil, fmt.Errorf("telegram returned status %d", resp.StatusCode)
		}
		return resp, nil
	})
	return err
}

// renderTelegramHTML composes the notification text. All user-supplied
// values are escaped before insertion into the HTML message.
func renderTelegramHTML(payload *DispatchPayload) string {
	var b strings.Builder

	label := payload.CategoryLabel
	if label == "" {
		label = payload.Category
	}
	fmt.Fprintf(&b, "<b>%s</b>\n", html.EscapeString(label))

	name := payload.Message.DisplayName
	if name == "" {
		name = payload.Message.Username
	}
	fmt.Fprintf(&b, "User: %s", html.EscapeString(name))
	if payload.Message.Username != "" {
		fmt.Fprintf(&b, " (@%s)", html.EscapeString(payload.Message.Username))
	}
	b.WriteString("\n")

	if payload.Message.ChannelName != "" {
		fmt.Fprintf(&b, "Group: %s\n", html.EscapeString(payload.Message.ChannelName))
	}
	fmt.Fprintf(&b, "Message: <code>%s</code>\n", html.EscapeString(payload.Message.Text))
	fmt.Fprintf(&b, "Score: <b>%d</b>/100\n", payload.Score.Score)

	if len(payload.Profile.Channels) > 0 {
		groups := make([]string, 0, len(payload.Profile.Channels))
		for _, ch := range payload.Profile.Channels {
			name := ch.ChannelName
			if name == "" {
				name = ch.ChannelID
			}
			groups = append(groups, html.EscapeString(name))
		}
		fmt.Fprintf(&b, "Active in: %s\n", strings.Join(groups, ", "))
	}

	if payload.RecordLink != "" {
		fmt.Fprintf(&b, `<a href="%s">Full record</a>`, html.EscapeString(payload.RecordLink))
	}

	return strings.TrimRight(b.String(), "\n")
}
