// Keywatch - Chat Keyword Monitoring and Solicitation Scoring
// Copyright 2026 The Keywatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/keywatch/keywatch

// Package config provides layered configuration loading for Keywatch.
//
// Precedence: environment variables > YAML config file > built-in defaults.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config is the root configuration for the Keywatch server.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Store    StoreConfig    `koanf:"store"`
	NATS     NATSConfig     `koanf:"nats"`
	Watch    WatchConfig    `koanf:"watch"`
	Dispatch DispatchConfig `koanf:"dispatch"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// ServerConfig configures the HTTP API listener.
type ServerConfig struct {
	Host    string        `koanf:"host"`
	Port    int           `koanf:"port" validate:"gte=1,lte=65535"`
	Timeout time.Duration `koanf:"timeout"`
}

// StoreConfig configures the embedded Badger store.
type StoreConfig struct {
	Path string `koanf:"path" validate:"required"`

	// InMemory runs Badger without disk persistence. Test use only.
	InMemory bool `koanf:"in_memory"`
}

// NATSConfig configures the JetStream event transport.
type NATSConfig struct {
	Enabled        bool   `koanf:"enabled"`
	URL            string `koanf:"url"`
	EmbeddedServer bool   `koanf:"embedded_server"`
	StoreDir       string `koanf:"store_dir"`

	StreamName    string        `koanf:"stream_name"`
	MessageTopic  string        `koanf:"message_topic"`
	DispatchTopic string        `koanf:"dispatch_topic"`
	DurableName   string        `koanf:"durable_name"`
	QueueGroup    string        `koanf:"queue_group"`
	Subscribers   int           `koanf:"subscribers" validate:"gte=1"`
	AckWait       time.Duration `koanf:"ack_wait"`
	MaxReconnects int           `koanf:"max_reconnects"`
	ReconnectWait time.Duration `koanf:"reconnect_wait"`
	RetentionDays int           `koanf:"retention_days"`
}

// WatchConfig configures watched-channel cache behavior.
type WatchConfig struct {
	// RefreshInterval is how often the watched-channel ID cache is reloaded
	// from the config store.
	RefreshInterval time.Duration `koanf:"refresh_interval"`
}

// DispatchConfig configures outbound notification delivery.
type DispatchConfig struct {
	// QueueSize bounds the async dispatch queue between the pipeline and
	// the notifier fan-out worker.
	QueueSize int `koanf:"queue_size" validate:"gte=1"`

	// BaseURL is the operator console base used to build record deep links.
	BaseURL string `koanf:"base_url"`

	Telegram TelegramConfig `koanf:"telegram"`
	Webhook  WebhookConfig  `koanf:"webhook"`
}

// TelegramConfig configures the Telegram bot notifier.
type TelegramConfig struct {
	Enabled  bool   `koanf:"enabled"`
	BotToken string `koanf:"bot_token"`
	APIBase  string `koanf:"api_base"`

	// SendRate is the maximum messages per second across all destinations.
	SendRate float64 `koanf:"send_rate"`
}

// WebhookConfig configures the generic webhook notifier.
type WebhookConfig struct {
	Enabled bool              `koanf:"enabled"`
	URL     string            `koanf:"url"`
	Headers map[string]string `koanf:"headers"`
}

// LoggingConfig configures the zerolog output.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// Validate checks configuration consistency beyond struct tags.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.NATS.Enabled && !c.NATS.EmbeddedServer && c.NATS.URL == "" {
		return fmt.Errorf("nats.url is required when the embedded server is disabled")
	}
	if c.Dispatch.Telegram.Enabled && c.Dispatch.Telegram.BotToken == "" {
		return fmt.Errorf("dispatch.telegram.bot_token is required when the Telegram notifier is enabled")
	}
	if c.Dispatch.Webhook.Enabled && c.Dispatch.Webhook.URL == "" {
		return fmt.Errorf("dispatch.webhook.url is required when the webhook notifier is enabled")
	}
	return nil
}
