// Keywatch - Chat Keyword Monitoring and Solicitation Scoring
// Copyright 2026 The Keywatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/keywatch/keywatch

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists where config files are searched, in priority order.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/keywatch/config.yaml",
	"/etc/keywatch/config.yml",
}

// ConfigPathEnvVar overrides the config file path when set.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config with all defaults applied. Defaults are
// loaded first, then overridden by the config file and environment variables.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:    "0.0.0.0",
			Port:    3001,
			Timeout: 30 * time.Second,
		},
		Store: StoreConfig{
			Path:     "/data/keywatch",
			InMemory: false,
		},
		NATS: NATSConfig{
			Enabled:        true,
			URL:            "nats://127.0.0.1:4222",
			EmbeddedServer: true,
			StoreDir:       "/data/nats/jetstream",
			StreamName:     "KEYWATCH",
			MessageTopic:   "chat.message",
			DispatchTopic:  "notify.dispatch",
			DurableName:    "keywatch-pipeline",
			QueueGroup:     "pipeline",
			Subscribers:    4,
			AckWait:        30 * time.Second,
			MaxReconnects:  -1,
			ReconnectWait:  2 * time.Second,
			RetentionDays:  7,
		},
		Watch: WatchConfig{
			RefreshInterval: time.Minute,
		},
		Dispatch: DispatchConfig{
			QueueSize: 256,
			BaseURL:   "http://127.0.0.1:3001",
			Telegram: TelegramConfig{
				Enabled:  false,
				APIBase:  "https://api.telegram.org",
				SendRate: 25, // Bot API allows ~30 msg/s; stay under it
			},
			Webhook: WebhookConfig{
				Enabled: false,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Load reads configuration from layered sources:
//  1. Built-in defaults
//  2. Optional YAML config file
//  3. Environment variables (highest priority)
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile returns the first config file found, or "".
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// envMappings maps environment variable names to koanf config paths.
// Unmapped variables are ignored so unrelated environment noise cannot
// pollute the configuration.
var envMappings = map[string]string{
	"http_host":    "server.host",
	"http_port":    "server.port",
	"http_timeout": "server.timeout",

	"store_path":      "store.path",
	"store_in_memory": "store.in_memory",

	"nats_enabled":        "nats.enabled",
	"nats_url":            "nats.url",
	"nats_embedded":       "nats.embedded_server",
	"nats_store_dir":      "nats.store_dir",
	"nats_stream_name":    "nats.stream_name",
	"nats_message_topic":  "nats.message_topic",
	"nats_dispatch_topic": "nats.dispatch_topic",
	"nats_durable_name":   "nats.durable_name",
	"nats_queue_group":    "nats.queue_group",
	"nats_subscribers":    "nats.subscribers",
	"nats_ack_wait":       "nats.ack_wait",
	"nats_max_reconnect":  "nats.max_reconnects",
	"nats_reconnect_wait": "nats.reconnect_wait",
	"nats_retention_days": "nats.retention_days",

	"watch_refresh_interval": "watch.refresh_interval",

	"dispatch_queue_size": "dispatch.queue_size",
	"base_url":            "dispatch.base_url",
	"telegram_enabled":    "dispatch.telegram.enabled",
	"pushbot_token":       "dispatch.telegram.bot_token",
	"telegram_api_base":   "dispatch.telegram.api_base",
	"telegram_send_rate":  "dispatch.telegram.send_rate",
	"webhook_enabled":     "dispatch.webhook.enabled",
	"webhook_url":         "dispatch.webhook.url",

	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",
}

// envTransformFunc maps environment variable names to config paths.
// Example: PUSHBOT_TOKEN -> dispatch.telegram.bot_token.
func envTransformFunc(key string) string {
	if mapped, ok := envMappings[strings.ToLower(key)]; ok {
		return mapped
	}
	return ""
}
