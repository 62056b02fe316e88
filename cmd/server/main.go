// Keywatch - Chat Keyword Monitoring and Solicitation Scoring
// Copyright 2026 The Keywatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/keywatch/keywatch

// Package main is the entry point for the Keywatch server.
//
// Keywatch monitors chat messages from watched group channels, classifies
// them against per-channel keyword categories, keeps a bounded per-user
// event history, scores users for solicitation-like posting behavior, and
// dispatches notifications to Telegram and webhook destinations.
//
// # Application Architecture
//
// The server initializes components in the following order:
//
//  1. Configuration: layered defaults, YAML file, environment (Koanf v2)
//  2. Store: embedded BadgerDB for events, profiles, and watch config
//  3. Watch cache: periodically refreshed watched-channel ID set
//  4. NATS (optional): embedded JetStream broker, publisher, subscriber
//  5. Pipeline: keyword matching, history append, behavioral scoring
//  6. Dispatch: notifier fan-out through Telegram and webhooks
//  7. HTTP server: REST API for profiles, history, scores, and watch admin
//
// All long-running components run under a Suture supervisor tree with
// separate pipeline and API layers, so a crash in one restarts only that
// layer.
//
// # Configuration
//
// Configuration is loaded via Koanf v2 with layered sources (highest
// priority wins):
//   - Environment variables (KEYWATCH_ prefix)
//   - Config file (config.yaml, or CONFIG_PATH)
//   - Built-in defaults
//
// # Transport Modes
//
// With nats.enabled=true (the default) messages flow through a JetStream
// stream: the pipeline consumes chat messages from one subject and
// publishes dispatch payloads to another, giving at-least-once delivery
// across restarts. With nats.enabled=false the pipeline is fed directly
// and dispatch runs on an in-process bounded queue.
//
// # Signal Handling
//
// The server shuts down gracefully on SIGINT and SIGTERM: the supervisor
// tree drains its services, the HTTP server finishes in-flight requests,
// and the store and NATS transport close last.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/keywatch/keywatch/internal/api"
	"github.com/keywatch/keywatch/internal/config"
	"github.com/keywatch/keywatch/internal/ingest"
	"github.com/keywatch/keywatch/internal/logging"
	"github.com/keywatch/keywatch/internal/monitor"
	"github.com/keywatch/keywatch/internal/supervisor"
	"github.com/keywatch/keywatch/internal/supervisor/services"
)

func main() {
	// Load configuration first to get logging settings
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().Msg("Starting Keywatch with supervisor tree")
	logging.Info().
		Str("store_path", cfg.Store.Path).
		Bool("nats_enabled", cfg.NATS.Enabled).
		Bool("telegram_enabled", cfg.Dispatch.Telegram.Enabled).
		Bool("webhook_enabled", cfg.Dispatch.Webhook.Enabled).
		Msg("Configuration loaded")

	storePath := cfg.Store.Path
	if cfg.Store.InMemory {
		storePath = ""
		logging.Warn().Msg("Store running in memory, data is lost on restart")
	}
	store, err := monitor.NewBadgerStore(storePath)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open store")
	}
	defer func() {
		if err := store.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing store")
		}
	}()
	logging.Info().Msg("Store initialized successfully")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	watch := monitor.NewWatchCache(store, cfg.Watch.RefreshInterval)
	if err := watch.Refresh(ctx); err != nil {
		// Non-fatal, the refresher retries on its interval.
		logging.Warn().Err(err).Msg("Initial watch cache refresh failed")
	}

	scorer := monitor.NewHeuristicScorer(nil)

	telegram := monitor.NewTelegramNotifier(monitor.TelegramNotifierConfig{
		BotToken: cfg.Dispatch.Telegram.BotToken,
		APIBase:  cfg.Dispatch.Telegram.APIBase,
		Enabled:  cfg.Dispatch.Telegram.Enabled,
		SendRate: cfg.Dispatch.Telegram.SendRate,
	})
	webhook := monitor.NewWebhookNotifier(monitor.WebhookNotifierConfig{
		URL:     cfg.Dispatch.Webhook.URL,
		Headers: cfg.Dispatch.Webhook.Headers,
		Enabled: cfg.Dispatch.Webhook.Enabled,
	})
	gate := monitor.NewGate(store, telegram, webhook)

	natsComponents, err := initNATS(cfg)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize NATS")
	}
	defer natsComponents.shutdown(context.Background())

	// With NATS the dispatch payload travels through JetStream so delivery
	// survives restarts; without it a bounded in-process queue feeds the
	// notifier fan-out directly.
	var dispatcher monitor.Dispatcher
	var queueWorker *monitor.QueueDispatcher
	if natsComponents != nil {
		dispatcher = ingest.NewNATSDispatcher(natsComponents.publisher, cfg.NATS.DispatchTopic)
		logging.Info().Str("topic", cfg.NATS.DispatchTopic).Msg("Dispatch routed through JetStream")
	} else {
		queueWorker = monitor.NewQueueDispatcher(gate, cfg.Dispatch.QueueSize)
		dispatcher = queueWorker
		logging.Info().Int("queue_size", cfg.Dispatch.QueueSize).Msg("Dispatch routed through in-process queue")
	}

	pipeline := monitor.NewPipeline(store, store, store, watch, scorer, dispatcher, cfg.Dispatch.BaseURL)

	handler := api.NewHandler(store, scorer, watch)
	router := api.NewRouter(handler)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
		IdleTimeout:  60 * time.Second,
	}

	tree := supervisor.NewTree(logging.Slog(), supervisor.DefaultTreeConfig())

	tree.AddPipelineService(services.NewWatchCacheService(watch))
	if natsComponents != nil {
		tree.AddPipelineService(ingest.NewMessageConsumer(natsComponents.subscriber, pipeline, cfg.NATS.MessageTopic))
		tree.AddPipelineService(ingest.NewDispatchConsumer(natsComponents.subscriber, gate, cfg.NATS.DispatchTopic))
		logging.Info().
			Str("message_topic", cfg.NATS.MessageTopic).
			Str("dispatch_topic", cfg.NATS.DispatchTopic).
			Msg("Stream consumers added to supervisor tree")
	} else {
		tree.AddPipelineService(queueWorker)
		logging.Info().Msg("Dispatch queue worker added to supervisor tree")
	}

	tree.AddAPIService(services.NewHTTPServerService(server, 10*time.Second))
	logging.Info().Str("addr", server.Addr).Msg("HTTP server service added")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Msg("Starting supervisor tree...")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish...")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	if len(unstopped) > 0 {
		logging.Warn().Int("count", len(unstopped)).Msg("Services failed to stop within timeout")
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("Service failed to stop")
		}
	}

	logging.Info().Msg("Application stopped gracefully")
}
