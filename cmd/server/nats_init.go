// Keywatch - Chat Keyword Monitoring and Solicitation Scoring
// Copyright 2026 The Keywatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/keywatch/keywatch

package main

import (
	"context"
	"fmt"
	"time"

	natsgo "github.com/nats-io/nats.go"

	"github.com/keywatch/keywatch/internal/config"
	"github.com/keywatch/keywatch/internal/ingest"
	"github.com/keywatch/keywatch/internal/logging"
)

// natsComponents holds the NATS transport pieces that need explicit
// shutdown after the supervisor tree has stopped.
type natsComponents struct {
	server     *ingest.EmbeddedServer
	conn       *natsgo.Conn
	publisher  *ingest.Publisher
	subscriber *ingest.Subscriber
}

// initNATS starts the embedded server if configured, provisions the
// JetStream stream, and creates the publisher and subscriber. Returns
// nil, nil when NATS is disabled.
func initNATS(cfg *config.Config) (*natsComponents, error) {
	if !cfg.NATS.Enabled {
		logging.Info().Msg("NATS event transport disabled, pipeline runs in-process")
		return nil, nil
	}

	components := &natsComponents{}

	natsURL := cfg.NATS.URL
	if cfg.NATS.EmbeddedServer {
		server, err := ingest.NewEmbeddedServer(ingest.EmbeddedServerConfig{
			Host:     "127.0.0.1",
			Port:     4222,
			StoreDir: cfg.NATS.StoreDir,
		})
		if err != nil {
			return nil, fmt.Errorf("start embedded NATS server: %w", err)
		}
		components.server = server
		natsURL = server.ClientURL()
		logging.Info().Str("url", natsURL).Msg("Embedded NATS server started")
	} else {
		logging.Info().Str("url", natsURL).Msg("Using external NATS server")
	}

	nc, err := natsgo.Connect(natsURL,
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(cfg.NATS.MaxReconnects),
		natsgo.ReconnectWait(cfg.NATS.ReconnectWait),
	)
	if err != nil {
		components.shutdown(context.Background())
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	components.conn = nc

	streamManager, err := ingest.NewStreamManager(nc, ingest.StreamConfig{
		Name:     cfg.NATS.StreamName,
		Subjects: []string{cfg.NATS.MessageTopic, cfg.NATS.DispatchTopic},
		MaxAge:   time.Duration(cfg.NATS.RetentionDays) * 24 * time.Hour,
		MaxMsgs:  -1,
	})
	if err != nil {
		components.shutdown(context.Background())
		return nil, fmt.Errorf("create stream manager: %w", err)
	}

	stream, err := streamManager.EnsureStream(context.Background())
	if err != nil {
		components.shutdown(context.Background())
		return nil, fmt.Errorf("ensure stream: %w", err)
	}
	streamInfo := stream.CachedInfo()
	logging.Info().
		Str("name", streamInfo.Config.Name).
		Strs("subjects", streamInfo.Config.Subjects).
		Dur("max_age", streamInfo.Config.MaxAge).
		Msg("JetStream stream ready")

	wmLogger := ingest.NewWatermillLogger()

	publisher, err := ingest.NewPublisher(ingest.PublisherConfig{
		URL:           natsURL,
		MaxReconnects: cfg.NATS.MaxReconnects,
		ReconnectWait: cfg.NATS.ReconnectWait,
	}, wmLogger)
	if err != nil {
		components.shutdown(context.Background())
		return nil, fmt.Errorf("create publisher: %w", err)
	}
	components.publisher = publisher

	subscriber, err := ingest.NewSubscriber(ingest.SubscriberConfig{
		URL:           natsURL,
		StreamName:    cfg.NATS.StreamName,
		DurableName:   cfg.NATS.DurableName,
		QueueGroup:    cfg.NATS.QueueGroup,
		Subscribers:   cfg.NATS.Subscribers,
		AckWait:       cfg.NATS.AckWait,
		MaxReconnects: cfg.NATS.MaxReconnects,
		ReconnectWait: cfg.NATS.ReconnectWait,
	}, wmLogger)
	if err != nil {
		components.shutdown(context.Background())
		return nil, fmt.Errorf("create subscriber: %w", err)
	}
	components.subscriber = subscriber

	logging.Info().
		Str("stream", cfg.NATS.StreamName).
		Str("durable", cfg.NATS.DurableName).
		Int("subscribers", cfg.NATS.Subscribers).
		Msg("NATS transport initialized")

	return components, nil
}

// shutdown closes the transport in reverse initialization order. Safe to
// call with partially initialized components.
func (c *natsComponents) shutdown(ctx context.Context) {
	if c == nil {
		return
	}
	if c.subscriber != nil {
		if err := c.subscriber.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing NATS subscriber")
		}
	}
	if c.publisher != nil {
		if err := c.publisher.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing NATS publisher")
		}
	}
	if c.conn != nil {
		c.conn.Close()
	}
	if c.server != nil {
		if err := c.server.Shutdown(ctx); err != nil {
			logging.Error().Err(err).Msg("Error stopping embedded NATS server")
		} else {
			logging.Info().Msg("Embedded NATS server stopped")
		}
	}
}
