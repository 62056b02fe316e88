// Keywatch - Chat Keyword Monitoring and Solicitation Scoring
// Copyright 2026 The Keywatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/keywatch/keywatch

package ingest

import (
	"context"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/keywatch/keywatch/internal/logging"
	"github.com/keywatch/keywatch/internal/metrics"
	"github.com/keywatch/keywatch/internal/monitor"
)

// MessageSource is the subscription surface consumers drain from. Satisfied
// by *Subscriber and by in-memory pub/subs in tests.
type MessageSource interface {
	Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error)
}

// MessageConsumer feeds chat messages from the stream into the
// classification pipeline. Decode failures are acked and dropped; pipeline
// errors nack the message for redelivery.
type MessageConsumer struct {
	subscriber MessageSource
	pipeline   *monitor.Pipeline
	topic      string
}

// NewMessageConsumer builds the chat-message consumer.
func NewMessageConsumer(subscriber MessageSource, pipeline *monitor.Pipeline, topic string) *MessageConsumer {
	return &MessageConsumer{
		subscriber: subscriber,
		pipeline:   pipeline,
		topic:      topic,
	}
}

// Serve consumes until ctx is cancelled, satisfying the suture service
// contract.
func (c *MessageConsumer) Serve(ctx context.Context) error {
	messages, err := c.subscriber.Subscribe(ctx, c.topic)
	if err != nil {
		return err
	}
	logging.Info().Str("topic", c.topic).Msg("Message consumer started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			c.handle(ctx, msg)
		}
	}
}

func (c *MessageConsumer) handle(ctx context.Context, msg *message.Message) {
	event, err := DecodeMessage(msg)
	if err != nil {
		// Malformed payloads can never succeed; drop them.
		logging.Err(err).Str("message_uuid", msg.UUID).Msg("Dropping undecodable message")
		msg.Ack()
		return
	}

	if err := c.pipeline.HandleEvent(ctx, event); err != nil {
		logging.Err(err).
			Str("message_uuid", msg.UUID).
			Str("user_id", event.UserID).
			Msg("Pipeline failed, message will be redelivered")
		msg.Nack()
		return
	}
	msg.Ack()
}

func (c *MessageConsumer) String() string { return "message-consumer" }

// DispatchConsumer drains durable notification payloads from the stream and
// delivers them through the gate.
type DispatchConsumer struct {
	subscriber MessageSource
	gate       *monitor.Gate
	topic      string
}

// NewDispatchConsumer builds the notification consumer.
func NewDispatchConsumer(subscriber MessageSource, gate *monitor.Gate, topic string) *DispatchConsumer {
	return &DispatchConsumer{
		subscriber: subscriber,
		gate:       gate,
		topic:      topic,
	}
}

// Serve consumes until ctx is cancelled.
func (c *DispatchConsumer) Serve(ctx context.Context) error {
	messages, err := c.subscriber.Subscribe(ctx, c.topic)
	if err != nil {
		return err
	}
	logging.Info().Str("topic", c.topic).Msg("Dispatch consumer started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			payload, err := DecodeDispatch(msg)
			if err != nil {
				logging.Err(err).Str("message_uuid", msg.UUID).Msg("Dropping undecodable dispatch")
				msg.Ack()
				continue
			}
			// Delivery failures are logged per notifier inside the gate;
			// the payload is not redelivered to avoid duplicate alerts.
			c.gate.Notify(ctx, payload)
			msg.Ack()
		}
	}
}

func (c *DispatchConsumer) String() string { return "dispatch-consumer" }

// NATSDispatcher implements monitor.Dispatcher by publishing payloads to
// the dispatch topic, making notification delivery durable across restarts.
type NATSDispatcher struct {
	publisher *Publisher
	topic     string
}

// NewNATSDispatcher builds a dispatcher over the stream publisher.
func NewNATSDispatcher(publisher *Publisher, topic string) *NATSDispatcher {
	return &NATSDispatcher{publisher: publisher, topic: topic}
}

// Enqueue implements monitor.Dispatcher. The publish is synchronous but
// fast; the broker, not the pipeline, buffers delivery.
func (d *NATSDispatcher) Enqueue(payload *monitor.DispatchPayload) bool {
	if err := d.publisher.PublishDispatch(context.Background(), d.topic, payload); err != nil {
		metrics.NotificationsSent.WithLabelValues("nats", "dropped").Inc()
		logging.Err(err).Str("category", payload.Category).Msg("Dispatch publish failed")
		return false
	}
	return true
}

var _ monitor.Dispatcher = (*NATSDispatcher)(nil)
