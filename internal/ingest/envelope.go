// Keywatch - Chat Keyword Monitoring and Solicitation Scoring
// Copyright 2026 The Keywatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/keywatch/keywatch

package ingest

import (
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"
	json "github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/keywatch/keywatch/internal/monitor"
)

// EncodeMessage wraps an inbound chat message as a Watermill message.
// The message UUID doubles as the JetStream deduplication ID.
func EncodeMessage(event *monitor.IngestEvent) (*message.Message, error) {
	if event.EventID == "" {
		event.EventID = uuid.NewString()
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("marshal ingest event: %w", err)
	}

	msg := message.NewMessage(event.EventID, payload)
	msg.Metadata.Set("channel_id", event.ChannelID)
	msg.Metadata.Set("user_id", event.UserID)
	return msg, nil
}

// DecodeMessage unwraps a chat message from a Watermill message.
func DecodeMessage(msg *message.Message) (*monitor.IngestEvent, error) {
	var event monitor.IngestEvent
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		return nil, fmt.Errorf("unmarshal ingest event %s: %w", msg.UUID, err)
	}
	return &event, nil
}

// EncodeDispatch wraps a notification payload as a Watermill message.
func EncodeDispatch(payload *monitor.DispatchPayload) (*message.Message, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal dispatch payload: %w", err)
	}

	msg := message.NewMessage(uuid.NewString(), raw)
	msg.Metadata.Set("category", payload.Category)
	return msg, nil
}

// DecodeDispatch unwraps a notification payload from a Watermill message.
func DecodeDispatch(msg *message.Message) (*monitor.DispatchPayload, error) {
	var payload monitor.DispatchPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return nil, fmt.Errorf("unmarshal dispatch payload %s: %w", msg.UUID, err)
	}
	return &payload, nil
}
