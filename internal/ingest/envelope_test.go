// Keywatch - Chat Keyword Monitoring and Solicitation Scoring
// Copyright 2026 The Keywatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/keywatch/keywatch

package ingest

import (
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/keywatch/keywatch/internal/monitor"
)

func TestEncodeMessageAssignsEventID(t *testing.T) {
	event := &monitor.IngestEvent{
		ChannelID: "-1001",
		UserID:    "u1",
		Text:      "skewed 50",
		SentAt:    time.Now(),
	}

	msg, err := EncodeMessage(event)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if event.EventID == "" {
		t.Error("encode must assign a missing event ID")
	}
	if msg.UUID != event.EventID {
		t.Errorf("message UUID %q != event ID %q", msg.UUID, event.EventID)
	}
	if msg.Metadata.Get("channel_id") != "-1001" || msg.Metadata.Get("user_id") != "u1" {
		t.Errorf("metadata = %v", msg.Metadata)
	}
}

func TestEncodeMessageKeepsEventID(t *testing.T) {
	event := &monitor.IngestEvent{EventID: "fixed", UserID: "u1", ChannelID: "-1", Text: "1"}
	msg, err := EncodeMessage(event)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if msg.UUID != "fixed" {
		t.Errorf("UUID = %q, want fixed", msg.UUID)
	}
}

func TestDecodeMessageRoundTrip(t *testing.T) {
	event := &monitor.IngestEvent{
		EventID:   "e1",
		ChannelID: "-1001",
		UserID:    "u1",
		Username:  "alice",
		Text:      "skewed 50",
	}
	msg, err := EncodeMessage(event)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	got, err := DecodeMessage(msg)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.UserID != "u1" || got.Text != "skewed 50" || got.Username != "alice" {
		t.Errorf("round trip mismatch: %+v", got)
	}
}

func TestDecodeMessageMalformed(t *testing.T) {
	msg := message.NewMessage("bad", []byte("{not json"))
	if _, err := DecodeMessage(msg); err == nil {
		t.Error("expected decode error")
	}
}

func TestDispatchEnvelopeRoundTrip(t *testing.T) {
	payload := &monitor.DispatchPayload{
		Category: "dice",
		Message:  monitor.IngestEvent{UserID: "u1", Text: "skewed 50"},
		Score:    monitor.ScoreResult{Score: 72},
	}

	msg, err := EncodeDispatch(payload)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if msg.Metadata.Get("category") != "dice" {
		t.Errorf("metadata = %v", msg.Metadata)
	}

	got, err := DecodeDispatch(msg)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Category != "dice" || got.Score.Score != 72 {
		t.Errorf("round trip mismatch: %+v", got)
	}
}
