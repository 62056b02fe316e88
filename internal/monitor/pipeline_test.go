// Keywatch - Chat Keyword Monitoring and Solicitation Scoring
// Copyright 2026 The Keywatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/keywatch/keywatch

package monitor

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

type captureDispatcher struct {
	mu       sync.Mutex
	payloads []*DispatchPayload
	full     bool
}

func (d *captureDispatcher) Enqueue(payload *DispatchPayload) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.full {
		return false
	}
	d.payloads = append(d.payloads, payload)
	return true
}

func newTestPipeline(t *testing.T) (*Pipeline, *BadgerStore, *captureDispatcher) {
	t.Helper()
	store := newTestStore(t)
	ctx := context.Background()

	err := store.PutWatchConfig(ctx, &ChannelWatchConfig{
		ChannelID:   "-1001234",
		ChannelName: "dice group",
		Watched:     true,
		Categories: []CategoryKeywords{
			{Category: "dice", Label: "Dice", Keywords: []string{"skewed"}},
			{Category: "slots", Label: "Slots", Keywords: []string{"spin"}},
		},
	})
	if err != nil {
		t.Fatalf("seed watch config: %v", err)
	}
	err = store.PutWatchConfig(ctx, &ChannelWatchConfig{
		ChannelID: "-1009999",
		Watched:   false,
	})
	if err != nil {
		t.Fatalf("seed watch config: %v", err)
	}

	cache := NewWatchCache(store, time.Minute)
	if err := cache.Refresh(ctx); err != nil {
		t.Fatalf("refresh cache: %v", err)
	}

	dispatcher := &captureDispatcher{}
	pipeline := NewPipeline(store, store, store, cache, NewHeuristicScorer(time.UTC), dispatcher, "https://monitor.example.com")
	return pipeline, store, dispatcher
}

func testEvent() *IngestEvent {
	return &IngestEvent{
		EventID:     "e1",
		ChannelID:   "-1001234",
		ChannelName: "dice group",
		UserID:      "u1",
		Username:    "alice",
		DisplayName: "Alice",
		Text:        "skewed 50",
		SentAt:      time.Now(),
	}
}

func TestPipelineMatchedMessage(t *testing.T) {
	pipeline, store, dispatcher := newTestPipeline(t)
	ctx := context.Background()

	if err := pipeline.HandleEvent(ctx, testEvent()); err != nil {
		t.Fatalf("handle: %v", err)
	}

	events, err := store.Recent(ctx, "u1", 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("got %d history events, want 1", len(events))
	}
	if events[0].Category != "dice" || events[0].MatchedKeyword != "skewed" {
		t.Errorf("recorded event = %+v", events[0])
	}

	profile, err := store.GetProfile(ctx, "u1")
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	if profile == nil || len(profile.Channels) != 1 {
		t.Fatalf("profile = %+v, want one channel", profile)
	}

	if len(dispatcher.payloads) != 1 {
		t.Fatalf("got %d dispatches, want 1", len(dispatcher.payloads))
	}
	payload := dispatcher.payloads[0]
	if payload.Category != "dice" {
		t.Errorf("payload category = %q", payload.Category)
	}
	if payload.Score.Score != scoreBaseline {
		t.Errorf("score = %d, want baseline for single event", payload.Score.Score)
	}
	if payload.RecordLink != "https://monitor.example.com/users/u1" {
		t.Errorf("record link = %q", payload.RecordLink)
	}
}

func TestPipelineNormalizesChannelID(t *testing.T) {
	pipeline, store, dispatcher := newTestPipeline(t)
	ctx := context.Background()

	event := testEvent()
	event.ChannelID = "1234" // raw form of -1001234

	if err := pipeline.HandleEvent(ctx, event); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(dispatcher.payloads) != 1 {
		t.Fatalf("raw channel form should still match, got %d dispatches", len(dispatcher.payloads))
	}

	events, _ := store.Recent(ctx, "u1", 10)
	if len(events) != 1 || events[0].ChannelID != "-1001234" {
		t.Errorf("event must carry the canonical channel ID, got %+v", events)
	}
}

func TestPipelineSilentExits(t *testing.T) {
	pipeline, store, dispatcher := newTestPipeline(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(*IngestEvent)
	}{
		{"unwatched channel", func(e *IngestEvent) { e.ChannelID = "-777" }},
		{"watch disabled", func(e *IngestEvent) { e.ChannelID = "-1009999" }},
		{"invalid message", func(e *IngestEvent) { e.Text = "this is a long chat message with no numbers at all" }},
		{"no keyword match", func(e *IngestEvent) { e.Text = "100" }},
		{"bot sender", func(e *IngestEvent) { e.IsBot = true }},
		{"missing username", func(e *IngestEvent) { e.Username = "" }},
		{"finance nickname", func(e *IngestEvent) { e.DisplayName = "某某财务" }},
		{"support nickname", func(e *IngestEvent) { e.DisplayName = "客服小李" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event := testEvent()
			tt.mutate(event)
			if err := pipeline.HandleEvent(ctx, event); err != nil {
				t.Fatalf("handle: %v", err)
			}
		})
	}

	if len(dispatcher.payloads) != 0 {
		t.Errorf("got %d dispatches, want 0", len(dispatcher.payloads))
	}
	events, _ := store.Recent(ctx, "u1", 10)
	if len(events) != 0 {
		t.Errorf("got %d history events, want 0", len(events))
	}
}

func TestPipelineSkipsFlaggedUser(t *testing.T) {
	pipeline, store, dispatcher := newTestPipeline(t)
	ctx := context.Background()

	err := store.PutProfile(ctx, &UserProfile{UserID: "u1", Flagged: true})
	if err != nil {
		t.Fatalf("seed profile: %v", err)
	}

	if err := pipeline.HandleEvent(ctx, testEvent()); err != nil {
		t.Fatalf("handle: %v", err)
	}

	if len(dispatcher.payloads) != 0 {
		t.Error("flagged user must not produce a dispatch")
	}
	events, _ := store.Recent(ctx, "u1", 10)
	if len(events) != 0 {
		t.Error("flagged user must not accrue history")
	}
}

func TestPipelineQueueFullDoesNotError(t *testing.T) {
	pipeline, store, dispatcher := newTestPipeline(t)
	dispatcher.full = true
	ctx := context.Background()

	if err := pipeline.HandleEvent(ctx, testEvent()); err != nil {
		t.Fatalf("full queue must not fail the pipeline: %v", err)
	}

	// State updates still happened; only the notification was shed.
	events, _ := store.Recent(ctx, "u1", 10)
	if len(events) != 1 {
		t.Errorf("got %d history events, want 1", len(events))
	}
}

func TestPipelineProfileAccumulates(t *testing.T) {
	pipeline, store, dispatcher := newTestPipeline(t)
	ctx := context.Background()

	first := testEvent()
	if err := pipeline.HandleEvent(ctx, first); err != nil {
		t.Fatalf("handle: %v", err)
	}

	second := testEvent()
	second.EventID = "e2"
	second.Text = "spin 5"
	if err := pipeline.HandleEvent(ctx, second); err != nil {
		t.Fatalf("handle: %v", err)
	}

	profile, err := store.GetProfile(ctx, "u1")
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	if len(profile.Channels) != 1 || len(profile.Channels[0].Categories) != 2 {
		t.Errorf("profile = %+v, want both categories on one channel", profile.Channels)
	}
	if len(dispatcher.payloads) != 2 {
		t.Errorf("got %d dispatches, want 2", len(dispatcher.payloads))
	}
}

func TestPipelineConcurrentUsers(t *testing.T) {
	pipeline, store, _ := newTestPipeline(t)
	ctx := context.Background()

	done := make(chan error, 20)
	for i := 0; i < 20; i++ {
		userID := "u1"
		if i%2 == 1 {
			userID = "u2"
		}
		go func(id string, n int) {
			event := testEvent()
			event.EventID = id + "-" + string(rune('a'+n))
			event.UserID = id
			done <- pipeline.HandleEvent(ctx, event)
		}(userID, i)
	}
	for i := 0; i < 20; i++ {
		if err := <-done; err != nil {
			t.Fatalf("concurrent handle: %v", err)
		}
	}

	e1, _ := store.Recent(ctx, "u1", 100)
	e2, _ := store.Recent(ctx, "u2", 100)
	if len(e1) != 10 || len(e2) != 10 {
		t.Errorf("histories = %d/%d, want 10/10", len(e1), len(e2))
	}
}

func TestUserLockStripedAndStable(t *testing.T) {
	pipeline, _, _ := newTestPipeline(t)

	distinct := make(map[*sync.Mutex]struct{})
	for i := 0; i < 10000; i++ {
		id := fmt.Sprintf("user-%d", i)
		lock := pipeline.userLock(id)
		if lock != pipeline.userLock(id) {
			t.Fatalf("lock for %q not stable across calls", id)
		}
		distinct[lock] = struct{}{}
	}

	// Stripes bound memory: any number of users shares a fixed lock set.
	if len(distinct) > lockStripes {
		t.Errorf("%d distinct locks for 10000 users, want at most %d", len(distinct), lockStripes)
	}
}
