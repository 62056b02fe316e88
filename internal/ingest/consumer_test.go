// Keywatch - Chat Keyword Monitoring and Solicitation Scoring
// Copyright 2026 The Keywatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/keywatch/keywatch

package ingest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/keywatch/keywatch/internal/monitor"
)

type countingDispatcher struct {
	mu    sync.Mutex
	count int
}

func (d *countingDispatcher) Enqueue(payload *monitor.DispatchPayload) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.count++
	return true
}

func (d *countingDispatcher) total() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.count
}

type countingNotifier struct {
	mu    sync.Mutex
	count int
}

func (n *countingNotifier) Send(ctx context.Context, destination string, payload *monitor.DispatchPayload) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.count++
	return nil
}

func (n *countingNotifier) Name() string  { return "counting" }
func (n *countingNotifier) Enabled() bool { return true }

func (n *countingNotifier) total() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.count
}

func newIngestTestStore(t *testing.T) *monitor.BadgerStore {
	t.Helper()
	store, err := monitor.NewBadgerStore("")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for !cond() {
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for %s", what)
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestMessageConsumerFeedsPipeline(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := newIngestTestStore(t)
	err := store.PutWatchConfig(ctx, &monitor.ChannelWatchConfig{
		ChannelID: "-1001",
		Watched:   true,
		Categories: []monitor.CategoryKeywords{
			{Category: "dice", Keywords: []string{"skewed"}},
		},
	})
	if err != nil {
		t.Fatalf("seed config: %v", err)
	}

	cache := monitor.NewWatchCache(store, time.Minute)
	if err := cache.Refresh(ctx); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	dispatcher := &countingDispatcher{}
	pipeline := monitor.NewPipeline(store, store, store, cache, monitor.NewHeuristicScorer(time.UTC), dispatcher, "")

	pubsub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	consumer := NewMessageConsumer(pubsub, pipeline, "chat.message")
	go consumer.Serve(ctx)

	// Give the subscription a moment to register before publishing.
	time.Sleep(50 * time.Millisecond)

	msg, err := EncodeMessage(&monitor.IngestEvent{
		ChannelID: "-1001",
		UserID:    "u1",
		Username:  "alice",
		Text:      "skewed 50",
		SentAt:    time.Now(),
	})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := pubsub.Publish("chat.message", msg); err != nil {
		t.Fatalf("publish: %v", err)
	}

	waitFor(t, "dispatch", func() bool { return dispatcher.total() == 1 })

	events, err := store.Recent(ctx, "u1", 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(events) != 1 || events[0].Category != "dice" {
		t.Errorf("history = %+v, want one dice event", events)
	}
}

func TestMessageConsumerDropsMalformed(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := newIngestTestStore(t)
	err := store.PutWatchConfig(ctx, &monitor.ChannelWatchConfig{
		ChannelID: "-1001",
		Watched:   true,
		Categories: []monitor.CategoryKeywords{
			{Category: "dice", Keywords: []string{"skewed"}},
		},
	})
	if err != nil {
		t.Fatalf("seed config: %v", err)
	}
	cache := monitor.NewWatchCache(store, time.Minute)
	if err := cache.Refresh(ctx); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	dispatcher := &countingDispatcher{}
	pipeline := monitor.NewPipeline(store, store, store, cache, monitor.NewHeuristicScorer(time.UTC), dispatcher, "")

	pubsub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	consumer := NewMessageConsumer(pubsub, pipeline, "chat.message")
	go consumer.Serve(ctx)
	time.Sleep(50 * time.Millisecond)

	bad := message.NewMessage("bad", []byte("{not json"))
	if err := pubsub.Publish("chat.message", bad); err != nil {
		t.Fatalf("publish: %v", err)
	}

	// A malformed message is dropped; the consumer keeps going and
	// processes the next good message.
	good, err := EncodeMessage(&monitor.IngestEvent{
		ChannelID: "-1001",
		UserID:    "u1",
		Username:  "alice",
		Text:      "skewed 50",
		SentAt:    time.Now(),
	})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := pubsub.Publish("chat.message", good); err != nil {
		t.Fatalf("publish: %v", err)
	}

	waitFor(t, "good message after malformed", func() bool { return dispatcher.total() == 1 })
}

func TestDispatchConsumerDeliversThroughGate(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := newIngestTestStore(t)
	err := store.PutCategory(ctx, &monitor.CategoryConfig{
		Name:         "dice",
		Destinations: []string{"-100999"},
	})
	if err != nil {
		t.Fatalf("seed category: %v", err)
	}

	notifier := &countingNotifier{}
	gate := monitor.NewGate(store, notifier)

	pubsub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	consumer := NewDispatchConsumer(pubsub, gate, "notify.dispatch")
	go consumer.Serve(ctx)
	time.Sleep(50 * time.Millisecond)

	msg, err := EncodeDispatch(&monitor.DispatchPayload{
		Category: "dice",
		Message:  monitor.IngestEvent{UserID: "u1", Text: "skewed 50"},
	})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := pubsub.Publish("notify.dispatch", msg); err != nil {
		t.Fatalf("publish: %v", err)
	}

	waitFor(t, "notification", func() bool { return notifier.total() == 1 })
}
