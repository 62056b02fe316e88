// Keywatch - Chat Keyword Monitoring and Solicitation Scoring
// Copyright 2026 The Keywatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/keywatch/keywatch

package monitor

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *BadgerStore {
	t.Helper()
	store, err := NewBadgerStore("")
	if err != nil {
		t.Fatalf("open in-memory store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func appendN(t *testing.T, store *BadgerStore, userID string, n int) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < n; i++ {
		event := &MatchEvent{
			EventID:    fmt.Sprintf("evt-%d", i),
			UserID:     userID,
			ChannelID:  "c1",
			Category:   "dice",
			OccurredAt: time.Now(),
		}
		if err := store.Append(ctx, event); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}
}

func TestAppendAndRecent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	appendN(t, store, "u1", 5)

	events, err := store.Recent(ctx, "u1", 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(events) != 5 {
		t.Fatalf("got %d events, want 5", len(events))
	}
	// Newest first.
	if events[0].EventID != "evt-4" || events[4].EventID != "evt-0" {
		t.Errorf("wrong order: first=%s last=%s", events[0].EventID, events[4].EventID)
	}
	for i := 1; i < len(events); i++ {
		if events[i].RecordedAt.After(events[i-1].RecordedAt) {
			t.Errorf("events not newest-first at index %d", i)
		}
	}
}

func TestRecentLimit(t *testing.T) {
	store := newTestStore(t)
	appendN(t, store, "u1", 10)

	events, err := store.Recent(context.Background(), "u1", 3)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(events) != 3 {
		t.Errorf("got %d events, want 3", len(events))
	}
}

func TestRecentEmptyUser(t *testing.T) {
	store := newTestStore(t)
	events, err := store.Recent(context.Background(), "nobody", 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("got %d events for unknown user, want 0", len(events))
	}
}

func TestRecordedAtMonotonicPerUser(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	var prev time.Time
	for i := 0; i < 100; i++ {
		event := &MatchEvent{EventID: fmt.Sprintf("e%d", i), UserID: "u1"}
		if err := store.Append(ctx, event); err != nil {
			t.Fatalf("append: %v", err)
		}
		if !event.RecordedAt.After(prev) {
			t.Fatalf("RecordedAt not strictly increasing at %d: %v <= %v", i, event.RecordedAt, prev)
		}
		prev = event.RecordedAt
	}
}

func TestHistoryEviction(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	appendN(t, store, "u1", HistoryCapacity)
	count, err := store.EventCount(ctx, "u1")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != HistoryCapacity {
		t.Fatalf("count = %d, want %d", count, HistoryCapacity)
	}

	// One more event crosses the cap and triggers a batch eviction of the
	// oldest events, landing at capacity+1-batch.
	if err := store.Append(ctx, &MatchEvent{EventID: "overflow", UserID: "u1"}); err != nil {
		t.Fatalf("append overflow: %v", err)
	}
	count, err = store.EventCount(ctx, "u1")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	want := HistoryCapacity + 1 - EvictionBatch
	if count != want {
		t.Errorf("count after eviction = %d, want %d", count, want)
	}

	// The oldest events must be the ones gone.
	events, err := store.Recent(ctx, "u1", HistoryCapacity)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(events) != want {
		t.Fatalf("recent returned %d, want %d", len(events), want)
	}
	oldest := events[len(events)-1]
	if oldest.EventID != fmt.Sprintf("evt-%d", EvictionBatch) {
		t.Errorf("oldest surviving event = %s, want evt-%d", oldest.EventID, EvictionBatch)
	}
	if events[0].EventID != "overflow" {
		t.Errorf("newest event = %s, want overflow", events[0].EventID)
	}
}

func TestHistoriesIsolatedPerUser(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	appendN(t, store, "u1", 3)
	appendN(t, store, "u2", 7)

	e1, _ := store.Recent(ctx, "u1", 100)
	e2, _ := store.Recent(ctx, "u2", 100)
	if len(e1) != 3 || len(e2) != 7 {
		t.Errorf("got %d/%d events, want 3/7", len(e1), len(e2))
	}
}

func TestProfileRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	got, err := store.GetProfile(ctx, "u1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil profile for unknown user, got %+v", got)
	}

	profile := &UserProfile{
		UserID:   "u1",
		Username: "alice",
		Channels: []ChannelActivity{
			{ChannelID: "c1", Categories: []string{"dice"}},
		},
		UpdatedAt: time.Now(),
	}
	if err := store.PutProfile(ctx, profile); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, err = store.GetProfile(ctx, "u1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil || got.Username != "alice" || len(got.Channels) != 1 {
		t.Errorf("round trip mismatch: %+v", got)
	}
}

func TestWatchConfigRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	got, err := store.WatchConfig(ctx, "-1001")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil config for unknown channel, got %+v", got)
	}

	cfg := &ChannelWatchConfig{
		ChannelID: "-1001",
		Watched:   true,
		Categories: []CategoryKeywords{
			{Category: "dice", Keywords: []string{"skewed"}},
		},
	}
	if err := store.PutWatchConfig(ctx, cfg); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, err = store.WatchConfig(ctx, "-1001")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil || !got.Watched || len(got.Categories) != 1 {
		t.Errorf("round trip mismatch: %+v", got)
	}
}

func TestWatchedChannelIDs(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	store.PutWatchConfig(ctx, &ChannelWatchConfig{ChannelID: "-1001", Watched: true})
	store.PutWatchConfig(ctx, &ChannelWatchConfig{ChannelID: "-1002", Watched: false})
	store.PutWatchConfig(ctx, &ChannelWatchConfig{ChannelID: "-1003", Watched: true})

	ids, err := store.WatchedChannelIDs(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("got %d watched channels, want 2: %v", len(ids), ids)
	}
	seen := map[string]bool{}
	for _, id := range ids {
		seen[id] = true
	}
	if !seen["-1001"] || !seen["-1003"] {
		t.Errorf("wrong watched set: %v", ids)
	}
}

func TestDestinations(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	dests, err := store.Destinations(ctx, "unknown")
	if err != nil {
		t.Fatalf("destinations: %v", err)
	}
	if len(dests) != 0 {
		t.Errorf("expected no destinations for unknown category, got %v", dests)
	}

	if err := store.PutCategory(ctx, &CategoryConfig{
		Name:         "dice",
		Destinations: []string{"-100999", "-100888"},
	}); err != nil {
		t.Fatalf("put category: %v", err)
	}

	dests, err = store.Destinations(ctx, "dice")
	if err != nil {
		t.Fatalf("destinations: %v", err)
	}
	if len(dests) != 2 {
		t.Errorf("got %v, want two destinations", dests)
	}
}

func TestRecentUserIDDelimiterNotAmbiguous(t *testing.T) {
	// "u" must not see "u:1"'s events even though "u" is a byte prefix of
	// "u:1" and the key layout uses ":" as its delimiter.
	store := newTestStore(t)
	ctx := context.Background()
	appendN(t, store, "u", 3)
	appendN(t, store, "u:1", 4)

	short, err := store.Recent(ctx, "u", 100)
	if err != nil {
		t.Fatalf("recent u: %v", err)
	}
	long, err := store.Recent(ctx, "u:1", 100)
	if err != nil {
		t.Fatalf("recent u:1: %v", err)
	}
	if len(short) != 3 || len(long) != 4 {
		t.Fatalf("histories = %d/%d, want 3/4", len(short), len(long))
	}
	for _, e := range short {
		if e.UserID != "u" {
			t.Errorf("user u history contains event for %q", e.UserID)
		}
	}
}

func TestEvictionScopedToExactUserID(t *testing.T) {
	// Overflowing "u" must evict only "u" events; the colliding-prefix user
	// "u:x" keeps every event.
	store := newTestStore(t)
	ctx := context.Background()
	appendN(t, store, "u:x", 5)
	appendN(t, store, "u", HistoryCapacity+1)

	count, err := store.EventCount(ctx, "u")
	if err != nil {
		t.Fatalf("count u: %v", err)
	}
	if want := HistoryCapacity + 1 - EvictionBatch; count != want {
		t.Errorf("u count after eviction = %d, want %d", count, want)
	}

	other, err := store.Recent(ctx, "u:x", 100)
	if err != nil {
		t.Fatalf("recent u:x: %v", err)
	}
	if len(other) != 5 {
		t.Errorf("u:x history = %d events after neighbor eviction, want 5", len(other))
	}
}
