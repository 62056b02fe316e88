// Keywatch - Chat Keyword Monitoring and Solicitation Scoring
// Copyright 2026 The Keywatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/keywatch/keywatch

package monitor

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/keywatch/keywatch/internal/logging"
)

// WatchCache maintains an in-memory snapshot of the watched channel set,
// refreshed in the background, so the hot ingest path never lists channels
// from the store.
//
// Chat platforms report the same group under different identifier forms:
// raw ("12345"), negated ("-12345"), and supergroup-prefixed ("-10012345").
// Resolve maps any of these to the canonical stored ID.
type WatchCache struct {
	source   ConfigSource
	interval time.Duration

	mu      sync.RWMutex
	watched map[string]string // normalized form -> canonical stored ID
}

// NewWatchCache builds a cache over source, refreshing every interval.
// A non-positive interval defaults to one minute.
func NewWatchCache(source ConfigSource, interval time.Duration) *WatchCache {
	if interval <= 0 {
		interval = time.Minute
	}
	return &WatchCache{
		source:   source,
		interval: interval,
		watched:  make(map[string]string),
	}
}

// idForms returns every identifier form a channel ID may arrive under.
func idForms(id string) []string {
	forms := []string{id}
	switch {
	case strings.HasPrefix(id, "-100"):
		bare := strings.TrimPrefix(id, "-100")
		forms = append(forms, bare, "-"+bare)
	case strings.HasPrefix(id, "-"):
		bare := strings.TrimPrefix(id, "-")
		forms = append(forms, bare, "-100"+bare)
	default:
		forms = append(forms, "-"+id, "-100"+id)
	}
	return forms
}

// Refresh reloads the watched set from the configuration source once.
func (c *WatchCache) Refresh(ctx context.Context) error {
	ids, err := c.source.WatchedChannelIDs(ctx)
	if err != nil {
		return err
	}

	next := make(map[string]string, len(ids)*3)
	for _, id := range ids {
		for _, form := range idForms(id) {
			next[form] = id
		}
	}

	c.mu.Lock()
	c.watched = next
	c.mu.Unlock()

	logging.Debug().Int("channels", len(ids)).Msg("Watched channel cache refreshed")
	return nil
}

// Run refreshes the cache periodically until ctx is cancelled. The first
// refresh happens immediately.
func (c *WatchCache) Run(ctx context.Context) error {
	if err := c.Refresh(ctx); err != nil {
		logging.Err(err).Msg("Initial watched channel refresh failed")
	}

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := c.Refresh(ctx); err != nil {
				logging.Err(err).Msg("Watched channel refresh failed")
			}
		}
	}
}

// Resolve maps an incoming channel ID to the canonical ID of a watched
// channel. The second return is false when the channel is not watched.
func (c *WatchCache) Resolve(channelID string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	canonical, ok := c.watched[channelID]
	return canonical, ok
}
