// Keywatch - Chat Keyword Monitoring and Solicitation Scoring
// Copyright 2026 The Keywatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/keywatch/keywatch

package services

import (
	"context"

	"github.com/keywatch/keywatch/internal/monitor"
)

// WatchCacheService runs the watched-channel cache refresher under the
// supervisor so a failed refresh loop is restarted.
type WatchCacheService struct {
	cache *monitor.WatchCache
}

// NewWatchCacheService wraps a watch cache as a supervised service.
func NewWatchCacheService(cache *monitor.WatchCache) *WatchCacheService {
	return &WatchCacheService{cache: cache}
}

// Serve implements suture.Service.
func (s *WatchCacheService) Serve(ctx context.Context) error {
	return s.cache.Run(ctx)
}

// String identifies the service in supervisor logs.
func (s *WatchCacheService) String() string {
	return "watch-cache"
}
