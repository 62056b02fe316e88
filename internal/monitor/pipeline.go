// Keywatch - Chat Keyword Monitoring and Solicitation Scoring
// Copyright 2026 The Keywatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/keywatch/keywatch

package monitor

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"
	"time"

	"github.com/keywatch/keywatch/internal/logging"
	"github.com/keywatch/keywatch/internal/metrics"
)

// blockedNicknameTerms mark staff accounts whose messages are never
// classified, matching how operators name finance and support personnel.
var blockedNicknameTerms = []string{"财务", "客服"}

// Pipeline runs the full classification pass for inbound chat messages:
// sender filtering, watch resolution, validity filtering, keyword matching,
// bounded history append, scoring, profile aggregation, and dispatch.
//
// Passes for the same user are serialized; distinct users proceed in
// parallel. A storage failure drops only the affected message.
type Pipeline struct {
	events     EventStore
	profiles   ProfileStore
	config     ConfigSource
	watch      *WatchCache
	scorer     Scorer
	dispatcher Dispatcher
	baseURL    string

	locks [lockStripes]sync.Mutex
}

// lockStripes sizes the striped user lock set. Memory stays constant no
// matter how many users are seen; two users sharing a stripe only cost a
// little extra serialization.
const lockStripes = 128

// NewPipeline wires a pipeline. baseURL, when set, is used to compose the
// per-user record link embedded in notifications.
func NewPipeline(
	events EventStore,
	profiles ProfileStore,
	config ConfigSource,
	watch *WatchCache,
	scorer Scorer,
	dispatcher Dispatcher,
	baseURL string,
) *Pipeline {
	return &Pipeline{
		events:     events,
		profiles:   profiles,
		config:     config,
		watch:      watch,
		scorer:     scorer,
		dispatcher: dispatcher,
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
}

// userLock maps a userID onto its stripe. The same user always lands on the
// same mutex, so same-user passes stay serialized.
func (p *Pipeline) userLock(userID string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(userID))
	return &p.locks[h.Sum32()%lockStripes]
}

// filteredSender reports whether the sender is excluded from classification
// before any matching happens.
func filteredSender(event *IngestEvent) bool {
	if event.IsBot {
		return true
	}
	if event.Username == "" {
		return true
	}
	for _, term := range blockedNicknameTerms {
		if strings.Contains(event.DisplayName, term) {
			return true
		}
	}
	return false
}

// HandleEvent runs one message through the pipeline. Messages that do not
// produce a match exit silently; only storage failures return an error.
func (p *Pipeline) HandleEvent(ctx context.Context, event *IngestEvent) error {
	start := time.Now()
	defer func() {
		metrics.PipelineDuration.Observe(time.Since(start).Seconds())
	}()

	if filteredSender(event) {
		metrics.MessagesObserved.WithLabelValues("skipped").Inc()
		return nil
	}

	canonicalID, watched := p.watch.Resolve(event.ChannelID)
	if !watched {
		metrics.MessagesObserved.WithLabelValues("unwatched").Inc()
		return nil
	}

	if !ValidMessage(event.Text) {
		metrics.MessagesObserved.WithLabelValues("filtered").Inc()
		return nil
	}

	cfg, err := p.config.WatchConfig(ctx, canonicalID)
	if err != nil {
		metrics.MessagesObserved.WithLabelValues("error").Inc()
		return fmt.Errorf("watch config: %w", err)
	}
	if cfg == nil || !cfg.Watched {
		metrics.MessagesObserved.WithLabelValues("unwatched").Inc()
		return nil
	}

	match, ok := Match(event.Text, cfg)
	if !ok {
		metrics.MessagesObserved.WithLabelValues("filtered").Inc()
		return nil
	}

	payload, err := p.recordMatch(ctx, event, cfg, match)
	if err != nil {
		metrics.MessagesObserved.WithLabelValues("error").Inc()
		return err
	}
	if payload == nil {
		// Flagged account, already confirmed; nothing more to do.
		metrics.MessagesObserved.WithLabelValues("skipped").Inc()
		return nil
	}

	metrics.MessagesObserved.WithLabelValues("matched").Inc()
	metrics.MatchesTotal.WithLabelValues(match.Category).Inc()

	if !p.dispatcher.Enqueue(payload) {
		logging.Warn().
			Str("user_id", event.UserID).
			Str("category", match.Category).
			Msg("Dispatch queue full, notification dropped")
	}
	return nil
}

// recordMatch performs the stateful middle of the pipeline under the user's
// lock: history append, rescore, and profile merge. It returns nil payload
// for flagged users.
func (p *Pipeline) recordMatch(ctx context.Context, event *IngestEvent, cfg *ChannelWatchConfig, match KeywordMatch) (*DispatchPayload, error) {
	lock := p.userLock(event.UserID)
	lock.Lock()
	defer lock.Unlock()

	profile, err := p.profiles.GetProfile(ctx, event.UserID)
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	if profile != nil && profile.Flagged {
		return nil, nil
	}

	matchEvent := &MatchEvent{
		EventID:        event.EventID,
		UserID:         event.UserID,
		Username:       event.Username,
		DisplayName:    event.DisplayName,
		ChannelID:      cfg.ChannelID,
		ChannelName:    cfg.ChannelName,
		Category:       match.Category,
		CategoryLabel:  match.Label,
		MatchedKeyword: match.Keyword,
		OriginalText:   event.Text,
		OccurredAt:     event.SentAt,
	}
	if err := p.events.Append(ctx, matchEvent); err != nil {
		return nil, fmt.Errorf("append event: %w", err)
	}

	history, err := p.events.Recent(ctx, event.UserID, HistoryCapacity)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}

	score := p.scorer.Score(history)
	metrics.ScoresComputed.Inc()
	metrics.ScoreDistribution.Observe(float64(score.Score))

	updated := MergeProfile(profile, matchEvent, time.Now())
	if err := p.profiles.PutProfile(ctx, updated); err != nil {
		return nil, fmt.Errorf("put profile: %w", err)
	}

	logging.Info().
		Str("user_id", event.UserID).
		Str("channel_id", cfg.ChannelID).
		Str("category", match.Category).
		Str("keyword", match.Keyword).
		Int("score", score.Score).
		Int("history", len(history)).
		Msg("Message matched")

	return &DispatchPayload{
		Category:      match.Category,
		CategoryLabel: match.Label,
		Message:       *event,
		Score:         score,
		Profile:       *updated,
		RecordLink:    p.recordLink(event.UserID),
		CreatedAt:     time.Now(),
	}, nil
}

func (p *Pipeline) recordLink(userID string) string {
	if p.baseURL == "" {
		return ""
	}
	return fmt.Sprintf("%s/users/%s", p.baseURL, userID)
}
