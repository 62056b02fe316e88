// Keywatch - Chat Keyword Monitoring and Solicitation Scoring
// Copyright 2026 The Keywatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/keywatch/keywatch

package monitor

import (
	"context"
	"errors"
	"time"
)

const (
	// HistoryCapacity is the hard cap on retained match events per user.
	HistoryCapacity = 1000

	// EvictionBatch is how many of the oldest events are removed in one
	// amortized eviction once the capacity is exceeded.
	EvictionBatch = 10

	// MinScoreSample is the minimum history size below which the scorer
	// returns the neutral baseline instead of computing sub-scores.
	MinScoreSample = 20
)

// ErrStoreUnavailable marks persistence failures. The pipeline drops the
// single affected event and surfaces the error; it never crashes ingestion.
var ErrStoreUnavailable = errors.New("store unavailable")

// IngestEvent is one inbound chat message as produced by the chat-platform
// collaborator.
type IngestEvent struct {
	EventID     string    `json:"event_id,omitempty"`
	ChannelID   string    `json:"channel_id"`
	ChannelName string    `json:"channel_name,omitempty"`
	UserID      string    `json:"user_id"`
	Username    string    `json:"username,omitempty"`
	DisplayName string    `json:"display_name,omitempty"`
	Text        string    `json:"text"`
	SentAt      time.Time `json:"sent_at"`

	// IsBot marks messages from bot or anonymous-admin senders, which are
	// never classified.
	IsBot bool `json:"is_bot,omitempty"`
}

// CategoryKeywords is one (category, keyword set) pair within a channel's
// watch configuration. Order matters: on multiple matches within a message
// the last configured category wins.
type CategoryKeywords struct {
	Category string   `json:"category"`
	Label    string   `json:"label,omitempty"`
	Keywords []string `json:"keywords"`
}

// ChannelWatchConfig is the per-channel classification configuration.
// Owned by the external configuration collaborator; read-only here.
type ChannelWatchConfig struct {
	ChannelID   string             `json:"channel_id"`
	ChannelName string             `json:"channel_name,omitempty"`
	Watched     bool               `json:"watched"`
	Categories  []CategoryKeywords `json:"categories"`
}

// CategoryConfig is the registry entry for one activity category, including
// its notification destinations.
type CategoryConfig struct {
	Name         string   `json:"name"`
	Label        string   `json:"label,omitempty"`
	Description  string   `json:"description,omitempty"`
	Destinations []string `json:"destinations"`
}

// KeywordMatch is the result of classifying one message.
type KeywordMatch struct {
	Category string
	Label    string
	Keyword  string
}

// MatchEvent is one classified message retained in a user's history.
// Immutable once recorded; RecordedAt is assigned by the event store and is
// monotonically non-decreasing per user.
type MatchEvent struct {
	EventID        string    `json:"event_id"`
	UserID         string    `json:"user_id"`
	Username       string    `json:"username,omitempty"`
	DisplayName    string    `json:"display_name,omitempty"`
	ChannelID      string    `json:"channel_id"`
	ChannelName    string    `json:"channel_name,omitempty"`
	Category       string    `json:"category"`
	CategoryLabel  string    `json:"category_label,omitempty"`
	MatchedKeyword string    `json:"matched_keyword,omitempty"`
	OriginalText   string    `json:"original_text,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
	RecordedAt     time.Time `json:"recorded_at"`
}

// ChannelActivity records the categories a user has triggered in one channel.
type ChannelActivity struct {
	ChannelID   string   `json:"channel_id"`
	ChannelName string   `json:"channel_name,omitempty"`
	Categories  []string `json:"categories"`
}

// UserProfile is the durable per-user summary. Identity fields are
// last-write-wins; channel/category membership only grows.
type UserProfile struct {
	UserID      string            `json:"user_id"`
	Username    string            `json:"username,omitempty"`
	DisplayName string            `json:"display_name,omitempty"`
	Channels    []ChannelActivity `json:"channels"`

	// Flagged marks confirmed solicitation accounts; their messages are
	// skipped before classification.
	Flagged bool `json:"flagged,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}

// ScoreFactor is one contributing signal of a score, with enough detail for
// an operator to reconstruct why the final score was produced.
type ScoreFactor struct {
	Signal       string `json:"signal"`
	Contribution int    `json:"contribution"`
	Detail       string `json:"detail"`
}

// ScoreResult is the ephemeral output of one scoring pass.
type ScoreResult struct {
	Score   int           `json:"score"` // 0-100, higher = more suspicious
	Factors []ScoreFactor `json:"factors"`
}

// DispatchPayload is the notification record handed to the transport per
// matched category. Composition is deterministic given its inputs.
type DispatchPayload struct {
	Category      string      `json:"category"`
	CategoryLabel string      `json:"category_label,omitempty"`
	Message       IngestEvent `json:"message"`
	Score         ScoreResult `json:"score"`
	Profile       UserProfile `json:"profile"`
	RecordLink    string      `json:"record_link,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
}

// EventStore is the append-only bounded per-user event history.
type EventStore interface {
	// Append records the event, assigning RecordedAt. Once a user's history
	// exceeds HistoryCapacity, the oldest EvictionBatch events are removed
	// in the same logical operation.
	Append(ctx context.Context, event *MatchEvent) error

	// Recent returns at most limit events for the user, newest first,
	// capped at HistoryCapacity.
	Recent(ctx context.Context, userID string, limit int) ([]MatchEvent, error)
}

// ProfileStore persists per-user profile summaries.
type ProfileStore interface {
	// GetProfile returns the user's profile, or nil if none exists.
	GetProfile(ctx context.Context, userID string) (*UserProfile, error)

	// PutProfile stores the profile, replacing any existing record.
	PutProfile(ctx context.Context, profile *UserProfile) error
}

// ConfigSource exposes the configuration collaborator's read surface.
type ConfigSource interface {
	// WatchConfig returns the channel's configuration, or nil if the
	// channel is unknown.
	WatchConfig(ctx context.Context, channelID string) (*ChannelWatchConfig, error)

	// Destinations returns the notification destinations configured for a
	// category. Empty means notification is a no-op.
	Destinations(ctx context.Context, category string) ([]string, error)

	// WatchedChannelIDs lists the IDs of all currently watched channels.
	WatchedChannelIDs(ctx context.Context) ([]string, error)
}

// Scorer computes a solicitation probability from a user's history.
// Implementations must be pure: same history, same result.
type Scorer interface {
	Score(history []MatchEvent) ScoreResult
}

// Notifier delivers a payload to one destination.
type Notifier interface {
	// Send delivers the payload to the destination identifier.
	Send(ctx context.Context, destination string, payload *DispatchPayload) error

	// Name returns the notifier name (e.g. "telegram", "webhook").
	Name() string

	// Enabled returns whether this notifier is configured for delivery.
	Enabled() bool
}

// Dispatcher decouples notification delivery from the synchronous
// classify/score/aggregate path.
type Dispatcher interface {
	// Enqueue hands a payload to the delivery path without blocking
	// ingestion. Returns false if the payload was dropped.
	Enqueue(payload *DispatchPayload) bool
}
