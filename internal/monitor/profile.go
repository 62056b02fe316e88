// Keywatch - Chat Keyword Monitoring and Solicitation Scoring
// Copyright 2026 The Keywatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/keywatch/keywatch

package monitor

import "time"

// MergeProfile folds one match event into a user's profile and returns the
// updated profile. A nil existing profile yields a fresh one.
//
// Identity fields (username, display name) are last-write-wins from the
// incoming event; channel and category membership is a set union and only
// grows. Merging the same event twice is idempotent apart from UpdatedAt.
func MergeProfile(existing *UserProfile, event *MatchEvent, now time.Time) *UserProfile {
	profile := &UserProfile{UserID: event.UserID}
	if existing != nil {
		clone := *existing
		clone.Channels = make([]ChannelActivity, len(existing.Channels))
		for i, ch := range existing.Channels {
			clone.Channels[i] = ChannelActivity{
				ChannelID:   ch.ChannelID,
				ChannelName: ch.ChannelName,
				Categories:  append([]string(nil), ch.Categories...),
			}
		}
		profile = &clone
	}

	if event.Username != "" {
		profile.Username = event.Username
	}
	if event.DisplayName != "" {
		profile.DisplayName = event.DisplayName
	}

	idx := -1
	for i, ch := range profile.Channels {
		if ch.ChannelID == event.ChannelID {
			idx = i
			break
		}
	}
	if idx < 0 {
		profile.Channels = append(profile.Channels, ChannelActivity{
			ChannelID:   event.ChannelID,
			ChannelName: event.ChannelName,
		})
		idx = len(profile.Channels) - 1
	} else if event.ChannelName != "" {
		profile.Channels[idx].ChannelName = event.ChannelName
	}

	found := false
	for _, cat := range profile.Channels[idx].Categories {
		if cat == event.Category {
			found = true
			break
		}
	}
	if !found {
		profile.Channels[idx].Categories = append(profile.Channels[idx].Categories, event.Category)
	}

	profile.UpdatedAt = now
	return profile
}
