// Keywatch - Chat Keyword Monitoring and Solicitation Scoring
// Copyright 2026 The Keywatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/keywatch/keywatch

package monitor

import (
	"fmt"
	"sort"
	"time"
)

const (
	scoreBaseline = 50
	scoreMin      = 0
	scoreMax      = 100

	// Slot width for the daily concentration signal. 48 slots per day.
	concentrationSlot = 30 * time.Minute

	// Bucket width and gap threshold for the burst frequency signal.
	burstBucket  = time.Hour
	burstFastGap = 3 * time.Minute
)

// HeuristicScorer derives a solicitation probability from the shape of a
// user's match history: how few channels they post in, how mechanically
// regular their intervals are, how narrow their active time-of-day window
// is, and how often they produce rapid bursts.
//
// Scores start from a neutral baseline of 50 and are clamped to [0,100].
// Higher means more likely to be a solicitation account. Histories below
// MinScoreSample events return exactly the baseline.
type HeuristicScorer struct {
	loc *time.Location
}

// NewHeuristicScorer builds a scorer bucketing time-of-day signals in loc.
// A nil location defaults to time.Local.
func NewHeuristicScorer(loc *time.Location) *HeuristicScorer {
	if loc == nil {
		loc = time.Local
	}
	return &HeuristicScorer{loc: loc}
}

// Score implements Scorer. It is a pure function of the history contents;
// event ordering in the slice does not matter.
func (s *HeuristicScorer) Score(history []MatchEvent) ScoreResult {
	if len(history) < MinScoreSample {
		return ScoreResult{
			Score: scoreBaseline,
			Factors: []ScoreFactor{{
				Signal:       "insufficient_data",
				Contribution: 0,
				Detail:       fmt.Sprintf("%d events, need at least %d", len(history), MinScoreSample),
			}},
		}
	}

	events := make([]MatchEvent, len(history))
	copy(events, history)
	// Time signals are computed from OccurredAt, when the message was sent.
	// RecordedAt is an append timestamp and compresses under ingestion lag.
	sort.Slice(events, func(i, j int) bool {
		return events[i].OccurredAt.Before(events[j].OccurredAt)
	})

	factors := []ScoreFactor{
		s.channelDiversity(events),
		s.eventInterval(events),
		s.dailyConcentration(events),
		s.burstFrequency(events),
	}

	score := scoreBaseline
	for _, f := range factors {
		score += f.Contribution
	}
	if score < scoreMin {
		score = scoreMin
	}
	if score > scoreMax {
		score = scoreMax
	}

	return ScoreResult{Score: score, Factors: factors}
}

// channelDiversity rewards organic users who participate across many
// channels. Solicitation accounts tend to hammer one or two groups.
func (s *HeuristicScorer) channelDiversity(events []MatchEvent) ScoreFactor {
	channels := make(map[string]struct{})
	for _, e := range events {
		channels[e.ChannelID] = struct{}{}
	}
	n := len(channels)

	var contribution int
	switch {
	case n <= 1:
		contribution = 15
	case n == 2:
		contribution = 8
	case n == 3:
		contribution = 0
	default:
		contribution = -15
	}

	return ScoreFactor{
		Signal:       "channel_diversity",
		Contribution: contribution,
		Detail:       fmt.Sprintf("active in %d distinct channels", n),
	}
}

// eventInterval looks at the mean gap between consecutive events. Very
// short mean gaps indicate automated or compulsive posting.
func (s *HeuristicScorer) eventInterval(events []MatchEvent) ScoreFactor {
	var total time.Duration
	for i := 1; i < len(events); i++ {
		total += events[i].OccurredAt.Sub(events[i-1].OccurredAt)
	}
	mean := total / time.Duration(len(events)-1)

	var contribution int
	switch {
	case mean < time.Minute:
		contribution = 15
	case mean < 3*time.Minute:
		contribution = 10
	case mean < 10*time.Minute:
		contribution = 3
	case mean < time.Hour:
		contribution = 0
	default:
		contribution = -10
	}

	return ScoreFactor{
		Signal:       "event_interval",
		Contribution: contribution,
		Detail:       fmt.Sprintf("mean interval %s over %d events", mean.Round(time.Second), len(events)),
	}
}

// dailyConcentration measures how narrow a user's active time-of-day window
// is, counting distinct 30-minute slots hit per full calendar day. The first
// and last days are dropped as partial. Needs at least 3 full days of data
// to say anything.
func (s *HeuristicScorer) dailyConcentration(events []MatchEvent) ScoreFactor {
	slotsByDay := make(map[string]map[int]struct{})
	for _, e := range events {
		local := e.OccurredAt.In(s.loc)
		day := local.Format("2006-01-02")
		slot := local.Hour()*2 + local.Minute()/30
		if slotsByDay[day] == nil {
			slotsByDay[day] = make(map[int]struct{})
		}
		slotsByDay[day][slot] = struct{}{}
	}

	days := make([]string, 0, len(slotsByDay))
	for day := range slotsByDay {
		days = append(days, day)
	}
	sort.Strings(days)
	if len(days) < 5 {
		// Fewer than 3 full days after dropping the partial edges.
		return ScoreFactor{
			Signal:       "daily_concentration",
			Contribution: 0,
			Detail:       fmt.Sprintf("only %d calendar days of data", len(days)),
		}
	}
	full := days[1 : len(days)-1]

	var totalSlots int
	for _, day := range full {
		totalSlots += len(slotsByDay[day])
	}
	avgFraction := float64(totalSlots) / float64(len(full)) / 48.0

	var contribution int
	switch {
	case avgFraction < 0.05:
		contribution = 10
	case avgFraction < 0.15:
		contribution = 5
	case avgFraction < 0.30:
		contribution = 0
	default:
		contribution = -10
	}

	return ScoreFactor{
		Signal:       "daily_concentration",
		Contribution: contribution,
		Detail:       fmt.Sprintf("%.1f%% of daily slots active across %d full days", avgFraction*100, len(full)),
	}
}

// burstFrequency groups events into hourly buckets and measures what share
// of multi-event buckets have a mean internal gap of 3 minutes or less.
func (s *HeuristicScorer) burstFrequency(events []MatchEvent) ScoreFactor {
	buckets := make(map[int64][]time.Time)
	for _, e := range events {
		key := e.OccurredAt.Unix() / int64(burstBucket/time.Second)
		buckets[key] = append(buckets[key], e.OccurredAt)
	}

	var multi, fast int
	for _, times := range buckets {
		if len(times) < 2 {
			continue
		}
		multi++
		sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })
		var total time.Duration
		for i := 1; i < len(times); i++ {
			total += times[i].Sub(times[i-1])
		}
		if total/time.Duration(len(times)-1) <= burstFastGap {
			fast++
		}
	}

	var fastFrac float64
	if multi > 0 {
		fastFrac = float64(fast) / float64(multi)
	}

	var contribution int
	switch {
	case fastFrac > 0.5:
		contribution = 10
	case fastFrac > 0.25:
		contribution = 5
	default:
		contribution = 0
	}

	return ScoreFactor{
		Signal:       "burst_frequency",
		Contribution: contribution,
		Detail:       fmt.Sprintf("%d of %d busy hours were rapid bursts", fast, multi),
	}
}
