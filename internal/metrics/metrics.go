// Keywatch - Chat Keyword Monitoring and Solicitation Scoring
// Copyright 2026 The Keywatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/keywatch/keywatch

// Package metrics provides Prometheus instrumentation for the classify,
// store, score, and dispatch stages of the pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Pipeline metrics
	MessagesObserved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keywatch_messages_observed_total",
			Help: "Total inbound chat messages handed to the pipeline",
		},
		[]string{"outcome"}, // matched, unwatched, filtered, skipped, error
	)

	MatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keywatch_matches_total",
			Help: "Total keyword matches by category",
		},
		[]string{"category"},
	)

	PipelineDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "keywatch_pipeline_duration_seconds",
			Help:    "Duration of a full classify/score/aggregate pass",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
	)

	// Event log metrics
	EventsAppended = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "keywatch_events_appended_total",
			Help: "Total match events appended to user histories",
		},
	)

	EventsEvicted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "keywatch_events_evicted_total",
			Help: "Total match events evicted from capacity-bounded histories",
		},
	)

	StoreErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keywatch_store_errors_total",
			Help: "Total storage failures by operation",
		},
		[]string{"operation"}, // append, recent, profile_get, profile_put, config
	)

	// Scoring metrics
	ScoresComputed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "keywatch_scores_computed_total",
			Help: "Total solicitation scores computed",
		},
	)

	ScoreDistribution = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "keywatch_score_distribution",
			Help:    "Distribution of computed solicitation scores",
			Buckets: []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
		},
	)

	// Dispatch metrics
	NotificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keywatch_notifications_sent_total",
			Help: "Total notification deliveries by notifier and outcome",
		},
		[]string{"notifier", "outcome"}, // outcome: ok, error, dropped
	)

	DispatchQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "keywatch_dispatch_queue_depth",
			Help: "Current number of payloads waiting in the dispatch queue",
		},
	)
)
