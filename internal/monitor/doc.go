// Keywatch - Chat Keyword Monitoring and Solicitation Scoring
// Copyright 2026 The Keywatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/keywatch/keywatch

// Package monitor implements the message classification pipeline: keyword
// matching against per-channel category configuration, the capacity-bounded
// per-user match history, the behavioral solicitation scorer, the per-user
// profile aggregator, and the notification dispatch gate.
//
// The pipeline is a pure pass over persisted state: read history, compute,
// write history/profile, emit. Per-user passes are serialized; distinct
// users run fully in parallel.
package monitor
