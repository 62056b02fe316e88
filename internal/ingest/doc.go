// Keywatch - Chat Keyword Monitoring and Solicitation Scoring
// Copyright 2026 The Keywatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/keywatch/keywatch

// Package ingest moves chat messages and notification payloads over NATS
// JetStream using Watermill. It provides the embedded NATS server, stream
// provisioning, resilient publisher and subscriber wrappers, and the
// consumers that feed the classification pipeline and the dispatch gate.
package ingest
