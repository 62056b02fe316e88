// Keywatch - Chat Keyword Monitoring and Solicitation Scoring
// Copyright 2026 The Keywatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/keywatch/keywatch

// Package supervisor provides Suture-based process supervision for
// Keywatch. Long-running components (watch cache refresher, stream
// consumers, dispatch worker, HTTP server) run as supervised services so
// a crash in one layer restarts that layer without tearing down the rest.
package supervisor
