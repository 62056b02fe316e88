// Keywatch - Chat Keyword Monitoring and Solicitation Scoring
// Copyright 2026 The Keywatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/keywatch/keywatch

// Package services contains suture.Service wrappers that adapt components
// with their own lifecycles to the supervisor's context-driven Serve
// contract.
package services
