// Keywatch - Chat Keyword Monitoring and Solicitation Scoring
// Copyright 2026 The Keywatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/keywatch/keywatch

package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/keywatch/keywatch/internal/monitor"
)

// Handler serves operator queries and watch administration.
type Handler struct {
	store  *monitor.BadgerStore
	scorer monitor.Scorer
	watch  *monitor.WatchCache
}

// NewHandler builds the API handler.
func NewHandler(store *monitor.BadgerStore, scorer monitor.Scorer, watch *monitor.WatchCache) *Handler {
	return &Handler{
		store:  store,
		scorer: scorer,
		watch:  watch,
	}
}

// Health reports liveness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	WriteSuccess(w, r, map[string]string{"status": "ok"})
}

// GetProfile returns one user's aggregated profile.
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	profile, err := h.store.GetProfile(r.Context(), userID)
	if err != nil {
		WriteStoreError(w, r, err)
		return
	}
	if profile == nil {
		WriteNotFound(w, r, "no profile for user")
		return
	}
	WriteSuccess(w, r, profile)
}

// GetHistory returns a user's recent match events, newest first. The limit
// query parameter caps the result; the history capacity bounds it anyway.
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	limit := monitor.HistoryCapacity
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			WriteBadRequest(w, r, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	events, err := h.store.Recent(r.Context(), userID, limit)
	if err != nil {
		WriteStoreError(w, r, err)
		return
	}
	WriteSuccess(w, r, map[string]any{
		"user_id": userID,
		"count":   len(events),
		"events":  events,
	})
}

// GetScore computes the current solicitation score for a user from their
// stored history.
func (h *Handler) GetScore(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	events, err := h.store.Recent(r.Context(), userID, monitor.HistoryCapacity)
	if err != nil {
		WriteStoreError(w, r, err)
		return
	}

	result := h.scorer.Score(events)
	WriteSuccess(w, r, map[string]any{
		"user_id": userID,
		"events":  len(events),
		"score":   result.Score,
		"factors": result.Factors,
	})
}

type flagRequest struct {
	Flagged bool `json:"flagged"`
}

// SetFlag marks or clears a user as a confirmed solicitation account.
// Flagged users are skipped by the pipeline before classification.
func (h *Handler) SetFlag(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	var req flagRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, r, "invalid request body")
		return
	}

	profile, err := h.store.GetProfile(r.Context(), userID)
	if err != nil {
		WriteStoreError(w, r, err)
		return
	}
	if profile == nil {
		profile = &monitor.UserProfile{UserID: userID}
	}
	profile.Flagged = req.Flagged

	if err := h.store.PutProfile(r.Context(), profile); err != nil {
		WriteStoreError(w, r, err)
		return
	}
	WriteSuccess(w, r, profile)
}

type watchChannelRequest struct {
	ChannelName string                     `json:"channel_name"`
	Watched     bool                       `json:"watched"`
	Categories  []monitor.CategoryKeywords `json:"categories"`
}

// GetWatchChannel returns one channel's watch configuration.
func (h *Handler) GetWatchChannel(w http.ResponseWriter, r *http.Request) {
	channelID := chi.URLParam(r, "channelID")
	cfg, err := h.store.WatchConfig(r.Context(), channelID)
	if err != nil {
		WriteStoreError(w, r, err)
		return
	}
	if cfg == nil {
		WriteNotFound(w, r, "channel not configured")
		return
	}
	WriteSuccess(w, r, cfg)
}

// PutWatchChannel stores one channel's watch configuration and refreshes
// the watched-channel cache so the change applies without waiting for the
// next periodic reload.
func (h *Handler) PutWatchChannel(w http.ResponseWriter, r *http.Request) {
	channelID := chi.URLParam(r, "channelID")

	var req watchChannelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, r, "invalid request body")
		return
	}
	for _, cat := range req.Categories {
		if cat.Category == "" {
			WriteError(w, r, http.StatusBadRequest, ErrCodeValidationFailed, "category name is required")
			return
		}
	}

	cfg := &monitor.ChannelWatchConfig{
		ChannelID:   channelID,
		ChannelName: req.ChannelName,
		Watched:     req.Watched,
		Categories:  req.Categories,
	}
	if err := h.store.PutWatchConfig(r.Context(), cfg); err != nil {
		WriteStoreError(w, r, err)
		return
	}
	if h.watch != nil {
		if err := h.watch.Refresh(r.Context()); err != nil {
			WriteStoreError(w, r, err)
			return
		}
	}
	WriteSuccess(w, r, cfg)
}

// ListWatchChannels lists the IDs of all watched channels.
func (h *Handler) ListWatchChannels(w http.ResponseWriter, r *http.Request) {
	ids, err := h.store.WatchedChannelIDs(r.Context())
	if err != nil {
		WriteStoreError(w, r, err)
		return
	}
	WriteSuccess(w, r, map[string]any{"channel_ids": ids, "count": len(ids)})
}

type categoryRequest struct {
	Label        string   `json:"label"`
	Description  string   `json:"description"`
	Destinations []string `json:"destinations"`
}

// PutCategory registers a category and its notification destinations.
func (h *Handler) PutCategory(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	var req categoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, r, "invalid request body")
		return
	}

	cat := &monitor.CategoryConfig{
		Name:         name,
		Label:        req.Label,
		Description:  req.Description,
		Destinations: req.Destinations,
	}
	if err := h.store.PutCategory(r.Context(), cat); err != nil {
		WriteStoreError(w, r, err)
		return
	}
	WriteSuccess(w, r, cat)
}

// GetCategoryDestinations returns a category's notification destinations.
func (h *Handler) GetCategoryDestinations(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	destinations, err := h.store.Destinations(r.Context(), name)
	if err != nil {
		WriteStoreError(w, r, err)
		return
	}
	WriteSuccess(w, r, map[string]any{"name": name, "destinations": destinations})
}
