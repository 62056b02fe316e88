// Keywatch - Chat Keyword Monitoring and Solicitation Scoring
// Copyright 2026 The Keywatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/keywatch/keywatch

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter assembles the HTTP routes.
func NewRouter(handler *Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", handler.Health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/users/{userID}", func(r chi.Router) {
			r.Get("/profile", handler.GetProfile)
			r.Get("/history", handler.GetHistory)
			r.Get("/score", handler.GetScore)
			r.Put("/flag", handler.SetFlag)
		})

		r.Route("/watch/channels", func(r chi.Router) {
			r.Get("/", handler.ListWatchChannels)
			r.Get("/{channelID}", handler.GetWatchChannel)
			r.Put("/{channelID}", handler.PutWatchChannel)
		})

		r.Route("/categories/{name}", func(r chi.Router) {
			r.Put("/", handler.PutCategory)
			r.Get("/destinations", handler.GetCategoryDestinations)
		})
	})

	return r
}
