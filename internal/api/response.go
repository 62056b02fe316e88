// Keywatch - Chat Keyword Monitoring and Solicitation Scoring
// Copyright 2026 The Keywatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/keywatch/keywatch

// Package api provides the HTTP surface: operator queries over profiles,
// histories, and scores, and administration of watch configuration.
package api

import (
	"net/http"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"

	"github.com/keywatch/keywatch/internal/logging"
)

// APIResponse is the standardized response wrapper for all API endpoints.
type APIResponse struct {
	Success bool      `json:"success"`
	Data    any       `json:"data,omitempty"`
	Error   *APIError `json:"error,omitempty"`
	Meta    *APIMeta  `json:"meta,omitempty"`
}

// APIError represents an error response.
type APIError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// APIMeta contains optional response metadata.
type APIMeta struct {
	RequestID string    `json:"request_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Error codes for API responses
const (
	ErrCodeBadRequest         = "BAD_REQUEST"
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeValidationFailed   = "VALIDATION_FAILED"
	ErrCodeInternalError      = "INTERNAL_ERROR"
	ErrCodeServiceUnavailable = "SERVICE_UNAVAILABLE"
)

func writeJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logging.Err(err).Msg("Failed to encode JSON response")
	}
}

// WriteSuccess writes a 200 response wrapping data.
func WriteSuccess(w http.ResponseWriter, r *http.Request, data any) {
	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    data,
		Meta: &APIMeta{
			RequestID: chimiddleware.GetReqID(r.Context()),
			Timestamp: time.Now(),
		},
	})
}

// WriteError writes an error response with the given status code.
func WriteError(w http.ResponseWriter, r *http.Request, statusCode int, code, message string) {
	requestID := chimiddleware.GetReqID(r.Context())
	writeJSON(w, statusCode, APIResponse{
		Success: false,
		Error: &APIError{
			Code:      code,
			Message:   message,
			RequestID: requestID,
		},
		Meta: &APIMeta{
			RequestID: requestID,
			Timestamp: time.Now(),
		},
	})
}

// WriteBadRequest writes a 400 error.
func WriteBadRequest(w http.ResponseWriter, r *http.Request, message string) {
	WriteError(w, r, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// WriteNotFound writes a 404 error.
func WriteNotFound(w http.ResponseWriter, r *http.Request, message string) {
	WriteError(w, r, http.StatusNotFound, ErrCodeNotFound, message)
}

// WriteStoreError writes a 503 for storage failures.
func WriteStoreError(w http.ResponseWriter, r *http.Request, err error) {
	logging.Err(err).Msg("Store error")
	WriteError(w, r, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "storage unavailable")
}
