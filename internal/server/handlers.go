// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/jeranaias/rigchat/internal/cloud"
	"github.com/jeranaias/rigchat/internal/metrics"
	"github.com/jeranaias/rigchat/internal/model"
	"github.com/jeranaias/rigchat/internal/stream"
)

// ============================================================================
// WIRE TYPES
// ============================================================================

// ChatRequest is the body of POST /api/chat.
type ChatRequest struct {
	Messages  []model.ChatMessage `json:"messages"`
	Stream    bool                `json:"stream"`
	Model     string              `json:"model"`
	MaxTokens int                 `json:"max_tokens,omitempty"`
}

// ChatResponse is the non-streaming reply.
type ChatResponse struct {
	Content string `json:"content"`
}

// ErrorDetails accompanies chat errors.
type ErrorDetails struct {
	Model string `json:"model"`
}

// ErrorResponse is returned by every endpoint on failure.
type ErrorResponse struct {
	Error   string        `json:"error"`
	Details *ErrorDetails `json:"details,omitempty"`
}

// TitleRequest is the body of POST /api/generate-title.
type TitleRequest struct {
	Messages []model.ChatMessage `json:"messages"`
}

// TitleResponse carries the generated title.
type TitleResponse struct {
	Title string `json:"title"`
}

// ModelsResponse lists available models. On failure Error is set and Models
// is empty.
type ModelsResponse struct {
	Error  string            `json:"error,omitempty"`
	Models []model.ModelInfo `json:"models"`
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status             string `json:"status"`
	Version            string `json:"version"`
	UpstreamConfigured bool   `json:"upstream_configured"`
}

// errMessagesRequired mirrors the validation message clients already expect.
const errMessagesRequired = "Messages array is required"

// ============================================================================
// REQUEST DECODING
// ============================================================================

// decodeBody reads a size-limited JSON body into v. It writes the error
// response itself and reports whether decoding succeeded.
func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, v any, details *ErrorDetails) bool {
	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, ErrorResponse{
				Error:   fmt.Sprintf("Request body exceeds maximum size of %d bytes", MaxRequestBodySize),
				Details: details,
			})
			return false
		}
		s.logger.Debug().Err(err).Str("path", r.URL.Path).Msg("invalid request body")
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Invalid request format", Details: details})
		return false
	}
	return true
}

// validateMessages checks that the history is non-empty and every role is
// one the upstream accepts.
func validateMessages(messages []model.ChatMessage) error {
	if len(messages) == 0 {
		return errors.New(errMessagesRequired)
	}
	for i, msg := range messages {
		if !msg.Role.Valid() {
			return fmt.Errorf("invalid role '%s' at message %d: must be one of user, assistant, system", msg.Role, i)
		}
	}
	return nil
}

// ============================================================================
// CHAT
// ============================================================================

// handleChat handles POST /api/chat.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	details := &ErrorDetails{Model: s.upstream.DefaultModel()}

	var req ChatRequest
	if !s.decodeBody(w, r, &req, details) {
		return
	}
	if req.Model != "" {
		details.Model = req.Model
	}

	if err := validateMessages(req.Messages); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error(), Details: details})
		return
	}
	if req.MaxTokens < 0 || req.MaxTokens > MaxTokensLimit {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   fmt.Sprintf("max_tokens must be between 0 and %d", MaxTokensLimit),
			Details: details,
		})
		return
	}

	up := cloud.Request{Model: details.Model, Messages: req.Messages, MaxTokens: req.MaxTokens}
	log := s.logger.With().
		Str("model", up.Model).
		Int("messages", len(req.Messages)).
		Bool("stream", req.Stream).
		Logger()
	log.Info().Msg("chat request")

	if !req.Stream {
		content, err := s.upstream.Complete(r.Context(), up)
		if err != nil {
			s.chatError(w, err, details)
			return
		}
		writeJSON(w, http.StatusOK, ChatResponse{Content: content})
		return
	}

	rec, err := s.upstream.Stream(r.Context(), up)
	if err != nil {
		s.chatError(w, err, details)
		return
	}
	defer rec.Close()

	stream.SetHeaders(w.Header())
	w.WriteHeader(http.StatusOK)
	sw := stream.NewWriter(w)
	text, err := stream.Relay(rec, sw)
	metrics.StreamEvents.Add(float64(sw.Events()))
	if err != nil {
		if r.Context().Err() != nil {
			log.Info().Int("chars", len(text)).Msg("client disconnected mid-stream")
			return
		}
		metrics.StreamsAborted.Inc()
		log.Error().Err(err).Int("chars", len(text)).Msg("stream aborted")
		// Drop the connection so the client sees a failed read rather than
		// a clean end of stream.
		panic(http.ErrAbortHandler)
	}
	log.Debug().
		Int("events", sw.Events()).
		Int("chars", len(text)).
		Int("dropped_lines", rec.Dropped()).
		Msg("stream complete")
}

// chatError logs err in full and returns it to the client with status 500.
func (s *Server) chatError(w http.ResponseWriter, err error, details *ErrorDetails) {
	s.logger.Error().Err(err).Str("model", details.Model).Msg("chat completion failed")
	writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error(), Details: details})
}

// ============================================================================
// TITLE
// ============================================================================

// handleTitle handles POST /api/generate-title.
func (s *Server) handleTitle(w http.ResponseWriter, r *http.Request) {
	var req TitleRequest
	if !s.decodeBody(w, r, &req, nil) {
		return
	}
	if err := validateMessages(req.Messages); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	title, err := s.titler.Generate(r.Context(), req.Messages)
	if err != nil {
		s.logger.Error().Err(err).Msg("title generation failed")
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, TitleResponse{Title: title})
}

// ============================================================================
// MODELS
// ============================================================================

// handleModels handles GET /api/models.
func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	models, err := s.upstream.ListModels(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to fetch models")
		writeJSON(w, http.StatusInternalServerError, ModelsResponse{
			Error:  err.Error(),
			Models: []model.ModelInfo{},
		})
		return
	}
	if models == nil {
		models = []model.ModelInfo{}
	}
	writeJSON(w, http.StatusOK, ModelsResponse{Models: models})
}

// ============================================================================
// HEALTH
// ============================================================================

// handleHealth handles GET /health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:             "ok",
		Version:            s.opts.Version,
		UpstreamConfigured: s.upstream.IsConfigured(),
	})
}
