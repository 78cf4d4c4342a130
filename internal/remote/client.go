// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package remote talks to a running rigchat server instead of the upstream
// API. It offers the same streaming, completion, title and catalog calls as
// the cloud client, so the chat engine can use either.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/jeranaias/rigchat/internal/cloud"
	"github.com/jeranaias/rigchat/internal/model"
	"github.com/jeranaias/rigchat/internal/stream"
)

// DefaultURL is where `rigchat serve` listens by default.
const DefaultURL = "http://127.0.0.1:3000"

// ErrEmptyTitle is returned when the server answers without a title.
var ErrEmptyTitle = errors.New("server returned no title")

// chatRequest mirrors the server's /api/chat body.
type chatRequest struct {
	Messages  []model.ChatMessage `json:"messages"`
	Model     string              `json:"model,omitempty"`
	Stream    bool                `json:"stream"`
	MaxTokens int                 `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Content string `json:"content"`
}

type titleRequest struct {
	Messages []model.ChatMessage `json:"messages"`
}

type titleResponse struct {
	Title string `json:"title"`
}

type modelsResponse struct {
	Models []model.ModelInfo `json:"models"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Client calls the rigchat HTTP API.
type Client struct {
	baseURL      string
	httpClient   *http.Client
	streamClient *http.Client
	logger       zerolog.Logger
}

// NewClient creates a client for the server at baseURL.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	return &Client{
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		httpClient:   &http.Client{Timeout: cloud.DefaultTimeout},
		streamClient: &http.Client{},
		logger:       zerolog.Nop(),
	}
}

// WithLogger sets the request logger.
func (c *Client) WithLogger(logger zerolog.Logger) *Client {
	c.logger = logger
	return c
}

// BaseURL returns the server address.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Stream posts a streaming chat request. The server already handles the
// non-streaming fallback, so the body is always an event stream.
func (c *Client) Stream(ctx context.Context, r cloud.Request) (*stream.Reconciler, error) {
	resp, err := c.post(ctx, c.streamClient, "/api/chat", chatRequest{
		Messages:  r.Messages,
		Model:     r.Model,
		Stream:    true,
		MaxTokens: r.MaxTokens,
	})
	if err != nil {
		return nil, err
	}
	return stream.NewReconciler(resp.Body), nil
}

// Complete posts a non-streaming chat request.
func (c *Client) Complete(ctx context.Context, r cloud.Request) (string, error) {
	resp, err := c.post(ctx, c.httpClient, "/api/chat", chatRequest{
		Messages:  r.Messages,
		Model:     r.Model,
		MaxTokens: r.MaxTokens,
	})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var out chatResponse
	if err := decode(resp.Body, &out); err != nil {
		return "", err
	}
	return out.Content, nil
}

// Generate asks the server to title a conversation.
func (c *Client) Generate(ctx context.Context, messages []model.ChatMessage) (string, error) {
	resp, err := c.post(ctx, c.httpClient, "/api/generate-title", titleRequest{Messages: messages})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var out titleResponse
	if err := decode(resp.Body, &out); err != nil {
		return "", err
	}
	if out.Title == "" {
		return "", ErrEmptyTitle
	}
	return out.Title, nil
}

// ListModels fetches the server's filtered model catalog.
func (c *Client) ListModels(ctx context.Context) ([]model.ModelInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/models", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.do(c.httpClient, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out modelsResponse
	if err := decode(resp.Body, &out); err != nil {
		return nil, err
	}
	return out.Models, nil
}

func (c *Client) post(ctx context.Context, hc *http.Client, path string, body any) (*http.Response, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(hc, req)
}

// do sends req. A non-2xx answer becomes a *cloud.UpstreamError carrying the
// server's error message.
func (c *Client) do(hc *http.Client, req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	c.logger.Debug().
		Str("method", req.Method).
		Str("path", req.URL.Path).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("server request")

	if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		return resp, nil
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, cloud.MaxResponseSize))
	msg := string(raw)
	var er errorResponse
	if json.Unmarshal(raw, &er) == nil && er.Error != "" {
		msg = er.Error
	}
	return nil, &cloud.UpstreamError{Status: resp.StatusCode, Body: msg}
}

func decode(r io.Reader, v any) error {
	if err := json.NewDecoder(io.LimitReader(r, cloud.MaxResponseSize)).Decode(v); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}
