// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cloud

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/jeranaias/rigchat/internal/metrics"
	"github.com/jeranaias/rigchat/internal/model"
)

// Configuration constants for the upstream API.
const (
	// DefaultBaseURL is the base URL of the hosted completion API.
	DefaultBaseURL = "https://space.ai-builders.com/backend/v1"

	// DefaultTimeout bounds one-shot requests. Streams are bounded by their
	// context only.
	DefaultTimeout = 60 * time.Second

	// DefaultTemperature is sent with every completion request.
	DefaultTemperature = 0.7

	// MaxResponseSize is the maximum allowed response body size.
	MaxResponseSize = 10 * 1024 * 1024

	// userAgent identifies the client upstream.
	userAgent = "rigchat/1.0"
)

// Error variables for common upstream failures.
var (
	// ErrAuthFailed indicates the token was rejected or is missing.
	ErrAuthFailed = errors.New("authentication failed")

	// ErrNotConfigured indicates the API token is not set. It matches
	// ErrAuthFailed.
	ErrNotConfigured = fmt.Errorf("%w: API token not configured", ErrAuthFailed)

	// ErrRateLimited indicates too many requests were made.
	ErrRateLimited = errors.New("rate limited")

	// ErrModelNotFound indicates the requested model does not exist.
	ErrModelNotFound = errors.New("model not found")

	// ErrResponseTooLarge indicates a body exceeded MaxResponseSize.
	ErrResponseTooLarge = errors.New("response too large")
)

// UpstreamError is a non-success HTTP status from the upstream API.
type UpstreamError struct {
	Status int
	Body   string
}

// Error implements the error interface.
func (e *UpstreamError) Error() string {
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return fmt.Sprintf("upstream error (HTTP %d)", e.Status)
	}
	if len(body) > 500 {
		body = body[:500] + "..."
	}
	return fmt.Sprintf("upstream error (HTTP %d): %s", e.Status, body)
}

// Is maps well-known statuses onto the package sentinels.
func (e *UpstreamError) Is(target error) bool {
	switch target {
	case ErrAuthFailed:
		return e.Status == http.StatusUnauthorized
	case ErrRateLimited:
		return e.Status == http.StatusTooManyRequests
	case ErrModelNotFound:
		return e.Status == http.StatusNotFound
	}
	return false
}

// streamingUnsupported reports whether a failed streaming request should be
// retried without streaming.
func (e *UpstreamError) streamingUnsupported() bool {
	return e.Status == http.StatusNotFound &&
		strings.Contains(strings.ToLower(e.Body), "streaming not supported")
}

// =============================================================================
// REQUEST / RESPONSE TYPES
// =============================================================================

// Request is one chat completion.
type Request struct {
	// Model is the upstream model id. Empty means the client default.
	Model string

	// Messages is the conversation history, oldest first.
	Messages []model.ChatMessage

	// MaxTokens limits the reply length when non-zero.
	MaxTokens int
}

// chatRequest is the upstream wire body.
type chatRequest struct {
	Model       string              `json:"model"`
	Messages    []model.ChatMessage `json:"messages"`
	Stream      bool                `json:"stream"`
	Temperature float64             `json:"temperature"`
	MaxTokens   int                 `json:"max_tokens,omitempty"`
}

// chatResponse is the upstream non-streaming response.
type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// content returns the first choice's content, or empty string if none.
func (r *chatResponse) content() string {
	if len(r.Choices) > 0 {
		return r.Choices[0].Message.Content
	}
	return ""
}

// modelsResponse is the upstream catalog.
type modelsResponse struct {
	Data []struct {
		ID          string `json:"id"`
		Description string `json:"description"`
	} `json:"data"`
}

// =============================================================================
// CLIENT
// =============================================================================

// Client talks to the upstream completion API. It is safe for concurrent use;
// the token and default model may be swapped while requests are in flight.
type Client struct {
	mu           sync.RWMutex
	apiToken     string
	defaultModel string
	temperature  float64

	baseURL      string
	httpClient   *http.Client
	streamClient *http.Client
	logger       zerolog.Logger
}

// NewClient creates a client with the given bearer token. An empty token is
// allowed; every request then fails with ErrNotConfigured.
func NewClient(apiToken string) *Client {
	return &Client{
		apiToken:     strings.TrimSpace(apiToken),
		defaultModel: model.DefaultModel,
		temperature:  DefaultTemperature,
		baseURL:      DefaultBaseURL,
		httpClient:   &http.Client{Timeout: DefaultTimeout},
		streamClient: &http.Client{},
		logger:       zerolog.Nop(),
	}
}

// WithBaseURL sets a custom base URL for the API.
func (c *Client) WithBaseURL(url string) *Client {
	if url != "" {
		c.baseURL = strings.TrimSuffix(url, "/")
	}
	return c
}

// WithTimeout sets the one-shot request timeout.
func (c *Client) WithTimeout(timeout time.Duration) *Client {
	if timeout > 0 {
		c.httpClient.Timeout = timeout
	}
	return c
}

// WithTemperature sets the sampling temperature sent with every request.
func (c *Client) WithTemperature(t float64) *Client {
	if t > 0 {
		c.temperature = t
	}
	return c
}

// WithHTTPClient replaces both underlying HTTP clients.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	c.streamClient = hc
	return c
}

// WithLogger sets the request logger.
func (c *Client) WithLogger(logger zerolog.Logger) *Client {
	c.logger = logger
	return c
}

// SetToken replaces the API token.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.apiToken = strings.TrimSpace(token)
	c.mu.Unlock()
}

// SetDefaultModel changes the model used when a request names none.
func (c *Client) SetDefaultModel(id string) {
	if id == "" {
		return
	}
	c.mu.Lock()
	c.defaultModel = id
	c.mu.Unlock()
}

// DefaultModel returns the model used when a request names none.
func (c *Client) DefaultModel() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.defaultModel
}

// IsConfigured returns true if the client has an API token.
func (c *Client) IsConfigured() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.apiToken != ""
}

// BaseURL returns the upstream base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.apiToken
}

// newRequest builds an authenticated upstream request. body may be nil.
func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	token := c.token()
	if token == "" {
		return nil, ErrNotConfigured
	}

	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		rd = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("User-Agent", userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// chatBody converts a Request into the wire body.
func (c *Client) chatBody(r Request, streaming bool) chatRequest {
	m := r.Model
	if m == "" {
		m = c.DefaultModel()
	}
	msgs := r.Messages
	if msgs == nil {
		msgs = []model.ChatMessage{}
	}
	return chatRequest{
		Model:       m,
		Messages:    msgs,
		Stream:      streaming,
		Temperature: c.temperature,
		MaxTokens:   r.MaxTokens,
	}
}

// do sends req and converts any non-2xx status into an *UpstreamError. On
// success the caller owns resp.Body.
func (c *Client) do(hc *http.Client, req *http.Request, endpoint string) (*http.Response, error) {
	start := time.Now()
	resp, err := hc.Do(req)
	duration := time.Since(start)
	if err != nil {
		metrics.ObserveUpstream(endpoint, "error", start)
		c.logger.Debug().
			Str("method", req.Method).
			Str("path", req.URL.Path).
			Dur("duration", duration).
			Err(err).
			Msg("upstream request failed")
		return nil, fmt.Errorf("request failed: %w", err)
	}

	c.logger.Debug().
		Str("method", req.Method).
		Str("path", req.URL.Path).
		Int("status", resp.StatusCode).
		Dur("duration", duration).
		Msg("upstream request")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		metrics.ObserveUpstream(endpoint, "status_"+statusClass(resp.StatusCode), start)
		body, _ := readBody(resp.Body)
		return nil, &UpstreamError{Status: resp.StatusCode, Body: string(body)}
	}
	metrics.ObserveUpstream(endpoint, "ok", start)
	return resp, nil
}

// readBody reads r with the size limit applied.
func readBody(r io.Reader) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r, MaxResponseSize+1))
	if err != nil {
		return body, fmt.Errorf("failed to read response: %w", err)
	}
	if int64(len(body)) > MaxResponseSize {
		return body[:MaxResponseSize], fmt.Errorf("%w: exceeded %d bytes", ErrResponseTooLarge, MaxResponseSize)
	}
	return body, nil
}

func statusClass(code int) string {
	return fmt.Sprintf("%dxx", code/100)
}

// =============================================================================
// ONE-SHOT COMPLETION
// =============================================================================

// Complete performs a non-streaming chat completion and returns the content
// of the first choice, or "" if there is none.
func (c *Client) Complete(ctx context.Context, r Request) (string, error) {
	req, err := c.newRequest(ctx, http.MethodPost, "/chat/completions", c.chatBody(r, false))
	if err != nil {
		return "", err
	}
	resp, err := c.do(c.httpClient, req, "chat")
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := readBody(resp.Body)
	if err != nil {
		return "", err
	}
	var out chatResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	return out.content(), nil
}

// =============================================================================
// MODEL CATALOG
// =============================================================================

// ListModels returns the chat-capable models from the upstream catalog.
// Embedding and image models are filtered out.
func (c *Client) ListModels(ctx context.Context) ([]model.ModelInfo, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/models", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.do(c.httpClient, req, "models")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := readBody(resp.Body)
	if err != nil {
		return nil, err
	}
	var out modelsResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("failed to parse models: %w", err)
	}

	models := make([]model.ModelInfo, 0, len(out.Data))
	for _, m := range out.Data {
		if m.ID == "" || !model.IsChatModel(m.ID) {
			continue
		}
		models = append(models, model.NewModelInfo(m.ID, m.Description))
	}
	return models, nil
}
