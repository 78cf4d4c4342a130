// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package title summarizes a conversation into a short title with one
// non-streaming completion.
package title

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/jeranaias/rigchat/internal/cloud"
	"github.com/jeranaias/rigchat/internal/metrics"
	"github.com/jeranaias/rigchat/internal/model"
	"github.com/jeranaias/rigchat/internal/util"
)

const (
	// MaxLength is the longest title returned, in runes.
	MaxLength = 60

	// MaxTokens caps the completion used for a title.
	MaxTokens = 30

	systemPrompt = "You are a helpful assistant that generates concise, descriptive titles for conversations. Return only the title text, no quotes or markdown."
)

// ErrNoMessages is returned for an empty history. No request is made.
var ErrNoMessages = errors.New("messages array is required")

// Completer is the one-shot half of the completion gateway.
type Completer interface {
	Complete(ctx context.Context, r cloud.Request) (string, error)
}

// Generator produces titles through a Completer.
type Generator struct {
	completer Completer
	model     string
}

// NewGenerator creates a generator that asks modelID for titles. An empty
// modelID uses the default model.
func NewGenerator(c Completer, modelID string) *Generator {
	if modelID == "" {
		modelID = model.DefaultModel
	}
	return &Generator{completer: c, model: modelID}
}

// Generate returns a cleaned title for messages.
func (g *Generator) Generate(ctx context.Context, messages []model.ChatMessage) (string, error) {
	if len(messages) == 0 {
		return "", ErrNoMessages
	}

	raw, err := g.completer.Complete(ctx, cloud.Request{
		Model: g.model,
		Messages: []model.ChatMessage{
			{Role: model.RoleSystem, Content: systemPrompt},
			{Role: model.RoleUser, Content: Prompt(messages)},
		},
		MaxTokens: MaxTokens,
	})
	if err != nil {
		metrics.TitlesGenerated.WithLabelValues("error").Inc()
		return "", fmt.Errorf("generate title: %w", err)
	}
	metrics.TitlesGenerated.WithLabelValues("ok").Inc()
	return Clean(raw), nil
}

// Prompt renders the instruction and transcript sent as the user turn.
func Prompt(messages []model.ChatMessage) string {
	parts := make([]string, 0, len(messages))
	for _, m := range messages {
		parts = append(parts, fmt.Sprintf("%s: %s", m.Role, m.Content))
	}
	return fmt.Sprintf(`Based on the following conversation, generate a concise, descriptive title (maximum %d characters). The title should capture the main topic or question being discussed. Return only the title, no quotes or additional text.

Conversation:
%s

Title:`, MaxLength, strings.Join(parts, "\n\n"))
}

// Clean trims and normalizes raw, strips one leading and one trailing quote
// character, and truncates to MaxLength runes. An empty result becomes the
// default title.
func Clean(raw string) string {
	t := norm.NFC.String(strings.TrimSpace(raw))
	if t == "" {
		return model.DefaultTitle
	}
	t = stripQuote(t)
	t = util.TruncateRunesNoEllipsis(t, MaxLength)
	if strings.TrimSpace(t) == "" {
		return model.DefaultTitle
	}
	return t
}

func stripQuote(s string) string {
	if s != "" && isQuote(s[0]) {
		s = s[1:]
	}
	if s != "" && isQuote(s[len(s)-1]) {
		s = s[:len(s)-1]
	}
	return s
}

func isQuote(b byte) bool {
	return b == '"' || b == '\''
}
