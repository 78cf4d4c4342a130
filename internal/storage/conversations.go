// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/jeranaias/rigchat/internal/model"
	"github.com/jeranaias/rigchat/internal/util"
)

// ConversationsKey is the key holding the serialized conversation list.
const ConversationsKey = "chatgpt-clone-conversations"

// =============================================================================
// CONVERSATION STORE
// =============================================================================

// ConversationStore loads and saves the full conversation list through a
// BlobStore.
type ConversationStore struct {
	blobs  BlobStore
	key    string
	logger zerolog.Logger
}

// NewConversationStore wraps blobs using the default key.
func NewConversationStore(blobs BlobStore, logger zerolog.Logger) *ConversationStore {
	return &ConversationStore{
		blobs:  blobs,
		key:    ConversationsKey,
		logger: logger,
	}
}

// Load returns the persisted list. A missing blob is an empty list.
// Entries without a model get the default model, and if any entry changed
// the migrated list is saved back before returning.
func (s *ConversationStore) Load(ctx context.Context) ([]model.Conversation, error) {
	data, err := s.blobs.Get(ctx, s.key)
	if err != nil {
		if errors.Is(err, ErrBlobNotFound) {
			return []model.Conversation{}, nil
		}
		return nil, fmt.Errorf("failed to load conversations: %w", err)
	}

	var convs []model.Conversation
	if err := json.Unmarshal(data, &convs); err != nil {
		return nil, fmt.Errorf("failed to parse conversations: %w", err)
	}
	if convs == nil {
		convs = []model.Conversation{}
	}

	migrated := 0
	for i := range convs {
		if convs[i].Normalize() {
			migrated++
		}
	}
	if migrated > 0 {
		s.logger.Info().Int("count", migrated).Msg("migrated conversations to default model")
		if err := s.Save(ctx, convs); err != nil {
			s.logger.Warn().Err(err).Msg("failed to save migrated conversations")
		}
	}
	return convs, nil
}

// Save replaces the persisted list.
func (s *ConversationStore) Save(ctx context.Context, convs []model.Conversation) error {
	if convs == nil {
		convs = []model.Conversation{}
	}
	data, err := json.Marshal(convs)
	if err != nil {
		return fmt.Errorf("failed to encode conversations: %w", err)
	}
	if err := s.blobs.Put(ctx, s.key, data); err != nil {
		return fmt.Errorf("failed to save conversations: %w", err)
	}
	return nil
}

// Close releases the backend.
func (s *ConversationStore) Close() error {
	return s.blobs.Close()
}

// =============================================================================
// LISTING
// =============================================================================

// ConversationMeta contains metadata for listing conversations.
type ConversationMeta struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Model        string    `json:"model"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	MessageCount int       `json:"message_count"`
	Preview      string    `json:"preview"` // First user message truncated
}

// Summarize returns metadata for convs, most recently updated first.
func Summarize(convs []model.Conversation) []ConversationMeta {
	metas := make([]ConversationMeta, 0, len(convs))
	for _, c := range convs {
		metas = append(metas, ConversationMeta{
			ID:           c.ID,
			Title:        c.Title,
			Model:        c.Model,
			CreatedAt:    time.UnixMilli(c.CreatedAt),
			UpdatedAt:    time.UnixMilli(c.UpdatedAt),
			MessageCount: len(c.Messages),
			Preview:      preview(c),
		})
	}
	sort.SliceStable(metas, func(i, j int) bool {
		return metas[i].UpdatedAt.After(metas[j].UpdatedAt)
	})
	return metas
}

// Search returns metadata for conversations whose title or any message
// contains query, case-insensitively.
func Search(convs []model.Conversation, query string) []ConversationMeta {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return Summarize(convs)
	}
	var matched []model.Conversation
	for _, c := range convs {
		if strings.Contains(strings.ToLower(c.Title), query) {
			matched = append(matched, c)
			continue
		}
		for _, m := range c.Messages {
			if strings.Contains(strings.ToLower(m.Content), query) {
				matched = append(matched, c)
				break
			}
		}
	}
	return Summarize(matched)
}

// preview returns the first user message, flattened and truncated.
func preview(c model.Conversation) string {
	for _, m := range c.Messages {
		if m.Role == model.RoleUser && m.Content != "" {
			return util.TruncateRunes(util.OneLine(m.Content), 80)
		}
	}
	return ""
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrConversationNotFound is returned when a conversation doesn't exist.
// Use errors.Is(err, ErrConversationNotFound) to check for this error.
var ErrConversationNotFound = &ConversationError{Message: "conversation not found"}

// ConversationError represents a conversation-related error.
// It implements the error interface and can be compared using errors.Is.
type ConversationError struct {
	Message string
	ID      string
}

// Error implements the error interface.
func (e *ConversationError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s: %s", e.Message, e.ID)
	}
	return e.Message
}

// Is implements errors.Is support for comparing conversation errors.
func (e *ConversationError) Is(target error) bool {
	t, ok := target.(*ConversationError)
	if !ok {
		return false
	}
	return e.Message == t.Message
}

// NotFound returns an ErrConversationNotFound carrying the missing id.
func NotFound(id string) error {
	return &ConversationError{Message: ErrConversationNotFound.Message, ID: id}
}
