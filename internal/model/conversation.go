// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"time"

	"github.com/oklog/ulid/v2"
)

const (
	// DefaultTitle is the placeholder title of a conversation that has not
	// been summarized yet.
	DefaultTitle = "New Chat"

	// DefaultModel is used when a conversation has no model recorded.
	DefaultModel = "grok-4-fast"

	// ConversationIDPrefix prefixes every generated conversation id.
	ConversationIDPrefix = "conv-"
)

// =============================================================================
// CONVERSATION TYPE
// =============================================================================

// Conversation is one chat thread. Messages are kept in chronological order.
type Conversation struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Messages  []Message `json:"messages"`
	Model     string    `json:"model,omitempty"`
	CreatedAt int64     `json:"createdAt"`
	UpdatedAt int64     `json:"updatedAt"`
}

// NewConversation creates an empty conversation using the given model.
func NewConversation(modelID string, now int64) Conversation {
	if modelID == "" {
		modelID = DefaultModel
	}
	return Conversation{
		ID:        NewConversationID(),
		Title:     DefaultTitle,
		Messages:  []Message{},
		Model:     modelID,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// NewConversationID returns a time-ordered conversation identifier.
func NewConversationID() string {
	return ConversationIDPrefix + ulid.Make().String()
}

// Clone returns a copy that shares no message storage with c.
func (c Conversation) Clone() Conversation {
	out := c
	out.Messages = make([]Message, len(c.Messages))
	copy(out.Messages, c.Messages)
	return out
}

// touched returns a clone with UpdatedAt advanced to now. UpdatedAt never
// moves backwards even if the clock does.
func (c Conversation) touched(now int64) Conversation {
	out := c.Clone()
	if now > out.UpdatedAt {
		out.UpdatedAt = now
	}
	return out
}

// =============================================================================
// MUTATION HELPERS
// =============================================================================

// WithMessage returns a copy with msg appended.
func (c Conversation) WithMessage(msg Message, now int64) Conversation {
	out := c.touched(now)
	out.Messages = append(out.Messages, msg)
	return out
}

// WithUpsertedMessage returns a copy where the message sharing msg's id is
// replaced by msg. If no message matches, msg is appended instead.
func (c Conversation) WithUpsertedMessage(msg Message, now int64) Conversation {
	out := c.touched(now)
	for i := range out.Messages {
		if out.Messages[i].ID == msg.ID {
			out.Messages[i] = msg
			return out
		}
	}
	out.Messages = append(out.Messages, msg)
	return out
}

// TruncatedBefore returns a copy holding only the messages strictly before
// index i.
func (c Conversation) TruncatedBefore(i int, now int64) Conversation {
	out := c.touched(now)
	if i < 0 {
		i = 0
	}
	if i < len(out.Messages) {
		out.Messages = out.Messages[:i]
	}
	return out
}

// WithTitle returns a copy with a new title.
func (c Conversation) WithTitle(title string, now int64) Conversation {
	out := c.touched(now)
	out.Title = title
	return out
}

// WithModel returns a copy bound to a different model.
func (c Conversation) WithModel(modelID string, now int64) Conversation {
	out := c.touched(now)
	out.Model = modelID
	return out
}

// =============================================================================
// QUERIES
// =============================================================================

// IndexOf returns the position of the message with the given id, or -1.
func (c Conversation) IndexOf(id string) int {
	for i, m := range c.Messages {
		if m.ID == id {
			return i
		}
	}
	return -1
}

// HasDefaultTitle reports whether the conversation still carries the
// placeholder title.
func (c Conversation) HasDefaultTitle() bool {
	return c.Title == DefaultTitle || c.Title == ""
}

// History returns the role/content pairs to submit upstream.
func (c Conversation) History() []ChatMessage {
	out := make([]ChatMessage, 0, len(c.Messages))
	for _, m := range c.Messages {
		out = append(out, ChatMessage{Role: m.Role, Content: m.Content})
	}
	return out
}

// LastMessage returns the final message, if any.
func (c Conversation) LastMessage() (Message, bool) {
	if len(c.Messages) == 0 {
		return Message{}, false
	}
	return c.Messages[len(c.Messages)-1], true
}

// Updated returns UpdatedAt as a time.Time.
func (c Conversation) Updated() time.Time {
	return time.UnixMilli(c.UpdatedAt)
}

// Normalize fills fields missing from older persisted data. It reports
// whether anything changed.
func (c *Conversation) Normalize() bool {
	changed := false
	if c.Model == "" {
		c.Model = DefaultModel
		changed = true
	}
	if c.Messages == nil {
		c.Messages = []Message{}
	}
	return changed
}
