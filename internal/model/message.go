// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// Valid reports whether r is a role accepted on the completion boundary.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleAssistant:
		return "Assistant"
	case RoleSystem:
		return "System"
	default:
		return string(r)
	}
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// ErrorIDPrefix marks synthetic assistant messages that report a failed turn.
const ErrorIDPrefix = "error-"

// Message represents a single message in a conversation.
type Message struct {
	ID        string `json:"id"`
	Role      Role   `json:"role"`
	Content   string `json:"content"`
	Timestamp int64  `json:"timestamp"` // epoch milliseconds
}

// NewMessage creates a message with a fresh id stamped at now.
func NewMessage(role Role, content string, now int64) Message {
	return Message{
		ID:        NewMessageID(),
		Role:      role,
		Content:   content,
		Timestamp: now,
	}
}

// NewErrorMessage creates the synthetic assistant message shown when a turn fails.
func NewErrorMessage(cause error, now int64) Message {
	text := "unknown error"
	if cause != nil {
		text = cause.Error()
	}
	return Message{
		ID:        ErrorIDPrefix + uuid.NewString(),
		Role:      RoleAssistant,
		Content:   "Error: " + text,
		Timestamp: now,
	}
}

// IsError reports whether the message was synthesized from a failure.
func (m Message) IsError() bool {
	return strings.HasPrefix(m.ID, ErrorIDPrefix)
}

// Time returns the message timestamp as a time.Time.
func (m Message) Time() time.Time {
	return time.UnixMilli(m.Timestamp)
}

// ChatMessage is the role/content pair sent to a completion endpoint.
// Ids and timestamps never leave the process.
type ChatMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// NewMessageID returns a random message identifier.
func NewMessageID() string {
	return uuid.NewString()
}

// NowMillis returns the current wall-clock time in epoch milliseconds.
func NowMillis() int64 {
	return time.Now().UnixMilli()
}
