// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/jeranaias/rigchat/internal/model"
)

// =============================================================================
// YAML EXPORTER
// =============================================================================

// yamlConversation is the YAML document layout. Timestamps are RFC 3339.
type yamlConversation struct {
	ID       string        `yaml:"id"`
	Title    string        `yaml:"title"`
	Model    string        `yaml:"model"`
	Created  string        `yaml:"created"`
	Updated  string        `yaml:"updated"`
	Messages []yamlMessage `yaml:"messages"`
}

type yamlMessage struct {
	ID      string `yaml:"id,omitempty"`
	Role    string `yaml:"role"`
	Time    string `yaml:"time,omitempty"`
	Content string `yaml:"content"`
}

// YAMLExporter exports conversations as a YAML document.
type YAMLExporter struct {
	options *Options
}

// NewYAMLExporter creates a new YAML exporter. IncludeTimestamps controls
// per-message ids and times.
func NewYAMLExporter(opts *Options) *YAMLExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &YAMLExporter{options: opts}
}

// Export converts a conversation to YAML.
func (e *YAMLExporter) Export(conv *model.Conversation) ([]byte, error) {
	if err := validate(conv); err != nil {
		return nil, err
	}

	doc := yamlConversation{
		ID:       conv.ID,
		Title:    conv.Title,
		Model:    conv.Model,
		Created:  rfc3339(conv.CreatedAt),
		Updated:  rfc3339(conv.UpdatedAt),
		Messages: make([]yamlMessage, 0, len(conv.Messages)),
	}
	for _, msg := range conv.Messages {
		ym := yamlMessage{Role: msg.Role.String(), Content: msg.Content}
		if e.options.IncludeTimestamps {
			ym.ID = msg.ID
			ym.Time = rfc3339(msg.Timestamp)
		}
		doc.Messages = append(doc.Messages, ym)
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("encode yaml: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode yaml: %w", err)
	}
	return buf.Bytes(), nil
}

// FileExtension returns the file extension for YAML.
func (e *YAMLExporter) FileExtension() string {
	return ".yaml"
}

// MimeType returns the MIME type for YAML.
func (e *YAMLExporter) MimeType() string {
	return "application/yaml"
}
