// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jeranaias/rigchat/internal/model"
)

// frontmatter is the YAML header of a Markdown export. Encoding it with
// yaml.v3 keeps titles with newlines or colons from adding keys.
type frontmatter struct {
	Title     string `yaml:"title"`
	Model     string `yaml:"model"`
	Date      string `yaml:"date"`
	Updated   string `yaml:"updated"`
	Messages  int    `yaml:"messages"`
	Exported  string `yaml:"exported"`
	Generator string `yaml:"generator"`
}

// headingEscaper escapes characters that change the meaning of a heading.
var headingEscaper = strings.NewReplacer(
	"#", `\#`, "*", `\*`, "_", `\_`, "[", `\[`, "]", `\]`,
)

// roleLabels maps roles to their heading labels. Unknown roles print as is.
var roleLabels = map[model.Role]string{
	model.RoleUser:      "[User]",
	model.RoleAssistant: "[Assistant]",
	model.RoleSystem:    "[System]",
}

// MarkdownExporter writes a readable transcript with optional frontmatter.
type MarkdownExporter struct {
	options *Options
}

// NewMarkdownExporter creates a Markdown exporter. nil opts means defaults.
func NewMarkdownExporter(opts *Options) *MarkdownExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &MarkdownExporter{options: opts}
}

// Export renders conv. A conversation without messages is an error.
func (e *MarkdownExporter) Export(conv *model.Conversation) ([]byte, error) {
	if err := validate(conv); err != nil {
		return nil, err
	}
	if len(conv.Messages) == 0 {
		return nil, errors.New("conversation has no messages")
	}

	var b strings.Builder
	if e.options.IncludeMetadata {
		if err := writeFrontmatter(&b, conv); err != nil {
			return nil, err
		}
	}
	fmt.Fprintf(&b, "# %s\n\n", headingEscaper.Replace(conv.Title))
	if e.options.IncludeMetadata {
		writeSessionInfo(&b, conv)
	}

	b.WriteString("## Conversation\n\n")
	for i, msg := range conv.Messages {
		if i > 0 {
			b.WriteString("---\n\n")
		}
		e.writeMessage(&b, msg)
	}

	fmt.Fprintf(&b, "\n---\n\n*Exported from rigchat on %s*\n", time.Now().Format("January 2, 2006 at 3:04 PM"))
	return []byte(b.String()), nil
}

// FileExtension implements Exporter.
func (e *MarkdownExporter) FileExtension() string { return ".md" }

// MimeType implements Exporter.
func (e *MarkdownExporter) MimeType() string { return "text/markdown" }

func writeFrontmatter(b *strings.Builder, conv *model.Conversation) error {
	data, err := yaml.Marshal(frontmatter{
		Title:     conv.Title,
		Model:     conv.Model,
		Date:      rfc3339(conv.CreatedAt),
		Updated:   rfc3339(conv.UpdatedAt),
		Messages:  len(conv.Messages),
		Exported:  time.Now().UTC().Format(time.RFC3339),
		Generator: "rigchat",
	})
	if err != nil {
		return fmt.Errorf("encode frontmatter: %w", err)
	}
	b.WriteString("---\n")
	b.Write(data)
	b.WriteString("---\n\n")
	return nil
}

func writeSessionInfo(b *strings.Builder, conv *model.Conversation) {
	b.WriteString("## Session Information\n\n")
	fmt.Fprintf(b, "- **Model**: %s (%s)\n", conv.Model, model.Describe(conv.Model))
	fmt.Fprintf(b, "- **Created**: %s\n", localTime(conv.CreatedAt))
	fmt.Fprintf(b, "- **Last Updated**: %s\n", localTime(conv.UpdatedAt))
	fmt.Fprintf(b, "- **Messages**: %d\n\n---\n\n", len(conv.Messages))
}

func (e *MarkdownExporter) writeMessage(b *strings.Builder, msg model.Message) {
	label := roleLabel(msg)
	if e.options.IncludeTimestamps {
		label += " <sub>" + clockTime(msg.Timestamp) + "</sub>"
	}
	fmt.Fprintf(b, "### %s\n\n%s\n\n", label, strings.TrimSpace(msg.Content))
}

func roleLabel(msg model.Message) string {
	if msg.IsError() {
		return "[Error]"
	}
	if l, ok := roleLabels[msg.Role]; ok {
		return l
	}
	if msg.Role == "" {
		return "Unknown"
	}
	return string(msg.Role)
}
