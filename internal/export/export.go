// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/jeranaias/rigchat/internal/model"
	"github.com/jeranaias/rigchat/internal/util"
)

// Exporter renders a conversation in one file format.
type Exporter interface {
	Export(conv *model.Conversation) ([]byte, error)
	FileExtension() string
	MimeType() string
}

// Format names accepted by ForFormat.
const (
	FormatMarkdown = "markdown"
	FormatJSON     = "json"
	FormatYAML     = "yaml"
)

// Formats lists the canonical format names.
var Formats = []string{FormatMarkdown, FormatJSON, FormatYAML}

// maxFilenameTitle caps the title part of an export filename, in runes.
const maxFilenameTitle = 50

// Options controls how much detail an exporter writes besides the messages.
type Options struct {
	// IncludeMetadata adds frontmatter and a session summary.
	IncludeMetadata bool

	// IncludeTimestamps adds per-message times (and ids in YAML).
	IncludeTimestamps bool
}

// DefaultOptions enables metadata and timestamps.
func DefaultOptions() *Options {
	return &Options{IncludeMetadata: true, IncludeTimestamps: true}
}

// ForFormat returns the exporter for a format name. "md" and "yml" are
// accepted as aliases.
func ForFormat(format string, opts *Options) (Exporter, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case FormatMarkdown, "md":
		return NewMarkdownExporter(opts), nil
	case FormatJSON:
		return NewJSONExporter(opts), nil
	case FormatYAML, "yml":
		return NewYAMLExporter(opts), nil
	}
	return nil, fmt.Errorf("unsupported export format: %s (want one of %s)", format, strings.Join(Formats, ", "))
}

// ExportToFile renders conv with exporter into dir and returns the path of
// the new file. dir is created if missing.
func ExportToFile(conv *model.Conversation, exporter Exporter, dir string) (string, error) {
	data, err := exporter.Export(conv)
	if err != nil {
		return "", fmt.Errorf("export failed: %w", err)
	}
	if dir == "" {
		dir = "."
	}
	name := "conversation_" + sanitizeFilename(conv.Title) + "_" +
		time.Now().Format("20060102_150405") + exporter.FileExtension()
	path := filepath.Join(dir, name)
	if err := util.AtomicWriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write export: %w", err)
	}
	return path, nil
}

// Open hands path to the platform's default application.
func Open(path string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", path)
	case "windows":
		cmd = exec.Command("cmd", "/c", "start", `""`, path)
	case "linux", "freebsd", "openbsd":
		cmd = exec.Command("xdg-open", path)
	default:
		return fmt.Errorf("cannot open files on %s", runtime.GOOS)
	}
	return cmd.Start()
}

// validate rejects conversations that cannot be rendered.
func validate(conv *model.Conversation) error {
	switch {
	case conv == nil:
		return errors.New("conversation is nil")
	case conv.CreatedAt <= 0:
		return errors.New("conversation has invalid creation timestamp")
	}
	return nil
}

// sanitizeFilename turns a title into a portable filename fragment.
func sanitizeFilename(title string) string {
	title = util.TruncateRunesNoEllipsis(title, maxFilenameTitle)
	out := strings.Map(func(r rune) rune {
		switch {
		case r == ' ' || r == '\t' || r == '\n' || r == '\r':
			return '_'
		case r < 32 || r == 127 || strings.ContainsRune(`/\:*?"<>|`, r):
			return '-'
		}
		return r
	}, title)
	if out == "" {
		return "conversation"
	}
	return out
}

// Epoch-millisecond formatting shared by the exporters.

func localTime(ms int64) string { return time.UnixMilli(ms).Format("2006-01-02 15:04:05") }

func clockTime(ms int64) string { return time.UnixMilli(ms).Format("15:04:05") }

func rfc3339(ms int64) string { return time.UnixMilli(ms).UTC().Format(time.RFC3339) }
