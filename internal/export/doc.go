// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package export writes conversations to files.
//
// # Supported Formats
//
//   - Markdown: human-readable, with optional frontmatter and timestamps
//   - JSON: the persisted conversation shape
//   - YAML: a readable document with RFC 3339 times
//
// # Usage
//
//	exp, err := export.ForFormat("md", export.DefaultOptions())
//	if err != nil {
//	    return err
//	}
//	path, err := export.ExportToFile(&conv, exp, "exports")
package export
