// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small helpers shared across rigchat.
//
// # Key Functions
//
// File Operations:
//   - AtomicWriteFile: crash-safe file writing with fsync and rename
//
// String Utilities:
//   - TruncateRunes: UTF-8 safe truncation with ellipsis
//   - TruncateRunesNoEllipsis: UTF-8 safe hard cut
//   - TruncateWidth: display-width truncation for terminal columns
//
// # Usage
//
//	// Persist the conversation blob without risking a torn write
//	err := util.AtomicWriteFile(path, data, 0600)
//
//	// Cut a generated title to its maximum length
//	title := util.TruncateRunesNoEllipsis(raw, 60)
package util
