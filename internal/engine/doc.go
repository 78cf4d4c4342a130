// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package engine implements the conversation mutation protocol.
//
// A send appends the user message, streams the assistant reply into a
// placeholder message, and finally asks for a title if the conversation still
// has the default one. An edit truncates the history at the edited message
// and then runs the same protocol.
//
// Every intermediate state is a fresh model.Conversation value. It is written
// to the Workspace, which persists the whole list, and handed to the caller's
// Observer for rendering.
//
// # Failure handling
//
//   - Cancelling the context stops the turn where it is. Nothing is rolled
//     back and no error message is added.
//   - Any other gateway or stream failure is recorded as an assistant
//     message reading "Error: ...", which replaces a partial reply.
//   - Title failures are logged and otherwise ignored.
//   - Persistence failures are logged; the in-memory list stays
//     authoritative.
package engine
