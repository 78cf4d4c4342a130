// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package stream reads and writes the server-sent event framing used for
// streamed chat completions.
//
// Reconciler turns a raw SSE byte stream into a sequence of accumulated text
// snapshots. It is deliberately lenient: malformed lines are dropped, bare
// JSON bodies are accepted, and both the streaming (delta) and non-streaming
// (message) upstream shapes are understood. Writer produces the local
// framing:
//
//	data: {"content":"Hel"}
//
//	data: {"content":"lo"}
//
//	data: [DONE]
package stream
