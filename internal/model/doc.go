// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
//
// Conversations are plain values. Every mutation helper returns a new
// Conversation with its own copy of the message slice, so a value handed to a
// renderer or a persistence layer is never changed underneath it.
//
// JSON field names and the epoch-millisecond timestamps match the persisted
// blob layout used by the storage package.
package model
