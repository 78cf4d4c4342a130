// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage persists the conversation list as a single blob.
//
// The whole list is serialized to JSON and written under one key. There is
// no per-record storage, no merge and no version check: the last write wins.
//
// # Key Types
//
//   - BlobStore: key-value backend (file, SQLite, Redis, Postgres, memory)
//   - ConversationStore: loads, migrates and saves the conversation list
//   - ConversationMeta: lightweight metadata for listing
//
// # Usage
//
//	blobs, err := storage.Open(ctx, storage.Options{Backend: "sqlite", Path: dbPath})
//	store := storage.NewConversationStore(blobs, logger)
//	convs, err := store.Load(ctx)
//	err = store.Save(ctx, convs)
//
// Entries persisted before the model field existed are given the default
// model on load, and the migrated list is written back immediately.
package storage
