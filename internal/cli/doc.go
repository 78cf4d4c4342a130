// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the rigchat command tree.
//
// # Commands
//
//   - serve: run the HTTP API gateway
//   - chat: interactive chat session in the terminal
//   - list, show, new, delete, model: manage stored conversations
//   - models: list models from the catalog
//   - export: write a conversation as Markdown, JSON or YAML
//   - config: inspect and edit the config file
//
// Every command loads .env, then the TOML config, then environment
// overrides, then command-line flags.
package cli
