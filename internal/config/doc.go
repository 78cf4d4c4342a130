// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config loads rigchat configuration.
//
// Configuration is read from (in order of precedence):
//   - Environment variables (AI_BUILDER_TOKEN, RIGCHAT_*), optionally seeded from .env
//   - ~/.rigchat/config.toml
//   - Built-in defaults
//
// Watch reloads the file while the server runs so the API token and default
// model can change without a restart.
//
// # Usage
//
//	_ = config.LoadDotEnv()
//	cfg, err := config.Load("")
//	if err != nil {
//	    return err
//	}
//	client := cloud.NewClient(cfg.Upstream.APIToken)
package config
