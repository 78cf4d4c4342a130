// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package server provides the rigchat HTTP API.
//
// Endpoints:
//   - POST /api/chat           - chat completion, streaming or not
//   - POST /api/generate-title - title for a conversation
//   - GET  /api/models         - filtered model catalog
//   - GET  /health             - liveness and token status
//   - GET  /metrics            - Prometheus exposition
//
// Streaming responses use the local framing `data: {"content": "..."}`
// terminated by `data: [DONE]`, whatever shape the upstream used. When the
// upstream rejects streaming for a model, the full reply arrives as a single
// event.
//
// # Middleware
//
// Requests pass through metrics, security headers, request IDs, RealIP,
// zerolog request logging, panic recovery, a per-IP token bucket and CORS.
package server
