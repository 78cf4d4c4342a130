// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cloud is the completion gateway for the hosted chat API.
//
// A single Client covers both modes of the chat completions endpoint and the
// model catalog. Request construction is shared, so the streaming and
// one-shot paths always send the same headers and body shape.
//
// # Key Types
//
//   - Client: HTTP client for the upstream API
//   - Request: model, history and optional token limit for one completion
//   - UpstreamError: non-success status with the response body
//
// # Usage
//
//	client := cloud.NewClient(token).WithBaseURL(cfg.Upstream.BaseURL)
//	rec, err := client.Stream(ctx, cloud.Request{
//	    Model:    "grok-4-fast",
//	    Messages: conv.History(),
//	})
//	if err != nil {
//	    return err
//	}
//	defer rec.Close()
//	text, err := rec.Collect()
//
// If the upstream answers a streaming request with a 404 saying streaming is
// not supported for the model, Stream retries once without streaming and
// returns a reconciler over a synthesized single-event stream.
//
// The API token is never logged. Request logging records method, path,
// status and duration only.
package cloud
