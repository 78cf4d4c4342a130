// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cloud

import (
	"bytes"
	"context"
	"errors"
	"net/http"

	"github.com/jeranaias/rigchat/internal/metrics"
	"github.com/jeranaias/rigchat/internal/stream"
)

// =============================================================================
// STREAMING CHAT
// =============================================================================

// Stream performs a streaming chat completion. The returned reconciler yields
// accumulated snapshots; the caller must Close it. Cancelling ctx aborts the
// underlying read.
//
// When the upstream rejects streaming for the model, the request is repeated
// without streaming and the full reply is returned as a single-event stream,
// so callers always see the same protocol.
func (c *Client) Stream(ctx context.Context, r Request) (*stream.Reconciler, error) {
	body := c.chatBody(r, true)
	req, err := c.newRequest(ctx, http.MethodPost, "/chat/completions", body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.do(c.streamClient, req, "chat_stream")
	if err == nil {
		return stream.NewReconciler(resp.Body), nil
	}

	var upErr *UpstreamError
	if !errors.As(err, &upErr) || !upErr.streamingUnsupported() {
		if upErr != nil {
			c.logger.Warn().
				Int("status", upErr.Status).
				Str("model", body.Model).
				Msg("upstream rejected streaming request")
		}
		return nil, err
	}

	metrics.StreamFallbacks.Inc()
	c.logger.Info().
		Str("model", body.Model).
		Msg("streaming not supported, falling back to non-streaming")

	r.Model = body.Model
	content, err := c.Complete(ctx, r)
	if err != nil {
		return nil, err
	}
	return stream.NewReconciler(bytes.NewReader(stream.SingleChunk(content))), nil
}
