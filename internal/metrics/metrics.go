// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package metrics declares the Prometheus collectors shared by the server,
// the upstream client and the storage backends.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rigchat_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rigchat_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"method", "path"},
	)

	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rigchat_rate_limit_hits_total",
			Help: "Total rate limit hits",
		},
		[]string{"endpoint"},
	)

	// Upstream metrics
	UpstreamRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rigchat_upstream_requests_total",
			Help: "Total requests sent to the completion API",
		},
		[]string{"endpoint", "outcome"},
	)

	UpstreamLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rigchat_upstream_latency_seconds",
			Help:    "Time to upstream response headers",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"endpoint"},
	)

	StreamFallbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rigchat_stream_fallbacks_total",
			Help: "Streaming requests retried without streaming",
		},
	)

	// Stream metrics
	StreamEvents = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rigchat_stream_events_total",
			Help: "Delta events relayed to clients",
		},
	)

	StreamsAborted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rigchat_streams_aborted_total",
			Help: "Streams that ended with a read failure",
		},
	)

	TitlesGenerated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rigchat_titles_generated_total",
			Help: "Title generation attempts",
		},
		[]string{"outcome"},
	)

	// Storage metrics
	StorageLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rigchat_storage_latency_seconds",
			Help:    "Blob store operation latency",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5},
		},
		[]string{"backend", "op"},
	)
)

// ObserveStorage records the latency of one blob store operation.
func ObserveStorage(backend, op string, start time.Time) {
	StorageLatency.WithLabelValues(backend, op).Observe(time.Since(start).Seconds())
}

// ObserveUpstream records one upstream round trip.
func ObserveUpstream(endpoint, outcome string, start time.Time) {
	UpstreamRequests.WithLabelValues(endpoint, outcome).Inc()
	UpstreamLatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
}
