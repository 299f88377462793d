// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Resolution paths, in the order a message tries them.
const (
	PathFastPath   = "fastpath"
	PathEngram     = "engram"
	PathPipeline   = "pipeline"
	PathLLM        = "llm"
	// PathUnresolved counts messages answered with the fallback help text.
	PathUnresolved = "unresolved"
)

var (
	RequestCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "larder_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "larder_http_request_duration_seconds",
			Help: "HTTP request duration in seconds",
		},
		[]string{"method", "route"},
	)

	MessagesResolved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "larder_messages_resolved_total",
			Help: "Chat messages by the path that resolved them",
		},
		[]string{"path"},
	)

	ReasoningCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "larder_reasoning_calls_total",
			Help: "Reasoning service calls by stop reason or failure",
		},
		[]string{"outcome"},
	)

	ReasoningLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "larder_reasoning_latency_seconds",
			Help:    "Reasoning service call latency in seconds",
			Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 16, 25},
		},
	)

	ToolInvocations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "larder_tool_invocations_total",
			Help: "Tool calls executed by the reasoning loop",
		},
		[]string{"tool", "status"},
	)

	EngramCacheSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "larder_engram_cache_size",
			Help: "Compiled learned utterances currently cached",
		},
	)

	EngramsQuarantined = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "larder_engrams_quarantined_total",
			Help: "Learned utterances skipped because their regex or mapping was invalid",
		},
	)

	UnauthorizedMessages = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "larder_unauthorized_messages_total",
			Help: "Messages rejected because the chat is not allowed",
		},
	)

	EngramPromotions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "larder_engram_promotions_total",
			Help: "TTL level promotions applied on match",
		},
	)

	JanitorSweeps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "larder_janitor_removed_total",
			Help: "Rows or entries removed by the janitor",
		},
		[]string{"job"},
	)
)
