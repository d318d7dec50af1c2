package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sidecar",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "sidecar",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	AuthRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sidecar",
			Subsystem: "auth",
			Name:      "rejections_total",
			Help:      "Requests rejected by token verification",
		},
		[]string{"status"},
	)

	// Agent stream metrics
	AgentRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sidecar",
			Subsystem: "agent",
			Name:      "runs_total",
			Help:      "Agent runs by outcome",
		},
		[]string{"outcome"}, // done, error, cancelled
	)

	AgentEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sidecar",
			Subsystem: "agent",
			Name:      "events_total",
			Help:      "Stream events emitted to clients",
		},
		[]string{"type"},
	)

	AgentToolCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sidecar",
			Subsystem: "agent",
			Name:      "tool_calls_total",
			Help:      "Tool invocations executed for the model",
		},
		[]string{"tool", "result"}, // "success" or "failure"
	)

	AgentFirstFragment = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "sidecar",
			Subsystem: "agent",
			Name:      "first_fragment_seconds",
			Help:      "Time from upstream request to first content fragment",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
		},
	)

	ActiveStreams = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "sidecar",
			Subsystem: "agent",
			Name:      "streams_active",
			Help:      "Number of agent streams currently open",
		},
	)

	// Diagnostics metrics
	SignalRepoFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "sidecar",
			Subsystem: "signals",
			Name:      "repo_failures_total",
			Help:      "Repositories skipped during a signals scan",
		},
	)

	DiagCommandFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sidecar",
			Subsystem: "health",
			Name:      "command_failures_total",
			Help:      "Diagnostic commands that failed or timed out",
		},
		[]string{"command"},
	)
)
