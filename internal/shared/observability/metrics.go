package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics definitions
var (
	ToolCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "toolhost_tool_calls_total",
		Help: "Total number of tool invocations by tool and outcome.",
	}, []string{"tool", "outcome"})

	ToolCallDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "toolhost_tool_call_seconds",
		Help:    "Time spent executing a tool call, validation included.",
		Buckets: prometheus.DefBuckets,
	}, []string{"tool"})

	ToolCallsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "toolhost_tool_calls_in_flight",
		Help: "Number of tool calls currently executing.",
	})

	VisibleTools = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "toolhost_visible_tools",
		Help: "Number of tools visible under the active context and modes.",
	})

	RegisteredTools = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "toolhost_registered_tools",
		Help: "Number of tools in the registry.",
	})

	PolicyReloadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "toolhost_policy_reloads_total",
		Help: "Total number of capability re-resolutions by result.",
	}, []string{"result"})

	PolicyFileEventsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "toolhost_policy_file_events_total",
		Help: "Total number of filesystem events seen in policy directories.",
	})

	SchemaCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "toolhost_schema_cache_hits_total",
		Help: "Sanitized schema cache hits.",
	})

	SchemaCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "toolhost_schema_cache_misses_total",
		Help: "Sanitized schema cache misses.",
	})

	HistoryQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "toolhost_history_queue_depth",
		Help: "Current number of call records waiting to be persisted.",
	})

	HistoryQueueDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "toolhost_history_queue_dropped_total",
		Help: "Total number of call records dropped due to backpressure.",
	})

	HistoryWriteErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "toolhost_history_write_errors_total",
		Help: "Total number of call record batch write failures.",
	})

	HistoryProcessedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "toolhost_history_processed_total",
		Help: "Total number of call records persisted.",
	})

	HistoryFlushLatencySeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "toolhost_history_flush_seconds",
		Help:    "Latency for persisting a batch of call records.",
		Buckets: prometheus.DefBuckets,
	})

	RateLimitedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "toolhost_rate_limited_total",
		Help: "Requests rejected by rate limiting, by transport.",
	}, []string{"transport"})
)
