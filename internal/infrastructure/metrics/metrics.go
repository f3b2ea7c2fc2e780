// Package metrics provides Prometheus metrics for the voice-api service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ActiveSessions tracks the number of live voice sessions.
	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "voice_active_sessions",
			Help: "Number of currently active voice sessions",
		},
	)

	// SessionsStarted tracks the total number of sessions started.
	SessionsStarted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "voice_sessions_started_total",
			Help: "Total number of voice sessions started",
		},
	)

	// SessionsEnded tracks session terminations by close reason.
	SessionsEnded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voice_sessions_ended_total",
			Help: "Total number of voice sessions ended",
		},
		[]string{"reason"},
	)

	// SessionDuration tracks how long sessions run.
	SessionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "voice_session_duration_seconds",
			Help:    "Duration of completed voice sessions",
			Buckets: []float64{10, 30, 60, 120, 180, 240, 300, 360},
		},
	)

	// ConnectionsRejected tracks refused upgrades by cause.
	ConnectionsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voice_connections_rejected_total",
			Help: "Total number of connection attempts rejected before upgrade",
		},
		[]string{"cause"},
	)

	// ToolCalls tracks provider tool invocations by name.
	ToolCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voice_tool_calls_total",
			Help: "Total number of provider tool calls dispatched",
		},
		[]string{"tool"},
	)

	// BargeInCancellations tracks response cancellations triggered by the
	// learner speaking over an in-flight response.
	BargeInCancellations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "voice_barge_in_cancellations_total",
			Help: "Total number of provider responses cancelled by learner barge-in",
		},
	)

	// ProviderDialDuration tracks how long the provider handshake takes.
	ProviderDialDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "voice_provider_dial_duration_seconds",
			Help:    "Duration of provider websocket dials",
			Buckets: prometheus.DefBuckets,
		},
	)

	// StaleConversationsSwept tracks maintenance sweep results.
	StaleConversationsSwept = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "voice_stale_conversations_swept_total",
			Help: "Total number of stale conversations flipped to ended",
		},
	)
)

// RecordSessionStarted increments session start metrics.
func RecordSessionStarted() {
	SessionsStarted.Inc()
	ActiveSessions.Inc()
}

// RecordSessionEnded records a session's end with its close reason.
func RecordSessionEnded(reason string, durationSeconds int) {
	SessionsEnded.WithLabelValues(reason).Inc()
	SessionDuration.Observe(float64(durationSeconds))
	ActiveSessions.Dec()
}

// RecordConnectionRejected counts a refused upgrade.
func RecordConnectionRejected(cause string) {
	ConnectionsRejected.WithLabelValues(cause).Inc()
}

// RecordToolCall counts one dispatched tool call.
func RecordToolCall(tool string) {
	ToolCalls.WithLabelValues(tool).Inc()
}

// RecordBargeIn counts one barge-in cancellation sent to the provider.
func RecordBargeIn() {
	BargeInCancellations.Inc()
}
