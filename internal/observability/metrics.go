package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Chat turn outcomes.
const (
	OutcomeOK           = "ok"
	OutcomeGatewayError = "gateway_error"
	OutcomeInvalidInput = "invalid_input"
	OutcomeCancelled    = "cancelled"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	ActiveSessions  prometheus.Gauge
	SessionEvents   *prometheus.CounterVec
	WSMessages      *prometheus.CounterVec
	ChatTurns       *prometheus.CounterVec
	GatewayErrors   *prometheus.CounterVec
	GatewayLatency  prometheus.Histogram
	ProfileRequests *prometheus.CounterVec

	stages *turnStageWindow
}

// NewMetrics registers the instruments with the default registry.
func NewMetrics(namespace string) *Metrics {
	return NewMetricsWithRegistry(namespace, prometheus.DefaultRegisterer)
}

// NewMetricsWithRegistry registers the instruments with reg. A nil reg
// leaves them unregistered, which tests use to build many instances.
func NewMetricsWithRegistry(namespace string, reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Number of active chat sessions.",
		}),
		SessionEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_events_total",
			Help:      "Session events by type.",
		}, []string{"event"}),
		WSMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_total",
			Help:      "WebSocket messages by direction and type.",
		}, []string{"direction", "type"}),
		ChatTurns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_turns_total",
			Help:      "Chat exchanges by outcome.",
		}, []string{"outcome"}),
		GatewayErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gateway_errors_total",
			Help:      "LLM gateway errors by provider and code.",
		}, []string{"provider", "code"}),
		GatewayLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "gateway_first_chunk_latency_ms",
			Help:      "Latency to the first streamed completion chunk in milliseconds.",
			Buckets:   []float64{100, 250, 500, 1000, 2000, 4000, 8000, 15000},
		}),
		ProfileRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "profile_requests_total",
			Help:      "Profile store operations by operation and result.",
		}, []string{"op", "result"}),
		stages: newTurnStageWindow(256),
	}
	if reg != nil {
		reg.MustRegister(
			m.ActiveSessions,
			m.SessionEvents,
			m.WSMessages,
			m.ChatTurns,
			m.GatewayErrors,
			m.GatewayLatency,
			m.ProfileRequests,
		)
	}
	return m
}

// ObserveStage records a chat latency stage.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	ms := float64(d.Microseconds()) / 1000
	m.stages.Observe(stage, ms)
	if stage == StageGatewayFirstChunk {
		m.GatewayLatency.Observe(ms)
	}
}

// ObserveOutcome counts a finished exchange. Failures also show up as
// indicators in the latency window.
func (m *Metrics) ObserveOutcome(_, outcome string) {
	if m == nil {
		return
	}
	m.ChatTurns.WithLabelValues(outcome).Inc()
	if outcome == OutcomeOK {
		return
	}
	m.stages.ObserveIndicator(outcome)
}

// ObserveGatewayError counts a failed completion by provider and error code.
func (m *Metrics) ObserveGatewayError(provider, code string) {
	if m == nil {
		return
	}
	m.GatewayErrors.WithLabelValues(provider, code).Inc()
}

// SnapshotStages returns the current latency window.
func (m *Metrics) SnapshotStages() TurnStageSnapshot {
	if m == nil {
		return TurnStageSnapshot{GeneratedAt: time.Now().UTC()}
	}
	return m.stages.Snapshot()
}

// ResetStages clears the latency window.
func (m *Metrics) ResetStages() {
	if m == nil {
		return
	}
	m.stages.Reset()
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
