package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	ChatConnections    prometheus.Gauge
	Extractions        *prometheus.CounterVec
	RateLimitDecisions *prometheus.CounterVec
	ModelAttempts      *prometheus.CounterVec
	ModelLatency       *prometheus.HistogramVec
	DegradedParses     *prometheus.CounterVec
	StoreErrors        *prometheus.CounterVec
	WSMessages         *prometheus.CounterVec

	stages *stageWindow
}

// NewMetrics registers the instruments with reg. Pass
// prometheus.DefaultRegisterer in production and nil in tests.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ChatConnections: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "chat_connections",
			Help:      "Number of open websocket chat connections.",
		}),
		Extractions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extractions_total",
			Help:      "Extraction requests by pipeline and terminal state.",
		}, []string{"pipeline", "outcome"}),
		RateLimitDecisions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_decisions_total",
			Help:      "Rate limiter decisions.",
		}, []string{"decision"}),
		ModelAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_attempts_total",
			Help:      "Completion attempts by provider and result.",
		}, []string{"provider", "result"}),
		ModelLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "model_latency_ms",
			Help:      "Latency of a single completion attempt in milliseconds.",
			Buckets:   []float64{250, 500, 1000, 2000, 4000, 8000, 15000, 30000},
		}, []string{"provider"}),
		DegradedParses: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "degraded_parses_total",
			Help:      "Completions whose structured payload was dropped.",
		}, []string{"pipeline"}),
		StoreErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_errors_total",
			Help:      "Backing store errors by store and operation.",
		}, []string{"store", "op"}),
		WSMessages: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_total",
			Help:      "WebSocket messages by direction and type.",
		}, []string{"direction", "type"}),
		stages: newStageWindow(256),
	}
}

func (m *Metrics) ObserveExtraction(pipeline, outcome string) {
	if m == nil {
		return
	}
	m.Extractions.WithLabelValues(pipeline, outcome).Inc()
	if outcome != "done" {
		m.stages.Count(pipeline + "_" + outcome)
	}
}

func (m *Metrics) ObserveRateLimit(decision string) {
	if m == nil {
		return
	}
	m.RateLimitDecisions.WithLabelValues(decision).Inc()
}

func (m *Metrics) ObserveModelAttempt(provider, result string, d time.Duration) {
	if m == nil {
		return
	}
	m.ModelAttempts.WithLabelValues(provider, result).Inc()
	m.ModelLatency.WithLabelValues(provider).Observe(float64(d.Milliseconds()))
}

func (m *Metrics) ObserveDegradedParse(pipeline string) {
	if m == nil {
		return
	}
	m.DegradedParses.WithLabelValues(pipeline).Inc()
	m.stages.Count(pipeline + "_degraded_parse")
}

func (m *Metrics) ObserveStoreError(store, op string) {
	if m == nil {
		return
	}
	m.StoreErrors.WithLabelValues(store, op).Inc()
}

func (m *Metrics) ObserveWSMessage(direction, msgType string) {
	if m == nil {
		return
	}
	m.WSMessages.WithLabelValues(direction, msgType).Inc()
}

// ObserveStage records one pipeline stage duration in the rolling window
// served by the latency snapshot endpoint.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.stages.Observe(stage, float64(d.Microseconds())/1000)
}

func (m *Metrics) StageSnapshot() StageSnapshot {
	if m == nil {
		return StageSnapshot{GeneratedAt: time.Now().UTC(), Stages: []StageStats{}}
	}
	return m.stages.Snapshot()
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
