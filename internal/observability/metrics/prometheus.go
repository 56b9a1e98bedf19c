// Package metrics provides Prometheus metrics for the medication-safety engine.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all application metrics
type Metrics struct {
	AssessmentsTotal      prometheus.Counter
	AssessmentsBlocked    prometheus.Counter
	AssessmentDuration    prometheus.Histogram
	CheckerDegraded       *prometheus.CounterVec
	RiskLevel             *prometheus.CounterVec
	AlertsPublished       prometheus.Counter
	AlertsDuplicate       prometheus.Counter
	AlertsDelivered       prometheus.Counter
	AlertDeliveryFailed   prometheus.Counter
	ConnectedClients      prometheus.Gauge
	UpstreamState         *prometheus.GaugeVec
	KafkaMessagesProduced prometheus.Counter
	KafkaMessagesConsumed prometheus.Counter
}

// New creates and registers all metrics
func New() *Metrics {
	m := &Metrics{
		AssessmentsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "safety_assessments_total",
			Help: "Total medication safety assessments",
		}),
		AssessmentsBlocked: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "safety_assessments_blocked_total",
			Help: "Assessments that blocked administration",
		}),
		AssessmentDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "safety_assessment_duration_seconds",
			Help:    "End-to-end assessment duration",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}),
		CheckerDegraded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "safety_checker_degraded_total",
			Help: "Checker results returned as unknown",
		}, []string{"checker"}),
		RiskLevel: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "safety_risk_level_total",
			Help: "Assessments by resulting risk level",
		}, []string{"level"}),
		AlertsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "alerts_published_total",
			Help: "High-risk alerts handed to distribution",
		}),
		AlertsDuplicate: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "alerts_duplicate_total",
			Help: "Alerts suppressed by the dedup cache",
		}),
		AlertsDelivered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "alerts_delivered_total",
			Help: "Per-room alert deliveries",
		}),
		AlertDeliveryFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "alerts_delivery_failed_total",
			Help: "Per-room alert delivery failures",
		}),
		ConnectedClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "realtime_connected_clients",
			Help: "Currently connected websocket clients",
		}),
		UpstreamState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "alert_upstream_state",
			Help: "Upstream connection state (1 for the active state)",
		}, []string{"state"}),
		KafkaMessagesProduced: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kafka_messages_produced_total",
			Help: "Total Kafka messages produced",
		}),
		KafkaMessagesConsumed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kafka_messages_consumed_total",
			Help: "Total Kafka messages consumed",
		}),
	}

	prometheus.MustRegister(
		m.AssessmentsTotal,
		m.AssessmentsBlocked,
		m.AssessmentDuration,
		m.CheckerDegraded,
		m.RiskLevel,
		m.AlertsPublished,
		m.AlertsDuplicate,
		m.AlertsDelivered,
		m.AlertDeliveryFailed,
		m.ConnectedClients,
		m.UpstreamState,
		m.KafkaMessagesProduced,
		m.KafkaMessagesConsumed,
	)

	return m
}

// SetUpstreamState marks state as active and clears the others.
func (m *Metrics) SetUpstreamState(state string) {
	for _, s := range []string{"disconnected", "connecting", "connected", "subscribed", "offline"} {
		v := 0.0
		if s == state {
			v = 1.0
		}
		m.UpstreamState.WithLabelValues(s).Set(v)
	}
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
