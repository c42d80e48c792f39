package metrics

import (
	"net/http"
	"time"

	"github.com/EricMurray-e-m-dev/SecureProctor/internal/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors for the engine. Each instance owns
// its registry so tests and replays do not collide on global state.
type Metrics struct {
	registry *prometheus.Registry

	DetectionsTotal   prometheus.Counter
	DetectionsDropped *prometheus.CounterVec
	ViolationsTotal   *prometheus.CounterVec
	ActiveSessions    prometheus.Gauge
	FinalScore        prometheus.Histogram
	IngestDuration    prometheus.Histogram
	InvalidPayloads   prometheus.Counter
	PublishErrors     prometheus.Counter
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		DetectionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "proctor_detections_total",
			Help: "Detections applied to an active session",
		}),
		DetectionsDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "proctor_detections_dropped_total",
			Help: "Detections discarded without being applied",
		}, []string{"reason"}),
		ViolationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "proctor_violations_total",
			Help: "Violations recorded",
		}, []string{"type", "severity"}),
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "proctor_active_sessions",
			Help: "Sessions currently being proctored",
		}),
		FinalScore: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "proctor_final_integrity_score",
			Help:    "Integrity score of finished sessions",
			Buckets: []float64{0, 20, 40, 60, 80, 90, 100},
		}),
		IngestDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "proctor_ingest_duration_seconds",
			Help:    "Time to apply one detection including persistence",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		}),
		InvalidPayloads: factory.NewCounter(prometheus.CounterOpts{
			Name: "proctor_invalid_payloads_total",
			Help: "Bus payloads rejected by schema validation",
		}),
		PublishErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "proctor_publish_errors_total",
			Help: "Failed event bus publishes",
		}),
	}
}

func (m *Metrics) DetectionIngested(d time.Duration) {
	m.DetectionsTotal.Inc()
	m.IngestDuration.Observe(d.Seconds())
}

func (m *Metrics) DetectionDropped(reason string) {
	m.DetectionsDropped.WithLabelValues(reason).Inc()
}

func (m *Metrics) ViolationRecorded(v models.Violation) {
	m.ViolationsTotal.WithLabelValues(string(v.Type), string(v.Severity)).Inc()
}

func (m *Metrics) SessionStarted() {
	m.ActiveSessions.Inc()
}

func (m *Metrics) SessionFinished(_ models.SessionStatus, score int) {
	m.ActiveSessions.Dec()
	m.FinalScore.Observe(float64(score))
}

func (m *Metrics) IncrementInvalidPayloads() {
	m.InvalidPayloads.Inc()
}

func (m *Metrics) IncrementPublishErrors() {
	m.PublishErrors.Inc()
}

// Handler serves this instance's registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
