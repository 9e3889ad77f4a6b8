package evaluation

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the Prometheus collectors for the evaluation pipeline
type Metrics struct {
	evaluations   *prometheus.CounterVec
	failures      *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	scores        *prometheus.HistogramVec
	logWarnings   *prometheus.CounterVec
	retrievalTime prometheus.Histogram
}

// NewMetrics creates the collectors and registers them with reg when it is
// not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		evaluations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nahw_evaluations_total",
			Help: "Completed evaluations by provider and score tier.",
		}, []string{"provider", "tier"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nahw_evaluation_failures_total",
			Help: "Failed evaluations by provider and error kind.",
		}, []string{"provider", "kind"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "nahw_evaluation_duration_seconds",
			Help:    "End-to-end evaluation latency.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
		}, []string{"provider"}),
		scores: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "nahw_evaluation_score",
			Help:    "Distribution of recall scores.",
			Buckets: []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
		}, []string{"lesson"}),
		logWarnings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nahw_log_append_failures_total",
			Help: "Evaluation log appends that failed, by sink.",
		}, []string{"sink"}),
		retrievalTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "nahw_retrieval_duration_seconds",
			Help:    "Textbook retrieval latency.",
			Buckets: prometheus.DefBuckets,
		}),
	}

	if reg != nil {
		reg.MustRegister(m.evaluations, m.failures, m.duration, m.scores, m.logWarnings, m.retrievalTime)
	}
	return m
}

func (m *Metrics) observeSuccess(provider, lessonID string, tier string, score int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.evaluations.WithLabelValues(provider, tier).Inc()
	m.duration.WithLabelValues(provider).Observe(elapsed.Seconds())
	m.scores.WithLabelValues(lessonID).Observe(float64(score))
}

func (m *Metrics) observeFailure(provider, kind string) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(provider, kind).Inc()
}

func (m *Metrics) observeLogWarning(sink string) {
	if m == nil {
		return
	}
	m.logWarnings.WithLabelValues(sink).Inc()
}

func (m *Metrics) observeRetrieval(elapsed time.Duration) {
	if m == nil {
		return
	}
	m.retrievalTime.Observe(elapsed.Seconds())
}
