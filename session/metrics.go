package session

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics records session activity. A nil *Metrics is valid and records nothing.
type Metrics struct {
	classifications *prometheus.CounterVec
	failures        *prometheus.CounterVec
	latency         prometheus.Histogram
	records         *prometheus.CounterVec
	validationPass  *prometheus.GaugeVec
}

// NewMetrics registers the session metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		classifications: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rtlml_classifications_total",
				Help: "Classifications completed, by predicted label",
			},
			[]string{"label"},
		),
		failures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rtlml_failures_total",
				Help: "Failed pipeline steps, by stage",
			},
			[]string{"stage"},
		),
		latency: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "rtlml_classification_latency_seconds",
				Help:    "Time from tune to prediction",
				Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
			},
		),
		records: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rtlml_dataset_records_total",
				Help: "Dataset records written, by label",
			},
			[]string{"label"},
		),
		validationPass: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "rtlml_validation_passed",
				Help: "1 when the last validation capture of a label passed its check",
			},
			[]string{"label"},
		),
	}
}

func (m *Metrics) observeClassification(label string, latency time.Duration) {
	if m == nil {
		return
	}
	m.classifications.WithLabelValues(label).Inc()
	m.latency.Observe(latency.Seconds())
}

func (m *Metrics) observeFailure(stage string) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(stage).Inc()
}

func (m *Metrics) observeRecord(label string) {
	if m == nil {
		return
	}
	m.records.WithLabelValues(label).Inc()
}

func (m *Metrics) observeValidation(label string, passed bool) {
	if m == nil {
		return
	}
	value := 0.0
	if passed {
		value = 1
	}
	m.validationPass.WithLabelValues(label).Set(value)
}
