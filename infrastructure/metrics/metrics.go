package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcomes recorded per ledger operation.
const (
	OutcomeOK       = "ok"
	OutcomeWarning  = "warning"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

// Metrics holds the ledger collectors on a private registry.
type Metrics struct {
	registry    *prometheus.Registry
	transitions *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	batchSize   prometheus.Histogram
	exported    *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "railstock",
			Name:      "ledger_operations_total",
			Help:      "Ledger operations by operation and outcome.",
		}, []string{"operation", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "railstock",
			Name:      "ledger_operation_duration_seconds",
			Help:      "Wall time of ledger operations including the write transaction.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		}, []string{"operation"}),
		batchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "railstock",
			Name:      "batch_move_rolls",
			Help:      "Rolls moved per committed batch move.",
			Buckets:   []float64{1, 2, 5, 10, 25, 50, 100, 250},
		}),
		exported: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "railstock",
			Name:      "export_rows_total",
			Help:      "Rows written by export feeds.",
		}, []string{"feed"}),
	}
	m.registry.MustRegister(
		m.transitions,
		m.duration,
		m.batchSize,
		m.exported,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveOperation records one finished ledger operation. Safe on a nil receiver.
func (m *Metrics) ObserveOperation(operation, outcome string, took time.Duration) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(operation, outcome).Inc()
	m.duration.WithLabelValues(operation).Observe(took.Seconds())
}

// ObserveBatch records the number of rolls moved by one batch.
func (m *Metrics) ObserveBatch(moved int) {
	if m == nil {
		return
	}
	m.batchSize.Observe(float64(moved))
}

// AddExported counts rows written by an export feed.
func (m *Metrics) AddExported(feed string, rows int) {
	if m == nil {
		return
	}
	m.exported.WithLabelValues(feed).Add(float64(rows))
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
