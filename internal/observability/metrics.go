package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "capacity_etl"

// Metrics holds the Prometheus counters, histograms, and gauges for the reconciliation pipeline.
type Metrics struct {
	PipelineRunning prometheus.Gauge
	Runs            *prometheus.CounterVec // labels: outcome={success,error}
	RunDuration     prometheus.Histogram
	LastSuccess     prometheus.Gauge

	// Document and row accounting.
	Documents      *prometheus.CounterVec // labels: status={reconciled,superseded,omitted}
	RowsDropped    prometheus.Counter
	UnmappedLabels prometheus.Counter
	ParseCache     *prometheus.CounterVec // labels: result={hit,miss}

	// Output.
	ReconciledDates  prometheus.Gauge
	IncidentsDropped prometheus.Counter
	RecordsPublished prometheus.Counter
}

// NewMetrics creates and registers all pipeline metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.PipelineRunning,
		m.Runs,
		m.RunDuration,
		m.LastSuccess,
		m.Documents,
		m.RowsDropped,
		m.UnmappedLabels,
		m.ParseCache,
		m.ReconciledDates,
		m.IncidentsDropped,
		m.RecordsPublished,
	)
	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 when the pipeline is active, 0 when shut down.",
		}),
		Runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Reconciliation runs by outcome.",
		}, []string{"outcome"}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of a complete list-parse-merge-load run.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		LastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful run.",
		}),
		Documents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "documents_total",
			Help:      "Listed report documents by outcome.",
		}, []string{"status"}),
		RowsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_dropped_total",
			Help:      "Report rows dropped as malformed or incomplete.",
		}),
		UnmappedLabels: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unmapped_labels_total",
			Help:      "Metric labels passed through without a canonical code.",
		}),
		ParseCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "parse_cache_total",
			Help:      "Parsed-window cache lookups by result.",
		}, []string{"result"}),
		ReconciledDates: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "reconciled_dates",
			Help:      "Calendar dates in the last reconciled table.",
		}),
		IncidentsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "incidents_dropped_total",
			Help:      "Incident rows dropped for an unparseable start date or empty condition.",
		}),
		RecordsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_published_total",
			Help:      "Reconciled date records written to the sink topic.",
		}),
	}
}
