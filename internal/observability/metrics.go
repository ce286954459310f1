package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

const namespace = "weatherpipe"

// Metrics holds the Prometheus counters, histograms, and gauges shared by
// the batch pipelines. Each run builds its own registry, so NewMetrics is
// safe to call from parallel tests and repeated runs.
type Metrics struct {
	registry *prometheus.Registry

	LinesRead       prometheus.Counter
	RecordsAccepted prometheus.Counter
	RecordsRejected *prometheus.CounterVec // label: reason
	FilesProcessed  *prometheus.CounterVec // label: outcome={loaded,skipped,failed}

	// Batch persistence metrics.
	BatchSize         prometheus.Histogram
	BatchLoadDuration prometheus.Histogram
	BatchesFailed     prometheus.Counter

	// Aggregation metrics.
	StatsComputed prometheus.Counter
	StatsSkipped  prometheus.Counter
	StatsFailed   prometheus.Counter

	PipelineRunning prometheus.Gauge
	LastRun         prometheus.Gauge
}

// NewMetrics creates all pipeline metrics on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		LinesRead: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lines_read_total",
			Help:      "Total source lines read across all files.",
		}),
		RecordsAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_accepted_total",
			Help:      "Total lines parsed and validated successfully.",
		}),
		RecordsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_rejected_total",
			Help:      "Rejected lines by rejection reason.",
		}, []string{"reason"}),
		FilesProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_processed_total",
			Help:      "Source files by processing outcome.",
		}, []string{"outcome"}),
		BatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_size",
			Help:      "Number of records per flushed batch.",
			Buckets:   []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000},
		}),
		BatchLoadDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_load_duration_seconds",
			Help:      "Duration of one transactional batch upsert.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10},
		}),
		BatchesFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_failed_total",
			Help:      "Batches whose transaction failed and was skipped.",
		}),
		StatsComputed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stats_rows_computed_total",
			Help:      "Yearly summary rows computed and written.",
		}),
		StatsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stats_rows_skipped_total",
			Help:      "Station-year pairs skipped because a summary row exists.",
		}),
		StatsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stats_rows_failed_total",
			Help:      "Yearly summary rows lost to failed batch writes.",
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 while a pipeline run is active, 0 after shutdown.",
		}),
		LastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time of the last completed run.",
		}),
	}

	m.registry.MustRegister(
		m.LinesRead,
		m.RecordsAccepted,
		m.RecordsRejected,
		m.FilesProcessed,
		m.BatchSize,
		m.BatchLoadDuration,
		m.BatchesFailed,
		m.StatsComputed,
		m.StatsSkipped,
		m.StatsFailed,
		m.PipelineRunning,
		m.LastRun,
	)

	return m
}

// Push delivers a final snapshot to a Pushgateway. Batch runs exit too
// quickly for scrape-based collection, so each run pushes once at the end,
// grouped under job.
func (m *Metrics) Push(url, job string) error {
	return push.New(url, job).Gatherer(m.registry).Push()
}
