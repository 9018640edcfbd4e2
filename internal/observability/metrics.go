package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for merge runs.
type Metrics struct {
	JobsConsumed     prometheus.Counter
	ProductsProduced prometheus.Counter
	JobErrors        prometheus.Counter
	PipelineRunning  prometheus.Gauge

	// Batch processing metrics.
	BatchSize               prometheus.Histogram
	BatchProcessingDuration prometheus.Histogram

	// Merge metrics.
	FragmentsMerged *prometheus.CounterVec // labels: kind={SCAN,PVOL}
	MembersSkipped  prometheus.Counter
	MergeDuration   *prometheus.HistogramVec // labels: operation={files,archive,cycle}
	ProductsSaved   prometheus.Counter
	LedgerHits      prometheus.Counter
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		JobsConsumed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rb5_merge",
			Name:      "jobs_consumed_total",
			Help:      "Total archive jobs read from the job topic.",
		}),
		ProductsProduced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rb5_merge",
			Name:      "products_produced_total",
			Help:      "Total product events written to the product topic.",
		}),
		JobErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rb5_merge",
			Name:      "job_errors_total",
			Help:      "Total archive jobs that failed and were skipped.",
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "rb5_merge",
			Name:      "pipeline_running",
			Help:      "1 when the job pipeline is active, 0 when shut down.",
		}),
		BatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "rb5_merge",
			Name:      "batch_size",
			Help:      "Number of jobs per batch extracted from Kafka.",
			Buckets:   []float64{1, 2, 5, 10, 20, 50},
		}),
		BatchProcessingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "rb5_merge",
			Name:      "batch_processing_duration_seconds",
			Help:      "Duration of a complete extract-merge-load cycle.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		FragmentsMerged: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rb5_merge",
			Name:      "fragments_merged_total",
			Help:      "Decoded fragments merged into a composite, by object kind.",
		}, []string{"kind"}),
		MembersSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rb5_merge",
			Name:      "members_skipped_total",
			Help:      "Archive members skipped because they are not raw data.",
		}),
		MergeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "rb5_merge",
			Name:      "merge_duration_seconds",
			Help:      "Duration of a merge run by operation.",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"operation"}),
		ProductsSaved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rb5_merge",
			Name:      "products_saved_total",
			Help:      "Merged products handed to the persistence bridge.",
		}),
		LedgerHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rb5_merge",
			Name:      "ledger_hits_total",
			Help:      "Jobs skipped because the ledger already recorded them.",
		}),
	}

	prometheus.MustRegister(
		m.JobsConsumed,
		m.ProductsProduced,
		m.JobErrors,
		m.PipelineRunning,
		m.BatchSize,
		m.BatchProcessingDuration,
		m.FragmentsMerged,
		m.MembersSkipped,
		m.MergeDuration,
		m.ProductsSaved,
		m.LedgerHits,
	)

	return m
}

// NewMetricsForTesting creates Metrics with a fresh registry to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return &Metrics{
		JobsConsumed:            prometheus.NewCounter(prometheus.CounterOpts{Namespace: "rb5_merge", Name: "jobs_consumed_total"}),
		ProductsProduced:        prometheus.NewCounter(prometheus.CounterOpts{Namespace: "rb5_merge", Name: "products_produced_total"}),
		JobErrors:               prometheus.NewCounter(prometheus.CounterOpts{Namespace: "rb5_merge", Name: "job_errors_total"}),
		PipelineRunning:         prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "rb5_merge", Name: "pipeline_running"}),
		BatchSize:               prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: "rb5_merge", Name: "batch_size"}),
		BatchProcessingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: "rb5_merge", Name: "batch_processing_duration_seconds"}),
		FragmentsMerged:         prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "rb5_merge", Name: "fragments_merged_total"}, []string{"kind"}),
		MembersSkipped:          prometheus.NewCounter(prometheus.CounterOpts{Namespace: "rb5_merge", Name: "members_skipped_total"}),
		MergeDuration:           prometheus.NewHistogramVec(prometheus.HistogramOpts{Namespace: "rb5_merge", Name: "merge_duration_seconds"}, []string{"operation"}),
		ProductsSaved:           prometheus.NewCounter(prometheus.CounterOpts{Namespace: "rb5_merge", Name: "products_saved_total"}),
		LedgerHits:              prometheus.NewCounter(prometheus.CounterOpts{Namespace: "rb5_merge", Name: "ledger_hits_total"}),
	}
}
