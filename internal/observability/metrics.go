package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "storm_leads"

// Metrics holds the Prometheus counters, histograms, and gauges for the pipeline.
type Metrics struct {
	StepOutcomes       *prometheus.CounterVec   // labels: step, status={OK,FAIL,SKIPPED}
	StepDuration       *prometheus.HistogramVec // labels: step
	SubChunks          *prometheus.CounterVec   // labels: status={OK,FAIL,SKIPPED}
	FetchRetries       prometheus.Counter
	ObservationsLoaded prometheus.Counter
	ClustersProduced   *prometheus.CounterVec // labels: stage={primary,secondary}
	NoisePoints        *prometheus.CounterVec // labels: stage={primary,secondary}
	PartitionOutcomes  *prometheus.CounterVec // labels: outcome={done,failed,abandoned}
	PartitionsInFlight prometheus.Gauge

	// Geocoding metrics.
	GeocodeRequests *prometheus.CounterVec // labels: outcome={success,error,empty}
	GeocodeCache    *prometheus.CounterVec // labels: result={hit,miss}
}

// NewMetrics creates and registers all pipeline metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.StepOutcomes,
		m.StepDuration,
		m.SubChunks,
		m.FetchRetries,
		m.ObservationsLoaded,
		m.ClustersProduced,
		m.NoisePoints,
		m.PartitionOutcomes,
		m.PartitionsInFlight,
		m.GeocodeRequests,
		m.GeocodeCache,
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
		StepOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "step_outcomes_total",
			Help:      "Pipeline step outcomes by step and status.",
		}, []string{"step", "status"}),
		StepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "step_duration_seconds",
			Help:      "Duration of executed pipeline steps.",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 5, 15, 60, 300},
		}, []string{"step"}),
		SubChunks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "acquire_subchunks_total",
			Help:      "Acquisition sub-chunks by outcome.",
		}, []string{"status"}),
		FetchRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_retries_total",
			Help:      "Upstream fetch attempts retried after a transient failure.",
		}),
		ObservationsLoaded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "observations_loaded_total",
			Help:      "Point observations read for primary clustering.",
		}),
		ClustersProduced: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "clusters_produced_total",
			Help:      "Clusters written by stage.",
		}, []string{"stage"}),
		NoisePoints: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "noise_points_total",
			Help:      "Points left unclustered by stage.",
		}, []string{"stage"}),
		PartitionOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "partition_outcomes_total",
			Help:      "Finished partitions by outcome.",
		}, []string{"outcome"}),
		PartitionsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "partitions_in_flight",
			Help:      "Partitions currently being processed.",
		}),
		GeocodeRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_requests_total",
			Help:      "Reverse geocoding API requests by outcome.",
		}, []string{"outcome"}),
		GeocodeCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_cache_total",
			Help:      "Geocoding cache lookups by result.",
		}, []string{"result"}),
	}
}
