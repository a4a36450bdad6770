package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry     *prometheus.Registry
	registryOnce sync.Once

	PipelineRuns     *prometheus.CounterVec
	PipelineInFlight prometheus.Gauge
	StageLatency     *prometheus.HistogramVec

	UpstreamRequests *prometheus.CounterVec
	UpstreamLatency  *prometheus.HistogramVec

	AnalyticsQueries *prometheus.CounterVec
)

// Init builds the registry and collectors once. Safe to call repeatedly.
func Init() {
	registryOnce.Do(func() {
		registry = prometheus.NewRegistry()

		PipelineRuns = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "callqa_pipeline_runs_total",
				Help: "Pipeline runs by final status (scored, failed) and failing stage",
			},
			[]string{"status", "stage"},
		)
		PipelineInFlight = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "callqa_pipeline_inflight",
				Help: "Pipeline runs currently executing in this process",
			},
		)
		StageLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "callqa_pipeline_stage_seconds",
				Help:    "Wall time of each pipeline stage",
				Buckets: []float64{0.05, 0.25, 1, 5, 15, 30, 60, 120, 300},
			},
			[]string{"stage"},
		)
		UpstreamRequests = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "callqa_upstream_requests_total",
				Help: "Calls to the transcription and scoring services by result",
			},
			[]string{"service", "result"},
		)
		UpstreamLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "callqa_upstream_request_seconds",
				Help:    "Latency of calls to the transcription and scoring services",
				Buckets: prometheus.ExponentialBuckets(0.05, 2, 13),
			},
			[]string{"service"},
		)
		AnalyticsQueries = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "callqa_analytics_queries_total",
				Help: "Analytics aggregations served by kind",
			},
			[]string{"kind"},
		)

		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			PipelineRuns,
			PipelineInFlight,
			StageLatency,
			UpstreamRequests,
			UpstreamLatency,
			AnalyticsQueries,
		)
	})
}

// Handler serves the registry in the Prometheus text format.
func Handler() http.Handler {
	Init()
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

func ObservePipeline(status, stage string) {
	Init()
	PipelineRuns.WithLabelValues(status, stage).Inc()
}

func ObserveStage(stage string, d time.Duration) {
	Init()
	StageLatency.WithLabelValues(stage).Observe(d.Seconds())
}

func ObserveUpstream(service, result string, d time.Duration) {
	Init()
	UpstreamRequests.WithLabelValues(service, result).Inc()
	UpstreamLatency.WithLabelValues(service).Observe(d.Seconds())
}

func ObserveAnalytics(kind string) {
	Init()
	AnalyticsQueries.WithLabelValues(kind).Inc()
}

// TrackInFlight increments the in-flight gauge and returns its release.
func TrackInFlight() func() {
	Init()
	PipelineInFlight.Inc()
	return PipelineInFlight.Dec
}
