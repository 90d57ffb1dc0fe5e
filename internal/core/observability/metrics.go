package observability

import (
	"errors"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 14), // 5ms to ~40s
		},
		[]string{"method", "route", "status"},
	)

	upstreamRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upstream_requests_total",
			Help: "Upstream calls by service and outcome.",
		},
		[]string{"upstream", "outcome"},
	)

	upstreamLatencySeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "upstream_latency_seconds",
			Help:    "Latency of upstream calls in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
		},
		[]string{"upstream"},
	)

	pipelineStepsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_steps_total",
			Help: "Pipeline step outcomes.",
		},
		[]string{"step", "outcome"},
	)

	overlayLayersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "overlay_layers_total",
			Help: "Overlay layer evaluations by outcome (detected, clear, error).",
		},
		[]string{"layer", "outcome"},
	)

	layerCacheResults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "layer_cache_results_total",
			Help: "Remote layer payload cache results by outcome.",
		},
		[]string{"outcome"},
	)

	cacheOpTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_op_total",
			Help: "Redis operations by op and outcome.",
		},
		[]string{"op", "outcome"},
	)

	cacheOpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "redis_operation_duration_seconds",
			Help:    "Duration of redis operations in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		},
		[]string{"op"},
	)

	jobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobs_total",
			Help: "Kafka job messages by kind and outcome (ok, error, duplicate, invalid).",
		},
		[]string{"kind", "outcome"},
	)

	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "catastro_build_info",
			Help: "Build information for the binary.",
		},
		[]string{"version"},
	)
)

func collectorsList() []prometheus.Collector {
	return []prometheus.Collector{
		httpRequestsTotal,
		httpRequestDurationSeconds,
		upstreamRequestsTotal,
		upstreamLatencySeconds,
		pipelineStepsTotal,
		overlayLayersTotal,
		layerCacheResults,
		cacheOpTotal,
		cacheOpDuration,
		jobsTotal,
		buildInfo,
	}
}

// Init registers the collectors with reg. Registering twice on the same
// registry is a no-op.
func Init(reg prometheus.Registerer, enabled bool) {
	if !enabled || reg == nil {
		return
	}
	for _, c := range collectorsList() {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			panic(err)
		}
	}
}

func ObserveHTTP(method, route string, status int, durationSeconds float64) {
	st := strconv.Itoa(status)
	httpRequestsTotal.WithLabelValues(method, route, st).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route, st).Observe(durationSeconds)
}

// ObserveUpstream records one logical upstream call (after retries).
func ObserveUpstream(upstream string, err error, durationSeconds float64) {
	upstreamRequestsTotal.WithLabelValues(upstream, outcome(err)).Inc()
	upstreamLatencySeconds.WithLabelValues(upstream).Observe(durationSeconds)
}

// ObserveStep records a pipeline step outcome: ok, failed or skipped.
func ObserveStep(step, result string) {
	pipelineStepsTotal.WithLabelValues(step, result).Inc()
}

func ObserveOverlayLayer(layer, result string) {
	overlayLayersTotal.WithLabelValues(layer, result).Inc()
}

func ObserveLayerCache(hit bool) {
	if hit {
		layerCacheResults.WithLabelValues("hit").Inc()
		return
	}
	layerCacheResults.WithLabelValues("miss").Inc()
}

func ObserveCacheOp(op string, err error, durationSeconds float64) {
	cacheOpTotal.WithLabelValues(op, outcome(err)).Inc()
	cacheOpDuration.WithLabelValues(op).Observe(durationSeconds)
}

func ObserveJob(kind, result string) {
	jobsTotal.WithLabelValues(kind, result).Inc()
}

func ExposeBuildInfo(version string) {
	if version == "" {
		version = "dev"
	}
	buildInfo.WithLabelValues(version).Set(1)
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
