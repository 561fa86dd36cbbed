// Package observability exposes the Prometheus metrics recorded by the
// service's hot paths.
package observability

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~20s
		},
		[]string{"method", "route", "status"},
	)

	storeOpDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "store_op_duration_seconds",
			Help:    "Duration of document store operations in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		},
		[]string{"op", "table", "status"},
	)

	rowsDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rows_dropped_total",
			Help: "Store rows dropped on read paths, by reason.",
		},
		[]string{"table", "reason"},
	)

	layerCacheResultsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "layer_cache_results_total",
			Help: "Layer response cache results by outcome.",
		},
		[]string{"outcome"},
	)

	localizationReloadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "localization_reloads_total",
			Help: "Localization cache reloads by domain and status.",
		},
		[]string{"domain", "status"},
	)

	consumerErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_consumer_errors_total",
			Help: "Catalog change consumer errors by kind.",
		},
		[]string{"kind"},
	)

	buildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "app_build_info",
			Help: "Build information for the binary.",
		},
		[]string{"version"},
	)
)

func ObserveHTTP(method, route string, status int, durationSeconds float64) {
	st := strconv.Itoa(status)
	httpRequestsTotal.WithLabelValues(method, route, st).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route, st).Observe(durationSeconds)
}

func ObserveStoreOp(op, table string, err error, durationSeconds float64) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	storeOpDurationSeconds.WithLabelValues(op, table, status).Observe(durationSeconds)
}

func IncRowDropped(table, reason string) {
	rowsDroppedTotal.WithLabelValues(table, reason).Inc()
}

func IncLayerCacheHit()  { layerCacheResultsTotal.WithLabelValues("hit").Inc() }
func IncLayerCacheMiss() { layerCacheResultsTotal.WithLabelValues("miss").Inc() }

func ObserveLocalizationReload(domain string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	localizationReloadsTotal.WithLabelValues(domain, status).Inc()
}

func IncConsumerError(kind string) {
	consumerErrorsTotal.WithLabelValues(kind).Inc()
}

func ExposeBuildInfo(version string) {
	if version == "" {
		version = "dev"
	}
	buildInfo.WithLabelValues(version).Set(1)
}
