package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

const (
	MetricsEndpoint = "0.0.0.0:9090"
)

var (
	CatalogLoadCounter        *prometheus.CounterVec
	CatalogLoadRunTimeSummary *prometheus.SummaryVec

	CacheLookupCounter *prometheus.CounterVec
	CacheEvictCounter  *prometheus.CounterVec

	ResolveCounter *prometheus.CounterVec

	ValidationCounter *prometheus.CounterVec

	AssignCounter        *prometheus.CounterVec
	SlotsReservedCounter *prometheus.CounterVec
)

func init() {
	CatalogLoadCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "placer_catalog_loads_total",
			Help: "A counter metric to measure the total count of catalog loads, successful and failed",
		},
		[]string{"component_type", "result"},
	)

	CatalogLoadRunTimeSummary = promauto.NewSummaryVec(
		prometheus.SummaryOpts{
			Name: "placer_catalog_load_duration_seconds",
			Help: "A summary metric to measure the time spent loading and decoding a catalog",
		},
		[]string{"component_type"},
	)

	CacheLookupCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "placer_cache_lookups_total",
			Help: "A counter metric to measure specification cache lookups by tier",
		},
		[]string{"tier", "result"}, // result is hit/miss
	)

	CacheEvictCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "placer_cache_evictions_total",
			Help: "A counter metric to measure specification cache entries evicted or expired by tier",
		},
		[]string{"tier", "reason"},
	)

	ResolveCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "placer_spec_resolutions_total",
			Help: "A counter metric to measure unit specification resolutions by match kind",
		},
		[]string{"component_type", "matched_by"},
	)

	ValidationCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "placer_batch_validations_total",
			Help: "A counter metric to measure the total count of batch homogeneity validations",
		},
		[]string{"component_type", "result"},
	)

	AssignCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "placer_assignments_total",
			Help: "A counter metric to measure assignment requests, successful and failed",
		},
		[]string{"result"},
	)

	SlotsReservedCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "placer_slots_reserved_total",
			Help: "A counter metric to measure the total count of host slots reserved",
		},
		[]string{"component_type"},
	)
}

// ListenAndServe exposes prometheus metrics as /metrics
func ListenAndServe(addr string, logger *logrus.Logger) {
	if addr == "" {
		addr = MetricsEndpoint
	}

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())

		server := &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 2 * time.Second, // nolint:gomnd // time duration value is clear as is.
		}

		if err := server.ListenAndServe(); err != nil {
			logger.WithError(err).Warn("metrics endpoint")
		}
	}()
}
