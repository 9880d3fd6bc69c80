package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)

	regenerationRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "screening_regeneration_runs_total",
			Help: "Total number of screening regeneration runs",
		},
		[]string{"scope", "result"},
	)

	regenerationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "screening_regeneration_duration_seconds",
			Help:    "Screening regeneration run duration in seconds",
			Buckets: []float64{.01, .05, .1, .5, 1, 5, 15, 60, 300},
		},
		[]string{"scope"},
	)

	recordsUpserted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "screening_records_upserted_total",
			Help: "Total number of screening records written by regeneration",
		},
	)

	queryCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "screening_query_cache_lookups_total",
			Help: "Screening list cache lookups by outcome",
		},
		[]string{"outcome"},
	)
)

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware records request counts and latencies. Route templates (not raw
// URLs) are used as the path label to keep cardinality bounded.
func Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			path := c.Path()
			if path == "" {
				path = c.Request().URL.Path
			}
			method := c.Request().Method
			httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(c.Response().Status)).Inc()
			httpRequestDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
			return err
		}
	}
}

// RecordRegenerationRun records one regeneration run. scope is "all" or
// "patient"; result is "ok" or "error".
func RecordRegenerationRun(scope, result string, duration time.Duration) {
	regenerationRuns.WithLabelValues(scope, result).Inc()
	regenerationDuration.WithLabelValues(scope).Observe(duration.Seconds())
}

// RecordRecordsUpserted adds to the running count of upserted records.
func RecordRecordsUpserted(n int) {
	recordsUpserted.Add(float64(n))
}

// RecordCacheLookup records a list-cache lookup outcome ("hit" or "miss").
func RecordCacheLookup(outcome string) {
	queryCacheLookups.WithLabelValues(outcome).Inc()
}
