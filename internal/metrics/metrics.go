// Package metrics groups the Prometheus instrumentation for the server:
// background task outcomes, cache hit/miss counters, and the Measurement
// scoped-timer guard. Grounded in the typed-metrics-struct pattern of
// postalsys-Muti-Metroo's internal/metrics/metrics.go (a struct of typed
// metric fields built once via sync.Once), adapted to this server's own
// metric names.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups every metric the server emits.
type Metrics struct {
	StepDuration     *prometheus.HistogramVec
	TaskDuration     *prometheus.HistogramVec
	TaskOutcomes     *prometheus.CounterVec
	CacheHits        *prometheus.CounterVec
	CacheMisses      *prometheus.CounterVec
	AuthRateLimited  prometheus.Counter
}

var (
	once    sync.Once
	metrics *Metrics
)

// Default returns the process-wide Metrics instance, registering it with
// the default Prometheus registerer on first call.
func Default() *Metrics {
	once.Do(func() {
		metrics = NewMetrics(prometheus.DefaultRegisterer)
	})
	return metrics
}

// NewMetrics builds a fresh Metrics instance registered against reg. Tests
// that need isolation from the global registry can pass a fresh
// prometheus.NewRegistry().
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		StepDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name: "limit_step_duration_seconds",
			Help: "Duration of a named Measurement-guarded step, labeled by step name and completion status.",
		}, []string{"name", "status"}),
		TaskDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name: "limit_background_task_duration_seconds",
			Help: "Duration of a background task, labeled by task name.",
		}, []string{"name"}),
		TaskOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "limit_background_task_total",
			Help: "Count of completed background tasks by name and outcome.",
		}, []string{"name", "outcome"}),
		CacheHits: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "limit_cache_hit_total",
			Help: "Count of cache hits by operation.",
		}, []string{"operation"}),
		CacheMisses: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "limit_cache_miss_total",
			Help: "Count of cache misses by operation.",
		}, []string{"operation"}),
		AuthRateLimited: factory.NewCounter(prometheus.CounterOpts{
			Name: "limit_request_auth_rate_limited_total",
			Help: "Count of RequestAuth calls rejected by the per-user rate limiter.",
		}),
	}
}
