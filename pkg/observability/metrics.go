package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics must be global for registration
var (
	// BatchesTotal counts batch runs
	BatchesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "placeholder_batches_total",
			Help: "Total number of placeholder batch runs",
		},
	)

	// BatchDuration measures batch wall clock time in seconds
	BatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "placeholder_batch_duration_seconds",
			Help:    "Placeholder batch execution duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14), // 10ms to ~80s
		},
	)

	// PlaceholdersTotal counts resolved placeholders
	PlaceholdersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "placeholder_values_total",
			Help: "Total number of placeholder values resolved",
		},
		[]string{"kind", "source", "status"}, // source: PERIOD, CACHE, QUERY, ERROR; status: success, failed
	)

	// QueriesInFlight tracks queries currently executing
	QueriesInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "placeholder_queries_in_flight",
			Help: "Number of placeholder queries currently executing",
		},
	)

	// QueryDuration measures query runner latency
	QueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "placeholder_query_duration_seconds",
			Help:    "Placeholder query execution time",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 10), // 10ms to ~10s
		},
		[]string{"status"},
	)

	// CacheLookups counts cache lookups by outcome
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "placeholder_cache_lookups_total",
			Help: "Total number of placeholder cache lookups",
		},
		[]string{"result"}, // result: hit, miss
	)

	// CacheWrites counts cache writes by outcome
	CacheWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "placeholder_cache_writes_total",
			Help: "Total number of placeholder cache writes",
		},
		[]string{"status"}, // status: success, error
	)

	// CacheInvalidations counts entries expired by invalidation
	CacheInvalidations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "placeholder_cache_invalidated_entries_total",
			Help: "Total number of cache entries expired by invalidation",
		},
	)

	// SchedulerLeader is 1 while this instance holds the scheduler lease
	SchedulerLeader = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "placeholder_scheduler_leader",
			Help: "Whether this instance is the scheduler leader (1) or not (0)",
		},
	)

	// ScheduledRuns counts runs dispatched by the scheduler
	ScheduledRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "placeholder_scheduled_runs_total",
			Help: "Total number of scheduled batch runs",
		},
		[]string{"job", "status"},
	)
)

// RecordBatch records a finished batch run
func RecordBatch(duration float64) {
	BatchesTotal.Inc()
	BatchDuration.Observe(duration)
}

// RecordPlaceholder records a resolved placeholder
func RecordPlaceholder(kind, source string, success bool) {
	PlaceholdersTotal.WithLabelValues(kind, source, status(success)).Inc()
}

// RecordQueryStart records the start of a query
func RecordQueryStart() {
	QueriesInFlight.Inc()
}

// RecordQueryComplete records query completion
func RecordQueryComplete(success bool, duration float64) {
	QueriesInFlight.Dec()
	QueryDuration.WithLabelValues(status(success)).Observe(duration)
}

// RecordCacheLookup records a cache hit or miss
func RecordCacheLookup(hit bool) {
	if hit {
		CacheLookups.WithLabelValues("hit").Inc()
		return
	}

	CacheLookups.WithLabelValues("miss").Inc()
}

// RecordCacheWrite records a cache write
func RecordCacheWrite(err error) {
	if err != nil {
		CacheWrites.WithLabelValues("error").Inc()
		return
	}

	CacheWrites.WithLabelValues("success").Inc()
}

// RecordInvalidation records entries expired by invalidation
func RecordInvalidation(count int) {
	CacheInvalidations.Add(float64(count))
}

// SetSchedulerLeader updates the leader gauge
func SetSchedulerLeader(isLeader bool) {
	if isLeader {
		SchedulerLeader.Set(1)
		return
	}

	SchedulerLeader.Set(0)
}

// RecordScheduledRun records a finished scheduled run
func RecordScheduledRun(job string, success bool) {
	ScheduledRuns.WithLabelValues(job, status(success)).Inc()
}

func status(success bool) string {
	if success {
		return "success"
	}

	return "failed"
}
