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
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~20s
		},
		[]string{"method", "route", "status"},
	)

	scansTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scans_total",
			Help: "Completed scan attempts by outcome.",
		},
		[]string{"outcome"},
	)

	scanDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "scan_duration_seconds",
			Help:    "Wall time of one scan from plan to emission.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 14), // 50ms to ~7min
		},
	)

	scanPointsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scan_points_total",
			Help: "Scan plan coordinates queried against the remote service.",
		},
	)

	fetchDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fetch_duration_seconds",
			Help:    "Latency of single-point remote fetches in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		},
		[]string{"outcome"},
	)

	discoveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "discoveries_total",
			Help: "Entities seen by the filter/dedup stage by result.",
		},
		[]string{"result"},
	)

	dedupStoreSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "dedup_store_size",
			Help: "Instance ids remembered by the current session.",
		},
	)

	pointCacheResults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "point_cache_results_total",
			Help: "Point cache lookups by outcome.",
		},
		[]string{"outcome"},
	)

	cacheOpTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_op_total",
			Help: "Redis operations by op and result.",
		},
		[]string{"op", "result"},
	)

	redisOpDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "redis_operation_duration_seconds",
			Help:    "Latency of Redis operations in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		},
		[]string{"op"},
	)

	publishDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "discovery_publish_dropped_total",
			Help: "Discoveries dropped by a sink because its queue was full.",
		},
		[]string{"sink"},
	)

	locationEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "location_events_total",
			Help: "Location update events consumed by result.",
		},
		[]string{"result"},
	)
)

func collectors() []prometheus.Collector {
	return []prometheus.Collector{
		httpRequestsTotal, httpRequestDurationSeconds,
		scansTotal, scanDurationSeconds, scanPointsTotal,
		fetchDurationSeconds, discoveriesTotal, dedupStoreSize,
		pointCacheResults, cacheOpTotal, redisOpDurationSeconds,
		publishDropped, locationEventsTotal,
	}
}

func init() {
	_ = register(prometheus.DefaultRegisterer)
}

// Init registers the service collectors on reg. Registering on the same
// registry twice is a no-op.
func Init(reg prometheus.Registerer, enabled bool) {
	if !enabled {
		return
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if err := register(reg); err != nil {
		panic(err)
	}
}

func register(reg prometheus.Registerer) error {
	for _, c := range collectors() {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	return nil
}

func ObserveHTTP(method, route string, status int, durationSeconds float64) {
	st := strconv.Itoa(status)
	httpRequestsTotal.WithLabelValues(method, route, st).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route, st).Observe(durationSeconds)
}

// ObserveScan records one finished scan; outcome is ok, failed, stale or canceled.
func ObserveScan(outcome string, durationSeconds float64) {
	scansTotal.WithLabelValues(outcome).Inc()
	scanDurationSeconds.Observe(durationSeconds)
}

func AddScanPoints(n int) {
	if n > 0 {
		scanPointsTotal.Add(float64(n))
	}
}

func ObserveFetch(outcome string, durationSeconds float64) {
	fetchDurationSeconds.WithLabelValues(outcome).Observe(durationSeconds)
}

func AddDiscoveries(result string, n int) {
	if n > 0 {
		discoveriesTotal.WithLabelValues(result).Add(float64(n))
	}
}

func SetDedupStoreSize(n int) {
	dedupStoreSize.Set(float64(n))
}

func IncPointCache(outcome string) {
	pointCacheResults.WithLabelValues(outcome).Inc()
}

func ObserveCacheOp(op string, err error, durationSeconds float64) {
	res := "ok"
	if err != nil {
		res = "error"
	}
	cacheOpTotal.WithLabelValues(op, res).Inc()
	redisOpDurationSeconds.WithLabelValues(op).Observe(durationSeconds)
}

func IncPublishDropped(sink string) {
	publishDropped.WithLabelValues(sink).Inc()
}

func IncLocationEvent(result string) {
	locationEventsTotal.WithLabelValues(result).Inc()
}
