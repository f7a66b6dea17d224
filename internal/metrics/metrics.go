package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var durationBuckets = []float64{1, 5, 10, 20, 50, 100, 200, 500, 1000, 5000, 30000}

var (
	RequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "buildings_requests_total",
		Help: "Total number of API requests by route and status",
	}, []string{"route", "status"})
	RequestDurationMs = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "buildings_request_duration_ms",
		Help:    "Request duration in milliseconds",
		Buckets: durationBuckets,
	}, []string{"route"})

	SourceRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "buildings_source_requests_total",
		Help: "Total open-data requests by dataset",
	}, []string{"dataset"})
	SourceFailTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "buildings_source_fail_total",
		Help: "Total open-data request failures by dataset",
	}, []string{"dataset"})
	SourceRecordsSkipped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "buildings_source_records_skipped_total",
		Help: "Open-data records that could not be decoded",
	}, []string{"dataset"})
	SourceDurationMs = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "buildings_source_duration_ms",
		Help:    "Open-data request duration in milliseconds",
		Buckets: durationBuckets,
	}, []string{"dataset"})

	JoinRunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "buildings_join_runs_total",
		Help: "Completed joins by effective match policy",
	}, []string{"policy"})
	JoinPairsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "buildings_join_pairs_total",
		Help: "Footprint/parcel pairs evaluated by outcome",
	}, []string{"outcome"})
	JoinDurationMs = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "buildings_join_duration_ms",
		Help:    "Join duration in milliseconds",
		Buckets: durationBuckets,
	})
	SnapshotBuildings = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "buildings_snapshot_buildings",
		Help: "Buildings in the current snapshot",
	})
	SnapshotMatched = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "buildings_snapshot_matched",
		Help: "Buildings matched to a parcel in the current snapshot",
	})
	RefreshTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "buildings_refresh_total",
		Help: "Snapshot refresh attempts by result",
	}, []string{"result"})

	InterpretTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "buildings_interpret_total",
		Help: "Query interpretations by interpreter and result",
	}, []string{"interpreter", "result"})
	InterpretDurationMs = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "buildings_interpret_duration_ms",
		Help:    "Interpreter call duration in milliseconds",
		Buckets: durationBuckets,
	}, []string{"interpreter"})
	InterpretCacheHits = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "buildings_interpret_cache_hits_total",
		Help: "Interpretation cache hits by tier",
	}, []string{"tier"})
	InterpretCacheMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "buildings_interpret_cache_misses_total",
		Help: "Interpretation cache misses",
	})
	RateLimitedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "buildings_rate_limited_total",
		Help: "Requests rejected by the rate limiter",
	})
	FilterMatches = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "buildings_filter_matches",
		Help:    "Number of buildings matched per query",
		Buckets: []float64{0, 1, 5, 10, 50, 100, 500, 1000},
	})
)

func init() {
	prometheus.MustRegister(RequestsTotal)
	prometheus.MustRegister(RequestDurationMs)
	prometheus.MustRegister(SourceRequestsTotal)
	prometheus.MustRegister(SourceFailTotal)
	prometheus.MustRegister(SourceRecordsSkipped)
	prometheus.MustRegister(SourceDurationMs)
	prometheus.MustRegister(JoinRunsTotal)
	prometheus.MustRegister(JoinPairsTotal)
	prometheus.MustRegister(JoinDurationMs)
	prometheus.MustRegister(SnapshotBuildings)
	prometheus.MustRegister(SnapshotMatched)
	prometheus.MustRegister(RefreshTotal)
	prometheus.MustRegister(InterpretTotal)
	prometheus.MustRegister(InterpretDurationMs)
	prometheus.MustRegister(InterpretCacheHits)
	prometheus.MustRegister(InterpretCacheMisses)
	prometheus.MustRegister(RateLimitedTotal)
	prometheus.MustRegister(FilterMatches)
}

// 文档注释：返回 Prometheus 指标监听器
// 背景：统一暴露注册指标，供 Prometheus 抓取；在主入口挂载到 {API_BASE}/metrics。
func Handler() http.Handler { return promhttp.Handler() }
