package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge

	SearchesTotal *prometheus.CounterVec

	UpstreamRequestsTotal   *prometheus.CounterVec
	UpstreamRequestDuration *prometheus.HistogramVec
	QuotaHitsTotal          *prometheus.CounterVec
	KeysAvailable           *prometheus.GaugeVec

	CacheHitsTotal   prometheus.Counter
	CacheMissesTotal prometheus.Counter
	CacheEntries     prometheus.Gauge

	RateLimitHitsTotal *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// New регистрирует коллекторы в reg. nil - глобальный registry.
func New(reg prometheus.Registerer) *Metrics {
	var gatherer prometheus.Gatherer = prometheus.DefaultGatherer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	} else if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}
	f := promauto.With(reg)

	m := &Metrics{
		RequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "searchbeam_http_requests_total",
				Help: "Total number of HTTP requests processed",
			},
			[]string{"route", "status"},
		),
		RequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "searchbeam_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
			},
			[]string{"route"},
		),
		RequestsInFlight: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "searchbeam_searches_in_flight",
				Help: "Number of searches currently being dispatched",
			},
		),

		SearchesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "searchbeam_searches_total",
				Help: "Total number of dispatched searches by outcome",
			},
			[]string{"platform", "outcome"},
		),

		UpstreamRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "searchbeam_upstream_requests_total",
				Help: "Total number of upstream search API requests",
			},
			[]string{"platform", "status"},
		),
		UpstreamRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "searchbeam_upstream_request_duration_seconds",
				Help:    "Upstream search request duration in seconds",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"platform"},
		),
		QuotaHitsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "searchbeam_quota_exceeded_total",
				Help: "Total number of upstream quota rejections",
			},
			[]string{"platform"},
		),
		KeysAvailable: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "searchbeam_keys_available",
				Help: "Number of API keys currently available",
			},
			[]string{"platform"},
		),

		CacheHitsTotal: f.NewCounter(
			prometheus.CounterOpts{
				Name: "searchbeam_cache_hits_total",
				Help: "Total number of cache hits",
			},
		),
		CacheMissesTotal: f.NewCounter(
			prometheus.CounterOpts{
				Name: "searchbeam_cache_misses_total",
				Help: "Total number of cache misses",
			},
		),
		CacheEntries: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "searchbeam_cache_entries",
				Help: "Number of cached responses",
			},
		),

		RateLimitHitsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "searchbeam_rate_limit_hits_total",
				Help: "Total number of rejected callers",
			},
			[]string{"surface"},
		),

		gatherer: gatherer,
	}

	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) RecordRequest(route, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(route, status).Inc()
	m.RequestDuration.WithLabelValues(route).Observe(duration.Seconds())
}

func (m *Metrics) RecordSearch(platform, outcome string) {
	m.SearchesTotal.WithLabelValues(platform, outcome).Inc()
}

func (m *Metrics) RecordUpstreamRequest(platform, status string, duration time.Duration) {
	m.UpstreamRequestsTotal.WithLabelValues(platform, status).Inc()
	m.UpstreamRequestDuration.WithLabelValues(platform).Observe(duration.Seconds())
}

func (m *Metrics) RecordQuotaHit(platform string) {
	m.QuotaHitsTotal.WithLabelValues(platform).Inc()
}

func (m *Metrics) SetKeysAvailable(platform string, n int) {
	m.KeysAvailable.WithLabelValues(platform).Set(float64(n))
}

func (m *Metrics) RecordCacheHit() {
	m.CacheHitsTotal.Inc()
}

func (m *Metrics) RecordCacheMiss() {
	m.CacheMissesTotal.Inc()
}

func (m *Metrics) SetCacheEntries(n int) {
	m.CacheEntries.Set(float64(n))
}

func (m *Metrics) RecordRateLimitHit(surface string) {
	m.RateLimitHitsTotal.WithLabelValues(surface).Inc()
}

func (m *Metrics) IncRequestsInFlight() {
	m.RequestsInFlight.Inc()
}

func (m *Metrics) DecRequestsInFlight() {
	m.RequestsInFlight.Dec()
}
