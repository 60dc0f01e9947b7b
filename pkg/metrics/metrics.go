package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	// outcome: cache_hit, success, not_found, failed
	ResolutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resolutions_total",
			Help: "Total number of reference resolutions by outcome.",
		},
		[]string{"outcome"},
	)

	// result: success, not_found, timeout, navigation, extraction, proxy, unknown
	AttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resolution_attempts_total",
			Help: "Total number of render attempts by result.",
		},
		[]string{"result"},
	)

	ResolutionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "resolution_duration_seconds",
			Help:    "Duration of single reference resolutions.",
			Buckets: []float64{0.01, 0.1, 1, 5, 15, 30, 60, 120},
		},
		[]string{"outcome"},
	)

	ProxyPoolSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "proxy_pool_size",
			Help: "Number of egress credentials in the current pool.",
		},
	)

	ProxyPoolRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "proxy_pool_refreshes_total",
			Help: "Total number of proxy pool refreshes.",
		},
		[]string{"status"},
	)

	RendererSessionsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "renderer_sessions_open",
			Help: "Number of browser sessions currently open.",
		},
	)
)
