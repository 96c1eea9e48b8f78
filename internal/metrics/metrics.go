package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	LoginTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_login_total",
			Help: "Login attempts by outcome.",
		},
		[]string{"outcome"},
	)
	RefreshTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_refresh_total",
			Help: "Refresh attempts by outcome.",
		},
		[]string{"outcome"},
	)
	RefreshReuseDetected = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "auth_refresh_reuse_detected_total",
			Help: "Refresh token reuse detections (revoked sessions).",
		},
	)
	RateLimited = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_rate_limited_total",
			Help: "Requests rejected by the rate limiter.",
		},
		[]string{"route"},
	)
)

func Register(registry *prometheus.Registry) {
	registry.MustRegister(
		RequestCount,
		RequestDuration,
		LoginTotal,
		RefreshTotal,
		RefreshReuseDetected,
		RateLimited,
	)
}

func Handler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
