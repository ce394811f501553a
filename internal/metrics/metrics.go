// Package metrics defines prometheus metrics to expose
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ResponseCodes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cliproxy_gateway_response_codes_total",
			Help: "Total responses by route and status code",
		},
		[]string{"path", "code"},
	)

	UpstreamDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cliproxy_gateway_upstream_duration_seconds",
			Help:    "Time until the upstream response headers arrive",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 15, 20, 30, 45, 60, 90, 120},
		},
		[]string{"pathname", "kind"},
	)

	UpstreamErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cliproxy_gateway_upstream_errors_total",
			Help: "Upstream call failures by pathname and kind",
		},
		[]string{"pathname", "kind"},
	)

	RateLimitRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cliproxy_gateway_rate_limit_rejections_total",
			Help: "Requests rejected by the fixed-window rate limiter",
		},
		[]string{"bucket"},
	)

	StreamedBytes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cliproxy_gateway_streamed_bytes_total",
			Help: "Bytes relayed to clients on the streaming path",
		},
		[]string{"pathname"},
	)

	AuthFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cliproxy_gateway_auth_failures_total",
			Help: "Authentication rejections by code",
		},
		[]string{"code"},
	)
)
