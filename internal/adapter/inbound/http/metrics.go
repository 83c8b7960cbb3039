// Package http provides the HTTP transport adapter for the gateway.
package http

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the gateway.
// Pass to components that need to record metrics.
type Metrics struct {
	RequestsTotal       *prometheus.CounterVec
	RequestDuration     *prometheus.HistogramVec
	ActiveSessions      prometheus.Gauge
	ProxiedRequests     *prometheus.CounterVec
	SseFramesCaptured   *prometheus.CounterVec
	HealthCheckResults  *prometheus.CounterVec
	RegisteredUpstreams prometheus.Gauge
}

// NewMetrics creates and registers all metrics with the given registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		RequestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "mcpwatch",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests processed by the gateway",
			},
			[]string{"method", "status"},
		),
		RequestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "mcpwatch",
				Name:      "request_duration_seconds",
				Help:      "Request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method"},
		),
		ProxiedRequests: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "mcpwatch",
				Name:      "proxied_requests_total",
				Help:      "Total number of proxied MCP requests, by upstream server",
			},
			[]string{"server", "status"}, // status=ok/error/not_found
		),
		ActiveSessions: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Namespace: "mcpwatch",
				Name:      "active_sessions",
				Help:      "Number of tracked client sessions",
			},
		),
		SseFramesCaptured: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "mcpwatch",
				Name:      "sse_frames_captured_total",
				Help:      "Total SSE frames captured off the background parse branch",
			},
			[]string{"server"},
		),
		HealthCheckResults: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "mcpwatch",
				Name:      "health_check_results_total",
				Help:      "Total upstream health check outcomes",
			},
			[]string{"server", "result"}, // result=up/down
		),
		RegisteredUpstreams: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Namespace: "mcpwatch",
				Name:      "registered_upstreams",
				Help:      "Number of upstream MCP servers currently registered",
			},
		),
	}
}
