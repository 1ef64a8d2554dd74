// Package metrics holds the process's Prometheus collectors on a private registry.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "grid_dashboard"

type Metrics struct {
	Registry *prometheus.Registry

	FramesReceived      *prometheus.CounterVec
	FramesSent          *prometheus.CounterVec
	SendFailures        *prometheus.CounterVec
	ParseErrors         prometheus.Counter
	ReconnectsScheduled prometheus.Counter
	ReconnectsExhausted prometheus.Counter
	Connected           prometheus.Gauge

	BrowserClients  prometheus.Gauge
	HTTPRequests    *prometheus.CounterVec
	HTTPDuration    *prometheus.HistogramVec
	RESTRequestTime *prometheus.HistogramVec
}

func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		FramesReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ws_frames_received_total",
				Help:      "Inbound backend frames by classification",
			},
			[]string{"class"},
		),
		FramesSent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ws_frames_sent_total",
				Help:      "Outbound frames accepted by the channel, by type",
			},
			[]string{"type"},
		),
		SendFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ws_send_failures_total",
				Help:      "Outbound frames that were not sent",
			},
			[]string{"reason"},
		),
		ParseErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_parse_errors_total",
			Help:      "Inbound frames dropped because they could not be decoded",
		}),
		ReconnectsScheduled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_reconnects_scheduled_total",
			Help:      "Automatic reconnection attempts scheduled",
		}),
		ReconnectsExhausted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_reconnects_exhausted_total",
			Help:      "Times the reconnection budget ran out",
		}),
		Connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ws_connected",
			Help:      "1 while the backend socket is open",
		}),
		BrowserClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "browser_clients",
			Help:      "Browser websocket clients attached to the dashboard",
		}),
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"route", "method", "code"},
		),
		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "Histogram of response latency (seconds) for HTTP requests",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"route", "method"},
		),
		RESTRequestTime: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "backend_request_duration_seconds",
				Help:      "Latency of REST calls to the trading backend",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"endpoint", "outcome"},
		),
	}
	m.Registry.MustRegister(
		m.FramesReceived,
		m.FramesSent,
		m.SendFailures,
		m.ParseErrors,
		m.ReconnectsScheduled,
		m.ReconnectsExhausted,
		m.Connected,
		m.BrowserClients,
		m.HTTPRequests,
		m.HTTPDuration,
		m.RESTRequestTime,
	)
	return m
}

// Handler serves the private registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}
