package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the engine's collectors on a private registry so several
// engines (and tests) can coexist in one process. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	Registry *prometheus.Registry

	MessagesSent    *prometheus.CounterVec
	SendDuration    prometheus.Histogram
	Reconciled      *prometheus.CounterVec
	ReceiptsDropped prometheus.Counter
	FramesDecoded   *prometheus.CounterVec
	DecodeErrors    prometheus.Counter
	WSReconnects    prometheus.Counter
	WSConnected     prometheus.Gauge
	HTTPRequests    *prometheus.CounterVec
	HTTPRetries     *prometheus.CounterVec
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		Registry: reg,
		MessagesSent: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chatcore_messages_sent_total",
				Help: "Outgoing messages by final send outcome",
			},
			[]string{"outcome"}, // "acked" or "failed"
		),
		SendDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "chatcore_send_duration_seconds",
				Help:    "Time from optimistic append to server ack",
				Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
		),
		Reconciled: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chatcore_reconcile_total",
				Help: "Reconciliation steps by source and outcome",
			},
			[]string{"source", "outcome"},
		),
		ReceiptsDropped: f.NewCounter(
			prometheus.CounterOpts{
				Name: "chatcore_receipts_dropped_total",
				Help: "Receipts naming a message the timeline does not hold",
			},
		),
		FramesDecoded: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chatcore_ws_frames_total",
				Help: "Inbound realtime frames by decoded kind",
			},
			[]string{"kind"},
		),
		DecodeErrors: f.NewCounter(
			prometheus.CounterOpts{
				Name: "chatcore_ws_decode_errors_total",
				Help: "Inbound frames that failed to decode",
			},
		),
		WSReconnects: f.NewCounter(
			prometheus.CounterOpts{
				Name: "chatcore_ws_reconnects_total",
				Help: "Realtime channel reconnect attempts",
			},
		),
		WSConnected: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "chatcore_ws_authenticated",
				Help: "1 while the realtime channel is authenticated",
			},
		),
		HTTPRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chatcore_http_requests_total",
				Help: "REST requests by endpoint and status",
			},
			[]string{"endpoint", "status"},
		),
		HTTPRetries: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chatcore_http_retries_total",
				Help: "REST retries by endpoint",
			},
			[]string{"endpoint"},
		),
	}
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

func (m *Metrics) SendResult(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.MessagesSent.WithLabelValues(outcome).Inc()
	if outcome == "acked" {
		m.SendDuration.Observe(elapsed.Seconds())
	}
}

func (m *Metrics) Reconcile(source, outcome string) {
	if m == nil {
		return
	}
	m.Reconciled.WithLabelValues(source, outcome).Inc()
}

func (m *Metrics) ReceiptDropped() {
	if m == nil {
		return
	}
	m.ReceiptsDropped.Inc()
}

func (m *Metrics) Frame(kind string) {
	if m == nil {
		return
	}
	m.FramesDecoded.WithLabelValues(kind).Inc()
}

func (m *Metrics) DecodeError() {
	if m == nil {
		return
	}
	m.DecodeErrors.Inc()
}

func (m *Metrics) Reconnect() {
	if m == nil {
		return
	}
	m.WSReconnects.Inc()
}

func (m *Metrics) Authenticated(ok bool) {
	if m == nil {
		return
	}
	if ok {
		m.WSConnected.Set(1)
		return
	}
	m.WSConnected.Set(0)
}

// HTTPRequest records a completed REST call; status 0 means no response.
func (m *Metrics) HTTPRequest(endpoint string, status int) {
	if m == nil {
		return
	}
	code := "error"
	if status > 0 {
		code = strconv.Itoa(status)
	}
	m.HTTPRequests.WithLabelValues(endpoint, code).Inc()
}

func (m *Metrics) HTTPRetry(endpoint string) {
	if m == nil {
		return
	}
	m.HTTPRetries.WithLabelValues(endpoint).Inc()
}
