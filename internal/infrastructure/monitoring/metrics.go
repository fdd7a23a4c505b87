package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Exchange outcomes, used as the outcome label value.
const (
	OutcomeComplete  = "complete"
	OutcomeCancelled = "cancelled"
	OutcomeFailed    = "failed"
)

// Metrics holds all Prometheus metrics.
type Metrics struct {
	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Chat metrics
	ExchangesTotal   *prometheus.CounterVec
	ExchangeDuration prometheus.Histogram
	ChunksTotal      prometheus.Counter

	// WebSocket metrics
	WSConnections prometheus.Gauge
	WSMessages    *prometheus.CounterVec

	// Plan generation metrics
	PlansTotal *prometheus.CounterVec

	reg prometheus.Registerer
}

// NewMetrics creates a metrics collector registered on reg, or on the
// default registerer when reg is nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		reg: reg,

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "companion_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "companion_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),

		ExchangesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "companion_chat_exchanges_total",
				Help: "Total number of streamed chat exchanges by outcome",
			},
			[]string{"outcome"},
		),
		ExchangeDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "companion_chat_exchange_duration_seconds",
				Help:    "Streamed exchange duration in seconds",
				Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
			},
		),
		ChunksTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "companion_chat_chunks_total",
				Help: "Total number of content chunks delivered to clients",
			},
		),

		WSConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "companion_ws_connections",
				Help: "Number of active WebSocket connections",
			},
		),
		WSMessages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "companion_ws_messages_total",
				Help: "Total number of WebSocket messages",
			},
			[]string{"direction", "type"},
		),

		PlansTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "companion_plans_total",
				Help: "Total number of generated wellness plans",
			},
			[]string{"kind", "status"},
		),
	}
}

// RecordHTTPRequest records one served HTTP request.
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordExchange records a resolved streamed exchange.
func (m *Metrics) RecordExchange(outcome string, duration time.Duration) {
	m.ExchangesTotal.WithLabelValues(outcome).Inc()
	m.ExchangeDuration.Observe(duration.Seconds())
}

// RecordChunk counts one delivered content chunk.
func (m *Metrics) RecordChunk() {
	m.ChunksTotal.Inc()
}

// RecordWSMessage records a WebSocket message.
func (m *Metrics) RecordWSMessage(direction, msgType string) {
	m.WSMessages.WithLabelValues(direction, msgType).Inc()
}

// RecordPlan records a plan generation attempt.
func (m *Metrics) RecordPlan(kind, status string) {
	m.PlansTotal.WithLabelValues(kind, status).Inc()
}

// RegisterDepthGauges exposes live depths sampled at scrape time.
func (m *Metrics) RegisterDepthGauges(activeStreams, queueDepth func() int) {
	factory := promauto.With(m.reg)
	factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "companion_chat_streams_active",
			Help: "Number of streams currently registered for delivery",
		},
		func() float64 { return float64(activeStreams()) },
	)
	factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "companion_chat_queue_depth",
			Help: "Number of requests waiting behind the running one",
		},
		func() float64 { return float64(queueDepth()) },
	)
}
