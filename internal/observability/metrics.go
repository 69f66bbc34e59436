package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides a centralized interface for collecting application metrics.
//
// The metrics system is built on Prometheus and tracks:
//   - Websocket connection counts and frame flow
//   - Conversation event fan-out to subscribers
//   - HTTP API request performance
//   - Storage operation latencies
//   - Review SLA notifications by status
type Metrics struct {
	// WSConnections is a gauge tracking currently connected websocket peers.
	WSConnections prometheus.Gauge

	// WSFrames tracks websocket frames by type and direction.
	// Labels: type (subscribe|chat_message|message_received|...), direction (inbound|outbound)
	WSFrames *prometheus.CounterVec

	// Broadcasts counts events fanned out to conversation subscribers.
	// Labels: event (message_received|conversation_updated|message_flagged)
	Broadcasts *prometheus.CounterVec

	// Subscriptions is a gauge tracking live conversation subscriptions.
	Subscriptions prometheus.Gauge

	// HTTPRequestDuration measures HTTP API request latency.
	// Labels: method, path, status_code
	// Buckets: 0.001s, 0.005s, 0.01s, 0.05s, 0.1s, 0.5s, 1s, 5s
	HTTPRequestDuration *prometheus.HistogramVec

	// HTTPRequestCounter counts HTTP requests.
	// Labels: method, path, status_code
	HTTPRequestCounter *prometheus.CounterVec

	// StoreOpDuration measures storage operation latency.
	// Labels: operation
	StoreOpDuration *prometheus.HistogramVec

	// SLANotifications counts review SLA notifications by status.
	// Labels: status (at_risk|overdue)
	SLANotifications *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics with the default
// registry. Call once at startup; the /metrics endpoint serves the result.
func NewMetrics() *Metrics {
	return &Metrics{
		WSConnections: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "pulse_ws_connections",
			Help: "Current number of connected websocket peers",
		}),

		WSFrames: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pulse_ws_frames_total",
				Help: "Total number of websocket frames by type and direction",
			},
			[]string{"type", "direction"},
		),

		Broadcasts: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pulse_broadcasts_total",
				Help: "Total number of events fanned out to conversation subscribers",
			},
			[]string{"event"},
		),

		Subscriptions: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "pulse_subscriptions",
			Help: "Current number of live conversation subscriptions",
		}),

		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pulse_http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"method", "path", "status_code"},
		),

		HTTPRequestCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pulse_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status_code"},
		),

		StoreOpDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pulse_store_operation_duration_seconds",
				Help:    "Duration of storage operations in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"operation"},
		),

		SLANotifications: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pulse_sla_notifications_total",
				Help: "Total number of review SLA notifications by status",
			},
			[]string{"status"},
		),
	}
}

// FrameReceived records an inbound websocket frame.
func (m *Metrics) FrameReceived(frameType string) {
	if m == nil {
		return
	}
	m.WSFrames.WithLabelValues(frameType, "inbound").Inc()
}

// FrameSent records an outbound websocket frame.
func (m *Metrics) FrameSent(frameType string) {
	if m == nil {
		return
	}
	m.WSFrames.WithLabelValues(frameType, "outbound").Inc()
}

// ConnectionOpened increments the connection gauge.
func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.WSConnections.Inc()
}

// ConnectionClosed decrements the connection gauge.
func (m *Metrics) ConnectionClosed() {
	if m == nil {
		return
	}
	m.WSConnections.Dec()
}

// BroadcastSent records a fan-out of the given event type.
func (m *Metrics) BroadcastSent(event string) {
	if m == nil {
		return
	}
	m.Broadcasts.WithLabelValues(event).Inc()
}

// SLANotified records an SLA notification by status.
func (m *Metrics) SLANotified(status string) {
	if m == nil {
		return
	}
	m.SLANotifications.WithLabelValues(status).Inc()
}
