// control/metrics.go
// Author: momentics <momentics@gmail.com>
//
// Runtime metrics exported through the default Prometheus registry.

package control

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/momentics/hioload-serve/protocol"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hioload_http_requests_total",
		Help: "HTTP requests answered, by status code",
	}, []string{"status"})

	wsConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hioload_websocket_connections_active",
		Help: "Currently open WebSocket sessions",
	})

	wsConnectionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hioload_websocket_connections_total",
		Help: "WebSocket upgrades completed",
	})

	wsFramesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hioload_websocket_frames_received_total",
		Help: "Frames decoded from clients, by opcode",
	}, []string{"opcode"})

	wsFramesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hioload_websocket_frames_sent_total",
		Help: "Frames written to clients, by opcode",
	}, []string{"opcode"})

	broadcastDeliveries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hioload_broadcast_deliveries_total",
		Help: "Messages delivered by room or global broadcasts",
	})

	protocolErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hioload_protocol_errors_total",
		Help: "Connections abandoned because of protocol or transport errors",
	}, []string{"reason"})

	callbackFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hioload_callback_failures_total",
		Help: "Handler or WebSocket callback failures, by callback kind",
	}, []string{"kind"})
)

// RecordHTTPRequest counts one answered HTTP request.
func RecordHTTPRequest(status int) {
	httpRequestsTotal.WithLabelValues(strconv.Itoa(status)).Inc()
}

// WebSocketOpened tracks a completed upgrade.
func WebSocketOpened() {
	wsConnectionsTotal.Inc()
	wsConnectionsActive.Inc()
}

// WebSocketClosed tracks a finished session.
func WebSocketClosed() {
	wsConnectionsActive.Dec()
}

func RecordFrameIn(opcode byte) {
	wsFramesReceived.WithLabelValues(protocol.OpcodeName(opcode)).Inc()
}

func RecordFrameOut(opcode byte) {
	wsFramesSent.WithLabelValues(protocol.OpcodeName(opcode)).Inc()
}

// RecordBroadcast adds n successful deliveries.
func RecordBroadcast(n int) {
	broadcastDeliveries.Add(float64(n))
}

// RecordProtocolError counts an abandoned connection. Keep reason low-cardinality.
func RecordProtocolError(reason string) {
	protocolErrors.WithLabelValues(reason).Inc()
}

// RecordCallbackFailure counts a failed handler or callback: http, open, message, close.
func RecordCallbackFailure(kind string) {
	callbackFailures.WithLabelValues(kind).Inc()
}

// MetricsHandler serves the default registry in the Prometheus text format.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
