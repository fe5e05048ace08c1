package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/skobkin/web888mon/internal/connectors"
)

const namespace = "web888"

var knownStates = []connectors.ConnectionState{
	connectors.ConnectionStateDisconnected,
	connectors.ConnectionStateConnecting,
	connectors.ConnectionStateAuthenticating,
	connectors.ConnectionStateDraining,
	connectors.ConnectionStateReady,
	connectors.ConnectionStateClosing,
	connectors.ConnectionStateReconnecting,
}

// Client holds the monitor's own metrics: session lifecycle, parse failures and
// HTTP requests made to the device.
type Client struct {
	mu    sync.Mutex
	state connectors.ConnectionState

	sessionState          *prometheus.GaugeVec
	reconnects            prometheus.Counter
	parseFailures         *prometheus.CounterVec
	clientRequestCount    *prometheus.CounterVec
	clientRequestDuration *prometheus.HistogramVec
}

func NewClient() *Client {
	c := &Client{
		state: connectors.ConnectionStateDisconnected,
		sessionState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "state",
			Help:      "Admin session state; 1 for the current state.",
		}, []string{"state"}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "reconnects_total",
			Help:      "Admin session reconnect attempts.",
		}),
		parseFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "parse_errors_total",
			Help:      "Device messages that could not be decoded.",
		}, []string{"message"}),
		clientRequestCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "client_requests_total",
			Help:      "HTTP requests to the device status page.",
		}, []string{"code", "method"}),
		clientRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "client_request_duration_seconds",
			Help:      "Histogram of device status page latencies.",
		}, []string{"code", "method"}),
	}
	c.setStateGauge(c.state)

	return c
}

// Register adds every client metric to reg.
func (c *Client) Register(reg prometheus.Registerer) error {
	for _, col := range []prometheus.Collector{
		c.sessionState,
		c.reconnects,
		c.parseFailures,
		c.clientRequestCount,
		c.clientRequestDuration,
	} {
		if err := reg.Register(col); err != nil {
			return err
		}
	}

	return nil
}

// InstrumentRoundTripper wraps next with request counting and latency metrics.
func (c *Client) InstrumentRoundTripper(next http.RoundTripper) http.RoundTripper {
	return promhttp.InstrumentRoundTripperCounter(c.clientRequestCount,
		promhttp.InstrumentRoundTripperDuration(c.clientRequestDuration, next))
}

func (c *Client) StateChanged(state connectors.ConnectionState) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.state = state
	c.setStateGauge(state)
}

func (c *Client) setStateGauge(current connectors.ConnectionState) {
	for _, s := range knownStates {
		v := 0.0
		if s == current {
			v = 1
		}
		c.sessionState.WithLabelValues(string(s)).Set(v)
	}
}

func (c *Client) Reconnecting() {
	c.reconnects.Inc()
}

func (c *Client) ParseFailed(message string) {
	if message == "" {
		message = "unknown"
	}
	c.parseFailures.WithLabelValues(message).Inc()
}
