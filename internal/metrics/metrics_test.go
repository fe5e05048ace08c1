package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/skobkin/web888mon/internal/config"
	"github.com/skobkin/web888mon/internal/connectors"
	"github.com/skobkin/web888mon/internal/coordinator"
	"github.com/skobkin/web888mon/internal/session"
	"github.com/skobkin/web888mon/internal/status"
	"github.com/skobkin/web888mon/internal/telemetry"
)

var _ session.Observer = (*Client)(nil)

func TestClientTracksSessionState(t *testing.T) {
	c := NewClient()

	if got := testutil.ToFloat64(c.sessionState.WithLabelValues("disconnected")); got != 1 {
		t.Fatalf("expected disconnected=1 initially, got %v", got)
	}

	c.StateChanged(connectors.ConnectionStateReady)
	if got := testutil.ToFloat64(c.sessionState.WithLabelValues("ready")); got != 1 {
		t.Fatalf("expected ready=1, got %v", got)
	}
	if got := testutil.ToFloat64(c.sessionState.WithLabelValues("disconnected")); got != 0 {
		t.Fatalf("expected disconnected=0, got %v", got)
	}

	c.Reconnecting()
	c.Reconnecting()
	if got := testutil.ToFloat64(c.reconnects); got != 2 {
		t.Fatalf("expected 2 reconnects, got %v", got)
	}

	c.ParseFailed("config_cb")
	c.ParseFailed("")
	if got := testutil.ToFloat64(c.parseFailures.WithLabelValues("config_cb")); got != 1 {
		t.Fatalf("expected one config_cb failure, got %v", got)
	}
	if got := testutil.ToFloat64(c.parseFailures.WithLabelValues("unknown")); got != 1 {
		t.Fatalf("expected one unlabelled failure, got %v", got)
	}
}

func TestClientRegisterAndInstrument(t *testing.T) {
	c := NewClient()
	reg := prometheus.NewRegistry()
	if err := c.Register(reg); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := c.Register(reg); err == nil {
		t.Fatalf("expected duplicate registration to fail")
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	client := &http.Client{Transport: c.InstrumentRoundTripper(http.DefaultTransport)}
	resp, err := client.Get(srv.URL)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	_ = resp.Body.Close()

	if got := testutil.ToFloat64(c.clientRequestCount.WithLabelValues("200", "get")); got != 1 {
		t.Fatalf("expected one counted request, got %v", got)
	}
}

func TestDeviceCollectorDownBeforeFirstView(t *testing.T) {
	d := NewDeviceCollector()

	expected := `
# HELP web888_up Did the last refresh reach the device.
# TYPE web888_up gauge
web888_up 0
`
	if err := testutil.CollectAndCompare(d, strings.NewReader(expected), "web888_up"); err != nil {
		t.Fatalf("unexpected metrics: %v", err)
	}
	if n := testutil.CollectAndCount(d); n != 1 {
		t.Fatalf("expected only the up metric, got %d", n)
	}
}

func TestDeviceCollectorExportsView(t *testing.T) {
	channels := telemetry.IdleChannels()
	channels[0] = telemetry.ChannelEntry{Index: 0, ClientIP: "127.0.0.1", Extension: "FT8", DecodedCount: 42, Class: telemetry.ClassFT8}
	channels[1] = telemetry.ChannelEntry{Index: 1, ClientIP: "203.0.113.5", Class: telemetry.ClassUser}

	view := coordinator.View{
		Mode:            config.ModeHybrid,
		ConnectionState: connectors.ConnectionStateReady,
		Name:            "Test SDR",
		Version:         "v1.805",
		HasHTTP:         true,
		HTTP:            status.Fields{Users: 2, UsersMax: 12, SNR: "21,17"},
		HasSocket:       true,
		Stats:           telemetry.DeviceStats{CPUTempC: 71.5, UptimeSeconds: 90},
		HasChannels:     true,
		Channels:        channels,
		ThermalWarning:  true,
	}

	d := NewDeviceCollector()
	d.Update(view)

	expected := `
# HELP web888_up Did the last refresh reach the device.
# TYPE web888_up gauge
web888_up 1
# HELP web888_users Connected listeners.
# TYPE web888_users gauge
web888_users 2
# HELP web888_snr_db Measured band SNR.
# TYPE web888_snr_db gauge
web888_snr_db{band="all"} 21
web888_snr_db{band="hf"} 17
# HELP web888_cpu_thermal_warning CPU temperature is at or above the configured threshold.
# TYPE web888_cpu_thermal_warning gauge
web888_cpu_thermal_warning 1
# HELP web888_decoder_spots Spots decoded across all channels.
# TYPE web888_decoder_spots gauge
web888_decoder_spots{decoder="ft8"} 42
web888_decoder_spots{decoder="wspr"} 0
`
	if err := testutil.CollectAndCompare(d, strings.NewReader(expected),
		"web888_up", "web888_users", "web888_snr_db", "web888_cpu_thermal_warning", "web888_decoder_spots"); err != nil {
		t.Fatalf("unexpected metrics: %v", err)
	}
}
