package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/skobkin/web888mon/internal/config"
	"github.com/skobkin/web888mon/internal/coordinator"
	"github.com/skobkin/web888mon/internal/status"
)

func TestParseFlags(t *testing.T) {
	t.Setenv("WEB888_LISTEN_ADDRESS", "")

	opts, err := parseFlags([]string{"--config", "/etc/web888.yaml", "--once", "--web.telemetry-path", "/m"})
	if err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	if opts.configPath != "/etc/web888.yaml" || !opts.once || opts.metricsPath != "/m" {
		t.Fatalf("unexpected options: %+v", opts)
	}
	if opts.listenAddress != "" {
		t.Fatalf("expected listen address to fall back to config, got %q", opts.listenAddress)
	}

	if _, err := parseFlags([]string{"--no-such-flag"}); err == nil {
		t.Fatalf("expected unknown flag error")
	}
}

func TestParseFlagsEnvironment(t *testing.T) {
	t.Setenv("WEB888_LISTEN_ADDRESS", ":9999")

	opts, err := parseFlags(nil)
	if err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	if opts.listenAddress != ":9999" {
		t.Fatalf("expected env listen address, got %q", opts.listenAddress)
	}
}

func TestWriteReport(t *testing.T) {
	var buf bytes.Buffer
	view := coordinator.View{
		Mode:    config.ModeHTTP,
		Name:    "Lake SDR",
		HasHTTP: true,
		HTTP:    status.Fields{Users: 4, UptimeSeconds: 60},
	}
	if err := writeReport(&buf, view); err != nil {
		t.Fatalf("write report: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("report is not json: %v", err)
	}
	if decoded["Name"] != "Lake SDR" || decoded["Users"] != float64(4) || decoded["Connected"] != true {
		t.Fatalf("unexpected report: %v", decoded)
	}
}

func TestMuxServesMetricsAndLanding(t *testing.T) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewCounter(prometheus.CounterOpts{Name: "web888_test_total", Help: "test"}))

	srv := httptest.NewServer(newMux(reg, "/metrics"))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("get metrics: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if !strings.Contains(string(body), "web888_test_total 0") {
		t.Fatalf("metrics missing from output:\n%s", body)
	}

	resp, err = http.Get(srv.URL + "/")
	if err != nil {
		t.Fatalf("get landing page: %v", err)
	}
	body, _ = io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if !strings.Contains(string(body), "href='/metrics'") {
		t.Fatalf("landing page does not link metrics:\n%s", body)
	}

	resp, err = http.Get(srv.URL + "/nope")
	if err != nil {
		t.Fatalf("get unknown path: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}
