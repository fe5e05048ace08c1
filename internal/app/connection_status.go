package app

import (
	"strconv"
	"strings"

	"github.com/skobkin/web888mon/internal/config"
	"github.com/skobkin/web888mon/internal/connectors"
)

// ConnectionTarget is the host:port shown to users for the configured device.
func ConnectionTarget(cfg config.DeviceConfig) string {
	host := strings.TrimSpace(cfg.Host)
	if host == "" {
		return ""
	}
	port := cfg.Port
	if port == 0 {
		port = config.DefaultPort
	}

	return host + ":" + strconv.Itoa(port)
}

// ConnectionStatusFromConfig is the status reported before the session publishes
// anything. HTTP-only mode never opens a socket.
func ConnectionStatusFromConfig(cfg config.DeviceConfig) connectors.ConnStatus {
	status := connectors.ConnStatus{
		State:         connectors.ConnectionStateDisconnected,
		TransportName: string(cfg.ResolveMode()),
		Target:        ConnectionTarget(cfg),
	}
	if status.Target != "" && cfg.ResolveMode() != config.ModeHTTP {
		status.State = connectors.ConnectionStateConnecting
	}

	return status
}
