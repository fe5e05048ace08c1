package coordinator

import (
	"time"

	"github.com/skobkin/web888mon/internal/config"
	"github.com/skobkin/web888mon/internal/connectors"
	"github.com/skobkin/web888mon/internal/device"
	"github.com/skobkin/web888mon/internal/status"
	"github.com/skobkin/web888mon/internal/telemetry"
)

// View is one merged telemetry result. It is a value: subscribers get their own
// copy and nothing in it is mutated after delivery.
type View struct {
	Mode            config.Mode
	ConnectionState connectors.ConnectionState
	UpdatedAt       time.Time

	Name     string
	Location string
	Antenna  string
	Version  string
	Identity connectors.DeviceIdentity

	HasHTTP   bool
	HTTP      status.Fields
	HTTPError string

	HasSocket bool
	Stats     telemetry.DeviceStats
	Config    device.Config

	HasChannels bool
	Channels    telemetry.ChannelTable

	HasSatellites bool
	Satellites    telemetry.SatelliteTable

	ThermalThresholdC float64
	ThermalWarning    bool
}

// Connected reports whether any source answered during this refresh.
func (v View) Connected() bool {
	return v.HasHTTP || v.ConnectionState == connectors.ConnectionStateReady
}

// Users prefers the device's own count and falls back to occupied channels.
func (v View) Users() int {
	if v.HasHTTP {
		return v.HTTP.Users
	}
	if v.HasChannels {
		return v.Channels.ActiveUsers()
	}

	return 0
}

// Position returns the receiver location from the socket, or the status page.
func (v View) Position() (lat, lon float64, ok bool) {
	if v.HasSocket && (v.Stats.Latitude != 0 || v.Stats.Longitude != 0) {
		return v.Stats.Latitude, v.Stats.Longitude, true
	}
	if v.HasHTTP && v.HTTP.HasPosition {
		return v.HTTP.Latitude, v.HTTP.Longitude, true
	}

	return 0, 0, false
}

func (v View) UptimeSeconds() int64 {
	if v.HasSocket && v.Stats.UptimeSeconds > 0 {
		return v.Stats.UptimeSeconds
	}
	if v.HasHTTP {
		return v.HTTP.UptimeSeconds
	}

	return 0
}

// preferSocket returns the socket value unless it is empty.
func preferSocket(socket, http string) string {
	if socket != "" {
		return socket
	}

	return http
}
