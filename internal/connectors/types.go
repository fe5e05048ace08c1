package connectors

import "time"

// ConnectionState describes the admin session lifecycle.
type ConnectionState string

const (
	ConnectionStateDisconnected   ConnectionState = "disconnected"
	ConnectionStateConnecting     ConnectionState = "connecting"
	ConnectionStateAuthenticating ConnectionState = "authenticating"
	ConnectionStateDraining       ConnectionState = "draining_config"
	ConnectionStateReady          ConnectionState = "ready"
	ConnectionStateClosing        ConnectionState = "closing"
	ConnectionStateReconnecting   ConnectionState = "reconnecting"
)

// Connected reports whether the socket is open in this state.
func (s ConnectionState) Connected() bool {
	switch s {
	case ConnectionStateAuthenticating, ConnectionStateDraining, ConnectionStateReady:
		return true
	default:
		return false
	}
}

// ConnStatus is a bus event snapshot of the current session status.
type ConnStatus struct {
	State         ConnectionState
	Err           string
	TransportName string
	Target        string
	AttemptID     string
	Timestamp     time.Time
}

// DeviceIdentity is published when hardware identity becomes known.
type DeviceIdentity struct {
	Host         string
	MACAddress   string
	SerialNumber string
	DNA          string
	// Source is "device", "configured" or "cache".
	Source    string
	Timestamp time.Time
}

func (d DeviceIdentity) Empty() bool {
	return d.MACAddress == "" && d.SerialNumber == "" && d.DNA == ""
}
